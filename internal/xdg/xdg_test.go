// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/papphost/pkg/errutil"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		fn   func() (string, error)
		want string
	}{
		{"config from env", map[string]string{"XDG_CONFIG_HOME": "/custom/config"}, ConfigDir, "/custom/config/papphost"},
		{"config default", map[string]string{"XDG_CONFIG_HOME": "", "HOME": "/home/testuser"}, ConfigDir, "/home/testuser/.config/papphost"},
		{"data from env", map[string]string{"XDG_DATA_HOME": "/custom/data"}, DataDir, "/custom/data/papphost"},
		{"data default", map[string]string{"XDG_DATA_HOME": "", "HOME": "/home/testuser"}, DataDir, "/home/testuser/.local/share/papphost"},
		{"config file", map[string]string{"XDG_CONFIG_HOME": "/custom/config"}, ConfigFile, "/custom/config/papphost/config.yaml"},
		{"papp dir", map[string]string{"XDG_DATA_HOME": "/custom/data"}, PappDir, "/custom/data/papphost/papps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirs_NoHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")

	_, err := PappDir()
	errutil.AssertErrorCode(t, err, "XDG_HOME_UNSET")
}

func TestEnsureDir(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "nested", "dir")

	require.NoError(t, EnsureDir(testPath))
	require.NoError(t, EnsureDir(testPath), "idempotent")

	info, err := os.Stat(testPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
