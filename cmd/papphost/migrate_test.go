// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/papphost/internal/config"
	"github.com/holomush/papphost/pkg/errutil"
)

type mockMigrator struct{ mock.Mock }

func (m *mockMigrator) Up() error   { return m.Called().Error(0) }
func (m *mockMigrator) Down() error { return m.Called().Error(0) }
func (m *mockMigrator) Close() error {
	return m.Called().Error(0)
}

func (m *mockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func runMigrate(t *testing.T, m *mockMigrator, url string, args ...string) (string, error) {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{URL: url}}
	var gotURL string
	cmd := newMigrateCmd(configLoaderFor(cfg), func(databaseURL string) (migrator, error) {
		gotURL = databaseURL
		return m, nil
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.Equal(t, url, gotURL)
	}
	return buf.String(), err
}

func TestMigrateCmd_Up(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(nil)
	m.On("Close").Return(nil)

	out, err := runMigrate(t, m, "postgres://localhost/papphost")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations completed successfully")
	m.AssertExpectations(t)
}

func TestMigrateCmd_UpFailure(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(errors.New("dirty database"))
	m.On("Close").Return(nil)

	_, err := runMigrate(t, m, "postgres://localhost/papphost")
	assert.EqualError(t, err, "dirty database")
	m.AssertExpectations(t)
}

func TestMigrateCmd_Down(t *testing.T) {
	m := &mockMigrator{}
	m.On("Down").Return(nil)
	m.On("Close").Return(nil)

	out, err := runMigrate(t, m, "postgres://localhost/papphost", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back")
	m.AssertExpectations(t)
}

func TestMigrateCmd_Version(t *testing.T) {
	m := &mockMigrator{}
	m.On("Version").Return(uint(1), false, nil)
	m.On("Close").Return(nil)

	out, err := runMigrate(t, m, "postgres://localhost/papphost", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1 (dirty: false)")
	m.AssertExpectations(t)
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	m := &mockMigrator{}
	_, err := runMigrate(t, m, "")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	m.AssertNotCalled(t, "Up")
}
