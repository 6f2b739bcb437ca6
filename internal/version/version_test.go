// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package version_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/papphost/internal/version"
	"github.com/holomush/papphost/pkg/errutil"
)

func TestValidateName(t *testing.T) {
	valid := []string{"demo_plugin", "papp_noop", "a", "x9"}
	for _, name := range valid {
		assert.NoError(t, version.ValidateName(name), name)
	}

	invalid := []string{"", "Demo", "9lives", "_x", "demo-plugin", "a.b", strings.Repeat("a", 65)}
	for _, name := range invalid {
		err := version.ValidateName(name)
		errutil.AssertErrorCode(t, err, "PAPP_INVALID_NAME")
	}
}

func TestLatest(t *testing.T) {
	infos := []*version.Info{
		{Name: "demo", Version: "1.2.0"},
		{Name: "demo", Version: "1.10.0"},
		{Name: "demo", Version: "not-a-version"},
		{Name: "demo", Version: "1.9.9"},
	}
	assert.Equal(t, "1.10.0", version.Latest(infos).Version)
	assert.Nil(t, version.Latest(nil))

	onlyInvalid := []*version.Info{{Name: "demo", Version: "nightly"}}
	assert.Equal(t, "nightly", version.Latest(onlyInvalid).Version)
}

func TestInfo_EntryPath(t *testing.T) {
	info := &version.Info{Name: "demo_plugin", Dir: "/srv/papps/demo_plugin-1.0.0"}
	path, err := info.EntryPath(".lua")
	require.NoError(t, err)
	assert.Equal(t, "/srv/papps/demo_plugin-1.0.0/demo_plugin/server_main.lua", path)

	info.Entry = "bin/demo"
	path, err = info.EntryPath("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/papps/demo_plugin-1.0.0/bin/demo", path)
}

func TestValidateEntry(t *testing.T) {
	for _, entry := range []string{"", "demo", "bin/demo", "demo_plugin/server_main.lua", "bin/.hidden", "a..b/c"} {
		assert.NoError(t, version.ValidateEntry(entry), entry)
	}
	for _, entry := range []string{"/usr/bin/env", "..", "../x", "bin/../../x", "./demo", "bin//demo", `bin\demo`} {
		errutil.AssertErrorCode(t, version.ValidateEntry(entry), "PAPP_INVALID_ENTRY")
	}
}

func TestMemoryResolver(t *testing.T) {
	ctx := context.Background()
	r := version.NewMemoryResolver()

	got, err := r.ResolveLatest(ctx, "demo_plugin")
	require.NoError(t, err)
	assert.Nil(t, got, "undeployed papp resolves to nil without error")

	require.NoError(t, r.Publish(version.Info{Name: "demo_plugin", Version: "1.0.0"}))
	require.NoError(t, r.Publish(version.Info{Name: "demo_plugin", Version: "1.1.0", Title: "Demo"}))
	require.NoError(t, r.Publish(version.Info{Name: "papp_noop", Version: "0.1.0"}))

	got, err = r.ResolveLatest(ctx, "demo_plugin")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1.1.0", got.Version)
	assert.Equal(t, version.RuntimeGo, got.Runtime, "runtime defaults to go")

	names, err := r.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo_plugin", "papp_noop"}, names)

	r.Withdraw("demo_plugin")
	got, err = r.ResolveLatest(ctx, "demo_plugin")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryResolver_PublishRejectsInvalidName(t *testing.T) {
	r := version.NewMemoryResolver()
	err := r.Publish(version.Info{Name: "Bad-Name", Version: "1.0.0"})
	errutil.AssertErrorCode(t, err, "PAPP_INVALID_NAME")
}
