// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	luavm "github.com/yuin/gopher-lua"
)

func newTestState(t *testing.T) *luavm.LState {
	t.Helper()
	L, err := NewStateFactory().NewState(context.Background())
	require.NoError(t, err)
	t.Cleanup(L.Close)
	return L
}

func TestNewState_OpensSandboxLibraries(t *testing.T) {
	L := newTestState(t)

	for _, lib := range []string{"table", "string", "math"} {
		assert.NotEqual(t, luavm.LTNil, L.GetGlobal(lib).Type(), "library %q not loaded", lib)
	}
	require.NoError(t, L.DoString(`result = string.upper("hi") .. math.abs(-2)`))
	assert.Equal(t, "HI2", L.GetGlobal("result").String())
}

func TestNewState_BlocksHostAccess(t *testing.T) {
	L := newTestState(t)

	for _, name := range []string{"os", "io", "debug", "package", "dofile", "loadfile", "loadstring", "load", "require"} {
		assert.Equal(t, luavm.LTNil, L.GetGlobal(name).Type(), "%q should not be reachable", name)
	}
	assert.Error(t, L.DoString(`os.exit(1)`))
}

func TestNewState_LibraryLoadError(t *testing.T) {
	factory := &StateFactory{libraries: []library{{"failing", func(L *luavm.LState) int {
		L.RaiseError("simulated library load failure")
		return 0
	}}}}

	_, err := factory.NewState(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open library failing")
}

func TestNewState_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	L, err := NewStateFactory().NewState(ctx)
	require.NoError(t, err)
	defer L.Close()

	cancel()
	assert.Error(t, L.DoString(`while true do end`))
}
