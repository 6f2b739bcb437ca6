// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/version"
)

// Compile-time interface checks.
var (
	_ papp.Runtime = (*Runtime)(nil)
	_ papp.Entry   = (*Entry)(nil)
)

// Runtime opens papps whose entry is a Lua script, by default
// <name>/server_main.lua inside the build directory.
//
// A script declares its hooks as globals:
//
//	title = "Demo"
//	admin_module = "demo_plugin/admin"
//
//	function start()
//	    papp.endpoint({plugin = papp.name, action = "ping"}, function(payload)
//	        papp.log("info", "ping: " .. payload.body)
//	    end)
//	    papp.tuple(papp.name .. ".PingTuple")
//	end
//
//	function stop() end
type Runtime struct {
	factory *StateFactory
}

// NewRuntime creates a Lua runtime.
func NewRuntime() *Runtime {
	return &Runtime{factory: NewStateFactory()}
}

// Open implements papp.Runtime. The script is executed once; its globals
// form the entry object.
func (r *Runtime) Open(ctx context.Context, info *version.Info, api *papp.PlatformAPI) (papp.Entry, error) {
	path, err := info.EntryPath(".lua")
	if err != nil {
		return nil, err
	}
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code("LUA_ENTRY_UNREADABLE").In("lua").With("papp", info.Name).With("path", path).
			Hint("failed to read entry file").Wrap(err)
	}

	L, err := r.factory.NewState(ctx)
	if err != nil {
		return nil, oops.In("lua").With("papp", info.Name).Hint("failed to create state").Wrap(err)
	}

	e := &Entry{state: L, api: api, defaultTitle: info.Title}
	e.registerModule()

	if err := L.DoString(string(code)); err != nil {
		L.Close()
		return nil, oops.Code("LUA_SCRIPT_FAILED").In("lua").With("papp", info.Name).With("path", path).
			Hint("syntax or runtime error in entry script").Wrap(err)
	}
	return e, nil
}
