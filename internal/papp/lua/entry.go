// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/papphost/internal/papp"
)

// Entry is a loaded Lua papp. An LState is not safe for concurrent use, so
// every call into the script holds mu.
type Entry struct {
	state        *lua.LState
	api          *papp.PlatformAPI
	defaultTitle string

	mu     sync.Mutex
	closed bool
	// raised is the platform error behind the last error a module function
	// raised into the script.
	raised error
}

// Start calls the script's start function, if defined.
func (e *Entry) Start(ctx context.Context) error {
	return e.callHook(ctx, "start")
}

// Stop calls the script's stop function, if defined.
func (e *Entry) Stop(ctx context.Context) error {
	return e.callHook(ctx, "stop")
}

// Title returns the script's title global, falling back to the deployed
// title.
func (e *Entry) Title() string {
	if s, ok := e.global("title"); ok {
		return s
	}
	return e.defaultTitle
}

// AdminModule returns the script's admin_module global.
func (e *Entry) AdminModule() string {
	s, _ := e.global("admin_module")
	return s
}

// Close releases the Lua state.
func (e *Entry) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.state.Close()
	}
	return nil
}

func (e *Entry) global(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", false
	}
	if s, ok := e.state.GetGlobal(name).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

func (e *Entry) callHook(ctx context.Context, hook string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return oops.In("lua").With("papp", e.api.Name()).With("hook", hook).Errorf("lua state is closed")
	}

	fn := e.state.GetGlobal(hook)
	if fn.Type() == lua.LTNil {
		return nil
	}
	return e.call(ctx, hook, fn)
}

// call invokes fn with args on the state. The caller holds mu.
func (e *Entry) call(ctx context.Context, operation string, fn lua.LValue, args ...lua.LValue) error {
	e.state.SetContext(ctx)
	defer e.state.RemoveContext()

	e.raised = nil
	if err := e.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		b := oops.In("lua").With("papp", e.api.Name()).With("operation", operation)
		if e.raised != nil {
			return b.With("lua_error", err.Error()).Wrap(e.raised)
		}
		return b.Wrap(err)
	}
	return nil
}
