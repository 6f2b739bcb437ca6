// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/tuple"
)

// luaTuple is the Go value behind tuple types declared by scripts.
type luaTuple map[string]any

// registerModule installs the papp global the script talks to the
// platform through.
func (e *Entry) registerModule() {
	L := e.state
	mod := L.NewTable()

	L.SetField(mod, "name", lua.LString(e.api.Name()))
	L.SetField(mod, "load_id", lua.LString(e.api.LoadID()))
	L.SetField(mod, "log", L.NewFunction(e.logFn))
	L.SetField(mod, "new_id", L.NewFunction(newIDFn))
	L.SetField(mod, "endpoint", L.NewFunction(e.endpointFn))
	L.SetField(mod, "tuple", L.NewFunction(e.tupleFn))
	L.SetField(mod, "submit", L.NewFunction(e.submitFn))

	L.SetGlobal("papp", mod)
}

// raise reports err to the script and remembers it for the caller.
func (e *Entry) raise(L *lua.LState, err error) int {
	e.raised = err
	L.RaiseError("%s", err.Error())
	return 0
}

func (e *Entry) logFn(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	logger := e.api.Logger()
	switch strings.ToLower(level) {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}
	return 0
}

func newIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

// endpointFn implements papp.endpoint(filter, handler). The handler is
// called with {filter = {...}, body = "..."}.
func (e *Entry) endpointFn(L *lua.LState) int {
	filterTable := L.CheckTable(1)
	handler := L.CheckFunction(2)

	filter := endpoint.Filter{}
	filterTable.ForEach(func(k, v lua.LValue) {
		filter[k.String()] = v.String()
	})

	if _, err := e.api.RegisterEndpoint(filter, e.endpointHandler(handler)); err != nil {
		return e.raise(L, err)
	}
	return 0
}

func (e *Entry) endpointHandler(fn *lua.LFunction) endpoint.HandlerFunc {
	return func(ctx context.Context, p endpoint.Payload) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return nil
		}

		L := e.state
		filter := L.NewTable()
		for k, v := range p.Filter {
			L.SetField(filter, k, lua.LString(v))
		}
		payload := L.NewTable()
		L.SetField(payload, "filter", filter)
		L.SetField(payload, "body", lua.LString(string(p.Body)))

		return e.call(ctx, "endpoint", fn, payload)
	}
}

// tupleFn implements papp.tuple(name).
func (e *Entry) tupleFn(L *lua.LState) int {
	name := L.CheckString(1)
	if err := e.api.RegisterTuple(tuple.Of[luaTuple](name)); err != nil {
		return e.raise(L, err)
	}
	return 0
}

// submitFn implements papp.submit(name, fn). fn runs later on the shared
// task queue; raising an error inside it retries the task.
func (e *Entry) submitFn(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	task := func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return nil
		}
		return e.call(ctx, "task "+name, fn)
	}
	if err := e.api.Submit(L.Context(), name, task); err != nil {
		return e.raise(L, err)
	}
	return 0
}
