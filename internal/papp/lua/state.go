// Package lua runs papps written as sandboxed Lua scripts.
package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// library is a Lua standard library a papp script may use.
type library struct {
	name string
	fn   lua.LGFunction
}

// sandboxLibraries are the libraries opened in every papp state.
// Opened: base, table, string, math.
// Never opened: os, io, debug, package.
func sandboxLibraries() []library {
	return []library{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// blockedGlobals are base library functions that reach the filesystem or
// compile code at runtime.
var blockedGlobals = []string{"dofile", "loadfile", "loadstring", "load", "require"}

// StateFactory creates sandboxed Lua states.
type StateFactory struct {
	libraries []library
}

// NewStateFactory creates a factory opening the sandbox libraries.
func NewStateFactory() *StateFactory {
	return &StateFactory{libraries: sandboxLibraries()}
}

// NewState creates a fresh sandboxed state bound to ctx. Scripts running
// on the state stop when ctx is done.
func (f *StateFactory) NewState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetContext(ctx)
	return L, nil
}
