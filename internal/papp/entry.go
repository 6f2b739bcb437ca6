// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/papphost/internal/taskqueue"
	"github.com/holomush/papphost/internal/version"
)

// Entry is the object a papp hands to the loader. Start registers the
// papp's endpoints and tuples through its PlatformAPI; Stop releases
// whatever Start acquired. Both must honor ctx.
type Entry interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Title() string
	AdminModule() string
}

// QueueAware is implemented by entries that submit deferred work.
// ConfigureQueue is called before Start.
type QueueAware interface {
	ConfigureQueue(client *taskqueue.Client)
}

// Runtime constructs entry objects for one runtime kind.
type Runtime interface {
	Open(ctx context.Context, info *version.Info, api *PlatformAPI) (Entry, error)
}

// Factory builds the entry of a compiled-in papp.
type Factory func(api *PlatformAPI) (Entry, error)

// GoRuntime serves papps compiled into the host binary. Each papp
// registers a Factory under its name, usually from the composition root.
//
// GoRuntime is safe for concurrent use.
type GoRuntime struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewGoRuntime creates an empty catalog.
func NewGoRuntime() *GoRuntime {
	return &GoRuntime{factories: make(map[string]Factory)}
}

// Register adds the factory for name, replacing any previous one.
func (r *GoRuntime) Register(name string, f Factory) error {
	if err := version.ValidateName(name); err != nil {
		return err
	}
	if f == nil {
		return oops.Code(CodeEntryLoadFailed).In("papp").With("papp", name).Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	return nil
}

// Names returns the registered papp names, sorted.
func (r *GoRuntime) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open implements Runtime.
func (r *GoRuntime) Open(_ context.Context, info *version.Info, api *PlatformAPI) (Entry, error) {
	r.mu.RLock()
	f, ok := r.factories[info.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, oops.Code(CodeEntryLoadFailed).In("papp").With("papp", info.Name).
			Hint("register the papp with GoRuntime.Register").
			Errorf("no compiled-in papp named %s", info.Name)
	}

	entry, err := f(api)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, oops.Code(CodeEntryLoadFailed).In("papp").With("papp", info.Name).Errorf("factory returned a nil entry")
	}
	return entry, nil
}
