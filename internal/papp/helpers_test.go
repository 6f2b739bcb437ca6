// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/taskqueue"
	"github.com/holomush/papphost/internal/tuple"
	"github.com/holomush/papphost/internal/version"
)

// testingT is satisfied by *testing.T and GinkgoT().
type testingT interface {
	require.TestingT
	Helper()
}

type pingTuple struct {
	Message string `json:"message"`
}

// fakeEntry is a compiled-in papp whose hooks are supplied by each test.
type fakeEntry struct {
	api    *papp.PlatformAPI
	title  string
	admin  string
	// titleFn, when set, replaces title.
	titleFn func() string
	start  func(ctx context.Context, api *papp.PlatformAPI) error
	stop   func(ctx context.Context) error
	queue  *taskqueue.Client
	closed atomic.Bool

	starts atomic.Int32
	stops  atomic.Int32
}

func (e *fakeEntry) Start(ctx context.Context) error {
	e.starts.Add(1)
	if e.start == nil {
		return nil
	}
	return e.start(ctx, e.api)
}

func (e *fakeEntry) Stop(ctx context.Context) error {
	e.stops.Add(1)
	if e.stop == nil {
		return nil
	}
	return e.stop(ctx)
}

func (e *fakeEntry) Title() string {
	if e.titleFn != nil {
		return e.titleFn()
	}
	return e.title
}

func (e *fakeEntry) AdminModule() string { return e.admin }

func (e *fakeEntry) ConfigureQueue(c *taskqueue.Client) { e.queue = c }

func (e *fakeEntry) Close() error {
	e.closed.Store(true)
	return nil
}

// registerPing is a start hook that registers the canonical demo endpoint
// and tuple for the papp.
func registerPing(ctx context.Context, api *papp.PlatformAPI) error {
	name := api.Name()
	if _, err := api.RegisterEndpoint(endpoint.Filter{papp.FilterKey: name, "action": "ping"},
		func(context.Context, endpoint.Payload) error { return nil }); err != nil {
		return err
	}
	return api.RegisterTuple(tuple.Of[pingTuple](name + ".PingTuple"))
}

type harness struct {
	platform *papp.Platform
	resolver *version.MemoryResolver
	runtime  *papp.GoRuntime
	loader   *papp.Loader

	mu      sync.Mutex
	entries map[string][]*fakeEntry
}

func newHarness(t testingT, opts ...papp.LoaderOption) *harness {
	t.Helper()
	return newHarnessWithPlatform(t, papp.NewPlatform(nil), opts...)
}

func newHarnessWithPlatform(t testingT, platform *papp.Platform, opts ...papp.LoaderOption) *harness {
	t.Helper()

	h := &harness{
		platform: platform,
		resolver: version.NewMemoryResolver(),
		runtime:  papp.NewGoRuntime(),
		entries:  make(map[string][]*fakeEntry),
	}
	opts = append([]papp.LoaderOption{
		papp.WithRuntime(version.RuntimeGo, h.runtime),
		papp.WithHookTimeout(200 * time.Millisecond),
	}, opts...)

	loader, err := papp.NewLoader(platform, h.resolver, opts...)
	require.NoError(t, err)
	h.loader = loader
	return h
}

// deploy publishes name at ver and registers a factory that builds a fresh
// fakeEntry per load, configured by configure.
func (h *harness) deploy(t testingT, name, ver string, configure func(e *fakeEntry)) {
	t.Helper()
	require.NoError(t, h.resolver.Publish(version.Info{Name: name, Title: name, Version: ver}))
	h.register(t, name, configure)
}

func (h *harness) register(t testingT, name string, configure func(e *fakeEntry)) {
	t.Helper()
	require.NoError(t, h.runtime.Register(name, func(api *papp.PlatformAPI) (papp.Entry, error) {
		e := &fakeEntry{api: api, title: "Title of " + name, admin: name + "/admin.js"}
		if configure != nil {
			configure(e)
		}
		h.mu.Lock()
		h.entries[name] = append(h.entries[name], e)
		h.mu.Unlock()
		return e, nil
	}))
}

// entry returns the i-th entry built for name.
func (h *harness) entry(t testingT, name string, i int) *fakeEntry {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(t, len(h.entries[name]), i, "entry %d of %s was never built", i, name)
	return h.entries[name][i]
}

func withStart(start func(ctx context.Context, api *papp.PlatformAPI) error) func(*fakeEntry) {
	return func(e *fakeEntry) { e.start = start }
}

// filters returns the filter strings of every endpoint in the registry.
func filters(r *endpoint.Registry) []string {
	all := r.All()
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.Filter().String()
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	loaded   []string
	unloaded []string
	failed   map[string]string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failed: make(map[string]string)}
}

func (o *recordingObserver) PappLoaded(name string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loaded = append(o.loaded, name)
}

func (o *recordingObserver) PappUnloaded(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unloaded = append(o.unloaded, name)
}

func (o *recordingObserver) PappLoadFailed(name, code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[name] = code
}
