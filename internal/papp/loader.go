// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package papp loads papps into a running host: it resolves the deployed
// version, constructs the entry object through a runtime, runs its hooks,
// enforces the papp naming contract and tracks what each papp registered so
// it can be removed again on unload.
package papp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/papphost/internal/papp/capability"
	"github.com/holomush/papphost/internal/version"
	"github.com/holomush/papphost/pkg/errutil"
)

var tracer = otel.Tracer("papphost/papp")

// DefaultHookTimeout bounds Start and Stop hooks.
const DefaultHookTimeout = 30 * time.Second

// Observer receives loader lifecycle events, e.g. for metrics.
type Observer interface {
	PappLoaded(name string, duration time.Duration)
	PappUnloaded(name string)
	PappLoadFailed(name, code string)
}

type nopObserver struct{}

func (nopObserver) PappLoaded(string, time.Duration) {}
func (nopObserver) PappUnloaded(string)              {}
func (nopObserver) PappLoadFailed(string, string)    {}

// TitleURL links a papp's title to its mount path.
type TitleURL struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AdminRoute names the admin frontend module of a papp.
type AdminRoute struct {
	Name   string `json:"name"`
	Module string `json:"module"`
}

// Loader owns the lifecycle of every papp on a platform. All loads and
// unloads are serialized on one lock.
type Loader struct {
	platform    *Platform
	resolver    version.Resolver
	runtimes    map[version.Runtime]Runtime
	enforcer    *capability.Enforcer
	hookTimeout time.Duration
	enabled     []string
	matchers    []glob.Glob
	observer    Observer
	logger      *slog.Logger

	loaded map[string]*Handle
	mu     sync.RWMutex
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRuntime serves papps of kind with rt.
func WithRuntime(kind version.Runtime, rt Runtime) LoaderOption {
	return func(l *Loader) {
		l.runtimes[kind] = rt
	}
}

// WithHookTimeout overrides DefaultHookTimeout.
func WithHookTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.hookTimeout = d
		}
	}
}

// WithEnabled restricts LoadAll to papp names matching one of patterns.
func WithEnabled(patterns ...string) LoaderOption {
	return func(l *Loader) {
		l.enabled = append(l.enabled, patterns...)
	}
}

// WithObserver reports lifecycle events to o.
func WithObserver(o Observer) LoaderOption {
	return func(l *Loader) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader claims platform and creates its loader. A platform can only be
// claimed once.
func NewLoader(platform *Platform, resolver version.Resolver, opts ...LoaderOption) (*Loader, error) {
	if platform == nil {
		return nil, oops.In("papp").Errorf("platform cannot be nil")
	}
	if resolver == nil {
		return nil, oops.In("papp").Errorf("resolver cannot be nil")
	}

	l := &Loader{
		platform:    platform,
		resolver:    resolver,
		runtimes:    make(map[version.Runtime]Runtime),
		enforcer:    capability.NewEnforcer(),
		hookTimeout: DefaultHookTimeout,
		observer:    nopObserver{},
		logger:      slog.Default(),
		loaded:      make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, pattern := range l.enabled {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("PAPP_INVALID_PATTERN").In("papp").With("pattern", pattern).Wrap(err)
		}
		l.matchers = append(l.matchers, g)
	}

	if err := platform.claim(); err != nil {
		return nil, err
	}
	return l, nil
}

// Platform returns the platform the loader drives.
func (l *Loader) Platform() *Platform {
	return l.platform
}

// Load loads the latest deployed version of name, replacing any loaded
// version. A papp without a deployed version is skipped with a warning.
func (l *Loader) Load(ctx context.Context, name string) error {
	if err := version.ValidateName(name); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "papp.load", trace.WithAttributes(attribute.String("papp.name", name)))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	err := l.load(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.observer.PappLoadFailed(name, errutil.Code(err))
		return err
	}
	if h, ok := l.loaded[name]; ok {
		span.SetAttributes(attribute.String("papp.version", h.info.Version), attribute.String("papp.load_id", h.LoadID()))
		l.observer.PappLoaded(name, time.Since(start))
	}
	return nil
}

func (l *Loader) load(ctx context.Context, name string) error {
	if err := l.unload(ctx, name); err != nil {
		errutil.Log(ctx, l.logger, slog.LevelWarn, "previous papp version did not stop cleanly", err)
	}

	info, err := l.resolver.ResolveLatest(ctx, name)
	if err != nil {
		return oops.In("papp").With("papp", name).Wrapf(err, "resolve papp version")
	}
	if info == nil {
		l.logger.WarnContext(ctx, "papp has no deployed version, skipping load", "papp", name)
		return nil
	}

	loadID := ulid.Make()
	logger := l.logger.With("papp", name, "version", info.Version, "load_id", loadID.String())

	rt, ok := l.runtimes[info.Runtime]
	if !ok {
		return oops.Code(CodeUnknownRuntime).In("papp").With("papp", name).With("runtime", string(info.Runtime)).
			Wrapf(ErrUnknownRuntime, "papp %s needs runtime %q", name, info.Runtime)
	}

	if err := l.enforcer.SetGrants(name, info.Capabilities); err != nil {
		return wrapKind(CodeEntryLoadFailed, ErrEntryLoad, name, err)
	}

	api := newPlatformAPI(name, loadID, logger, l.platform, l.enforcer)
	entry, err := rt.Open(ctx, info, api)
	if err != nil {
		l.enforcer.RemoveGrants(name)
		return wrapKind(CodeEntryLoadFailed, ErrEntryLoad, name, err)
	}

	h := &Handle{info: info, entry: entry, api: api}
	if l.platform.Queue != nil && l.enforcer.Check(name, capability.QueueSubmit) {
		h.queue = l.platform.Queue.Client(name)
		api.bindQueue(h.queue)
		if qa, ok := entry.(QueueAware); ok {
			qa.ConfigureQueue(h.queue)
		}
	}

	if err := l.runHook(ctx, h, "start", entry.Start); err != nil {
		l.abandon(ctx, h, false)
		return wrapKind(CodeStartFailed, ErrStartFailed, name, err)
	}

	if err := api.commit(); err != nil {
		l.abandon(ctx, h, true)
		return err
	}

	h.loadedAt = time.Now()
	l.loaded[name] = h

	if err := l.platform.Resources.Mount(name, api.Resource()); err != nil {
		if uerr := l.unload(ctx, name); uerr != nil {
			errutil.Log(ctx, logger, slog.LevelWarn, "papp did not stop cleanly after mount failure", uerr)
		}
		return wrapKind(CodeCommitFailed, ErrCommitFailed, name, err)
	}

	own := api.ownership()
	logger.InfoContext(ctx, "papp loaded",
		"runtime", string(info.Runtime),
		"endpoints", len(own.Endpoints),
		"tuples", len(own.Tuples))
	return nil
}

// abandon tears down a papp that failed before it was recorded as loaded.
// started reports whether its Start hook succeeded.
func (l *Loader) abandon(ctx context.Context, h *Handle, started bool) {
	h.api.discard()
	if h.queue != nil {
		h.queue.Close()
	}
	if started {
		if err := l.runHook(ctx, h, "stop", h.entry.Stop); err != nil {
			errutil.Log(ctx, h.api.Logger(), slog.LevelWarn, "stop hook failed while abandoning load", err)
		}
	}
	if err := closeEntry(h.entry); err != nil {
		errutil.Log(ctx, h.api.Logger(), slog.LevelWarn, "failed to release papp entry", err)
	}
	l.enforcer.RemoveGrants(h.info.Name)
}

// Unload removes everything name registered and stops it. Unloading a papp
// that is not loaded does nothing. The platform state is cleaned up even
// when the stop hook fails; that failure is returned.
func (l *Loader) Unload(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "papp.unload", trace.WithAttributes(attribute.String("papp.name", name)))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.unload(ctx, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (l *Loader) unload(ctx context.Context, name string) error {
	h, ok := l.loaded[name]
	if !ok {
		return nil
	}

	l.platform.Resources.Unmount(name)
	own := h.api.close()
	for _, e := range own.Endpoints {
		l.platform.Endpoints.Remove(e)
	}
	l.platform.Tuples.RemoveNames(own.Tuples...)
	if h.queue != nil {
		h.queue.Close()
	}

	stopErr := l.runHook(ctx, h, "stop", h.entry.Stop)
	if err := closeEntry(h.entry); err != nil {
		errutil.Log(ctx, h.api.Logger(), slog.LevelWarn, "failed to release papp entry", err)
	}
	l.enforcer.RemoveGrants(name)
	delete(l.loaded, name)
	l.observer.PappUnloaded(name)

	h.api.Logger().InfoContext(ctx, "papp unloaded",
		"endpoints", len(own.Endpoints),
		"tuples", len(own.Tuples))

	if stopErr != nil {
		return wrapKind(CodeStopFailed, ErrStopFailed, name, stopErr)
	}
	return nil
}

// runHook runs fn bounded by the hook timeout. A hook that ignores its
// context is abandoned once the timeout passes or ctx ends; a panicking
// hook fails.
func (l *Loader) runHook(ctx context.Context, h *Handle, hook string, fn func(context.Context) error) error {
	hookCtx, cancel := context.WithTimeout(ctx, l.hookTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- oops.In("papp").With("papp", h.info.Name).With("hook", hook).Errorf("hook panicked: %v", r)
			}
		}()
		done <- fn(hookCtx)
	}()

	select {
	case err := <-done:
		// A hook failing because its context ended is classified below.
		if err == nil || hookCtx.Err() == nil {
			return err
		}
	case <-hookCtx.Done():
	}

	if err := ctx.Err(); err != nil {
		return oops.Code(CodeHookCancelled).In("papp").
			With("papp", h.info.Name).
			With("hook", hook).
			Wrap(fmt.Errorf("%w: %w", ErrHookCancelled, err))
	}
	return oops.Code(CodeHookTimeout).In("papp").
		With("papp", h.info.Name).
		With("hook", hook).
		With("timeout", l.hookTimeout.String()).
		Wrap(fmt.Errorf("%w: %w", ErrHookTimeout, hookCtx.Err()))
}

// NotifyVersionUpdate reloads name after a new version was deployed. If the
// resolver no longer has any version of name, the previous version is
// unloaded and nil is returned, as with Load.
func (l *Loader) NotifyVersionUpdate(ctx context.Context, name, newVersion string) error {
	l.logger.InfoContext(ctx, "papp version updated, reloading", "papp", name, "version", newVersion)
	return l.Load(ctx, name)
}

// LoadAll loads every deployed papp the resolver can list, restricted to
// the enabled patterns when any are configured. Individual failures are
// logged and skipped so one broken papp does not keep the host down.
func (l *Loader) LoadAll(ctx context.Context) error {
	lister, ok := l.resolver.(version.Lister)
	if !ok {
		l.logger.WarnContext(ctx, "resolver cannot list papps, nothing to load")
		return nil
	}

	names, err := lister.Names(ctx)
	if err != nil {
		return oops.In("papp").Wrapf(err, "list deployed papps")
	}

	for _, name := range names {
		if !l.isEnabled(name) {
			l.logger.DebugContext(ctx, "papp not enabled, skipping", "papp", name)
			continue
		}
		if err := l.Load(ctx, name); err != nil {
			errutil.Log(ctx, l.logger.With("papp", name), slog.LevelError, "failed to load papp", err)
		}
	}
	return nil
}

func (l *Loader) isEnabled(name string) bool {
	if len(l.matchers) == 0 {
		return true
	}
	for _, g := range l.matchers {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Close unloads every papp. All papps are unloaded even if some fail to
// stop; the failures are joined.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, name := range l.loadedNamesLocked() {
		if err := l.unload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Loaded returns the names of the loaded papps, sorted.
func (l *Loader) Loaded() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadedNamesLocked()
}

func (l *Loader) loadedNamesLocked() []string {
	names := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle returns the loaded papp called name.
func (l *Loader) Handle(name string) (*Handle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.loaded[name]
	return h, ok
}

// Ownership returns what name registered, if it is loaded.
func (l *Loader) Ownership(name string) (Ownership, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.loaded[name]
	if !ok {
		return Ownership{}, false
	}
	return h.api.ownership(), true
}

// TitleURLs lists each loaded papp's title and mount path.
func (l *Loader) TitleURLs() []TitleURL {
	handles := l.loadedHandles()
	urls := make([]TitleURL, 0, len(handles))
	for _, h := range handles {
		urls = append(urls, TitleURL{Name: h.info.Name, Title: h.Title(), URL: h.MountPath()})
	}
	return urls
}

// AdminRoutes lists each loaded papp's admin module.
func (l *Loader) AdminRoutes() []AdminRoute {
	handles := l.loadedHandles()
	routes := make([]AdminRoute, 0, len(handles))
	for _, h := range handles {
		routes = append(routes, AdminRoute{Name: h.info.Name, Module: h.AdminModule()})
	}
	return routes
}

// loadedHandles snapshots the loaded handles sorted by name. Entries are
// queried after the lock is released.
func (l *Loader) loadedHandles() []*Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := l.loadedNamesLocked()
	handles := make([]*Handle, len(names))
	for i, name := range names {
		handles[i] = l.loaded[name]
	}
	return handles
}

// Grants returns the capabilities granted to a loaded papp.
func (l *Loader) Grants(name string) []string {
	return l.enforcer.Grants(name)
}
