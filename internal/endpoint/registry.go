// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package endpoint provides the process-wide registry of payload endpoints.
//
// An endpoint pairs a filter (a flat string map) with a handler. A payload is
// delivered to every endpoint whose filter is a subset of the payload filter.
package endpoint

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Filter is the key/value selector an endpoint matches payloads with.
type Filter map[string]string

// Matches reports whether every key/value of f is present in other.
func (f Filter) Matches(other Filter) bool {
	for k, v := range f {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a copy of the filter.
func (f Filter) Clone() Filter {
	return maps.Clone(f)
}

// String renders the filter with sorted keys, e.g. {action=ping, papp=demo}.
func (f Filter) String() string {
	keys := slices.Sorted(maps.Keys(f))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Payload is a message routed to endpoints.
type Payload struct {
	Filter Filter
	Body   []byte
}

// HandlerFunc processes a payload delivered to an endpoint.
type HandlerFunc func(ctx context.Context, p Payload) error

// Endpoint is a registered handler. Endpoints are compared by identity, so
// two endpoints with equal filters are still distinct registrations.
type Endpoint struct {
	filter  Filter
	handler HandlerFunc
}

// New creates an endpoint. The filter is copied.
func New(filter Filter, handler HandlerFunc) *Endpoint {
	return &Endpoint{filter: filter.Clone(), handler: handler}
}

// Filter returns a copy of the endpoint filter.
func (e *Endpoint) Filter() Filter {
	return e.filter.Clone()
}

// Handle invokes the endpoint handler.
func (e *Endpoint) Handle(ctx context.Context, p Payload) error {
	if e.handler == nil {
		return nil
	}
	return e.handler(ctx, p)
}

// Registry holds the registered endpoints.
//
// Registry is safe for concurrent use.
type Registry struct {
	endpoints map[*Endpoint]struct{}
	mu        sync.RWMutex
}

// NewRegistry creates an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[*Endpoint]struct{})}
}

// Add registers an endpoint. Adding the same endpoint twice is a no-op.
func (r *Registry) Add(e *Endpoint) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[e] = struct{}{}
}

// Remove unregisters an endpoint. Unknown endpoints are ignored.
func (r *Registry) Remove(e *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, e)
}

// Contains reports whether e is registered.
func (r *Registry) Contains(e *Endpoint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[e]
	return ok
}

// All returns a snapshot of every registered endpoint, ordered by filter.
func (r *Registry) All() []*Endpoint {
	r.mu.RLock()
	all := make([]*Endpoint, 0, len(r.endpoints))
	for e := range r.endpoints {
		all = append(all, e)
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].filter.String() < all[j].filter.String()
	})
	return all
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Dispatch delivers p to every matching endpoint and returns the number of
// endpoints that received it. Handler errors are collected; delivery continues
// past a failing handler.
func (r *Registry) Dispatch(ctx context.Context, p Payload) (int, error) {
	var matched []*Endpoint
	for _, e := range r.All() {
		if e.filter.Matches(p.Filter) {
			matched = append(matched, e)
		}
	}

	var errs []string
	for _, e := range matched {
		if err := e.Handle(ctx, p); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", e.filter, err))
		}
	}
	if len(errs) > 0 {
		return len(matched), oops.Code("ENDPOINT_HANDLER_FAILED").
			In("endpoint").
			With("filter", p.Filter.String()).
			With("failures", len(errs)).
			Errorf("endpoint handlers failed: %s", strings.Join(errs, "; "))
	}
	return len(matched), nil
}
