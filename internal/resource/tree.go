// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package resource provides the hierarchical HTTP resource tree that papps
// mount their web resources into.
package resource

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Tree maps single path segments to child handlers. A Tree is itself an
// http.Handler, so trees nest: the server root is a Tree and every papp's
// root resource is a Tree mounted under the papp name.
//
// Tree is safe for concurrent use.
type Tree struct {
	children map[string]http.Handler
	index    http.Handler
	mu       sync.RWMutex
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{children: make(map[string]http.Handler)}
}

// Mount attaches h under segment, replacing any existing child.
func (t *Tree) Mount(segment string, h http.Handler) error {
	if segment == "" || strings.Contains(segment, "/") {
		return oops.Code("RESOURCE_INVALID_SEGMENT").In("resource").With("segment", segment).
			Errorf("invalid path segment %q", segment)
	}
	if h == nil {
		return oops.Code("RESOURCE_NIL_HANDLER").In("resource").With("segment", segment).
			Errorf("cannot mount nil handler at %q", segment)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[segment] = h
	return nil
}

// Unmount detaches the child at segment and reports whether one was mounted.
func (t *Tree) Unmount(segment string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.children[segment]
	delete(t.children, segment)
	return ok
}

// Lookup returns the child mounted at segment.
func (t *Tree) Lookup(segment string) (http.Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.children[segment]
	return h, ok
}

// Segments returns the mounted segments, sorted.
func (t *Tree) Segments() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	segs := make([]string, 0, len(t.children))
	for s := range t.children {
		segs = append(segs, s)
	}
	sort.Strings(segs)
	return segs
}

// SetIndex sets the handler serving the tree's own path.
func (t *Tree) SetIndex(h http.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index = h
}

// ServeHTTP routes on the first path segment and strips it before handing the
// request to the child.
func (t *Tree) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	segment, rest, _ := strings.Cut(path, "/")

	if segment == "" {
		t.mu.RLock()
		index := t.index
		t.mu.RUnlock()
		if index == nil {
			http.NotFound(w, r)
			return
		}
		index.ServeHTTP(w, r)
		return
	}

	child, ok := t.Lookup(segment)
	if !ok {
		http.NotFound(w, r)
		return
	}

	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + rest
	r2.URL.RawPath = ""
	child.ServeHTTP(w, r2)
}
