// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp

import (
	"io"
	"net/http"
	"time"

	"github.com/holomush/papphost/internal/taskqueue"
	"github.com/holomush/papphost/internal/version"
)

// Handle is a loaded papp.
type Handle struct {
	info     *version.Info
	entry    Entry
	api      *PlatformAPI
	queue    *taskqueue.Client
	loadedAt time.Time
}

// Name returns the papp name.
func (h *Handle) Name() string { return h.info.Name }

// Info returns a copy of the version that was loaded.
func (h *Handle) Info() version.Info { return *h.info }

// Title returns the papp's human readable title.
func (h *Handle) Title() string { return h.entry.Title() }

// AdminModule returns the papp's admin frontend module.
func (h *Handle) AdminModule() string { return h.entry.AdminModule() }

// RootResource returns the handler mounted at MountPath.
func (h *Handle) RootResource() http.Handler { return h.api.Resource() }

// MountPath returns the path the root resource is served under.
func (h *Handle) MountPath() string { return "/" + h.info.Name }

// LoadID identifies this load of the papp.
func (h *Handle) LoadID() string { return h.api.LoadID() }

// LoadedAt returns when the load completed.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// Entry returns the papp's entry object.
func (h *Handle) Entry() Entry { return h.entry }

// closeEntry releases runtime resources held by entry, if any.
func closeEntry(entry Entry) error {
	if c, ok := entry.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
