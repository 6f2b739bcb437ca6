// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package admin serves the papp management API and routes every other path
// into the platform resource tree.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/pkg/errutil"
)

// Host is the part of the loader the API drives.
type Host interface {
	TitleURLs() []papp.TitleURL
	AdminRoutes() []papp.AdminRoute
	Handle(name string) (*papp.Handle, bool)
	NotifyVersionUpdate(ctx context.Context, name, newVersion string) error
	Unload(ctx context.Context, name string) error
}

// PappView is the listing entry for a loaded papp.
type PappView struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Version  string    `json:"version,omitempty"`
	Runtime  string    `json:"runtime,omitempty"`
	Creator  string    `json:"creator,omitempty"`
	Website  string    `json:"website,omitempty"`
	LoadID   string    `json:"load_id,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
}

type reloadRequest struct {
	Version string `json:"version"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewHandler returns the HTTP handler for host. Paths outside /api/papps are
// served by resources.
func NewHandler(host Host, resources http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{host: host, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/papps", a.list)
	mux.HandleFunc("GET /api/papps/routes", a.routes)
	mux.HandleFunc("POST /api/papps/{name}/reload", a.reload)
	mux.HandleFunc("DELETE /api/papps/{name}", a.unload)
	mux.Handle("/", resources)
	return mux
}

type api struct {
	host   Host
	logger *slog.Logger
}

func (a *api) list(w http.ResponseWriter, _ *http.Request) {
	urls := a.host.TitleURLs()
	views := make([]PappView, 0, len(urls))
	for _, u := range urls {
		v := PappView{Name: u.Name, Title: u.Title, URL: u.URL}
		if h, ok := a.host.Handle(u.Name); ok && h != nil {
			info := h.Info()
			v.Version = info.Version
			v.Runtime = string(info.Runtime)
			v.Creator = info.Creator
			v.Website = info.Website
			v.LoadID = h.LoadID()
			v.LoadedAt = h.LoadedAt()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *api) routes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.host.AdminRoutes())
}

func (a *api) reload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req reloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.fail(w, r, oops.Code("ADMIN_BAD_REQUEST").In("admin").With("papp", name).Wrap(err))
		return
	}

	if err := a.host.NotifyVersionUpdate(r.Context(), name, req.Version); err != nil {
		a.fail(w, r, err)
		return
	}

	// A papp with no deployed version is unloaded by the reload.
	h, ok := a.host.Handle(name)
	if !ok || h == nil {
		a.fail(w, r, oops.Code(papp.CodeNotLoaded).In("admin").With("papp", name).With("version", req.Version).
			Wrapf(papp.ErrNotLoaded, "no deployed version of %s", name))
		return
	}
	info := h.Info()
	writeJSON(w, http.StatusOK, PappView{
		Name: name, Title: h.Title(), URL: h.MountPath(),
		Version: info.Version, Runtime: string(info.Runtime),
		Creator: info.Creator, Website: info.Website,
		LoadID: h.LoadID(), LoadedAt: h.LoadedAt(),
	})
}

func (a *api) unload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := a.host.Handle(name); !ok {
		a.fail(w, r, oops.Code(papp.CodeNotLoaded).In("admin").With("papp", name).
			Wrap(papp.ErrNotLoaded))
		return
	}
	if err := a.host.Unload(r.Context(), name); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.Log(r.Context(), a.logger, slog.LevelError, "admin request failed", err)
	} else {
		errutil.Log(r.Context(), a.logger, slog.LevelWarn, "admin request rejected", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: errutil.Code(err)})
}

// statusFor maps loader errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errutil.HasCode(err, "PAPP_INVALID_NAME"), errutil.HasCode(err, "ADMIN_BAD_REQUEST"):
		return http.StatusBadRequest
	case errors.Is(err, papp.ErrNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, papp.ErrCommitFailed):
		return http.StatusConflict
	case errors.Is(err, papp.ErrHookTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, papp.ErrHookCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, papp.ErrNamespaceViolation),
		errors.Is(err, papp.ErrEntryLoad),
		errors.Is(err, papp.ErrUnknownRuntime),
		errors.Is(err, papp.ErrStartFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}
