// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package noop is the compiled-in papp_noop papp. It does nothing useful
// beyond proving the host can load a Go papp: it answers status payloads
// and serves its load id at /papp_noop/status.
package noop

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/tuple"
	"github.com/holomush/papphost/internal/version"
)

// Name is the papp name.
const Name = "papp_noop"

// Version is the version published for the compiled-in build.
const Version = "1.0.0"

// StatusTuple is the body of a status payload.
type StatusTuple struct {
	Requests int64  `json:"requests"`
	LoadID   string `json:"load_id"`
}

// Register adds papp_noop to the Go runtime and publishes its version.
func Register(rt *papp.GoRuntime, resolver *version.MemoryResolver) error {
	if err := rt.Register(Name, New); err != nil {
		return err
	}
	return resolver.Publish(version.Info{
		Name:    Name,
		Title:   "Noop",
		Version: Version,
		Runtime: version.RuntimeGo,
		Creator: "papphost",
	})
}

// New implements papp.Factory.
func New(api *papp.PlatformAPI) (papp.Entry, error) {
	return &entry{api: api}, nil
}

type entry struct {
	api      *papp.PlatformAPI
	requests atomic.Int64
}

func (e *entry) Start(context.Context) error {
	if _, err := e.api.RegisterEndpoint(endpoint.Filter{papp.FilterKey: Name, "action": "status"}, e.status); err != nil {
		return err
	}
	if err := e.api.RegisterTuple(tuple.Of[StatusTuple](Name + ".StatusTuple")); err != nil {
		return err
	}
	return e.api.MountResource("status", http.HandlerFunc(e.serveStatus))
}

func (e *entry) Stop(context.Context) error {
	e.api.Logger().Debug("noop papp stopped", "requests", e.requests.Load())
	return nil
}

func (e *entry) Title() string       { return "Noop" }
func (e *entry) AdminModule() string { return Name + "/admin" }

func (e *entry) status(ctx context.Context, _ endpoint.Payload) error {
	n := e.requests.Add(1)
	e.api.Logger().DebugContext(ctx, "status requested", "requests", n)
	return nil
}

func (e *entry) serveStatus(w http.ResponseWriter, _ *http.Request) {
	body, err := e.api.Encode(&StatusTuple{Requests: e.requests.Load(), LoadID: e.api.LoadID()})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
