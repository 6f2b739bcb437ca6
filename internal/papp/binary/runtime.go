// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package binary runs papps as separate processes using HashiCorp's
// go-plugin system over gRPC.
package binary

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/tuple"
	"github.com/holomush/papphost/internal/version"
	"github.com/holomush/papphost/pkg/pappsdk"
)

// Compile-time interface checks.
var (
	_ papp.Runtime = (*Runtime)(nil)
	_ papp.Entry   = (*Entry)(nil)
)

// PluginClient wraps the go-plugin client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the papp process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  pappsdk.HandshakeConfig,
		Plugins:          pappsdk.PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath comes from a validated papp manifest
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
	})
}

// Runtime opens papps whose entry is an executable built with pappsdk.
type Runtime struct {
	factory ClientFactory
}

// NewRuntime creates a runtime that launches real processes.
func NewRuntime() *Runtime {
	return &Runtime{factory: &DefaultClientFactory{}}
}

// NewRuntimeWithFactory creates a runtime with a custom client factory (for testing).
// Panics if factory is nil.
func NewRuntimeWithFactory(factory ClientFactory) *Runtime {
	if factory == nil {
		panic("binary: factory cannot be nil")
	}
	return &Runtime{factory: factory}
}

// Open implements papp.Runtime. It launches the executable and fetches the
// papp's info; endpoints and tuples are registered when the entry starts.
func (r *Runtime) Open(ctx context.Context, info *version.Info, api *papp.PlatformAPI) (papp.Entry, error) {
	execPath, err := info.EntryPath("")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(execPath); err != nil {
		return nil, oops.Code("BINARY_EXECUTABLE_MISSING").In("binary").With("papp", info.Name).With("path", execPath).Wrap(err)
	}

	client := r.factory.NewClient(execPath)
	protocol, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, oops.Code("BINARY_CONNECT_FAILED").In("binary").With("papp", info.Name).Wrap(err)
	}

	raw, err := protocol.Dispense(pappsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, oops.Code("BINARY_CONNECT_FAILED").In("binary").With("papp", info.Name).Wrapf(err, "dispense papp")
	}

	remote, ok := raw.(pappsdk.Papp)
	if !ok {
		client.Kill()
		return nil, oops.Code("BINARY_CONNECT_FAILED").In("binary").With("papp", info.Name).
			Errorf("papp %s does not implement pappsdk.Papp", info.Name)
	}

	pinfo, err := remote.Info(ctx)
	if err != nil {
		client.Kill()
		return nil, oops.Code("BINARY_CONNECT_FAILED").In("binary").With("papp", info.Name).Wrapf(err, "fetch papp info")
	}
	if pinfo.Title == "" {
		pinfo.Title = info.Title
	}

	return &Entry{client: client, remote: remote, api: api, info: pinfo}, nil
}

// Entry is a papp running in its own process.
type Entry struct {
	client PluginClient
	remote pappsdk.Papp
	api    *papp.PlatformAPI
	info   pappsdk.Info

	killOnce sync.Once
}

// Start starts the remote papp and registers what it asks for. Payloads
// for its endpoints are forwarded over gRPC; its tuple types carry raw JSON.
func (e *Entry) Start(ctx context.Context) error {
	regs, err := e.remote.Start(ctx, e.api.Name())
	if err != nil {
		return oops.In("binary").With("papp", e.api.Name()).Wrapf(err, "remote start")
	}

	for _, f := range regs.Endpoints {
		if _, err := e.api.RegisterEndpoint(endpoint.Filter(f), e.forward); err != nil {
			return err
		}
	}
	for _, name := range regs.Tuples {
		if err := e.api.RegisterTuple(tuple.Of[json.RawMessage](name)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entry) forward(ctx context.Context, p endpoint.Payload) error {
	if err := e.remote.Handle(ctx, pappsdk.Payload{Filter: p.Filter, Body: p.Body}); err != nil {
		return oops.In("binary").With("papp", e.api.Name()).With("filter", p.Filter.String()).Wrap(err)
	}
	return nil
}

// Stop stops the remote papp. The process keeps running until Close.
func (e *Entry) Stop(ctx context.Context) error {
	if err := e.remote.Stop(ctx); err != nil {
		return oops.In("binary").With("papp", e.api.Name()).Wrapf(err, "remote stop")
	}
	return nil
}

// Title implements papp.Entry.
func (e *Entry) Title() string { return e.info.Title }

// AdminModule implements papp.Entry.
func (e *Entry) AdminModule() string { return e.info.AdminModule }

// Close kills the papp process.
func (e *Entry) Close() error {
	e.killOnce.Do(e.client.Kill)
	return nil
}
