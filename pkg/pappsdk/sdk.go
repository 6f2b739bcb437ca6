// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pappsdk provides the SDK for building papps that run as separate
// processes.
//
// Binary papps talk to the host over gRPC using the HashiCorp go-plugin
// framework. The host starts the executable named in papp.yaml, asks it what
// it registers and forwards matching payloads to it.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//		"github.com/holomush/papphost/pkg/pappsdk"
//	)
//
//	type Ping struct{}
//
//	func (Ping) Info(context.Context) (pappsdk.Info, error) {
//		return pappsdk.Info{Title: "Ping"}, nil
//	}
//
//	func (Ping) Start(_ context.Context, name string) (pappsdk.Registrations, error) {
//		return pappsdk.Registrations{
//			Endpoints: []map[string]string{{"plugin": name, "action": "ping"}},
//		}, nil
//	}
//
//	func (Ping) Stop(context.Context) error { return nil }
//
//	func (Ping) Handle(context.Context, pappsdk.Payload) error { return nil }
//
//	func main() {
//		pappsdk.Serve(&pappsdk.ServeConfig{Papp: Ping{}})
//	}
package pappsdk

import (
	"context"

	hashiplug "github.com/hashicorp/go-plugin"
)

// PluginName is the name the papp is dispensed under.
const PluginName = "papp"

// Info describes the papp to the host.
type Info struct {
	Title       string
	AdminModule string
}

// Registrations lists what a papp registers when it starts. Every endpoint
// filter must contain "plugin" set to the papp name and every tuple name
// must start with it, or the host refuses the load.
type Registrations struct {
	Endpoints []map[string]string
	Tuples    []string
}

// Payload is a message the host forwards to a papp endpoint.
type Payload struct {
	Filter map[string]string
	Body   []byte
}

// Papp is the interface binary papps implement.
type Papp interface {
	// Info returns the papp's title and admin module.
	Info(ctx context.Context) (Info, error)
	// Start prepares the papp. name is the name the host loaded it under.
	Start(ctx context.Context, name string) (Registrations, error)
	// Stop releases whatever Start acquired.
	Stop(ctx context.Context) error
	// Handle processes a payload delivered to one of the papp's endpoints.
	Handle(ctx context.Context, p Payload) error
}

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and papps must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PAPPHOST_PAPP",
	MagicCookieValue: "papphost-v1",
}

// PluginMap is the set of plugins the host can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	PluginName: &Plugin{},
}

// ServeConfig configures the papp server.
type ServeConfig struct {
	// Papp is the implementation. Required; Serve will panic if nil.
	Papp Papp
}

// Serve starts the papp server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pappsdk: config cannot be nil")
	}
	if config.Papp == nil {
		panic("pappsdk: config.Papp cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &Plugin{Impl: config.Papp},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}
