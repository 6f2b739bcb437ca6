// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements demo_plugin, a binary papp that answers pings.
//
// Build and deploy:
//
//	go build -o /srv/papps/demo_plugin-1.0.0/demo_plugin ./plugins/demo_plugin
//	cp plugins/demo_plugin/papp.yaml /srv/papps/demo_plugin-1.0.0/
//
// The host registers {plugin=demo_plugin, action=ping} and the
// demo_plugin.PingTuple type on its behalf and forwards matching payloads.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/holomush/papphost/pkg/pappsdk"
)

// PingTuple is the payload body the papp accepts.
type PingTuple struct {
	Message string `json:"message"`
}

type demo struct {
	logger *slog.Logger
	pings  atomic.Int64
}

func (d *demo) Info(context.Context) (pappsdk.Info, error) {
	return pappsdk.Info{Title: "Demo Plugin", AdminModule: "demo_plugin/admin"}, nil
}

func (d *demo) Start(_ context.Context, name string) (pappsdk.Registrations, error) {
	d.logger.Info("demo papp starting", "name", name)
	return pappsdk.Registrations{
		Endpoints: []map[string]string{{"plugin": name, "action": "ping"}},
		Tuples:    []string{name + ".PingTuple"},
	}, nil
}

func (d *demo) Stop(context.Context) error {
	d.logger.Info("demo papp stopping", "pings", d.pings.Load())
	return nil
}

func (d *demo) Handle(_ context.Context, p pappsdk.Payload) error {
	var ping PingTuple
	if len(p.Body) > 0 {
		if err := json.Unmarshal(p.Body, &ping); err != nil {
			return fmt.Errorf("decode ping: %w", err)
		}
	}
	n := d.pings.Add(1)
	d.logger.Info("ping", "message", ping.Message, "count", n)
	return nil
}

func main() {
	// go-plugin forwards stderr to the host log.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	pappsdk.Serve(&pappsdk.ServeConfig{Papp: &demo{logger: logger}})
}
