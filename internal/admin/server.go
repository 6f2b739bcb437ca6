// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// Server serves a handler on a TCP address.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Listen binds addr and starts serving h in the background. The returned
// channel reports a serve failure and is closed when the server stops.
func Listen(addr string, h http.Handler) (*Server, <-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, oops.Code("ADMIN_LISTEN_FAILED").In("admin").With("addr", addr).Wrap(err)
	}

	s := &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("admin server started", "addr", listener.Addr().String())
	return s, errCh, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.In("admin").With("operation", "shutdown").Wrap(err)
	}
	slog.Info("admin server stopped")
	return nil
}
