// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/papphost/internal/admin"
	"github.com/holomush/papphost/internal/config"
	"github.com/holomush/papphost/internal/observability"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/papp/binary"
	"github.com/holomush/papphost/internal/papp/lua"
	"github.com/holomush/papphost/internal/papps/noop"
	"github.com/holomush/papphost/internal/taskqueue"
	"github.com/holomush/papphost/internal/version"
	"github.com/holomush/papphost/pkg/errutil"
)

const shutdownTimeout = 30 * time.Second

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// ResolverFactory opens the deployment resolver.
	// Default: openResolver
	ResolverFactory resolverFactory

	// Ready is called with the admin address once the initial load is done.
	Ready func(adminAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd(load configLoader, deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load enabled papps and serve the admin API",
		Long: `Load every enabled papp from the software directory (or the Postgres
version store), serve the admin API and papp resources over HTTP, and
unload everything on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger, deps)
		},
	}
}

// runServe owns the whole host: queue, platform, runtimes, loader and the
// HTTP servers. It returns once ctx is done or a server fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ResolverFactory == nil {
		deps.ResolverFactory = openResolver
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting papphost",
		"papp_dir", cfg.Papp.Dir,
		"resolver", cfg.Papp.Resolver,
		"http_addr", cfg.HTTP.Addr)

	deployed, closeResolver, err := deps.ResolverFactory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResolver()

	goRuntime := papp.NewGoRuntime()
	builtin := version.NewMemoryResolver()
	if err := noop.Register(goRuntime, builtin); err != nil {
		return err
	}

	queue := taskqueue.New(
		taskqueue.WithWorkers(cfg.Queue.Workers),
		taskqueue.WithRetry(uint64(cfg.Queue.MaxRetries), 0), //nolint:gosec // validated non-negative
		taskqueue.WithLogger(logger.With("component", "taskqueue")),
	)
	// Tasks outlive the signal context so shutdown can drain them.
	if err := queue.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	h := &host{logger: logger, queue: queue}
	defer h.shutdown()

	var ready atomic.Bool
	opts := []papp.LoaderOption{
		papp.WithRuntime(version.RuntimeGo, goRuntime),
		papp.WithRuntime(version.RuntimeLua, lua.NewRuntime()),
		papp.WithRuntime(version.RuntimeBinary, binary.NewRuntime()),
		papp.WithHookTimeout(cfg.Papp.HookTimeout),
		papp.WithEnabled(cfg.Papp.Enabled...),
		papp.WithLogger(logger),
	}

	var obsErr <-chan error
	if cfg.Metrics.Addr != "" {
		h.obs = observability.NewServer(cfg.Metrics.Addr, ready.Load)
		opts = append(opts, papp.WithObserver(h.obs.Metrics()))
		if obsErr, err = h.obs.Start(); err != nil {
			h.obs = nil
			return err
		}
	}

	platform := papp.NewPlatform(queue)
	h.loader, err = papp.NewLoader(platform, version.Chain{builtin, deployed}, opts...)
	if err != nil {
		return err
	}

	var adminErr <-chan error
	h.admin, adminErr, err = admin.Listen(cfg.HTTP.Addr, admin.NewHandler(h.loader, platform.Resources, logger))
	if err != nil {
		return err
	}

	if err := h.loader.LoadAll(ctx); err != nil {
		errutil.Log(ctx, logger, slog.LevelError, "initial papp load failed", err)
	}
	ready.Store(true)
	logger.InfoContext(ctx, "papphost ready", "admin_addr", h.admin.Addr(), "loaded", h.loader.Loaded())
	if deps.Ready != nil {
		deps.Ready(h.admin.Addr())
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		return nil
	case err, ok := <-adminErr:
		if !ok {
			return nil
		}
		return oops.Code("SERVE_FAILED").In("serve").With("server", "admin").Wrap(err)
	case err, ok := <-obsErr:
		if !ok {
			return nil
		}
		return oops.Code("SERVE_FAILED").In("serve").With("server", "observability").Wrap(err)
	}
}

// host tracks what runServe started so it can be torn down in reverse order.
type host struct {
	logger *slog.Logger
	queue  *taskqueue.Queue
	obs    *observability.Server
	loader *papp.Loader
	admin  *admin.Server
}

func (h *host) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if h.admin != nil {
		if err := h.admin.Shutdown(ctx); err != nil {
			errutil.Log(ctx, h.logger, slog.LevelWarn, "error stopping admin server", err)
		}
	}
	if h.loader != nil {
		if err := h.loader.Close(ctx); err != nil {
			errutil.Log(ctx, h.logger, slog.LevelWarn, "some papps did not stop cleanly", err)
		}
	}
	if err := h.queue.Stop(ctx); err != nil {
		errutil.Log(ctx, h.logger, slog.LevelWarn, "task queue did not drain", err)
	}
	if h.obs != nil {
		if err := h.obs.Stop(ctx); err != nil {
			errutil.Log(ctx, h.logger, slog.LevelWarn, "error stopping observability server", err)
		}
	}
	h.logger.Info("shutdown complete")
}
