// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/papphost/internal/config"
	"github.com/holomush/papphost/internal/logging"
	"github.com/holomush/papphost/internal/version"
	"github.com/holomush/papphost/internal/xdg"
)

const serviceName = "papphost"

// NewRootCmd creates the root command for the papphost CLI.
func NewRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "papphost",
		Short: "papphost - a host for pluggable applications",
		Long: `papphost loads pluggable applications (papps) at runtime, tracks what
each one registers with the platform and unloads them cleanly. Papps are
compiled-in Go code, sandboxed Lua scripts or go-plugin subprocesses.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/papphost/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	load := func(c *cobra.Command) (*config.Config, error) {
		return config.Load(configFile, c.Flags())
	}

	cmd.AddCommand(NewServeCmd(load, nil))
	cmd.AddCommand(NewListCmd(load, nil))
	cmd.AddCommand(NewMigrateCmd(load))
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewPublishCmd(load, nil))

	return cmd
}

// configLoader reads the layered config for a command.
type configLoader func(cmd *cobra.Command) (*config.Config, error)

func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: appVersion,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
}

// resolverFactory opens the deployment resolver selected by cfg. The
// returned function releases it.
type resolverFactory func(ctx context.Context, cfg *config.Config) (version.Resolver, func(), error)

func openResolver(ctx context.Context, cfg *config.Config) (version.Resolver, func(), error) {
	if cfg.Papp.Resolver == config.ResolverPostgres {
		r, err := version.NewPostgresResolver(ctx, cfg.Database.URL, cfg.Papp.Dir)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	if err := xdg.EnsureDir(cfg.Papp.Dir); err != nil {
		return nil, nil, err
	}
	return version.NewDirResolver(cfg.Papp.Dir), func() {}, nil
}
