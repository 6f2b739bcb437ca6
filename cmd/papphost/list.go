// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/papphost/internal/config"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/papps/noop"
	"github.com/holomush/papphost/internal/version"
)

// listEntry is one row of `papphost list`.
type listEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Runtime string `json:"runtime"`
	Title   string `json:"title"`
	Dir     string `json:"dir,omitempty"`
}

// NewListCmd creates the list subcommand.
func NewListCmd(load configLoader, factory resolverFactory) *cobra.Command {
	if factory == nil {
		factory = openResolver
	}
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the latest deployed version of every papp",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			entries, err := listDeployed(cmd.Context(), cfg, factory)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries) //nolint:wrapcheck // output write
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tRUNTIME\tTITLE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Version, e.Runtime, e.Title)
			}
			return w.Flush() //nolint:wrapcheck // output write
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func listDeployed(ctx context.Context, cfg *config.Config, factory resolverFactory) ([]listEntry, error) {
	deployed, closeResolver, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeResolver()

	builtin := version.NewMemoryResolver()
	if err := noop.Register(papp.NewGoRuntime(), builtin); err != nil {
		return nil, err
	}
	chain := version.Chain{builtin, deployed}

	names, err := chain.Names(ctx)
	if err != nil {
		return nil, oops.In("list").Wrapf(err, "list deployed papps")
	}

	entries := make([]listEntry, 0, len(names))
	for _, name := range names {
		info, err := chain.ResolveLatest(ctx, name)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		entries = append(entries, listEntry{
			Name:    info.Name,
			Version: info.Version,
			Runtime: string(info.Runtime),
			Title:   info.Title,
			Dir:     info.Dir,
		})
	}
	return entries, nil
}
