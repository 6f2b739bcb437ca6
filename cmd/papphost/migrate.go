// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/papphost/internal/version"
)

// migrator is the part of version.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Close() error
}

// migratorFactory opens a migrator for a database URL.
type migratorFactory func(databaseURL string) (migrator, error)

func openMigrator(databaseURL string) (migrator, error) {
	return version.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd(load configLoader) *cobra.Command {
	return newMigrateCmd(load, openMigrator)
}

func newMigrateCmd(load configLoader, open migratorFactory) *cobra.Command {
	withMigrator := func(cmd *cobra.Command, fn func(m migrator) error) error {
		cfg, err := load(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").In("migrate").With("key", "database.url").
				Errorf("database.url (or DATABASE_URL) is required")
		}
		m, err := open(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }() //nolint:errcheck // migration result takes precedence
		return fn(m)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the papp version store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	})

	return cmd
}

var _ migrator = (*version.Migrator)(nil)
