// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/papphost/internal/version"
)

// publisher records deployed builds in the version store.
type publisher interface {
	Publish(ctx context.Context, info version.Info, dirName string) error
	Close()
}

type publisherFactory func(ctx context.Context, databaseURL, softwareDir string) (publisher, error)

func openPublisher(ctx context.Context, databaseURL, softwareDir string) (publisher, error) {
	return version.NewPostgresResolver(ctx, databaseURL, softwareDir)
}

// NewPublishCmd creates the publish subcommand.
func NewPublishCmd(load configLoader, open publisherFactory) *cobra.Command {
	if open == nil {
		open = openPublisher
	}
	var reload bool

	cmd := &cobra.Command{
		Use:   "publish <build-dir>",
		Short: "Record a deployed build in the Postgres version store",
		Long: `Validate the papp.yaml manifest of a build copied into the software
directory and record it in the papp_info table. With --reload, ask the
running server to load the new version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").In("publish").With("key", "database.url").
					Errorf("database.url (or DATABASE_URL) is required to publish")
			}

			info, dirName, err := readBuild(cfg.Papp.Dir, args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := open(ctx, cfg.Database.URL, cfg.Papp.Dir)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Publish(ctx, *info, dirName); err != nil {
				return err
			}
			cmd.Printf("published %s %s from %s\n", info.Name, info.Version, dirName)

			if !reload {
				return nil
			}
			if err := requestReload(ctx, cfg.HTTP.Addr, info.Name, info.Version); err != nil {
				return err
			}
			cmd.Printf("reloaded %s\n", info.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reload, "reload", false, "ask the running server to reload the papp")
	return cmd
}

// readBuild reads the manifest of buildDir, which must live inside
// softwareDir, and returns its info and its path relative to softwareDir.
func readBuild(softwareDir, buildDir string) (*version.Info, string, error) {
	absRoot, err := filepath.Abs(softwareDir)
	if err != nil {
		return nil, "", oops.In("publish").With("dir", softwareDir).Wrap(err)
	}
	absBuild, err := filepath.Abs(buildDir)
	if err != nil {
		return nil, "", oops.In("publish").With("dir", buildDir).Wrap(err)
	}

	rel, err := filepath.Rel(absRoot, absBuild)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, "", oops.Code("PUBLISH_OUTSIDE_SOFTWARE_DIR").In("publish").
			With("dir", absBuild).With("software_dir", absRoot).
			Hint("copy the build into papp.dir before publishing").
			Errorf("%s is not inside the software directory %s", absBuild, absRoot)
	}

	data, err := os.ReadFile(filepath.Join(absBuild, version.ManifestFile)) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, "", oops.Code("MANIFEST_NOT_FOUND").In("publish").With("dir", absBuild).Wrap(err)
	}
	if err := version.ValidateSchema(data); err != nil {
		return nil, "", oops.Code("MANIFEST_INVALID").In("publish").With("dir", absBuild).
			Errorf("%s", version.FormatSchemaError(err))
	}
	m, err := version.ParseManifest(data)
	if err != nil {
		return nil, "", err
	}
	return m.Info(absBuild), rel, nil
}

// requestReload calls the admin API of a running server.
func requestReload(ctx context.Context, addr, name, newVersion string) error {
	body, err := json.Marshal(map[string]string{"version": newVersion})
	if err != nil {
		return oops.In("publish").Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	url := "http://" + addr + "/api/papps/" + name + "/reload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return oops.In("publish").With("url", url).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return oops.Code("PUBLISH_RELOAD_FAILED").In("publish").With("url", url).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort
		return oops.Code("PUBLISH_RELOAD_FAILED").In("publish").With("url", url).With("status", resp.StatusCode).
			Errorf("reload of %s failed: %s", name, strings.TrimSpace(string(msg)))
	}
	return nil
}
