// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads papphost configuration. Values are layered: flag
// defaults, then the YAML config file, then flags set on the command line.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/papphost/internal/logging"
	"github.com/holomush/papphost/internal/xdg"
)

// Resolver backends.
const (
	ResolverDir      = "dir"
	ResolverPostgres = "postgres"
)

// Config is the full papphost configuration.
type Config struct {
	Papp     PappConfig     `koanf:"papp"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Queue    QueueConfig    `koanf:"queue"`
}

// PappConfig controls which papps are loaded and from where.
type PappConfig struct {
	Dir         string        `koanf:"dir"`
	Enabled     []string      `koanf:"enabled"`
	HookTimeout time.Duration `koanf:"hook-timeout"`
	Resolver    string        `koanf:"resolver"`
}

// HTTPConfig configures the admin and resource server.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability server. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures the Postgres version store.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// QueueConfig configures the shared task queue.
type QueueConfig struct {
	Workers    int `koanf:"workers"`
	MaxRetries int `koanf:"max-retries"`
}

// RegisterFlags adds every config key to flags with its default value. Flag
// names are the dotted config keys.
func RegisterFlags(flags *pflag.FlagSet) {
	pappDir, err := xdg.PappDir()
	if err != nil {
		pappDir = "papps"
	}

	flags.String("papp.dir", pappDir, "papp software directory")
	flags.StringSlice("papp.enabled", []string{"*"}, "glob patterns of papps to load at startup")
	flags.Duration("papp.hook-timeout", 30*time.Second, "timeout for papp start and stop hooks")
	flags.String("papp.resolver", ResolverDir, "version resolver backend (dir|postgres)")
	flags.String("http.addr", "127.0.0.1:8080", "admin and resource HTTP listen address")
	flags.String("metrics.addr", "127.0.0.1:9100", "metrics and health probe listen address (empty to disable)")
	flags.String("log.format", "json", "log format (json|text)")
	flags.String("log.level", "info", "log level (debug|info|warn|error)")
	flags.String("database.url", os.Getenv("DATABASE_URL"), "PostgreSQL URL for the version store")
	flags.Int("queue.workers", 4, "task queue workers")
	flags.Int("queue.max-retries", 3, "task retry budget")
}

// Load reads path and flags into a Config. An empty path means the default XDG
// config file, which may be absent. An explicit path must exist.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || explicit {
				return nil, oops.Code("CONFIG_NOT_FOUND").In("config").With("path", path).Wrap(err)
			}
		} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").In("config").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").In("config").With("source", "flags").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").In("config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").In("config").With("key", key).With("value", value).Errorf(format, args...)
	}

	switch c.Papp.Resolver {
	case ResolverDir:
		if c.Papp.Dir == "" {
			return invalid("papp.dir", c.Papp.Dir, "papp.dir is required with the dir resolver")
		}
	case ResolverPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "", "database.url is required with the postgres resolver")
		}
	default:
		return invalid("papp.resolver", c.Papp.Resolver, "unknown resolver %q, want dir or postgres", c.Papp.Resolver)
	}

	if c.Papp.HookTimeout <= 0 {
		return invalid("papp.hook-timeout", c.Papp.HookTimeout, "hook timeout must be positive")
	}
	for _, pattern := range c.Papp.Enabled {
		if _, err := glob.Compile(pattern); err != nil {
			return invalid("papp.enabled", pattern, "bad pattern %q: %v", pattern, err)
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "log format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "log level must be debug, info, warn or error")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "", "http.addr is required")
	}
	if c.Queue.Workers <= 0 {
		return invalid("queue.workers", c.Queue.Workers, "queue needs at least one worker")
	}
	if c.Queue.MaxRetries < 0 {
		return invalid("queue.max-retries", c.Queue.MaxRetries, "retry budget cannot be negative")
	}
	return nil
}
