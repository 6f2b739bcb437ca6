// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main is the entry point for the papphost server and its tooling.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	appVersion = "dev"
	commit     = "unknown"
	date       = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
