// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

// Package main is the welwitschi command: schema migrations, the metrics
// and health server, and account administration.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
