// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/welwitschi/welwitschi/internal/config"
	"github.com/welwitschi/welwitschi/internal/logging"
)

const serviceName = "welwitschi"

// rootOptions carries global flags and dependencies to subcommands.
type rootOptions struct {
	configFile string
	deps       *Deps
}

// setup loads configuration and builds the command logger.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Discover(o.configFile), cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logOpts := cfg.Logging(serviceName, version)
	logOpts.Writer = cmd.ErrOrStderr()
	return cfg, logging.Setup(logOpts), nil
}

// NewRootCmd creates the root command for the welwitschi CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	opts := &rootOptions{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "welwitschi",
		Short: "Welwitschi - account authentication and session engine",
		Long: `Welwitschi stores accounts, verifies credentials, confirms new
accounts and issues login tokens and API keys over PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/welwitschi/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAccountCmd(opts))

	return cmd
}
