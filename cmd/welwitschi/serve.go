// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/welwitschi/welwitschi/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health endpoints",
		Long: `Connect to the database and serve /metrics, /healthz/liveness and
/healthz/readiness until interrupted. Readiness follows database pings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := opts.deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "open backend").Wrap(err)
	}
	defer backend.Close()

	if cfg.MetricsAddr == "" {
		logger.InfoContext(ctx, "metrics server disabled")
		<-ctx.Done()
		return nil
	}

	srv := opts.deps.ObservabilityServerFactory(cfg.MetricsAddr, backend.Ready, logger)
	errCh, err := srv.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
	}
	logger.InfoContext(ctx, "serving", "metrics_addr", srv.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutting down")
	case err, ok := <-errCh:
		if ok && err != nil {
			serveErr = oops.Code("SERVE_FAILED").With("operation", "serve").Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		errutil.LogErrorContext(ctx, logger, "observability server shutdown failed", err)
	}
	return serveErr
}
