// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/welwitschi/welwitschi/internal/account"
	"github.com/welwitschi/welwitschi/internal/account/postgres"
	"github.com/welwitschi/welwitschi/internal/config"
	"github.com/welwitschi/welwitschi/internal/observability"
	"github.com/welwitschi/welwitschi/internal/store"
	"github.com/welwitschi/welwitschi/internal/vault"
)

// Migrator is the schema migration surface the migrate command drives.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// ObservabilityServer is the surface of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Backend is an opened account directory and the resources behind it.
type Backend struct {
	Directory *account.Directory
	Ready     observability.ReadinessChecker
	Close     func()
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values use their default implementations.
type Deps struct {
	// OpenBackend connects the account directory.
	// Default: openPostgresBackend
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer with the account metrics
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.OpenBackend == nil {
		out.OpenBackend = openPostgresBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, account.Operations).WithLogger(logger)
		}
	}
	return out
}

func openPostgresBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	hasher, err := vault.New(cfg.VaultOptions()...)
	if err != nil {
		return nil, err
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, cfg.ConnectOptions(logger))
	if err != nil {
		return nil, err
	}

	dir, err := account.NewDirectoryWithLogger(
		postgres.NewAccountRepository(pool),
		postgres.NewSessionRepository(pool),
		postgres.NewTransactor(pool),
		hasher,
		logger,
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Backend{
		Directory: dir,
		Ready:     observability.PingReadiness(pool),
		Close:     pool.Close,
	}, nil
}
