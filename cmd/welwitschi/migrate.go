// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/welwitschi/welwitschi/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the account schema migrations.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m Migrator) error {
				return migrateUp(cmd, m)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m Migrator) error {
				return migrateUp(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <n>",
		Short: "Apply (n > 0) or roll back (n < 0) n migrations",
		Long: `Apply or roll back n migrations. Negative values must follow "--",
as in "welwitschi migrate steps -- -1".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, opts, func(m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				cmd.Printf("Migrated %d step(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use this
after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, opts, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced schema version %d\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatMigrationStatus(st.Current, st.Dirty, len(st.Applied), pendingNames(st)))
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(m Migrator) error) error {
	cfg, _, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	m, err := opts.deps.MigratorFactory(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

// parseVersionArg parses a signed integer argument.
func parseVersionArg(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("value", s).Errorf("%q is not an integer", s)
	}
	return v, nil
}

func formatMigrationStatus(current uint, dirty bool, applied int, pending []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %d", current)
	if dirty {
		b.WriteString(" (dirty)")
	}
	fmt.Fprintf(&b, "\nApplied: %d\n", applied)
	if len(pending) == 0 {
		b.WriteString("Pending: none\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Pending: %d\n", len(pending))
	for _, name := range pending {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}

func pendingNames(st *store.Status) []string {
	names := make([]string, 0, len(st.Pending))
	for _, mig := range st.Pending {
		names = append(names, mig.Name)
	}
	return names
}
