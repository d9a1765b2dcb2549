// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, ctx context.Context, deps *Deps, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, _, err := execute(t, context.Background(), nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"migrate", "serve", "account"} {
		assert.Contains(t, out, sub, "help missing %q command", sub)
	}
	for _, flag := range []string{"--config", "--database-url", "--hash-algorithm", "--log-format"} {
		assert.Contains(t, out, flag)
	}
}

func TestAccountCommand_HasExpectedSubcommands(t *testing.T) {
	out, _, err := execute(t, context.Background(), nil, "account", "--help")
	require.NoError(t, err)

	for _, sub := range []string{"create", "confirm", "reset-password", "api-key", "delete", "show"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	_, _, err := execute(t, context.Background(), &Deps{}, "--log-format=xml", "migrate", "status", "--database-url=postgres://db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}

func TestDeps_WithDefaults(t *testing.T) {
	var nilDeps *Deps
	d := nilDeps.withDefaults()
	assert.NotNil(t, d.OpenBackend)
	assert.NotNil(t, d.MigratorFactory)
	assert.NotNil(t, d.ObservabilityServerFactory)

	custom := &Deps{MigratorFactory: func(string) (Migrator, error) { return &fakeMigrator{}, nil }}
	d = custom.withDefaults()
	m, err := d.MigratorFactory("")
	require.NoError(t, err)
	assert.IsType(t, &fakeMigrator{}, m)
	assert.Nil(t, custom.OpenBackend, "defaults do not mutate the input")
}
