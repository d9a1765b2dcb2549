// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

// Package config loads welwitschi settings. Sources are applied in order:
// built-in defaults, an optional YAML file, the DATABASE_URL environment
// variable, then command-line flags the user actually set.
package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/welwitschi/welwitschi/internal/logging"
	"github.com/welwitschi/welwitschi/internal/store"
	"github.com/welwitschi/welwitschi/internal/vault"
)

// DatabaseURLEnv names the environment variable holding the database URL.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the full set of runtime settings.
type Config struct {
	DatabaseURL string `koanf:"database_url"`
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`
	// MetricsAddr is the observability listen address. Empty disables it.
	MetricsAddr string     `koanf:"metrics_addr"`
	Hash        HashConfig `koanf:"hash"`
	DB          DBConfig   `koanf:"db"`
}

// HashConfig selects the password hashing algorithm.
type HashConfig struct {
	Algorithm  string `koanf:"algorithm"`
	BcryptCost int    `koanf:"bcrypt_cost"`
}

// DBConfig controls the initial database connection.
type DBConfig struct {
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ConnectRetries uint64        `koanf:"connect_retries"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFormat:   logging.FormatJSON,
		LogLevel:    "info",
		MetricsAddr: "127.0.0.1:9100",
		Hash: HashConfig{
			Algorithm:  vault.AlgorithmBcrypt,
			BcryptCost: bcrypt.DefaultCost,
		},
		DB: DBConfig{
			ConnectTimeout: 5 * time.Second,
			ConnectRetries: 5,
		},
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url":       "database_url",
	"log-format":         "log_format",
	"log-level":          "log_level",
	"metrics-addr":       "metrics_addr",
	"hash-algorithm":     "hash.algorithm",
	"bcrypt-cost":        "hash.bcrypt_cost",
	"db-connect-timeout": "db.connect_timeout",
	"db-connect-retries": "db.connect_retries",
}

// RegisterFlags adds the configuration flags to fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", "", "PostgreSQL connection URL (env "+DatabaseURLEnv+")")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("hash-algorithm", d.Hash.Algorithm, "password hash algorithm (bcrypt or argon2id)")
	fs.Int("bcrypt-cost", d.Hash.BcryptCost, "bcrypt work factor")
	fs.Duration("db-connect-timeout", d.DB.ConnectTimeout, "timeout for each database ping")
	fs.Uint64("db-connect-retries", d.DB.ConnectRetries, "database ping retries at startup")
}

// Load reads configuration from path (skipped when empty), the environment
// and fs (skipped when nil). The result is validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if url := os.Getenv(DatabaseURLEnv); url != "" {
		if err := k.Set("database_url", url); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		return oops.Code("CONFIG_INVALID").With("log_format", c.LogFormat).
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").With("log_level", c.LogLevel).
			Errorf("invalid log_level %q", c.LogLevel)
	}
	if _, err := vault.New(c.VaultOptions()...); err != nil {
		return oops.Code("CONFIG_INVALID").With("hash", c.Hash.Algorithm).
			Errorf("invalid hash settings: %v", err)
	}
	if c.DB.ConnectTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("connect_timeout", c.DB.ConnectTimeout).
			Errorf("db.connect_timeout must be positive")
	}
	return nil
}

// RequireDatabase fails unless a database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database url is required (--database-url or %s)", DatabaseURLEnv)
	}
	return nil
}

// VaultOptions returns the vault options for the hash settings.
func (c *Config) VaultOptions() []vault.Option {
	return []vault.Option{
		vault.WithAlgorithm(c.Hash.Algorithm),
		vault.WithBcryptCost(c.Hash.BcryptCost),
	}
}

// ConnectOptions returns the store connection options.
func (c *Config) ConnectOptions(logger *slog.Logger) store.ConnectOptions {
	return store.ConnectOptions{
		Retries: c.DB.ConnectRetries,
		Timeout: c.DB.ConnectTimeout,
		Logger:  logger,
	}
}

// Logging returns logger options for service at version writing to stderr.
func (c *Config) Logging(service, version string) logging.Options {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.Options{
		Service: service,
		Version: version,
		Format:  c.LogFormat,
		Level:   level,
	}
}
