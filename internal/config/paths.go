// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package config

import (
	"os"
	"path/filepath"
)

const (
	appName        = "welwitschi"
	configFileName = "config.yaml"
)

// Dir returns the XDG config directory for welwitschi.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath returns Dir()/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), configFileName)
}

// Discover returns explicit when set. Otherwise it returns DefaultPath if a
// regular file exists there, or "" for no file.
func Discover(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path := DefaultPath()
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}
