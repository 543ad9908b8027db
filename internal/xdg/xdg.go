// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package xdg resolves the XDG base directories used by msgprov for its
// plugins, encrypted secrets and local state database.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "msgprov"

// ConfigDir returns $XDG_CONFIG_HOME/msgprov, falling back to ~/.config.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/msgprov, falling back to ~/.local/share.
func DataDir() (string, error) {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// StateDir returns $XDG_STATE_HOME/msgprov, falling back to ~/.local/state.
func StateDir() (string, error) {
	return dir("XDG_STATE_HOME", ".local", "state")
}

// PluginsDir is where plugin directories are discovered by default.
func PluginsDir() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "plugins"), nil
}

// SecretsFile is the default encrypted secret store.
func SecretsFile() (string, error) {
	base, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "secrets.enc"), nil
}

// StateDB is the default SQLite state store path.
func StateDB() (string, error) {
	base, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "state.db"), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.With("path", path).Wrapf(err, "create directory")
	}
	return nil
}

func dir(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.With("env", env).Wrapf(err, "resolve home directory")
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...), nil
}
