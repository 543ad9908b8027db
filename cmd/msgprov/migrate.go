// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/store"
)

// Migrator is the subset of store.Migrator driven by the migrate command.
type Migrator interface {
	Up() error
	Status() (store.Status, error)
	Force(version int) error
	Close() error
}

// migratorFactory opens a Migrator for a database URL.
type migratorFactory func(url string) (Migrator, error)

func defaultMigratorFactory(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

// NewMigrateCmd creates the migrate subcommand.
func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return newMigrateCmdWith(opts, defaultMigratorFactory)
}

func newMigrateCmdWith(opts *globalOptions, factory migratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres state store migrations",
		Long: `Run all pending migrations against the PostgreSQL state store named by
--state or DATABASE_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, factory, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, factory, func(m Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("version", args[0]).Errorf("version must be an integer")
			}
			return withMigrator(opts, factory, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return oops.Code("MIGRATION_FAILED").With("version", version).Wrap(err)
				}
				cmd.Printf("Forced schema version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// databaseURL returns the postgres URL from --state or DATABASE_URL.
func (o *globalOptions) databaseURL() (string, error) {
	url := o.stateURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("--state or the DATABASE_URL environment variable is required")
	}
	if !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") {
		return "", oops.Code("CONFIG_INVALID").Errorf("migrations only apply to postgres state stores")
	}
	return url, nil
}

func withMigrator(opts *globalOptions, factory migratorFactory, fn func(Migrator) error) (err error) {
	url, err := opts.databaseURL()
	if err != nil {
		return err
	}
	m, err := factory(url)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		err = errors.Join(err, m.Close())
	}()
	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema status").Wrap(err)
	}

	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	cmd.Printf("Schema version: %d (%s)\n", st.Version, state)
	cmd.Printf("Applied: %s\n", formatMigrations(st.Applied))
	cmd.Printf("Pending: %s\n", formatMigrations(st.Pending))
	return nil
}

func formatMigrations(migrations []store.Migration) string {
	if len(migrations) == 0 {
		return "none"
	}
	names := make([]string, 0, len(migrations))
	for _, mig := range migrations {
		names = append(names, mig.Name)
	}
	return strings.Join(names, ", ")
}
