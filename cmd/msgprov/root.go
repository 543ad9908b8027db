// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/logging"
)

// Default values for global flags.
const (
	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// globalOptions holds the flags shared by every subcommand.
type globalOptions struct {
	logFormat        string
	logLevel         string
	stateURL         string
	pluginsDir       string
	secretsFile      string
	secretsEnvPrefix string
	enforceGrants    bool
}

// Validate checks that the configuration is valid.
func (o *globalOptions) Validate() error {
	if o.logFormat != "json" && o.logFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", o.logFormat)
	}
	return nil
}

// NewRootCmd creates the root command for the msgprov CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "msgprov",
		Short: "Messaging provider host and operator tool",
		Long: `msgprov hosts the messaging provider plugins. It invokes provider
operations, runs setup questions, provisions tenants and serves the
webhook gateway.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			logger := logging.SetupLevel("msgprov", version, opts.logFormat, logging.ParseLevel(opts.logLevel), cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.logFormat, "log-format", defaultLogFormat, "log format (json or text)")
	pf.StringVar(&opts.logLevel, "log-level", defaultLogLevel, "minimum log level (debug, info, warn, error)")
	pf.StringVar(&opts.stateURL, "state", "", "state store: memory, sqlite://<path> or postgres://... (default: sqlite under XDG_STATE_HOME)")
	pf.StringVar(&opts.pluginsDir, "plugins-dir", "", "plugin manifest directory (default: XDG_DATA_HOME/msgprov/plugins)")
	pf.StringVar(&opts.secretsFile, "secrets-file", "", "encrypted secrets file (default: XDG_CONFIG_HOME/msgprov/secrets.enc)")
	pf.StringVar(&opts.secretsEnvPrefix, "secrets-env-prefix", "", "prefix of environment variables consulted for secrets")
	pf.BoolVar(&opts.enforceGrants, "enforce-grants", false, "restrict providers to the capabilities granted by their manifests")

	cmd.AddCommand(newDescribeCmd(opts))
	cmd.AddCommand(newInvokeCmd(opts))
	cmd.AddCommand(newQACmd(opts))
	cmd.AddCommand(newProvisionCmd(opts))
	cmd.AddCommand(newPluginsCmd(opts))
	cmd.AddCommand(newSecretsCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newStatusCmd())

	return cmd
}
