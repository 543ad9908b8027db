// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/provision"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

type provisionConfig struct {
	planFile string
	tenant   tenantFlags
}

func newProvisionCmd(opts *globalOptions) *cobra.Command {
	cfg := &provisionConfig{}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Apply a provisioning plan to the state store",
		Long: `Provision applies a plan of config.set and secrets.put actions for a
tenant. Set PROVISION_DRY_RUN=1, or dry_run in the plan, to report the
actions without writing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd, opts, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.planFile, "plan", "p", "-", "plan JSON file (- for stdin)")
	cfg.tenant.bind(cmd.Flags())

	return cmd
}

func runProvision(cmd *cobra.Command, opts *globalOptions, cfg *provisionConfig) error {
	ctx := cmd.Context()

	raw, err := readInput(cmd.InOrStdin(), "", cfg.planFile, "")
	if err != nil {
		return err
	}
	tenant, err := cfg.tenant.resolve()
	if err != nil {
		return err
	}

	h, err := openHost(ctx, opts, hostConfig{runtime: runtimeconfig.Default()})
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(ctx) }()

	out, err := provision.New(h.state).ApplyJSON(ctx, raw, &tenant)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
