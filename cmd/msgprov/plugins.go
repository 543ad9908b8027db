// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

func newPluginsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List and install plugins from the plugins directory",
	}
	cmd.AddCommand(newPluginsListCmd(opts))
	cmd.AddCommand(newPluginsInstallCmd(opts))
	return cmd
}

func newPluginsListCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded plugins and their grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			h, err := openHost(ctx, opts, hostConfig{runtime: runtimeconfig.Default()})
			if err != nil {
				return err
			}
			defer func() { _ = h.Close(ctx) }()

			type entry struct {
				Name     string   `json:"name"`
				Version  string   `json:"version"`
				Kind     string   `json:"kind"`
				Provider string   `json:"provider"`
				Grants   []string `json:"grants"`
			}
			var entries []entry
			for _, name := range h.plugins.ListPlugins() {
				l, ok := h.plugins.Get(name)
				if !ok {
					continue
				}
				entries = append(entries, entry{
					Name:     name,
					Version:  l.Manifest.Version,
					Kind:     string(l.Manifest.Kind()),
					Provider: l.Definition.ID,
					Grants:   h.enforcer.GetGrants(l.Definition.ID),
				})
			}

			if jsonOutput {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal plugins: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tVERSION\tKIND\tPROVIDER\tGRANTS")
			for _, e := range entries {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Version, e.Kind, e.Provider, strings.Join(e.Grants, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newPluginsInstallCmd(opts *globalOptions) *cobra.Command {
	var tf tenantFlags

	cmd := &cobra.Command{
		Use:   "install <plugin>",
		Short: "Record a plugin's provenance for a tenant",
		Long: `Install writes {describe_hash, artifact_digest, schema_hash} for a
loaded plugin under the tenant's provenance key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, err := tf.resolve()
			if err != nil {
				return err
			}
			h, err := openHost(ctx, opts, hostConfig{runtime: runtimeconfig.Default()})
			if err != nil {
				return err
			}
			defer func() { _ = h.Close(ctx) }()

			p, err := h.plugins.Install(ctx, h.disp, h.state, args[0], tenant)
			if err != nil {
				return err
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	tf.bind(cmd.Flags())
	return cmd
}
