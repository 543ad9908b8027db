// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/capability/secretstore"
)

func newSecretsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
		Long: `Secrets edits the encrypted file consulted after the environment when
providers read secrets. The passphrase comes from ` + envSecretsPassphrase + `
or a terminal prompt.`,
	}
	cmd.AddCommand(newSecretsSetCmd(opts))
	cmd.AddCommand(newSecretsListCmd(opts))
	cmd.AddCommand(newSecretsRemoveCmd(opts))
	return cmd
}

func (o *globalOptions) encryptedSecrets() (*secretstore.EncryptedFile, error) {
	path, _, err := o.resolveSecretsFile()
	if err != nil {
		return nil, err
	}
	return secretstore.NewEncryptedFile(path, readPassphrase), nil
}

func newSecretsSetCmd(opts *globalOptions) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <KEY>",
		Short: "Store a secret (value from --value or the first line of stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("value") {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return oops.Code(secretstore.CodeSecretsFile).Errorf("no secret value on stdin")
				}
				value = strings.TrimRight(line, "\r\n")
			}
			store, err := opts.encryptedSecrets()
			if err != nil {
				return err
			}
			if err := store.Put(map[string]string{args[0]: value}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "secret value")
	return cmd
}

func newSecretsListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.encryptedSecrets()
			if err != nil {
				return err
			}
			keys, err := store.Keys()
			if err != nil {
				return err
			}
			for _, k := range keys {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSecretsRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <KEY>",
		Aliases: []string{"delete"},
		Short:   "Remove a secret",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.encryptedSecrets()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return oops.With("key", args[0]).Wrap(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return err
		},
	}
}
