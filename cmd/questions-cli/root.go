// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"golang.org/x/term"

	"github.com/greentic/messaging-providers/internal/qa"
)

type options struct {
	specFile  string
	setupFile string
	example   bool
}

// NewRootCmd creates the questions-cli command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "questions-cli",
		Short: "Ask setup questions and print the answers as JSON",
		Long: `questions-cli reads a QuestionsSpec from --spec or stdin, or a provider
setup spec (YAML) from --setup, asks each question and prints the answers
as a JSON object on stdout. Prompts go to stderr.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.specFile, "spec", "", "QuestionsSpec JSON file (default: stdin)")
	cmd.Flags().StringVar(&opts.setupFile, "setup", "", "setup spec YAML file, converted to a QuestionsSpec")
	cmd.Flags().BoolVar(&opts.example, "example", false, "print placeholder answers without prompting")
	cmd.MarkFlagsMutuallyExclusive("spec", "setup")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	spec, fromStdin, err := loadSpec(cmd.InOrStdin(), opts)
	if err != nil {
		return err
	}

	var answers map[string]any
	if opts.example {
		answers = qa.ExampleAnswers(spec.Spec())
	} else {
		in, closeIn, err := promptInput(cmd.InOrStdin(), fromStdin)
		if err != nil {
			return err
		}
		defer closeIn()
		answers, err = newAsker(in, cmd.ErrOrStderr()).Ask(spec)
		if err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return oops.Code("ENCODE_FAILED").Wrap(err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// loadSpec reads the question spec. fromStdin reports whether stdin was
// consumed.
func loadSpec(stdin io.Reader, opts *options) (spec qa.QuestionsSpec, fromStdin bool, err error) {
	if opts.setupFile != "" {
		data, err := os.ReadFile(opts.setupFile) //nolint:gosec // operator supplied path
		if err != nil {
			return spec, false, oops.Code("SPEC_READ_FAILED").With("path", opts.setupFile).Wrap(err)
		}
		setup, err := qa.ParseSetupSpec(data)
		if err != nil {
			return spec, false, err
		}
		spec, err = setup.Emit()
		return spec, false, err
	}

	var data []byte
	if opts.specFile != "" {
		data, err = os.ReadFile(opts.specFile) //nolint:gosec // operator supplied path
		if err != nil {
			return spec, false, oops.Code("SPEC_READ_FAILED").With("path", opts.specFile).Wrap(err)
		}
	} else {
		fromStdin = true
		data, err = io.ReadAll(stdin)
		if err != nil {
			return spec, true, oops.Code("SPEC_READ_FAILED").Wrapf(err, "read stdin")
		}
		if strings.TrimSpace(string(data)) == "" {
			return spec, true, oops.Code("SPEC_REQUIRED").Errorf("spec JSON required via --spec or stdin")
		}
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), &spec); err != nil {
		return spec, fromStdin, oops.Code("SPEC_INVALID").Wrapf(err, "invalid questions spec")
	}
	if err := spec.Validate(); err != nil {
		return spec, fromStdin, err
	}
	return spec, fromStdin, nil
}

// promptInput returns the reader answers are read from. Once the spec has
// consumed stdin, answers come from the controlling terminal.
func promptInput(stdin io.Reader, stdinConsumed bool) (io.Reader, func(), error) {
	if !stdinConsumed {
		return stdin, func() {}, nil
	}
	tty, err := os.Open("/dev/tty")
	if err != nil {
		return nil, nil, oops.Code("NO_TERMINAL").
			Wrapf(err, "spec was read from stdin and no terminal is available for answers; use --spec")
	}
	return tty, func() { _ = tty.Close() }, nil
}

// readPassword reads a secret without echo when in is a terminal.
func readPassword(in io.Reader) (string, bool, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", false, nil
	}
	b, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", true, oops.Code("PROMPT_FAILED").Wrapf(err, "read secret")
	}
	return string(b), true, nil
}
