// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/codec"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

// CodeOpFailed is returned when an op reports {ok:false}.
const CodeOpFailed = "OP_FAILED"

func newDescribeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <provider>",
		Short: "Print a provider's describe payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, opts, args[0], provider.OpDescribe, nil, nil)
		},
	}
}

type invokeConfig struct {
	input     string
	inputFile string
	tenant    tenantFlags
}

func newInvokeCmd(opts *globalOptions) *cobra.Command {
	cfg := &invokeConfig{}

	cmd := &cobra.Command{
		Use:   "invoke <provider> <op>",
		Short: "Invoke a provider operation",
		Long: `Invoke runs one provider operation with JSON input and prints the
result. The provider may be named by id, provider type or prefix. A result
with ok=false exits non-zero.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), cfg.input, cfg.inputFile, "{}")
			if err != nil {
				return err
			}
			return runOp(cmd, opts, args[0], args[1], input, &cfg.tenant)
		},
	}

	cmd.Flags().StringVarP(&cfg.input, "input", "i", "", "op input as inline JSON")
	cmd.Flags().StringVarP(&cfg.inputFile, "input-file", "f", "", "read op input from a file (- for stdin)")
	cfg.tenant.bind(cmd.Flags())

	return cmd
}

type qaConfig struct {
	mode          string
	answersFile   string
	currentConfig string
	tenant        tenantFlags
}

func newQACmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qa",
		Short: "Show setup questions and apply answers",
	}
	cmd.AddCommand(newQASpecCmd(opts))
	cmd.AddCommand(newQAApplyCmd(opts))
	return cmd
}

func newQASpecCmd(opts *globalOptions) *cobra.Command {
	cfg := &qaConfig{}
	cmd := &cobra.Command{
		Use:   "spec <provider>",
		Short: "Print the question spec for a mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := json.Marshal(map[string]string{"mode": cfg.mode})
			if err != nil {
				return err
			}
			return runOp(cmd, opts, args[0], qa.OpQASpec, input, &cfg.tenant)
		},
	}
	cmd.Flags().StringVar(&cfg.mode, "mode", string(qa.ModeSetup), "question mode (default, setup, upgrade, remove)")
	cfg.tenant.bind(cmd.Flags())
	return cmd
}

func newQAApplyCmd(opts *globalOptions) *cobra.Command {
	cfg := &qaConfig{}
	cmd := &cobra.Command{
		Use:   "apply <provider>",
		Short: "Apply answers and print the resulting config",
		Long: `Apply packs the answers (and the current config, when given) into an
apply-answers call. Answers are usually produced by questions-cli.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := readInput(cmd.InOrStdin(), "", cfg.answersFile, "{}")
			if err != nil {
				return err
			}
			req := map[string]any{"mode": cfg.mode, "answers": json.RawMessage(answers)}
			if cfg.currentConfig != "" {
				current, err := readInput(cmd.InOrStdin(), "", cfg.currentConfig, "")
				if err != nil {
					return err
				}
				req["current_config"] = json.RawMessage(current)
			}
			input, err := json.Marshal(req)
			if err != nil {
				return err
			}
			return runOp(cmd, opts, args[0], qa.OpApplyAnswers, input, &cfg.tenant)
		},
	}
	cmd.Flags().StringVar(&cfg.mode, "mode", string(qa.ModeSetup), "apply mode (default, setup, upgrade, remove)")
	cmd.Flags().StringVar(&cfg.answersFile, "answers", "", "answers JSON file (- for stdin)")
	cmd.Flags().StringVar(&cfg.currentConfig, "current-config", "", "current config JSON file")
	cfg.tenant.bind(cmd.Flags())
	return cmd
}

// runOp opens a host, runs one op and prints its output.
func runOp(cmd *cobra.Command, opts *globalOptions, name, op string, input []byte, tf *tenantFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	call := provider.Call{Provider: name, Op: op, Input: input}
	if tf != nil {
		tenant, err := tf.resolve()
		if err != nil {
			return err
		}
		call.Tenant = &tenant
	}

	h, err := openHost(ctx, opts, hostConfig{runtime: runtimeconfig.Default()})
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(ctx) }()

	out, err := h.disp.Invoke(ctx, call)
	if err != nil {
		return err
	}
	if op == provider.OpI18nBundle {
		if out, err = codec.ToJSON(out); err != nil {
			return oops.Code(CodeOpFailed).Wrapf(err, "decode i18n bundle")
		}
	}
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if failed(out) {
		return oops.Code(CodeOpFailed).With("provider", name).With("op", op).Errorf("%s %s failed", name, op)
	}
	return nil
}

// failed reports whether out is an {ok:false} envelope.
func failed(out []byte) bool {
	var env struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal(out, &env); err != nil {
		return false
	}
	return env.OK != nil && !*env.OK
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
