// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package provision applies provisioning plans: ordered lists of config
// and secret writes against the state store.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/keys"
)

// Action types.
const (
	ActionConfigSet  = "config.set"
	ActionSecretsPut = "secrets.put"
)

// EnvDryRun overrides the dry_run flag of every plan when it holds a
// recognized boolean.
const EnvDryRun = "PROVISION_DRY_RUN"

// Action statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var tracer = otel.Tracer("msgprov/provision")

// Actions counts applied actions by type and status.
// Use RegisterMetrics to register this with a Prometheus registry.
var Actions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "msgprov_provision_actions_total",
		Help: "Total number of provisioning actions by type and status",
	},
	[]string{"type", "status"},
)

// RegisterMetrics registers provisioning metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Actions)
}

// Action is one step of a plan.
type Action struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Plan is an ordered list of actions.
type Plan struct {
	Actions []Action `json:"actions"`
}

// Input is the apply input. DryRun accepts a bool or a string such as
// "yes".
type Input struct {
	Plan   *Plan `json:"plan"`
	DryRun any   `json:"dry_run,omitempty"`
}

// ActionResult reports the outcome of one action.
type ActionResult struct {
	ActionType string  `json:"action_type"`
	Scope      string  `json:"scope"`
	Key        string  `json:"key"`
	Status     string  `json:"status"`
	Message    *string `json:"message"`
}

// Summary lists the keys written, by kind.
type Summary struct {
	ConfigKeysWritten []string `json:"config_keys_written"`
	SecretKeysWritten []string `json:"secret_keys_written"`
}

// Result is the apply output. OK holds when every action succeeded.
type Result struct {
	OK      bool           `json:"ok"`
	DryRun  bool           `json:"dry_run"`
	RunID   string         `json:"run_id"`
	Actions []ActionResult `json:"actions"`
	Summary Summary        `json:"summary"`
}

// Provisioner applies plans to a state store.
type Provisioner struct {
	State     capability.StateStore
	LookupEnv func(string) (string, bool)
}

// New returns a Provisioner writing to state and reading EnvDryRun from
// the process environment.
func New(state capability.StateStore) *Provisioner {
	return &Provisioner{State: state, LookupEnv: os.LookupEnv}
}

// Decode parses apply input. A missing plan is a validation error.
func Decode(raw []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return Input{}, core.ErrValidation("invalid plan: %v", err)
	}
	if in.Plan == nil {
		return Input{}, core.ErrValidation("plan required")
	}
	return in, nil
}

// ApplyJSON decodes raw, applies it and encodes the result.
func (p *Provisioner) ApplyJSON(ctx context.Context, raw []byte, tenant *core.TenantCtx) ([]byte, error) {
	in, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(p.Apply(ctx, in, tenant))
	if err != nil {
		return nil, oops.Code(core.CodeOther).Wrap(err)
	}
	return out, nil
}

// Apply runs every action in order. A failed action is reported and the
// remaining actions still run; earlier writes are not rolled back.
func (p *Provisioner) Apply(ctx context.Context, in Input, tenant *core.TenantCtx) Result {
	res := Result{
		DryRun:  p.dryRun(in.DryRun),
		RunID:   core.NewULID().String(),
		Actions: []ActionResult{},
		Summary: Summary{ConfigKeysWritten: []string{}, SecretKeysWritten: []string{}},
	}
	var actions []Action
	if in.Plan != nil {
		actions = in.Plan.Actions
	}

	ctx, span := tracer.Start(ctx, "provision.apply", trace.WithAttributes(
		attribute.String("provision.run_id", res.RunID),
		attribute.Bool("provision.dry_run", res.DryRun),
		attribute.Int("provision.actions", len(actions)),
	))
	defer span.End()

	state := p.State
	if state == nil {
		state = capability.Set{}.WithDefaults().State
	}

	res.OK = true
	for _, a := range actions {
		ar := ActionResult{ActionType: a.Type, Scope: a.Scope, Key: a.Key, Status: StatusOK}
		if err := p.apply(ctx, state, a, res.DryRun, tenant); err != nil {
			msg := err.Error()
			ar.Status = StatusError
			ar.Message = &msg
			res.OK = false
			slog.WarnContext(ctx, "provision action failed",
				"run_id", res.RunID,
				"type", a.Type,
				"scope", a.Scope,
				"key", a.Key,
				"error", err,
			)
		} else {
			switch a.Type {
			case ActionConfigSet:
				res.Summary.ConfigKeysWritten = append(res.Summary.ConfigKeysWritten, a.Key)
			case ActionSecretsPut:
				res.Summary.SecretKeysWritten = append(res.Summary.SecretKeysWritten, a.Key)
			}
		}
		Actions.WithLabelValues(a.Type, ar.Status).Inc()
		res.Actions = append(res.Actions, ar)
	}

	span.SetAttributes(attribute.Bool("provision.ok", res.OK))
	slog.InfoContext(ctx, "provision plan applied",
		"run_id", res.RunID,
		"ok", res.OK,
		"dry_run", res.DryRun,
		"actions", len(res.Actions),
	)
	return res
}

func (p *Provisioner) apply(ctx context.Context, state capability.StateStore, a Action, dryRun bool, tenant *core.TenantCtx) error {
	var key string
	switch a.Type {
	case ActionConfigSet:
		key = keys.ProvisionConfigKey(a.Scope, a.Key)
	case ActionSecretsPut:
		key = keys.ProvisionSecretKey(a.Scope, a.Key)
	default:
		return oops.Code(core.CodeValidation).With("type", a.Type).Errorf("unsupported action type %s", a.Type)
	}
	if dryRun {
		return nil
	}
	if err := state.Write(ctx, key, []byte(a.Value), tenant); err != nil {
		var se *capability.StateError
		if errors.As(err, &se) {
			return se
		}
		return &capability.StateError{Op: "write", Message: err.Error()}
	}
	return nil
}

func (p *Provisioner) dryRun(input any) bool {
	lookup := p.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env, set := lookup(EnvDryRun)
	return ResolveDryRun(env, set, input)
}

// ResolveDryRun decides the dry-run flag. A recognized env value wins;
// otherwise the input flag applies and anything unrecognized is false.
func ResolveDryRun(env string, envSet bool, input any) bool {
	if envSet {
		if v, ok := parseBool(env); ok {
			return v
		}
	}
	switch v := input.(type) {
	case bool:
		return v
	case string:
		b, ok := parseBool(v)
		return ok && b
	}
	return false
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}
