// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/schema"
)

// Definition is the static description of a provider plus its op
// handlers. It is immutable once registered.
type Definition struct {
	// ID is the component id, e.g. "messaging-provider-slack".
	ID string
	// Type is the provider_type, e.g. "messaging.slack.api".
	Type string
	// Prefix namespaces every i18n key, e.g. "slack".
	Prefix string
	// Name is the display name used in generated messages.
	Name string
	// Ops lists the invoke ops in describe order.
	Ops []string
	// Config is the config schema.
	Config schema.IR
	// Setup lists the setup questions in order.
	Setup []qa.Def
	// DefaultKeys lists the fields asked in default mode.
	DefaultKeys []string
	// Messages overrides generated English messages.
	Messages map[string]string
	// Capabilities are the manifest capability tags.
	Capabilities    []string
	ConfigSchemaRef string
	StateSchemaRef  string
	// Apply is the native CBOR apply-answers entry point.
	Apply qa.ApplyFunc
	// ValidateConfig decodes and checks a config document.
	ValidateConfig func(raw []byte) (any, error)
	Handlers       map[string]Handler
	// Remote, when set, receives every op, lifecycle ops included. Binary
	// plugins are registered this way.
	Remote RemoteFunc

	once     sync.Once
	describe DescribePayload
	keys     []string
	messages map[string]string
}

func (d *Definition) init() {
	d.once.Do(func() {
		d.describe = d.buildDescribe()
		d.keys = d.buildKeys()
		d.messages = d.buildMessages()
	})
}

// RemoteFunc runs op in another process and returns its raw output.
type RemoteFunc func(ctx context.Context, op string, input []byte, tenant *core.TenantCtx) ([]byte, error)

// Describe returns the describe payload. The result is computed once.
func (d *Definition) Describe() DescribePayload {
	d.init()
	return d.describe
}

func (d *Definition) buildDescribe() DescribePayload {
	in, out := InputSchema(d.Prefix), OutputSchema(d.Prefix)
	ops := make([]Operation, 0, len(d.Ops))
	for _, name := range d.Ops {
		title, desc := d.opKeys(name)
		ops = append(ops, Operation{Name: name, Title: core.I18n(title), Description: core.I18n(desc)})
	}
	redactions := []Redaction{}
	for _, path := range d.Config.SecretPaths() {
		redactions = append(redactions, Redaction{Path: path, Strategy: RedactReplace})
	}
	return DescribePayload{
		Provider:     d.ID,
		World:        WorldID,
		Operations:   ops,
		InputSchema:  in,
		OutputSchema: out,
		ConfigSchema: d.Config,
		Redactions:   redactions,
		SchemaHash:   schema.MustHash(in, out, d.Config),
	}
}

// Manifest returns the short descriptor of the provider.
func (d *Definition) Manifest() Manifest {
	caps := d.Capabilities
	if caps == nil {
		caps = []string{}
	}
	m := Manifest{
		ProviderType: d.Type,
		Capabilities: caps,
		Ops:          append([]string(nil), d.Ops...),
	}
	if d.ConfigSchemaRef != "" {
		m.ConfigSchemaRef = &d.ConfigSchemaRef
	}
	if d.StateSchemaRef != "" {
		m.StateSchemaRef = &d.StateSchemaRef
	}
	return m
}

func (d *Definition) opKeys(op string) (string, string) {
	base := d.Prefix + ".op." + op
	return base + ".title", base + ".description"
}

// I18nKeys returns every key the provider references from describe and
// its QA specs.
func (d *Definition) I18nKeys() []string {
	d.init()
	return append([]string(nil), d.keys...)
}

func (d *Definition) buildKeys() []string {
	var keys []string
	for _, op := range d.Ops {
		title, desc := d.opKeys(op)
		keys = append(keys, title, desc)
	}
	keys = append(keys, InputSchema(d.Prefix).I18nKeys()...)
	keys = append(keys, OutputSchema(d.Prefix).I18nKeys()...)
	keys = append(keys, d.Config.I18nKeys()...)
	for _, mode := range qa.Modes() {
		keys = append(keys, d.QASpec(mode).Keys()...)
	}
	out := keys[:0]
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Bundle returns the message bundle for locale.
func (d *Definition) Bundle(locale string) qa.Bundle {
	d.init()
	return qa.NewBundle(locale, d.keys, d.messages)
}

var opTitles = map[string]string{
	OpRun:         "Run",
	OpSend:        "Send",
	OpReply:       "Reply",
	OpIngestHTTP:  "Ingest HTTP",
	OpRenderPlan:  "Render Plan",
	OpEncode:      "Encode",
	OpSendPayload: "Send Payload",
	OpRefresh:     "Refresh",

	OpSubscriptionEnsure: "Ensure Subscription",
	OpSubscriptionRenew:  "Renew Subscription",
	OpSubscriptionDelete: "Delete Subscription",
}

func (d *Definition) buildMessages() map[string]string {
	name := d.Name
	if name == "" {
		name = d.Prefix
	}
	p := d.Prefix
	m := map[string]string{
		p + ".op.run.description":          "Run " + p + " provider operation",
		p + ".op.send.description":         "Send a " + name + " message",
		p + ".op.reply.description":        "Reply to a " + name + " message",
		p + ".op.ingest_http.description":  "Normalize " + name + " webhook payload",
		p + ".op.render_plan.description":  "Render universal message plan",
		p + ".op.encode.description":       "Encode universal payload for " + name,
		p + ".op.send_payload.description": "Send encoded payload to " + name + " API",
		p + ".op.refresh.description":      "Refresh " + name + " access token",

		p + ".op.subscription_ensure.description": "Create or extend a " + name + " change subscription",
		p + ".op.subscription_renew.description":  "Renew a " + name + " change subscription",
		p + ".op.subscription_delete.description": "Delete a " + name + " change subscription",

		p + ".schema.input.title":                        name + " input",
		p + ".schema.input.description":                  "Input for " + name + " run/send operations",
		p + ".schema.input.message.title":                "Message",
		p + ".schema.input.message.description":          "Message text",
		p + ".schema.output.title":                       name + " output",
		p + ".schema.output.description":                 "Result of " + name + " operation",
		p + ".schema.output.ok.title":                    "Success",
		p + ".schema.output.ok.description":              "Whether operation succeeded",
		p + ".schema.output.message_id.title":            "Message ID",
		p + ".schema.output.message_id.description":      name + " message identifier",
		p + ".schema.config.title":                       name + " config",
		p + ".schema.config.description":                 name + " provider configuration",
		p + ".schema.config.enabled.description":         "Enable this provider",
		p + ".schema.config.public_base_url.description": "Public URL for callbacks",

		p + ".qa.default.title": "Default",
		p + ".qa.setup.title":   "Setup",
		p + ".qa.upgrade.title": "Upgrade",
		p + ".qa.remove.title":  "Remove",
		p + ".qa.setup.enabled": "Enable provider",
	}
	for op, title := range opTitles {
		m[p+".op."+op+".title"] = title
	}
	for _, field := range d.Config.FieldNames() {
		base := p + ".schema.config." + field
		title := qa.DefaultENMessage(field)
		m[base+".title"] = title
		if _, ok := m[base+".description"]; !ok {
			m[base+".description"] = title
		}
	}
	for k, v := range d.Messages {
		m[k] = v
	}
	return m
}

// QASpec returns the question spec for mode.
func (d *Definition) QASpec(mode qa.Mode) qa.Spec {
	return qa.SpecForMode(mode, d.Prefix, d.Setup, d.DefaultKeys)
}

// Bridge returns the JSON bridge for the QA ops.
func (d *Definition) Bridge() qa.Bridge {
	return qa.Bridge{Spec: d.QASpec, Apply: d.Apply, I18nKeys: d.I18nKeys()}
}

// Handler returns the handler for op. An exact registration wins over an
// alias. The second result is the op the handler is registered under.
func (d *Definition) Handler(op string) (Handler, string, bool) {
	if h, ok := d.Handlers[op]; ok {
		return h, op, true
	}
	canonical := CanonicalOp(op)
	if h, ok := d.Handlers[canonical]; ok {
		return h, canonical, true
	}
	return nil, "", false
}

// Supports reports whether op resolves to a handler. A remote definition
// supports the ops it lists.
func (d *Definition) Supports(op string) bool {
	if d.Remote != nil {
		return slices.Contains(d.Ops, op) || slices.Contains(d.Ops, CanonicalOp(op))
	}
	_, _, ok := d.Handler(op)
	return ok
}

// Aliases returns the names of every provider this definition answers to:
// its id, type and prefix, lowercased.
func (d *Definition) Aliases() []string {
	names := []string{strings.ToLower(d.ID), strings.ToLower(d.Type), strings.ToLower(d.Prefix)}
	slices.Sort(names)
	return slices.Compact(names)
}
