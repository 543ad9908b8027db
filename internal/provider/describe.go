// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/schema"
)

// RedactReplace is the only redaction strategy providers declare.
const RedactReplace = "replace"

// Operation describes one op in a describe payload.
type Operation struct {
	Name        string        `json:"name"`
	Title       core.I18nText `json:"title"`
	Description core.I18nText `json:"description"`
}

// Redaction points the host at a secret field to scrub from logs.
type Redaction struct {
	Path     string `json:"path"`
	Strategy string `json:"strategy"`
}

// DescribePayload is the static self-description of a provider.
// SchemaHash is schema.Hash over the three schemas.
type DescribePayload struct {
	Provider     string      `json:"provider"`
	World        string      `json:"world"`
	Operations   []Operation `json:"operations"`
	InputSchema  schema.IR   `json:"input_schema"`
	OutputSchema schema.IR   `json:"output_schema"`
	ConfigSchema schema.IR   `json:"config_schema"`
	Redactions   []Redaction `json:"redactions"`
	SchemaHash   string      `json:"schema_hash"`
}

// Manifest is the short provider descriptor listed by hosts.
type Manifest struct {
	ProviderType    string   `json:"provider_type"`
	Capabilities    []string `json:"capabilities"`
	Ops             []string `json:"ops"`
	ConfigSchemaRef *string  `json:"config_schema_ref,omitempty"`
	StateSchemaRef  *string  `json:"state_schema_ref,omitempty"`
}

// InputSchema is the input schema shared by every provider: an open object
// with a required message string.
func InputSchema(prefix string) schema.IR {
	k := prefix + ".schema.input"
	return schema.Object(k+".title", k+".description", true,
		schema.Required("message", schema.String(k+".message.title", k+".message.description")),
	)
}

// OutputSchema is the output schema shared by every provider.
func OutputSchema(prefix string) schema.IR {
	k := prefix + ".schema.output"
	return schema.Object(k+".title", k+".description", true,
		schema.Required("ok", schema.Bool(k+".ok.title", k+".ok.description")),
		schema.Optional("message_id", schema.String(k+".message_id.title", k+".message_id.description")),
	)
}

// ConfigBuilder declares a provider config schema field by field. Keys
// follow <prefix>.schema.config.<field>.(title|description).
type ConfigBuilder struct {
	prefix string
	fields []schema.NamedField
	order  []string
}

// NewConfig starts a config schema for prefix.
func NewConfig(prefix string) *ConfigBuilder {
	return &ConfigBuilder{prefix: prefix}
}

func (b *ConfigBuilder) keys(name string) (string, string) {
	base := b.prefix + ".schema.config." + name
	return base + ".title", base + ".description"
}

func (b *ConfigBuilder) add(name string, required bool, ir schema.IR) *ConfigBuilder {
	if required {
		b.fields = append(b.fields, schema.Required(name, ir))
	} else {
		b.fields = append(b.fields, schema.Optional(name, ir))
	}
	b.order = append(b.order, name)
	return b
}

// Bool adds a boolean field.
func (b *ConfigBuilder) Bool(name string, required bool) *ConfigBuilder {
	return b.add(name, required, schema.Bool(b.keys(name)))
}

// String adds a string field.
func (b *ConfigBuilder) String(name string, required bool) *ConfigBuilder {
	return b.add(name, required, schema.String(b.keys(name)))
}

// URL adds a string field with the uri format.
func (b *ConfigBuilder) URL(name string, required bool) *ConfigBuilder {
	title, desc := b.keys(name)
	return b.add(name, required, schema.StringFormat(title, desc, "uri"))
}

// Secret adds a secret string field.
func (b *ConfigBuilder) Secret(name string, required bool) *ConfigBuilder {
	return b.add(name, required, schema.Secret(b.keys(name)))
}

// Build returns the closed config object.
func (b *ConfigBuilder) Build() schema.IR {
	k := b.prefix + ".schema.config"
	return schema.Object(k+".title", k+".description", false, b.fields...)
}

// Fields returns the field names in declaration order.
func (b *ConfigBuilder) Fields() []string {
	return append([]string(nil), b.order...)
}
