// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package schema describes provider input, output and config shapes as a
// small typed tree (IR), hashes them for describe payloads and compiles them
// to JSON Schema for validation.
package schema

import (
	"encoding/json"
	"slices"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/core"
)

// Kind discriminates IR nodes.
type Kind string

// IR node kinds.
const (
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindObject Kind = "object"
)

// IR is one node of a schema tree. Which fields are meaningful depends on
// Kind: Format and Secret apply to strings, Fields and
// AdditionalProperties to objects.
type IR struct {
	Kind                 Kind
	Title                core.I18nText
	Description          core.I18nText
	Format               string
	Secret               bool
	Fields               map[string]Field
	AdditionalProperties bool
}

// Field is an object member.
type Field struct {
	Required bool `json:"required"`
	Schema   IR   `json:"schema"`
}

// NamedField pairs a field name with its definition for Object.
type NamedField struct {
	Name  string
	Field Field
}

// Bool builds a boolean node.
func Bool(titleKey, descKey string) IR {
	return IR{Kind: KindBool, Title: core.I18n(titleKey), Description: core.I18n(descKey)}
}

// String builds a plain string node.
func String(titleKey, descKey string) IR {
	return IR{Kind: KindString, Title: core.I18n(titleKey), Description: core.I18n(descKey)}
}

// StringFormat builds a string node with a JSON Schema format such as "uri".
func StringFormat(titleKey, descKey, format string) IR {
	ir := String(titleKey, descKey)
	ir.Format = format
	return ir
}

// Secret builds a string node whose value must be redacted from logs.
func Secret(titleKey, descKey string) IR {
	ir := String(titleKey, descKey)
	ir.Secret = true
	return ir
}

// Object builds an object node from fields.
func Object(titleKey, descKey string, additional bool, fields ...NamedField) IR {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Field
	}
	return IR{
		Kind:                 KindObject,
		Title:                core.I18n(titleKey),
		Description:          core.I18n(descKey),
		Fields:               m,
		AdditionalProperties: additional,
	}
}

// Required declares a required field.
func Required(name string, ir IR) NamedField {
	return NamedField{Name: name, Field: Field{Required: true, Schema: ir}}
}

// Optional declares an optional field.
func Optional(name string, ir IR) NamedField {
	return NamedField{Name: name, Field: Field{Schema: ir}}
}

// FieldNames returns the object's field names in lexicographic order.
func (ir IR) FieldNames() []string {
	names := make([]string, 0, len(ir.Fields))
	for name := range ir.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RequiredFields returns the names of required fields, sorted.
func (ir IR) RequiredFields() []string {
	var out []string
	for _, name := range ir.FieldNames() {
		if ir.Fields[name].Required {
			out = append(out, name)
		}
	}
	return out
}

// SecretPaths returns "$.a.b" style paths to every secret string below ir.
func (ir IR) SecretPaths() []string {
	var out []string
	var walk func(prefix string, node IR)
	walk = func(prefix string, node IR) {
		if node.Kind == KindString && node.Secret {
			out = append(out, prefix)
			return
		}
		for _, name := range node.FieldNames() {
			walk(prefix+"."+name, node.Fields[name].Schema)
		}
	}
	walk("$", ir)
	return out
}

// I18nKeys returns every title and description key referenced below ir,
// in tree order without duplicates.
func (ir IR) I18nKeys() []string {
	var out []string
	seen := map[string]bool{}
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	var walk func(node IR)
	walk = func(node IR) {
		add(node.Title.Key)
		add(node.Description.Key)
		for _, name := range node.FieldNames() {
			walk(node.Fields[name].Schema)
		}
	}
	walk(ir)
	return out
}

// MarshalJSON encodes the node in its tagged form, e.g.
// {"kind":"string","title":{"key":..},"description":{"key":..},"format":"uri","secret":false}.
// A string without a format carries "format":null.
func (ir IR) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"kind":        ir.Kind,
		"title":       ir.Title,
		"description": ir.Description,
	}
	switch ir.Kind {
	case KindBool:
	case KindString:
		out["format"] = nil
		if ir.Format != "" {
			out["format"] = ir.Format
		}
		out["secret"] = ir.Secret
	case KindObject:
		fields := ir.Fields
		if fields == nil {
			fields = map[string]Field{}
		}
		out["fields"] = fields
		out["additional_properties"] = ir.AdditionalProperties
	default:
		return nil, oops.Code("SCHEMA_KIND").With("kind", ir.Kind).Errorf("unknown schema kind %q", ir.Kind)
	}
	return json.Marshal(out)
}

type irWire struct {
	Kind                 Kind             `json:"kind"`
	Title                core.I18nText    `json:"title"`
	Description          core.I18nText    `json:"description"`
	Format               *string          `json:"format"`
	Secret               bool             `json:"secret"`
	Fields               map[string]Field `json:"fields"`
	AdditionalProperties bool             `json:"additional_properties"`
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (ir *IR) UnmarshalJSON(data []byte) error {
	var w irWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindBool, KindString, KindObject:
	default:
		return oops.Code("SCHEMA_KIND").With("kind", w.Kind).Errorf("unknown schema kind %q", w.Kind)
	}
	*ir = IR{
		Kind:                 w.Kind,
		Title:                w.Title,
		Description:          w.Description,
		Secret:               w.Secret,
		Fields:               w.Fields,
		AdditionalProperties: w.AdditionalProperties,
	}
	if w.Format != nil {
		ir.Format = *w.Format
	}
	return nil
}
