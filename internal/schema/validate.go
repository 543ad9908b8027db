// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package schema

import (
	"bytes"
	"errors"
	"strings"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/core"
)

// JSONSchema converts ir into a draft 2020-12 JSON Schema document.
func JSONSchema(ir IR) map[string]any {
	switch ir.Kind {
	case KindBool:
		return map[string]any{"type": "boolean"}
	case KindString:
		doc := map[string]any{"type": "string"}
		if ir.Format != "" {
			doc["format"] = ir.Format
		}
		return doc
	default:
		props := make(map[string]any, len(ir.Fields))
		for name, f := range ir.Fields {
			props[name] = JSONSchema(f.Schema)
		}
		doc := map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": ir.AdditionalProperties,
		}
		if req := ir.RequiredFields(); len(req) > 0 {
			reqAny := make([]any, len(req))
			for i, r := range req {
				reqAny[i] = r
			}
			doc["required"] = reqAny
		}
		return doc
	}
}

// Validator checks JSON documents against a compiled IR.
type Validator struct {
	schema *jschema.Schema
}

// Compile builds a Validator for ir. Formats such as "uri" are asserted.
func Compile(name string, ir IR) (*Validator, error) {
	c := jschema.NewCompiler()
	c.AssertFormat()
	url := "mem://schema/" + name + ".json"
	if err := c.AddResource(url, JSONSchema(ir)); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE").With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE").With("schema", name).Wrap(err)
	}
	return &Validator{schema: sch}, nil
}

// MustCompile is Compile for statically declared schemas.
func MustCompile(name string, ir IR) *Validator {
	v, err := Compile(name, ir)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateJSON validates a raw JSON document. Failures are reported as
// "config validation failed: <location>: <reason>" for the first leaf error.
func (v *Validator) ValidateJSON(data []byte) error {
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return core.ErrInvalidConfig("%v", err)
	}
	return v.Validate(inst)
}

// Validate validates an already decoded instance.
func (v *Validator) Validate(inst any) error {
	err := v.schema.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jschema.ValidationError
	if errors.As(err, &verr) {
		leaf := firstLeaf(verr)
		loc := "/" + strings.Join(leaf.InstanceLocation, "/")
		return core.ErrConfigValidation("%s: %s", loc, leafMessage(leaf))
	}
	return core.ErrConfigValidation("%v", err)
}

func firstLeaf(e *jschema.ValidationError) *jschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}

func leafMessage(e *jschema.ValidationError) string {
	// A leaf renders as "at '<location>': <reason>".
	msg := e.Error()
	if _, reason, ok := strings.Cut(msg, "': "); ok {
		return reason
	}
	return msg
}
