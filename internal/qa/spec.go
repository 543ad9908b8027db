// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package qa builds the question specs that drive provider configuration
// and bridges the apply-answers pipeline between JSON and canonical CBOR.
package qa

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/core"
)

// Mode selects which questions a spec carries.
type Mode string

// QA modes.
const (
	ModeDefault Mode = "default"
	ModeSetup   Mode = "setup"
	ModeUpgrade Mode = "upgrade"
	ModeRemove  Mode = "remove"
)

// Error codes.
const (
	CodeInvalidMode  = "QA_INVALID_MODE"
	CodeInvalidSpec  = "QA_INVALID_SPEC"
	CodeInvalidRegex = "QA_INVALID_REGEX"
)

// ParseMode parses s. An empty string yields ModeSetup.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeSetup, nil
	case ModeDefault, ModeSetup, ModeUpgrade, ModeRemove:
		return m, nil
	default:
		return "", oops.Code(CodeInvalidMode).
			With("mode", s).
			Wrap(core.ErrValidation("unsupported qa mode: %s", s))
	}
}

// Kind types.
const (
	KindText   = "text"
	KindNumber = "number"
	KindBool   = "bool"
	KindChoice = "choice"
)

// ChoiceOption is one allowed value of a choice question.
type ChoiceOption struct {
	Value string        `json:"value"`
	Label core.I18nText `json:"label"`
}

// Kind is the answer type of a question. Number questions may carry
// bounds and text questions a regex.
type Kind struct {
	Type    string         `json:"type"`
	Options []ChoiceOption `json:"options,omitempty"`
	Min     *float64       `json:"min,omitempty"`
	Max     *float64       `json:"max,omitempty"`
	Regex   string         `json:"regex,omitempty"`
}

// Text returns a text kind.
func Text() Kind { return Kind{Type: KindText} }

// Bool returns a bool kind.
func Bool() Kind { return Kind{Type: KindBool} }

// Number returns a number kind with optional bounds.
func Number(minVal, maxVal *float64) Kind {
	return Kind{Type: KindNumber, Min: minVal, Max: maxVal}
}

// Choice returns a choice kind over options.
func Choice(options ...ChoiceOption) Kind {
	return Kind{Type: KindChoice, Options: options}
}

// Question is one entry of a Spec.
type Question struct {
	ID       string          `json:"id"`
	Label    core.I18nText   `json:"label"`
	Help     *core.I18nText  `json:"help,omitempty"`
	Error    *core.I18nText  `json:"error,omitempty"`
	Kind     Kind            `json:"kind"`
	Required bool            `json:"required"`
	Default  json.RawMessage `json:"default,omitempty"`
}

// Spec is the question set returned by the qa-spec operation.
type Spec struct {
	Mode        Mode           `json:"mode"`
	Title       core.I18nText  `json:"title"`
	Description *core.I18nText `json:"description"`
	Questions   []Question     `json:"questions"`
	Defaults    map[string]any `json:"defaults"`
}

// Validate checks that every regex compiles and every choice question
// has options.
func (s Spec) Validate() error {
	seen := make(map[string]struct{}, len(s.Questions))
	for _, q := range s.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return oops.Code(CodeInvalidSpec).Errorf("question id must not be empty")
		}
		if _, dup := seen[q.ID]; dup {
			return oops.Code(CodeInvalidSpec).With("question", q.ID).Errorf("duplicate question %s", q.ID)
		}
		seen[q.ID] = struct{}{}

		switch q.Kind.Type {
		case KindText:
			if q.Kind.Regex != "" {
				if _, err := regexp.Compile(q.Kind.Regex); err != nil {
					return oops.Code(CodeInvalidRegex).With("question", q.ID).Wrapf(err, "invalid regex for %s", q.ID)
				}
			}
		case KindChoice:
			if len(q.Kind.Options) == 0 {
				return oops.Code(CodeInvalidSpec).With("question", q.ID).Errorf("choice question %s has no options", q.ID)
			}
		case KindNumber:
			if q.Kind.Min != nil && q.Kind.Max != nil && *q.Kind.Min > *q.Kind.Max {
				return oops.Code(CodeInvalidSpec).With("question", q.ID).Errorf("question %s has min above max", q.ID)
			}
		case KindBool:
		default:
			return oops.Code(CodeInvalidSpec).With("question", q.ID).Errorf("unknown kind %q for %s", q.Kind.Type, q.ID)
		}
	}
	return nil
}

// Keys returns every i18n key the spec references.
func (s Spec) Keys() []string {
	keys := []string{s.Title.Key}
	if s.Description != nil {
		keys = append(keys, s.Description.Key)
	}
	for _, q := range s.Questions {
		keys = append(keys, q.Label.Key)
		if q.Help != nil {
			keys = append(keys, q.Help.Key)
		}
		if q.Error != nil {
			keys = append(keys, q.Error.Key)
		}
		for _, o := range q.Kind.Options {
			keys = append(keys, o.Label.Key)
		}
	}
	return keys
}

// Def declares one setup question of a provider: the answer field and the
// i18n key of its label.
type Def struct {
	Field    string
	LabelKey string
	Required bool
	Kind     Kind
}

func (d Def) question(required bool) Question {
	kind := d.Kind
	if kind.Type == "" {
		kind = Text()
	}
	return Question{
		ID:       d.Field,
		Label:    core.I18n(d.LabelKey),
		Kind:     kind,
		Required: required,
	}
}

// SpecForMode builds the spec for mode. Default mode asks only the fields
// in defaultKeys, all required. Setup asks every question. Upgrade asks
// every question with nothing required. Remove asks nothing.
func SpecForMode(mode Mode, prefix string, setup []Def, defaultKeys []string) Spec {
	spec := Spec{
		Mode:      mode,
		Title:     core.I18n(prefix + ".qa." + string(mode) + ".title"),
		Questions: []Question{},
		Defaults:  map[string]any{},
	}
	switch mode {
	case ModeDefault:
		for _, key := range defaultKeys {
			for _, d := range setup {
				if d.Field == key {
					spec.Questions = append(spec.Questions, d.question(true))
					break
				}
			}
		}
	case ModeSetup:
		for _, d := range setup {
			spec.Questions = append(spec.Questions, d.question(d.Required))
		}
	case ModeUpgrade:
		for _, d := range setup {
			spec.Questions = append(spec.Questions, d.question(false))
		}
	default:
		spec.Mode = ModeRemove
		spec.Title = core.I18n(prefix + ".qa.remove.title")
	}
	return spec
}

// Modes returns every QA mode.
func Modes() []Mode {
	return []Mode{ModeDefault, ModeSetup, ModeUpgrade, ModeRemove}
}
