// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/greentic/messaging-providers/internal/core"
)

// Question kinds of a setup spec.
const (
	SetupKindString = "string"
	SetupKindBool   = "bool"
	SetupKindNumber = "number"
	SetupKindChoice = "choice"
)

// SetupSpec is the YAML form a provider package ships for interactive
// setup.
type SetupSpec struct {
	ProviderID string     `yaml:"provider_id"`
	Version    int        `yaml:"version"`
	Title      string     `yaml:"title"`
	Questions  []SetupDef `yaml:"questions"`
}

// SetupDef is one question of a SetupSpec.
type SetupDef struct {
	Name     string         `yaml:"name"`
	Title    string         `yaml:"title"`
	Kind     string         `yaml:"kind"`
	Required bool           `yaml:"required"`
	Default  any            `yaml:"default"`
	Help     string         `yaml:"help"`
	Choices  []any          `yaml:"choices"`
	Validate *ValidateRules `yaml:"validate"`
	Secret   bool           `yaml:"secret"`
}

// ValidateRules constrain an answer.
type ValidateRules struct {
	Regex *string  `yaml:"regex" json:"regex,omitempty"`
	Min   *float64 `yaml:"min" json:"min,omitempty"`
	Max   *float64 `yaml:"max" json:"max,omitempty"`
}

// QuestionsSpec is the JSON form consumed by the questions CLI.
type QuestionsSpec struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Questions []QuestionItem `json:"questions"`
}

// QuestionItem is one question of a QuestionsSpec.
type QuestionItem struct {
	Name     string         `json:"name"`
	Title    string         `json:"title"`
	Kind     string         `json:"kind"`
	Required bool           `json:"required"`
	Default  any            `json:"default,omitempty"`
	Help     string         `json:"help,omitempty"`
	Choices  []any          `json:"choices,omitempty"`
	Validate *ValidateRules `json:"validate,omitempty"`
	Secret   bool           `json:"secret"`
}

// ParseSetupSpec decodes a YAML setup spec.
func ParseSetupSpec(data []byte) (SetupSpec, error) {
	var spec SetupSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return SetupSpec{}, oops.Code(CodeInvalidSpec).Wrapf(err, "invalid setup spec")
	}
	if spec.ProviderID == "" {
		return SetupSpec{}, oops.Code(CodeInvalidSpec).Errorf("setup spec is missing provider_id")
	}
	return spec, nil
}

// Emit converts the setup spec into a QuestionsSpec. Regexes are compiled
// so an invalid one rejects the whole spec.
func (s SetupSpec) Emit() (QuestionsSpec, error) {
	title := s.Title
	if title == "" {
		title = s.ProviderID
	}
	out := QuestionsSpec{ID: s.ProviderID, Title: title, Questions: make([]QuestionItem, 0, len(s.Questions))}
	for _, q := range s.Questions {
		out.Questions = append(out.Questions, QuestionItem(q))
	}
	if err := out.Validate(); err != nil {
		return QuestionsSpec{}, err
	}
	return out, nil
}

// Validate rejects unknown question kinds and regexes that do not
// compile.
func (s QuestionsSpec) Validate() error {
	for _, q := range s.Questions {
		switch q.Kind {
		case SetupKindString, SetupKindBool, SetupKindNumber, SetupKindChoice:
		default:
			return oops.Code(CodeInvalidSpec).
				With("question", q.Name).
				Errorf("unknown kind %q for %s", q.Kind, q.Name)
		}
		if q.Validate != nil && q.Validate.Regex != nil {
			if _, err := regexp.Compile(*q.Validate.Regex); err != nil {
				return oops.Code(CodeInvalidRegex).
					With("question", q.Name).
					Errorf("invalid regex for %s: %w", q.Name, err)
			}
		}
	}
	return nil
}

// Spec converts the questions into a QA Spec so answers can be checked
// with ValidateAnswers. String questions with choices become choice
// questions and choice questions without choices accept any string.
func (s QuestionsSpec) Spec() Spec {
	spec := Spec{Mode: ModeSetup, Title: core.I18n(s.Title), Questions: []Question{}, Defaults: map[string]any{}}
	for _, item := range s.Questions {
		q := Question{ID: item.Name, Label: core.I18n(item.Title), Required: item.Required}
		switch {
		case item.Kind == SetupKindBool:
			q.Kind = Bool()
		case item.Kind == SetupKindNumber:
			q.Kind = Kind{Type: KindNumber}
			if item.Validate != nil {
				q.Kind.Min, q.Kind.Max = item.Validate.Min, item.Validate.Max
			}
		case len(item.Choices) > 0:
			opts := make([]ChoiceOption, 0, len(item.Choices))
			for _, c := range item.Choices {
				v := fmt.Sprint(c)
				opts = append(opts, ChoiceOption{Value: v, Label: core.I18n(v)})
			}
			q.Kind = Choice(opts...)
		default:
			q.Kind = Text()
			if item.Validate != nil && item.Validate.Regex != nil {
				q.Kind.Regex = *item.Validate.Regex
			}
		}
		if item.Default != nil {
			if raw, err := json.Marshal(item.Default); err == nil {
				q.Default = raw
			}
		}
		spec.Questions = append(spec.Questions, q)
	}
	return spec
}
