// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
)

// Issue codes produced by ValidateAnswers.
const (
	IssueRequired = "required"
	IssueType     = "type"
	IssueRegex    = "regex"
	IssueChoice   = "choice"
	IssueMin      = "min"
	IssueMax      = "max"
)

// Issue is one validation finding for an answer.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ValidateAnswers checks answers against the questions of spec. An empty
// result means the answers are valid. Call Spec.Validate first; a regex
// that does not compile is reported as a regex issue.
func ValidateAnswers(spec Spec, answers map[string]any) []Issue {
	issues := []Issue{}
	for _, q := range spec.Questions {
		value, present := answers[q.ID]
		if q.Required && (!present || isBlank(value)) {
			issues = append(issues, Issue{Path: q.ID, Code: IssueRequired, Message: "required"})
			continue
		}
		if !present || value == nil {
			continue
		}
		if issue, bad := checkKind(q, value); bad {
			issues = append(issues, issue)
		}
	}
	return issues
}

func checkKind(q Question, value any) (Issue, bool) {
	fail := func(code, msg string) (Issue, bool) {
		return Issue{Path: q.ID, Code: code, Message: msg}, true
	}
	switch q.Kind.Type {
	case KindText:
		s, ok := value.(string)
		if !ok {
			return fail(IssueType, "expected string")
		}
		if q.Kind.Regex != "" {
			re, err := regexp.Compile(q.Kind.Regex)
			if err != nil || !re.MatchString(s) {
				return fail(IssueRegex, "does not match "+q.Kind.Regex)
			}
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fail(IssueType, "expected bool")
		}
	case KindNumber:
		n, ok := asNumber(value)
		if !ok {
			return fail(IssueType, "expected number")
		}
		if q.Kind.Min != nil && n < *q.Kind.Min {
			return fail(IssueMin, "below minimum")
		}
		if q.Kind.Max != nil && n > *q.Kind.Max {
			return fail(IssueMax, "above maximum")
		}
	case KindChoice:
		s, ok := value.(string)
		if !ok {
			return fail(IssueType, "expected string")
		}
		if !slices.ContainsFunc(q.Kind.Options, func(o ChoiceOption) bool { return o.Value == s }) {
			return fail(IssueChoice, "not an allowed choice")
		}
	}
	return Issue{}, false
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ExampleAnswers returns a placeholder answer for every question: its
// default, else the zero value of its kind (the first option for choices,
// the lower bound for bounded numbers).
func ExampleAnswers(spec Spec) map[string]any {
	out := make(map[string]any, len(spec.Questions))
	for _, q := range spec.Questions {
		if len(q.Default) > 0 {
			var v any
			if err := json.Unmarshal(q.Default, &v); err == nil {
				out[q.ID] = v
				continue
			}
		}
		switch q.Kind.Type {
		case KindBool:
			out[q.ID] = false
		case KindNumber:
			n := 0.0
			if q.Kind.Min != nil {
				n = *q.Kind.Min
			}
			out[q.ID] = n
		case KindChoice:
			if len(q.Kind.Options) > 0 {
				out[q.ID] = q.Kind.Options[0].Value
			} else {
				out[q.ID] = ""
			}
		default:
			out[q.ID] = ""
		}
	}
	return out
}
