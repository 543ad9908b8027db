// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/qa"
)

// asker prompts for each question of a spec.
type asker struct {
	in  *bufio.Reader
	out io.Writer
	// secret reads a value without echo; handled is false when the input
	// is not a terminal and the line reader should be used instead.
	secret func() (value string, handled bool, err error)
}

func newAsker(in io.Reader, out io.Writer) *asker {
	return &asker{
		in:     bufio.NewReader(in),
		out:    out,
		secret: func() (string, bool, error) { return readPassword(in) },
	}
}

// Ask asks every question in order. Blank input takes the default; a
// required question without one is asked again. Invalid values are
// reported and asked again.
func (a *asker) Ask(spec qa.QuestionsSpec) (map[string]any, error) {
	full := spec.Spec()
	answers := make(map[string]any, len(spec.Questions))

	fmt.Fprintf(a.out, "%s (%s)\n", spec.Title, spec.ID)
	for i, q := range spec.Questions {
		single := full
		single.Questions = full.Questions[i : i+1]

		for {
			raw, err := a.read(q)
			if err != nil {
				return nil, err
			}

			if raw == "" {
				if q.Default != nil {
					answers[q.Name] = q.Default
					break
				}
				if q.Required {
					continue
				}
				answers[q.Name] = ""
				break
			}

			value, err := parseAnswer(raw, q.Kind)
			if err == nil {
				if issues := qa.ValidateAnswers(single, map[string]any{q.Name: value}); len(issues) > 0 {
					err = errors.New(issues[0].Message)
				}
			}
			if err != nil {
				fmt.Fprintf(a.out, "Invalid value for %s: %v\n", q.Name, err)
				continue
			}
			answers[q.Name] = value
			break
		}
	}
	return answers, nil
}

func (a *asker) read(q qa.QuestionItem) (string, error) {
	fmt.Fprint(a.out, prompt(q))
	if q.Secret && a.secret != nil {
		value, handled, err := a.secret()
		if handled {
			fmt.Fprintln(a.out)
			return value, err
		}
	}
	line, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", oops.Code("INPUT_CLOSED").With("question", q.Name).Errorf("input closed before %s was answered", q.Name)
		}
		return "", oops.Code("PROMPT_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func prompt(q qa.QuestionItem) string {
	var b strings.Builder
	b.WriteString(q.Title)
	if q.Required {
		b.WriteString(" *")
	}
	if q.Help != "" {
		fmt.Fprintf(&b, " [%s]", q.Help)
	}
	if len(q.Choices) > 0 {
		choices := make([]string, 0, len(q.Choices))
		for _, c := range q.Choices {
			choices = append(choices, fmt.Sprint(c))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(choices, "/"))
	}
	b.WriteString(": ")
	return b.String()
}

// parseAnswer converts raw input for kind. Booleans accept
// true/1/yes/y and treat anything else as false.
func parseAnswer(raw, kind string) (any, error) {
	switch kind {
	case qa.SetupKindBool, "boolean":
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "y":
			return true, nil
		default:
			return false, nil
		}
	case qa.SetupKindNumber, "int", "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer")
		}
		return n, nil
	default:
		return raw, nil
	}
}
