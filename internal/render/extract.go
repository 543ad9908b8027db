// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package render

import (
	"strings"
)

// ExtractCard walks an Adaptive Card body and collects its title, text,
// actions and image URLs. Unknown element types are ignored.
func ExtractCard(ac any) Card {
	root, _ := ac.(map[string]any)
	var x extractor
	x.body(list(root["body"]))
	x.actions(list(root["actions"]))
	return Card{
		Title:   x.title,
		Text:    strings.Join(x.text, "\n"),
		Actions: x.acts,
		Images:  x.images,
	}
}

type extractor struct {
	title    string
	hasTitle bool
	text     []string
	acts     []Action
	images   []string
}

func (x *extractor) body(elements []any) {
	for _, raw := range elements {
		el, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch str(el["type"]) {
		case "TextBlock":
			text := strings.TrimSpace(str(el["text"]))
			if text == "" {
				continue
			}
			if !x.hasTitle && isTitleBlock(el) {
				x.title, x.hasTitle = text, true
				continue
			}
			x.text = append(x.text, text)
		case "RichTextBlock":
			var b strings.Builder
			for _, inline := range list(el["inlines"]) {
				switch v := inline.(type) {
				case map[string]any:
					b.WriteString(str(v["text"]))
				case string:
					b.WriteString(v)
				}
			}
			if text := strings.TrimSpace(b.String()); text != "" {
				x.text = append(x.text, text)
			}
		case "Image":
			if u, ok := el["url"].(string); ok {
				x.images = append(x.images, u)
			}
		case "ImageSet":
			for _, img := range list(el["images"]) {
				if m, ok := img.(map[string]any); ok {
					if u, ok := m["url"].(string); ok {
						x.images = append(x.images, u)
					}
				}
			}
		case "ActionSet":
			x.actions(list(el["actions"]))
		case "Container":
			x.body(list(el["items"]))
		case "ColumnSet":
			for _, col := range list(el["columns"]) {
				if m, ok := col.(map[string]any); ok {
					x.body(list(m["items"]))
				}
			}
		case "FactSet":
			for _, f := range list(el["facts"]) {
				fact, _ := f.(map[string]any)
				title, value := str(fact["title"]), str(fact["value"])
				if title != "" || value != "" {
					x.text = append(x.text, title+": "+value)
				}
			}
		}
	}
}

func (x *extractor) actions(actions []any) {
	for _, raw := range actions {
		a, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := str(a["title"])
		if title == "" {
			continue
		}
		action := Action{Title: title}
		if str(a["type"]) == "Action.OpenUrl" {
			action.URL = str(a["url"])
		}
		x.acts = append(x.acts, action)
	}
}

// isTitleBlock reports whether a TextBlock is styled as a heading.
func isTitleBlock(el map[string]any) bool {
	if strings.EqualFold(str(el["weight"]), "bolder") {
		return true
	}
	switch strings.ToLower(str(el["size"])) {
	case "large", "extralarge", "medium":
		return true
	}
	return strings.EqualFold(str(el["style"]), "heading")
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
