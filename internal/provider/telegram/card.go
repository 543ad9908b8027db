// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package telegram

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Telegram limits.
const (
	maxCaptionLen   = 1024
	maxAlbumSize    = 10
	maxKeyboardRows = 8
	maxRowButtons   = 3
	maxCallbackLen  = 64
)

// Metadata keys written by encode and read by send.
const (
	metaParseMode = "parse_mode"
	metaActions   = "ac_actions"
	metaImages    = "ac_images"
)

type cardAction struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// cardContent is an Adaptive Card flattened for Telegram.
type cardContent struct {
	HTML    string
	Actions []cardAction
	Images  []string
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return htmlEscaper.Replace(s)
}

// truncate shortens s to at most limit runes, ending with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// convertCard flattens a serialized Adaptive Card. ok is false when the
// card does not parse or yields no text.
func convertCard(raw string) (cardContent, bool) {
	var card map[string]any
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return cardContent{}, false
	}
	var out cardContent
	var parts []string
	for _, el := range asList(card["body"]) {
		parts = out.element(el, parts)
	}
	out.collectActions(asList(card["actions"]))

	html := strings.Join(parts, "\n")
	if strings.TrimSpace(html) == "" {
		return cardContent{}, false
	}
	out.HTML = truncate(html, MaxTextLen)
	return out, true
}

func (c *cardContent) element(v any, parts []string) []string {
	el, _ := v.(map[string]any)
	switch str(el, "type") {
	case "TextBlock":
		text := strings.TrimSpace(str(el, "text"))
		if text == "" {
			return parts
		}
		size := strings.ToLower(str(el, "size"))
		subtle, _ := el["isSubtle"].(bool)
		switch {
		case strings.EqualFold(str(el, "weight"), "bolder"),
			strings.EqualFold(str(el, "style"), "heading"),
			size == "large", size == "extralarge":
			return append(parts, "<b>"+escape(text)+"</b>")
		case size == "small", subtle:
			return append(parts, "<i>"+escape(text)+"</i>")
		default:
			return append(parts, escape(text))
		}

	case "RichTextBlock":
		var rich strings.Builder
		for _, inline := range asList(el["inlines"]) {
			rich.WriteString(richInline(inline))
		}
		if rich.Len() > 0 {
			parts = append(parts, rich.String())
		}

	case "Image":
		if url := str(el, "url"); url != "" {
			c.Images = append(c.Images, url)
		}

	case "ImageSet":
		for _, img := range asList(el["images"]) {
			if url := str(asMap(img), "url"); url != "" {
				c.Images = append(c.Images, url)
			}
		}

	case "FactSet":
		var lines []string
		for _, f := range asList(el["facts"]) {
			fact := asMap(f)
			title, value := str(fact, "title"), str(fact, "value")
			if title != "" || value != "" {
				lines = append(lines, fmt.Sprintf("<b>%s:</b> %s", escape(title), escape(value)))
			}
		}
		if len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}

	case "ColumnSet":
		var columns []string
		for _, col := range asList(el["columns"]) {
			var colParts []string
			for _, item := range asList(asMap(col)["items"]) {
				colParts = c.element(item, colParts)
			}
			if len(colParts) > 0 {
				columns = append(columns, strings.Join(colParts, "\n"))
			}
		}
		if len(columns) > 0 {
			parts = append(parts, strings.Join(columns, " │ "))
		}

	case "Container":
		for _, item := range asList(el["items"]) {
			parts = c.element(item, parts)
		}

	case "ActionSet":
		c.collectActions(asList(el["actions"]))

	case "Table":
		if table := tableText(el); table != "" {
			parts = append(parts, "<pre>"+escape(table)+"</pre>")
		}
	}
	return parts
}

func richInline(v any) string {
	text, isString := v.(string)
	inline := asMap(v)
	if !isString {
		text = str(inline, "text")
	}
	if text == "" {
		return ""
	}
	s := escape(text)
	if strings.EqualFold(str(inline, "fontWeight"), "bolder") {
		s = "<b>" + s + "</b>"
	}
	if flag(inline, "italic") {
		s = "<i>" + s + "</i>"
	}
	if flag(inline, "strikethrough") {
		s = "<s>" + s + "</s>"
	}
	if strings.EqualFold(str(inline, "fontType"), "monospace") {
		s = "<code>" + s + "</code>"
	}
	if flag(inline, "underline") {
		s = "<u>" + s + "</u>"
	}
	if action := asMap(inline["selectAction"]); str(action, "type") == "Action.OpenUrl" {
		if url := str(action, "url"); url != "" {
			s = `<a href="` + escape(url) + `">` + s + "</a>"
		}
	}
	return s
}

func tableText(el map[string]any) string {
	rows := asList(el["rows"])
	if rows == nil {
		return ""
	}
	var lines []string
	var headers []string
	hasHeader := false
	for _, col := range asList(el["columns"]) {
		h := str(asMap(col), "title")
		if h == "" {
			h = str(asMap(col), "header")
		}
		hasHeader = hasHeader || h != ""
		headers = append(headers, h)
	}
	if hasHeader {
		lines = append(lines, strings.Join(headers, " │ "))
		rules := make([]string, len(headers))
		for i, h := range headers {
			rules[i] = strings.Repeat("─", max(len(h), 3))
		}
		lines = append(lines, strings.Join(rules, "─┼─"))
	}
	for _, r := range rows {
		cells := asList(asMap(r)["cells"])
		if cells == nil {
			continue
		}
		texts := make([]string, 0, len(cells))
		for _, cell := range cells {
			var words []string
			for _, item := range asList(asMap(cell)["items"]) {
				if t := str(asMap(item), "text"); t != "" {
					words = append(words, t)
				}
			}
			texts = append(texts, strings.Join(words, " "))
		}
		lines = append(lines, strings.Join(texts, " │ "))
	}
	return strings.Join(lines, "\n")
}

// collectActions keeps every titled action. Only Action.OpenUrl carries a
// URL; the rest become callback buttons.
func (c *cardContent) collectActions(actions []any) {
	for _, a := range actions {
		action := asMap(a)
		title := str(action, "title")
		if title == "" {
			continue
		}
		entry := cardAction{Title: title}
		if str(action, "type") == "Action.OpenUrl" {
			entry.URL = str(action, "url")
		}
		c.Actions = append(c.Actions, entry)
	}
}

// inlineKeyboard lays actions out in rows of three, at most eight rows.
func inlineKeyboard(actions []cardAction) [][]map[string]string {
	var rows [][]map[string]string
	var row []map[string]string
	for _, a := range actions {
		if a.Title == "" {
			continue
		}
		if len(row) >= maxRowButtons {
			rows = append(rows, row)
			row = nil
		}
		if len(rows) >= maxKeyboardRows {
			break
		}
		if a.URL != "" {
			row = append(row, map[string]string{"text": a.Title, "url": a.URL})
		} else {
			row = append(row, map[string]string{"text": a.Title, "callback_data": truncateRunes(a.Title, maxCallbackLen)})
		}
	}
	if len(row) > 0 && len(rows) < maxKeyboardRows {
		rows = append(rows, row)
	}
	return rows
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func flag(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
