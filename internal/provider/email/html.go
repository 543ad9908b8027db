// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package email

import (
	"bytes"
	"encoding/json"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renders TextBlock text, which Adaptive Cards treat as a
// Markdown subset. Raw HTML in the source is dropped.
var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

const (
	styleCard      = `font-family:Segoe UI,Helvetica,Arial,sans-serif;max-width:600px;margin:0 auto;padding:20px;background:#fff;border:1px solid #e0e0e0;border-radius:8px;`
	styleH1        = `margin:0 0 8px;color:#333;`
	styleH3        = `margin:0 0 6px;color:#333;`
	styleText      = `margin:4px 0;color:#333;`
	styleSubtle    = `margin:4px 0;color:#888;font-size:13px;`
	styleCode      = `background:#f4f4f4;padding:2px 4px;border-radius:3px;`
	styleLink      = `color:#0078d4;`
	styleBlock     = `margin:8px 0;`
	styleImage     = `max-width:100%;border-radius:4px;`
	styleSetImage  = `max-width:48%;border-radius:4px;margin:4px;`
	styleFactKey   = `padding:4px 12px 4px 0;font-weight:bold;color:#555;white-space:nowrap;`
	styleFactValue = `padding:4px 0;color:#333;`
	styleContainer = `margin:8px 0;padding:12px;border:1px solid #e8e8e8;border-radius:4px;background:#fafafa;`
	styleColumn    = `vertical-align:top;padding:0 8px;`
	styleTh        = `padding:6px 12px;text-align:left;border-bottom:2px solid #ddd;color:#555;`
	styleTd        = `padding:6px 12px;border-bottom:1px solid #eee;`
	styleButton    = `display:inline-block;padding:8px 16px;background:#0078d4;color:#fff;text-decoration:none;border-radius:4px;margin:4px 4px 4px 0;font-size:14px;`
	styleInert     = `display:inline-block;padding:8px 16px;background:#f0f0f0;color:#666;border-radius:4px;margin:4px 4px 4px 0;font-size:14px;`
)

// CardHTML renders a serialized Adaptive Card as an HTML email body. The
// second result is false when the card does not parse or renders nothing.
func CardHTML(raw string) (string, bool) {
	var card map[string]any
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return "", false
	}
	var parts []string
	for _, el := range list(card["body"]) {
		parts = appendElement(parts, el)
	}
	if buttons := actionButtons(list(card["actions"])); len(buttons) > 0 {
		parts = append(parts, `<div style="margin-top:16px;">`+strings.Join(buttons, " ")+`</div>`)
	}
	if len(parts) == 0 {
		return "", false
	}
	return `<div style="` + styleCard + `">` + "\n" + strings.Join(parts, "\n") + "\n</div>", true
}

// inlineMarkdown renders text as inline HTML: a lone paragraph is
// unwrapped.
func inlineMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return html.EscapeString(text)
	}
	out := strings.TrimSpace(buf.String())
	if inner, ok := strings.CutPrefix(out, "<p>"); ok {
		if inner, ok = strings.CutSuffix(inner, "</p>"); ok && !strings.Contains(inner, "<p>") {
			return inner
		}
	}
	return out
}

func tag(name, style, inner string) string {
	return "<" + name + ` style="` + style + `">` + inner + "</" + name + ">"
}

func appendElement(parts []string, v any) []string {
	el, _ := v.(map[string]any)
	switch str(el["type"]) {
	case "TextBlock":
		text := strings.TrimSpace(str(el["text"]))
		if text == "" {
			return parts
		}
		return append(parts, textBlock(el, inlineMarkdown(text)))
	case "RichTextBlock":
		var b strings.Builder
		for _, inline := range list(el["inlines"]) {
			b.WriteString(richInline(inline))
		}
		if b.Len() == 0 {
			return parts
		}
		return append(parts, tag("p", styleText, b.String()))
	case "Image":
		url := str(el["url"])
		if url == "" {
			return parts
		}
		return append(parts, tag("div", styleBlock, image(url, str(el["altText"]), styleImage)))
	case "ImageSet":
		var b strings.Builder
		for _, img := range list(el["images"]) {
			m, _ := img.(map[string]any)
			if url := str(m["url"]); url != "" {
				b.WriteString(image(url, str(m["altText"]), styleSetImage))
			}
		}
		if b.Len() == 0 {
			return parts
		}
		return append(parts, tag("div", styleBlock, b.String()))
	case "FactSet":
		var rows strings.Builder
		for _, f := range list(el["facts"]) {
			m, _ := f.(map[string]any)
			title, value := str(m["title"]), str(m["value"])
			if title == "" && value == "" {
				continue
			}
			rows.WriteString("<tr>" + tag("td", styleFactKey, html.EscapeString(title)) +
				tag("td", styleFactValue, html.EscapeString(value)) + "</tr>")
		}
		if rows.Len() == 0 {
			return parts
		}
		return append(parts, tag("table", "margin:8px 0;border-collapse:collapse;", rows.String()))
	case "ColumnSet":
		var cols strings.Builder
		for _, c := range list(el["columns"]) {
			m, _ := c.(map[string]any)
			var inner []string
			for _, item := range list(m["items"]) {
				inner = appendElement(inner, item)
			}
			if len(inner) > 0 {
				cols.WriteString(tag("td", styleColumn, strings.Join(inner, "")))
			}
		}
		if cols.Len() == 0 {
			return parts
		}
		return append(parts, tag("table", "width:100%;margin:8px 0;", "<tr>"+cols.String()+"</tr>"))
	case "Container":
		var inner []string
		for _, item := range list(el["items"]) {
			inner = appendElement(inner, item)
		}
		if len(inner) == 0 {
			return parts
		}
		return append(parts, tag("div", styleContainer, strings.Join(inner, "")))
	case "ActionSet":
		buttons := actionButtons(list(el["actions"]))
		if len(buttons) == 0 {
			return parts
		}
		return append(parts, tag("div", styleBlock, strings.Join(buttons, " ")))
	case "Table":
		return appendTable(parts, el)
	}
	return parts
}

func textBlock(el map[string]any, inner string) string {
	size := strings.ToLower(str(el["size"]))
	subtle, _ := el["isSubtle"].(bool)
	switch {
	case strings.EqualFold(str(el["style"]), "heading") || size == "extralarge":
		return tag("h1", styleH1, inner)
	case strings.EqualFold(str(el["weight"]), "bolder") || size == "large":
		return tag("h2", styleH1, inner)
	case size == "medium":
		return tag("h3", styleH3, inner)
	case subtle || size == "small":
		return tag("p", styleSubtle, inner)
	}
	return tag("p", styleText, inner)
}

func richInline(v any) string {
	text, isString := v.(string)
	m, _ := v.(map[string]any)
	if !isString {
		text = str(m["text"])
	}
	if text == "" {
		return ""
	}
	s := html.EscapeString(text)
	if strings.EqualFold(str(m["fontWeight"]), "bolder") {
		s = "<strong>" + s + "</strong>"
	}
	if b, _ := m["italic"].(bool); b {
		s = "<em>" + s + "</em>"
	}
	if b, _ := m["strikethrough"].(bool); b {
		s = "<del>" + s + "</del>"
	}
	if strings.EqualFold(str(m["fontType"]), "monospace") {
		s = tag("code", styleCode, s)
	}
	if b, _ := m["underline"].(bool); b {
		s = "<u>" + s + "</u>"
	}
	if action, _ := m["selectAction"].(map[string]any); str(action["type"]) == "Action.OpenUrl" {
		if url := str(action["url"]); url != "" {
			s = `<a href="` + html.EscapeString(url) + `" style="` + styleLink + `">` + s + "</a>"
		}
	}
	return s
}

func image(url, alt, style string) string {
	if alt == "" {
		alt = "image"
	}
	return `<img src="` + html.EscapeString(url) + `" alt="` + html.EscapeString(alt) + `" style="` + style + `" />`
}

func appendTable(parts []string, el map[string]any) []string {
	rows, ok := el["rows"].([]any)
	if !ok {
		return parts
	}
	var b strings.Builder
	if cols := list(el["columns"]); len(cols) > 0 {
		b.WriteString("<tr>")
		for _, c := range cols {
			m, _ := c.(map[string]any)
			title := str(m["title"])
			if title == "" {
				title = str(m["header"])
			}
			b.WriteString(tag("th", styleTh, html.EscapeString(title)))
		}
		b.WriteString("</tr>")
	}
	for _, r := range rows {
		m, _ := r.(map[string]any)
		cells, ok := m["cells"].([]any)
		if !ok {
			continue
		}
		b.WriteString("<tr>")
		for _, c := range cells {
			cell, _ := c.(map[string]any)
			var texts []string
			for _, item := range list(cell["items"]) {
				it, _ := item.(map[string]any)
				if t, ok := it["text"].(string); ok {
					texts = append(texts, t)
				}
			}
			b.WriteString(tag("td", styleTd, html.EscapeString(strings.Join(texts, " "))))
		}
		b.WriteString("</tr>")
	}
	if b.Len() == 0 {
		return parts
	}
	return append(parts, tag("table", "width:100%;margin:8px 0;border-collapse:collapse;", b.String()))
}

// actionButtons renders OpenUrl actions as links and every other titled
// action as an inert button.
func actionButtons(actions []any) []string {
	var out []string
	for _, a := range actions {
		m, _ := a.(map[string]any)
		title := str(m["title"])
		if title == "" {
			continue
		}
		label := html.EscapeString(title)
		if str(m["type"]) == "Action.OpenUrl" {
			url := str(m["url"])
			if url == "" {
				url = "#"
			}
			out = append(out, `<a href="`+html.EscapeString(url)+`" style="`+styleButton+`">`+label+"</a>")
			continue
		}
		out = append(out, tag("span", styleInert, label))
	}
	return out
}

// cardTitle returns the text of the first bolder or heading TextBlock.
func cardTitle(raw string) string {
	var card map[string]any
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return ""
	}
	for _, v := range list(card["body"]) {
		el, _ := v.(map[string]any)
		if str(el["type"]) != "TextBlock" {
			continue
		}
		if strings.EqualFold(str(el["weight"]), "bolder") || strings.EqualFold(str(el["style"]), "heading") {
			if text := str(el["text"]); text != "" {
				return text
			}
		}
	}
	return ""
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
