package destination

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// Characters escaped in interpolated values per formatting mode. The
// MarkdownV2 set covers every reserved character; classic Markdown only
// reserves four.
var valueEscapes = map[string][]string{
	"markdownv2": {"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"},
	"markdown":   {"_", "*", "`", "["},
}

// Characters escaped in template literals for MarkdownV2: the structural
// subset that would otherwise break parsing, leaving markup like *bold*
// in the template intact.
var templateEscapes = []string{">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

var templateAction = regexp.MustCompile(`{{.+?}}`)

// renderText escapes the template's literal text and the argument values
// for the given mode, then executes the template. Literal reserved
// characters written in the template survive as-is; the same characters
// inside interpolated values come out escaped.
func renderText(tmplText string, args map[string]any, mode string) (string, error) {
	t, err := template.New("message").Parse(escapeTemplate(tmplText, mode))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, escapeValue(args, mode)); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "&amp;", "&"), nil
}

// escapeTemplate escapes reserved characters in the literal segments of a
// template, leaving the {{...}} actions untouched so they still execute.
func escapeTemplate(tmpl, mode string) string {
	if strings.ToLower(mode) != "markdownv2" {
		return tmpl
	}

	actions := templateAction.FindAllString(tmpl, -1)
	literals := templateAction.Split(tmpl, -1)

	var b strings.Builder
	for i, lit := range literals {
		for _, c := range templateEscapes {
			lit = strings.ReplaceAll(lit, c, `\`+c)
		}
		b.WriteString(lit)
		if i < len(actions) {
			b.WriteString(actions[i])
		}
	}
	return b.String()
}

// escapeValue escapes every string reachable from v for the given mode,
// returning new values so shared entry maps are never mutated. Nils
// become empty strings so templates tolerate unmatched rules.
func escapeValue(v any, mode string) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return EscapeText(val, mode)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = escapeValue(item, mode)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = escapeValue(item, mode)
		}
		return out
	default:
		return val
	}
}

// RenderPlain renders a template with no escaping at all. The result is
// a backend-independent rendition used to fingerprint item content.
func RenderPlain(tmplText string, args map[string]any) (string, error) {
	return renderText(tmplText, args, "plain")
}

// EscapeText escapes every reserved character of the mode's formatting
// language in a value string.
func EscapeText(s, mode string) string {
	for _, c := range valueEscapes[strings.ToLower(mode)] {
		s = strings.ReplaceAll(s, c, `\`+c)
	}
	return s
}
