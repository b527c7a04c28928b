package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Transform is a registered unary value transformation. Func rules name
// one of these instead of shipping code: a transform sees only its input
// value and returns only its output, nothing else.
type Transform func(any) (any, error)

var transforms = map[string]Transform{
	"lower":       stringTransform(strings.ToLower),
	"upper":       stringTransform(strings.ToUpper),
	"trim":        stringTransform(strings.TrimSpace),
	"strip_html":  stripHTML,
	"first_line":  firstLine,
	"strip_emoji": stringTransform(StripNonText),
	"host":        hostOf,
}

// applyTransform runs the named transform against obj. Matchers of the
// form "name:arg" pass arg to parameterized transforms (e.g. truncate:200).
func applyTransform(matcher string, obj any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: transform %q panicked: %v", ErrRuleEvaluation, matcher, r)
		}
	}()

	name, arg, _ := strings.Cut(matcher, ":")
	if name == "truncate" {
		return truncate(arg, obj)
	}

	tf, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transform %q", ErrRuleEvaluation, name)
	}

	v, err = tf(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: transform %q: %v", ErrRuleEvaluation, name, err)
	}
	return v, nil
}

func stringTransform(f func(string) string) Transform {
	return func(obj any) (any, error) {
		s, ok := obj.(string)
		if !ok {
			s = fmt.Sprint(obj)
		}
		return f(s), nil
	}
}

func stripHTML(obj any) (any, error) {
	s, ok := obj.(string)
	if !ok {
		return obj, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(doc.Text()), nil
}

func firstLine(obj any) (any, error) {
	s, ok := obj.(string)
	if !ok {
		s = fmt.Sprint(obj)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line), nil
}

func truncate(arg string, obj any) (any, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: truncate wants a non-negative length, got %q", ErrRuleEvaluation, arg)
	}
	s, ok := obj.(string)
	if !ok {
		s = fmt.Sprint(obj)
	}
	r := []rune(s)
	if len(r) <= n {
		return s, nil
	}
	return string(r[:n]) + "...", nil
}

func hostOf(obj any) (any, error) {
	s, ok := obj.(string)
	if !ok {
		return nil, fmt.Errorf("host wants a string, got %T", obj)
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
	host, _, _ := strings.Cut(s, "/")
	return host, nil
}

// StripNonText removes emoji and other symbol runes, keeping letters,
// digits, punctuation, and whitespace. The mirror publisher uses it when
// a published page fails verification against the source text.
func StripNonText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) ||
			unicode.IsSpace(r) || unicode.IsMark(r) {
			return r
		}
		return -1
	}, s)
}
