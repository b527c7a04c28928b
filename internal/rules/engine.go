// Package rules implements the extraction engine: matcher rules that pull
// named fields out of a feed entry, and filter rules that decide whether
// an entry is processed at all.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"feedrelay/internal/model"
)

// ErrFieldNotFound is returned when an obj path addresses a missing segment.
var ErrFieldNotFound = errors.New("field not found")

// ErrRuleEvaluation is returned when a func rule fails: the named
// transform is unknown or panicked on the input value.
var ErrRuleEvaluation = errors.New("rule evaluation failed")

// Extract applies the ordered rules to an entry and returns the resulting
// field map keyed by each rule's dest name.
//
// A regex rule with exactly one capture group stores that group's match;
// with zero or several groups it stores [full match, group 1, group 2, ...].
// A pattern that does not match stores nil, which downstream templates and
// filters must tolerate.
func Extract(entry model.Entry, ruleList []model.Rule) (map[string]any, error) {
	result := make(map[string]any, len(ruleList))

	for _, rule := range ruleList {
		obj, err := Resolve(entry, rule.Obj)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Dest, err)
		}

		kind := rule.Kind
		if kind == "" {
			kind = model.RuleRegex
		}

		switch kind {
		case model.RuleRegex:
			v, err := applyRegex(rule.Matcher, obj)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rule.Dest, err)
			}
			result[rule.Dest] = v
		case model.RuleFunc:
			v, err := applyTransform(rule.Matcher, obj)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rule.Dest, err)
			}
			result[rule.Dest] = v
		default:
			return nil, fmt.Errorf("rule %q: unknown kind %q", rule.Dest, kind)
		}
	}

	return result, nil
}

// Resolve walks a dot-separated path into the entry tree. A segment that
// parses as a non-negative integer indexes a slice, any other segment
// indexes a map key.
func Resolve(entry model.Entry, path string) (any, error) {
	var cur any = map[string]any(entry)

	for _, seg := range strings.Split(path, ".") {
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 {
			list, ok := cur.([]any)
			if !ok || idx >= len(list) {
				return nil, fmt.Errorf("%w: %q at %q", ErrFieldNotFound, path, seg)
			}
			cur = list[idx]
			continue
		}

		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q at %q", ErrFieldNotFound, path, seg)
		}
		v, ok := m[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %q at %q", ErrFieldNotFound, path, seg)
		}
		cur = v
	}

	return cur, nil
}

func applyRegex(pattern string, obj any) (any, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}

	text, ok := obj.(string)
	if !ok {
		text = fmt.Sprint(obj)
	}

	match := re.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}

	// match[0] is the full match, the rest are capture groups.
	if len(match) == 2 {
		return match[1], nil
	}
	out := make([]any, len(match))
	for i, m := range match {
		out[i] = m
	}
	return out, nil
}

// Filtered reports whether the entry should be dropped. Filters are
// evaluated in order; the first decisive one wins. A filter whose obj
// path is absent or nil is skipped.
func Filtered(entry model.Entry, filters []model.Filter) bool {
	for _, f := range filters {
		obj, err := Resolve(entry, f.Obj)
		if err != nil || obj == nil {
			continue
		}

		text, ok := obj.(string)
		if !ok {
			text = fmt.Sprint(obj)
		}

		re, err := regexp.Compile(f.Matcher)
		if err != nil {
			continue
		}

		matched := re.MatchString(text)
		switch f.Kind {
		case model.FilterIn:
			// A matching "in" filter is a decisive keep.
			return !matched
		case model.FilterOut:
			if matched {
				return true
			}
		}
	}
	return false
}
