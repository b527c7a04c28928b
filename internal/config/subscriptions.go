package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"feedrelay/internal/model"
)

// stringList accepts either a YAML scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = []string{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := value.Decode(&ss); err != nil {
			return err
		}
		*l = ss
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", value.Kind)
	}
}

type rawSubscription struct {
	Name      string                               `yaml:"name"`
	URL       stringList                           `yaml:"url"`
	SendTo    stringList                           `yaml:"send_to"`
	Rules     []model.Rule                         `yaml:"rules"`
	Filters   []model.Filter                       `yaml:"filters"`
	Text      string                               `yaml:"text"`
	FullText  bool                                 `yaml:"fulltext"`
	Mirror    bool                                 `yaml:"mirror_content"`
	IsNew     bool                                 `yaml:"is_new"`
	Overrides map[string]model.DestinationOverride `yaml:"overrides"`
}

type subscriptionsFile struct {
	RSS []rawSubscription `yaml:"rss"`
}

// LoadSubscriptions reads and validates the subscriptions file.
func LoadSubscriptions(path string) ([]model.Subscription, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}

	var file subscriptionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse subscriptions: %w", err)
	}
	if len(file.RSS) == 0 {
		return nil, fmt.Errorf("no subscriptions configured")
	}

	subs := make([]model.Subscription, 0, len(file.RSS))
	names := make(map[string]bool)

	for i, raw := range file.RSS {
		sub, err := buildSubscription(raw)
		if err != nil {
			return nil, fmt.Errorf("subscription %d (%q): %w", i, raw.Name, err)
		}
		if names[sub.Name] {
			return nil, fmt.Errorf("duplicate subscription name %q", sub.Name)
		}
		names[sub.Name] = true
		subs = append(subs, sub)
	}

	return subs, nil
}

func buildSubscription(raw rawSubscription) (model.Subscription, error) {
	var zero model.Subscription

	if raw.Name == "" {
		return zero, fmt.Errorf("name is required")
	}
	if len(raw.URL) == 0 {
		return zero, fmt.Errorf("url is required")
	}
	if raw.Text == "" {
		return zero, fmt.Errorf("text template is required")
	}
	if len(raw.SendTo) == 0 {
		return zero, fmt.Errorf("send_to is required")
	}

	rules := make([]model.Rule, len(raw.Rules))
	for i, r := range raw.Rules {
		if r.Kind == "" {
			r.Kind = model.RuleRegex
		}
		if r.Kind != model.RuleRegex && r.Kind != model.RuleFunc {
			return zero, fmt.Errorf("rule %d: unknown type %q", i, r.Kind)
		}
		if r.Obj == "" || r.Matcher == "" || r.Dest == "" {
			return zero, fmt.Errorf("rule %d: obj, matcher, and dest are required", i)
		}
		rules[i] = r
	}

	for i, f := range raw.Filters {
		if f.Kind != model.FilterIn && f.Kind != model.FilterOut {
			return zero, fmt.Errorf("filter %d: unknown type %q", i, f.Kind)
		}
		if f.Obj == "" || f.Matcher == "" {
			return zero, fmt.Errorf("filter %d: obj and matcher are required", i)
		}
	}

	return model.Subscription{
		Name:      raw.Name,
		URLs:      dedupe(raw.URL),
		SendTo:    dedupe(raw.SendTo),
		Rules:     rules,
		Filters:   raw.Filters,
		Text:      raw.Text,
		FullText:  raw.FullText,
		Mirror:    raw.Mirror,
		IsNew:     raw.IsNew,
		Overrides: raw.Overrides,
	}, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
