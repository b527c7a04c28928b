// Package model defines the domain types used across the application.
package model

import "time"

// RuleKind defines how an extraction rule interprets its matcher.
type RuleKind string

// Supported rule kinds.
const (
	RuleRegex RuleKind = "regex"
	RuleFunc  RuleKind = "func"
)

// Rule extracts a named field from a feed entry.
// Obj addresses the source value with a dot-separated path; Dest names
// the key the extracted value is stored under.
type Rule struct {
	Obj     string   `yaml:"obj"`
	Kind    RuleKind `yaml:"type"`
	Matcher string   `yaml:"matcher"`
	Dest    string   `yaml:"dest"`
}

// FilterKind defines whether a filter requires or forbids a match.
type FilterKind string

// Supported filter kinds. FilterIn keeps entries whose addressed field
// matches the pattern; FilterOut drops them.
const (
	FilterIn  FilterKind = "in"
	FilterOut FilterKind = "out"
)

// Filter decides whether a feed entry is processed at all.
type Filter struct {
	Obj     string     `yaml:"obj"`
	Kind    FilterKind `yaml:"type"`
	Matcher string     `yaml:"matcher"`
}

// DestinationOverride carries per-subscription tweaks merged over a
// destination's base configuration.
type DestinationOverride struct {
	DisableNotification   *bool `yaml:"disable_notification"`
	DisableWebPagePreview *bool `yaml:"disable_web_page_preview"`
	Sensitive             *bool `yaml:"sensitive"`
}

// Subscription is one configured feed subscription. Loaded once per run
// and immutable afterwards.
type Subscription struct {
	Name      string                         `yaml:"name"`
	URLs      []string                       `yaml:"url"`
	SendTo    []string                       `yaml:"send_to"`
	Rules     []Rule                         `yaml:"rules"`
	Filters   []Filter                       `yaml:"filters"`
	Text      string                         `yaml:"text"`
	FullText  bool                           `yaml:"fulltext"`
	Mirror    bool                           `yaml:"mirror_content"`
	IsNew     bool                           `yaml:"is_new"`
	Overrides map[string]DestinationOverride `yaml:"overrides"`
}

// Entry is a single feed item as surfaced by the fetcher. Rules address
// its fields by path, so it stays a generic tree rather than a struct.
type Entry map[string]any

// SuppressedRef is the message-ref sentinel recorded for items that were
// present before a destination started delivering (first-time backfill).
const SuppressedRef = "-1"

// DeliveryStatus tracks one destination's view of one item.
type DeliveryStatus struct {
	MessageRef  string
	ContentHash string
	Exists      bool
	Delivered   bool
}

// ItemRecord is the persisted state for one (subscription, item) pair.
// Deliveries is keyed by destination name.
type ItemRecord struct {
	ID          string
	ContentHash string
	MirrorURL   string
	Deliveries  map[string]DeliveryStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FeedHealthRecord counts consecutive empty or failed fetches per feed URL.
type FeedHealthRecord struct {
	URL                 string
	ConsecutiveFailures int
}
