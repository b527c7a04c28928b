package rules

import (
	"errors"
	"testing"
)

func TestApplyTransform(t *testing.T) {
	tests := []struct {
		name    string
		matcher string
		obj     any
		want    any
		wantErr bool
	}{
		{name: "lower", matcher: "lower", obj: "HeLLo", want: "hello"},
		{name: "upper", matcher: "upper", obj: "HeLLo", want: "HELLO"},
		{name: "trim", matcher: "trim", obj: "  spaced  ", want: "spaced"},
		{name: "strip_html", matcher: "strip_html", obj: "<p>Hello <b>world</b></p>", want: "Hello world"},
		{name: "first_line", matcher: "first_line", obj: "first\nsecond\nthird", want: "first"},
		{name: "first_line single", matcher: "first_line", obj: "only", want: "only"},
		{name: "strip_emoji", matcher: "strip_emoji", obj: "breaking 🔥 news ✨", want: "breaking  news "},
		{name: "host https", matcher: "host", obj: "https://example.com/a/b", want: "example.com"},
		{name: "host http", matcher: "host", obj: "http://feeds.example.org", want: "feeds.example.org"},
		{name: "truncate shorter than limit", matcher: "truncate:10", obj: "short", want: "short"},
		{name: "truncate over limit", matcher: "truncate:5", obj: "a longer string", want: "a lon..."},
		{name: "truncate counts runes", matcher: "truncate:3", obj: "привет", want: "при..."},
		{name: "non-string coerced", matcher: "upper", obj: 42, want: "42"},
		{name: "truncate bad arg", matcher: "truncate:x", obj: "s", wantErr: true},
		{name: "unknown transform", matcher: "reverse", obj: "s", wantErr: true},
		{name: "host wants string", matcher: "host", obj: 7, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyTransform(tt.matcher, tt.obj)
			if tt.wantErr {
				if !errors.Is(err, ErrRuleEvaluation) {
					t.Fatalf("want ErrRuleEvaluation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("transform: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripNonText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text stays", "plain text stays"},
		{"emoji 🎉 gone", "emoji  gone"},
		{"punctuation, kept!", "punctuation, kept!"},
		{"цифры 123 и буквы", "цифры 123 и буквы"},
	}
	for _, tt := range tests {
		if got := StripNonText(tt.in); got != tt.want {
			t.Errorf("StripNonText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
