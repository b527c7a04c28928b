package rules

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedrelay/internal/model"
)

func TestExtract(t *testing.T) {
	entry := model.Entry{
		"title":       "Release 1.32 is out",
		"link":        "https://example.com/posts/42",
		"description": "Big update with new features",
		"categories":  []any{"news", "release"},
		"author":      map[string]any{"name": "Alice"},
	}

	tests := []struct {
		name    string
		rules   []model.Rule
		want    map[string]any
		wantErr error
	}{
		{
			name:  "no rules yields empty map",
			rules: nil,
			want:  map[string]any{},
		},
		{
			name: "single capture group stores the group",
			rules: []model.Rule{
				{Obj: "title", Matcher: `Release (\d+\.\d+)`, Dest: "version"},
			},
			want: map[string]any{"version": "1.32"},
		},
		{
			name: "zero groups stores full match list",
			rules: []model.Rule{
				{Obj: "link", Matcher: `\d+`, Dest: "post_id"},
			},
			want: map[string]any{"post_id": []any{"42"}},
		},
		{
			name: "several groups store full match plus groups",
			rules: []model.Rule{
				{Obj: "link", Matcher: `https://([^/]+)/posts/(\d+)`, Dest: "parts"},
			},
			want: map[string]any{
				"parts": []any{"https://example.com/posts/42", "example.com", "42"},
			},
		},
		{
			name: "non-matching pattern stores nil",
			rules: []model.Rule{
				{Obj: "title", Matcher: `nothing here`, Dest: "missing"},
			},
			want: map[string]any{"missing": nil},
		},
		{
			name: "nested path via index",
			rules: []model.Rule{
				{Obj: "categories.1", Matcher: `.*`, Dest: "category"},
			},
			want: map[string]any{"category": []any{"release"}},
		},
		{
			name: "nested map path",
			rules: []model.Rule{
				{Obj: "author.name", Matcher: `(\w+)`, Dest: "author_name"},
			},
			want: map[string]any{"author_name": "Alice"},
		},
		{
			name: "func rule applies transform",
			rules: []model.Rule{
				{Obj: "title", Kind: model.RuleFunc, Matcher: "upper", Dest: "shout"},
			},
			want: map[string]any{"shout": "RELEASE 1.32 IS OUT"},
		},
		{
			name: "rules apply in order and accumulate",
			rules: []model.Rule{
				{Obj: "title", Matcher: `(\d+\.\d+)`, Dest: "version"},
				{Obj: "link", Kind: model.RuleFunc, Matcher: "host", Dest: "site"},
			},
			want: map[string]any{"version": "1.32", "site": "example.com"},
		},
		{
			name: "missing obj path fails",
			rules: []model.Rule{
				{Obj: "nope.deeper", Matcher: `.*`, Dest: "x"},
			},
			wantErr: ErrFieldNotFound,
		},
		{
			name: "unknown transform fails",
			rules: []model.Rule{
				{Obj: "title", Kind: model.RuleFunc, Matcher: "reverse", Dest: "x"},
			},
			wantErr: ErrRuleEvaluation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(entry, tt.rules)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	entry := model.Entry{
		"enclosures": []any{
			map[string]any{"url": "https://example.com/a.mp3"},
		},
	}

	got, err := Resolve(entry, "enclosures.0.url")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "https://example.com/a.mp3" {
		t.Errorf("got %v", got)
	}

	if _, err := Resolve(entry, "enclosures.3.url"); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("out-of-range index: want ErrFieldNotFound, got %v", err)
	}
}

func TestFiltered(t *testing.T) {
	entry := model.Entry{
		"title":       "Kubernetes vacancy at Example Corp",
		"description": "Apply now",
	}

	tests := []struct {
		name    string
		filters []model.Filter
		want    bool
	}{
		{
			name:    "no filters keeps entry",
			filters: nil,
			want:    false,
		},
		{
			name: "in filter match keeps entry decisively",
			filters: []model.Filter{
				{Obj: "title", Kind: model.FilterIn, Matcher: "(?i)kubernetes"},
				{Obj: "title", Kind: model.FilterOut, Matcher: "vacancy"},
			},
			want: false,
		},
		{
			name: "in filter miss drops entry",
			filters: []model.Filter{
				{Obj: "title", Kind: model.FilterIn, Matcher: "docker"},
			},
			want: true,
		},
		{
			name: "out filter match drops entry",
			filters: []model.Filter{
				{Obj: "title", Kind: model.FilterOut, Matcher: "vacancy"},
			},
			want: true,
		},
		{
			name: "out filter miss keeps entry",
			filters: []model.Filter{
				{Obj: "title", Kind: model.FilterOut, Matcher: "webinar"},
			},
			want: false,
		},
		{
			name: "missing obj path skips the filter",
			filters: []model.Filter{
				{Obj: "nonexistent", Kind: model.FilterOut, Matcher: ".*"},
				{Obj: "description", Kind: model.FilterOut, Matcher: "Apply"},
			},
			want: true,
		},
		{
			name: "invalid pattern skips the filter",
			filters: []model.Filter{
				{Obj: "title", Kind: model.FilterOut, Matcher: "("},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filtered(entry, tt.filters); got != tt.want {
				t.Errorf("Filtered = %v, want %v", got, tt.want)
			}
		})
	}
}
