package pollwatch

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestCombinations_TwoDimensions(t *testing.T) {
	dims := map[string][]string{
		"file":    {"a", "b"},
		"quarter": {"Q1", "Q2"},
	}

	got := combinations(sortedKeys(dims), dims)

	want := []map[string]string{
		{"file": "a", "quarter": "Q1"},
		{"file": "a", "quarter": "Q2"},
		{"file": "b", "quarter": "Q1"},
		{"file": "b", "quarter": "Q2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("combinations() = %v, want %v", got, want)
	}
}

func TestCombinations_PreservesValueOrder(t *testing.T) {
	dims := map[string][]string{"file": {"3", "1", "2"}}

	got := combinations(sortedKeys(dims), dims)

	var order []string
	for _, c := range got {
		order = append(order, c["file"])
	}
	if strings.Join(order, ",") != "3,1,2" {
		t.Errorf("value order = %v, want [3 1 2]", order)
	}
}

func TestCombinations_EmptyDimension(t *testing.T) {
	dims := map[string][]string{"file": {"a"}, "quarter": {}}

	if got := combinations(sortedKeys(dims), dims); got != nil {
		t.Errorf("combinations() = %v, want nil", got)
	}
}

func TestNewTargetGrid_Basic(t *testing.T) {
	targets, err := NewTargetGrid("submission-7",
		WithURLTemplate("https://tdp.example.gov/v1/data_files/{{.file}}/?q={{.quarter}}"),
		WithDimensions(map[string][]string{
			"file":    {"101", "102"},
			"quarter": {"Q1", "Q2", "Q3"},
		}),
	)
	if err != nil {
		t.Fatalf("NewTargetGrid() error = %v", err)
	}

	if len(targets) != 6 {
		t.Fatalf("len(targets) = %d, want 6", len(targets))
	}

	first := targets[0]
	if first.RequestID() != "submission-7/101/Q1" {
		t.Errorf("RequestID() = %q, want %q", first.RequestID(), "submission-7/101/Q1")
	}
	if first.URL() != "https://tdp.example.gov/v1/data_files/101/?q=Q1" {
		t.Errorf("URL() = %q", first.URL())
	}
	if first.Labels()["file"] != "101" || first.Labels()["quarter"] != "Q1" {
		t.Errorf("Labels() = %v, want dimension labels", first.Labels())
	}

	seen := make(map[string]bool)
	for _, tg := range targets {
		if seen[tg.RequestID()] {
			t.Errorf("duplicate request id %q", tg.RequestID())
		}
		seen[tg.RequestID()] = true
	}
}

func TestNewTargetGrid_URLEncoding(t *testing.T) {
	targets, err := NewTargetGrid("s",
		WithURLTemplate("https://example.com/status?name={{.name}}"),
		WithDimensions(map[string][]string{"name": {"a b&c"}}),
	)
	if err != nil {
		t.Fatalf("NewTargetGrid() error = %v", err)
	}

	if targets[0].URL() != "https://example.com/status?name=a+b%26c" {
		t.Errorf("URL() = %q", targets[0].URL())
	}
	// labels and ids keep the raw value
	if targets[0].Labels()["name"] != "a b&c" {
		t.Errorf("Labels()[name] = %q", targets[0].Labels()["name"])
	}
	if targets[0].RequestID() != "s/a b&c" {
		t.Errorf("RequestID() = %q", targets[0].RequestID())
	}
}

func TestNewTargetGrid_StaticLabelsOverrideDimensions(t *testing.T) {
	targets, err := NewTargetGrid("s",
		WithURLTemplate("https://example.com/{{.stt}}"),
		WithDimensions(map[string][]string{"stt": {"AK"}}),
		WithGridLabels("stt", "override", "program", "TANF"),
	)
	if err != nil {
		t.Fatalf("NewTargetGrid() error = %v", err)
	}

	labels := targets[0].Labels()
	if labels["stt"] != "override" {
		t.Errorf("Labels()[stt] = %q, want override", labels["stt"])
	}
	if labels["program"] != "TANF" {
		t.Errorf("Labels()[program] = %q, want TANF", labels["program"])
	}
}

func TestNewTargetGrid_SharedSettings(t *testing.T) {
	targets, err := NewTargetGrid("s",
		WithURLTemplate("https://example.com/{{.f}}"),
		WithDimensions(map[string][]string{"f": {"1", "2"}}),
		WithGridHeaders("Authorization", "Bearer t"),
		WithGridTimeout(4*time.Second),
		WithGridMethod(http.MethodPost),
		WithGridPredicate(HTTPSuccess),
		WithGridWaitTime(500*time.Millisecond),
		WithGridMaxTries(5),
	)
	if err != nil {
		t.Fatalf("NewTargetGrid() error = %v", err)
	}

	for _, tg := range targets {
		if tg.Headers()["Authorization"] != "Bearer t" {
			t.Errorf("%s: Headers() = %v", tg.RequestID(), tg.Headers())
		}
		if tg.Timeout() != 4*time.Second {
			t.Errorf("%s: Timeout() = %v", tg.RequestID(), tg.Timeout())
		}
		if tg.Method() != http.MethodPost {
			t.Errorf("%s: Method() = %v", tg.RequestID(), tg.Method())
		}
		if tg.Predicate() == nil {
			t.Errorf("%s: Predicate() = nil", tg.RequestID())
		}
		if tg.WaitTime() != 500*time.Millisecond {
			t.Errorf("%s: WaitTime() = %v", tg.RequestID(), tg.WaitTime())
		}
		if tg.MaxTries() != 5 {
			t.Errorf("%s: MaxTries() = %v", tg.RequestID(), tg.MaxTries())
		}
	}
}

func TestNewTargetGrid_Errors(t *testing.T) {
	dims := WithDimensions(map[string][]string{"f": {"1"}})

	tests := []struct {
		name   string
		baseID string
		opts   []GridOption
		errSub string
	}{
		{"empty base id", "", []GridOption{WithURLTemplate("https://x/{{.f}}"), dims}, "base id"},
		{"whitespace base id", "  ", []GridOption{WithURLTemplate("https://x/{{.f}}"), dims}, "base id"},
		{"missing template", "s", []GridOption{dims}, "URL template required"},
		{"missing dimensions", "s", []GridOption{WithURLTemplate("https://x/{{.f}}")}, "dimension"},
		{"bad template syntax", "s", []GridOption{WithURLTemplate("https://x/{{.f"), dims}, "invalid URL template"},
		{"missing template key", "s", []GridOption{WithURLTemplate("https://x/{{.g}}"), dims}, "template execution failed"},
		{"rendered url without scheme", "s", []GridOption{WithURLTemplate("x/{{.f}}"), dims}, "failed to create target"},
		{"empty dimension", "s", []GridOption{WithDimensions(map[string][]string{"f": {}})}, "has no values"},
		{"empty value", "s", []GridOption{WithDimensions(map[string][]string{"f": {""}})}, "empty value"},
		{"odd labels", "s", []GridOption{WithGridLabels("a")}, "even number"},
		{"odd headers", "s", []GridOption{WithGridHeaders("a")}, "even number"},
		{"negative timeout", "s", []GridOption{WithGridTimeout(-1)}, "negative"},
		{"bad method", "s", []GridOption{WithGridMethod("PATCH")}, "method"},
		{"negative wait", "s", []GridOption{WithGridWaitTime(-1)}, "negative"},
		{"negative tries", "s", []GridOption{WithGridMaxTries(-1)}, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTargetGrid(tt.baseID, tt.opts...)
			if err == nil {
				t.Fatal("NewTargetGrid() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error = %q, want to contain %q", err, tt.errSub)
			}
		})
	}
}
