package pollwatch

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewTargetGrid expands a URL template over dimension values into one
// [Target] per combination (cartesian product).
//
// A typical use is polling every file of a submission:
//
//	targets, err := pollwatch.NewTargetGrid("submission-7",
//	    pollwatch.WithURLTemplate("https://tdp.example.gov/v1/data_files/{{.file}}/"),
//	    pollwatch.WithDimensions(map[string][]string{
//	        "file": {"101", "102", "103"},
//	    }),
//	)
//
// The URL template uses text/template syntax with dimension keys as
// variables. Values are URL-encoded before interpolation and a missing key
// is an error. Each target's request id is baseID followed by its values in
// sorted key order, e.g. "submission-7/101". Dimension values also become
// labels; static labels from [WithGridLabels] win on collision.
func NewTargetGrid(baseID string, opts ...GridOption) ([]Target, error) {
	if strings.TrimSpace(baseID) == "" {
		return nil, errors.New("base id cannot be empty")
	}

	cfg := &gridConfig{
		staticLabels: make(map[string]string),
		headers:      make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	keys := sortedKeys(cfg.dimensions)
	shared := cfg.targetOptions()

	var targets []Target
	for _, combo := range combinations(keys, cfg.dimensions) {
		var buf strings.Builder
		if err := tmpl.Execute(&buf, escapeValues(combo)); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		id := gridRequestID(baseID, keys, combo)

		labels := make(map[string]string, len(combo)+len(cfg.staticLabels))
		for k, v := range combo {
			labels[k] = v
		}
		for k, v := range cfg.staticLabels {
			labels[k] = v
		}

		topts := append([]TargetOption{WithLabels(flattenMap(labels)...)}, shared...)
		t, err := NewTarget(id, buf.String(), topts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create target %q: %w", id, err)
		}
		targets = append(targets, t)
	}

	return targets, nil
}

// targetOptions converts grid-wide settings into per-target options.
func (cfg *gridConfig) targetOptions() []TargetOption {
	var opts []TargetOption
	if len(cfg.headers) > 0 {
		opts = append(opts, WithHeaders(flattenMap(cfg.headers)...))
	}
	if cfg.timeout > 0 {
		opts = append(opts, WithTimeout(cfg.timeout))
	}
	if cfg.method != "" {
		opts = append(opts, WithMethod(cfg.method))
	}
	if cfg.test != nil {
		opts = append(opts, WithPredicate(cfg.test))
	}
	if cfg.waitTime > 0 {
		opts = append(opts, WithTargetWaitTime(cfg.waitTime))
	}
	if cfg.maxTries > 0 {
		opts = append(opts, WithTargetMaxTries(cfg.maxTries))
	}
	return opts
}

// combinations returns every assignment of one value per key. The last key
// varies fastest; values keep their slice order.
//
//	keys [file quarter], {"file": [a b], "quarter": [Q1 Q2]}
//	=> a/Q1, a/Q2, b/Q1, b/Q2
func combinations(keys []string, dims map[string][]string) []map[string]string {
	out := []map[string]string{{}}
	for _, k := range keys {
		vals := dims[k]
		if len(vals) == 0 {
			return nil
		}
		next := make([]map[string]string, 0, len(out)*len(vals))
		for _, partial := range out {
			for _, v := range vals {
				combo := make(map[string]string, len(partial)+1)
				for pk, pv := range partial {
					combo[pk] = pv
				}
				combo[k] = v
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}

// gridRequestID joins baseID and the combination values in key order.
func gridRequestID(baseID string, keys []string, combo map[string]string) string {
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, baseID)
	for _, k := range keys {
		parts = append(parts, combo[k])
	}
	return strings.Join(parts, "/")
}

func escapeValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = url.QueryEscape(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flattenMap converts a map to sorted key-value pairs for variadic options.
func flattenMap(m map[string]string) []string {
	out := make([]string, 0, len(m)*2)
	for _, k := range sortedKeys(m) {
		out = append(out, k, m[k])
	}
	return out
}
