package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/pollwatch"
)

// BuildTargets converts parsed configuration into pollwatch Targets.
//
// It processes both direct targets and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product.
func BuildTargets(cfg *Config) ([]pollwatch.Target, error) {
	var targets []pollwatch.Target

	for _, tc := range cfg.Targets {
		t, err := buildTarget(tc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	for _, gc := range cfg.Grids {
		gridTargets, err := buildGridTargets(gc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, gridTargets...)
	}

	return targets, nil
}

// buildTarget converts a single TargetConfig to a Target.
func buildTarget(tc TargetConfig) (pollwatch.Target, error) {
	var opts []pollwatch.TargetOption

	if tc.Method != "" {
		opts = append(opts, pollwatch.WithMethod(tc.Method))
	}
	if tc.Timeout != 0 {
		opts = append(opts, pollwatch.WithTimeout(tc.Timeout.Duration()))
	}
	if len(tc.Headers) > 0 {
		opts = append(opts, pollwatch.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}
	if len(tc.Labels) > 0 {
		opts = append(opts, pollwatch.WithLabels(mapToKeyValuePairs(tc.Labels)...))
	}
	if tc.WaitTime != 0 {
		opts = append(opts, pollwatch.WithTargetWaitTime(tc.WaitTime.Duration()))
	}
	if tc.MaxTries != 0 {
		opts = append(opts, pollwatch.WithTargetMaxTries(tc.MaxTries))
	}

	test, err := BuildPredicate(tc.Success)
	if err != nil {
		return pollwatch.Target{}, fmt.Errorf("target (%s): %w", tc.ID, err)
	}
	if test != nil {
		opts = append(opts, pollwatch.WithPredicate(test))
	}

	return pollwatch.NewTarget(tc.ID, tc.URL, opts...)
}

// buildGridTargets expands a GridConfig into targets.
func buildGridTargets(gc GridConfig) ([]pollwatch.Target, error) {
	opts := []pollwatch.GridOption{
		pollwatch.WithURLTemplate(gc.URLTemplate),
		pollwatch.WithDimensions(gc.Dimensions),
		pollwatch.WithGridTimeout(gc.Timeout.Duration()),
		pollwatch.WithGridWaitTime(gc.WaitTime.Duration()),
		pollwatch.WithGridMaxTries(gc.MaxTries),
	}
	if gc.Method != "" {
		opts = append(opts, pollwatch.WithGridMethod(gc.Method))
	}
	if len(gc.Headers) > 0 {
		opts = append(opts, pollwatch.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}
	if len(gc.Labels) > 0 {
		opts = append(opts, pollwatch.WithGridLabels(mapToKeyValuePairs(gc.Labels)...))
	}

	test, err := BuildPredicate(gc.Success)
	if err != nil {
		return nil, fmt.Errorf("grid (%s): %w", gc.ID, err)
	}
	if test != nil {
		opts = append(opts, pollwatch.WithGridPredicate(test))
	}

	targets, err := pollwatch.NewTargetGrid(gc.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("grid (%s): %w", gc.ID, err)
	}
	return targets, nil
}

// BuildPredicate converts a SuccessConfig to a Predicate.
// Returns nil for default/empty checks (the target uses DefaultPredicate).
func BuildPredicate(sc SuccessConfig) (pollwatch.Predicate, error) {
	switch sc.Type {
	case "", "default":
		return nil, nil
	case "http":
		return pollwatch.HTTPSuccess, nil
	case "status":
		return pollwatch.StatusLeaves(sc.Values...), nil
	case "json":
		if sc.Negate {
			return pollwatch.FieldNotIn(sc.Path, sc.Values...), nil
		}
		return pollwatch.FieldIn(sc.Path, sc.Values...), nil
	case "contains":
		return pollwatch.BodyContains(sc.Text), nil
	case "regex":
		return pollwatch.MatchRegex(sc.Pattern, "")
	default:
		return nil, fmt.Errorf("unknown success type %q", sc.Type)
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
