package pollwatch

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// JSONField looks up a dot-separated path in a JSON body.
//
// For example, "summary.status" navigates to {"summary": {"status": "Pending"}}.
// Strings are returned as-is, booleans as "true"/"false" and numbers in their
// shortest decimal form. The second result is false when the body is not
// JSON, the path does not exist, or the value is null, an object or an array.
func JSONField(body []byte, path string) (string, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", false
	}
	return extractJSONPath(data, strings.Split(path, "."))
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data interface{}, parts []string) (string, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// FieldIn returns a [Predicate] that is true when the JSON field at path
// equals one of values (case-insensitively).
//
// Example:
//
//	// done once the file is accepted or rejected
//	test := pollwatch.FieldIn("summary.status", "Accepted", "Rejected")
func FieldIn(path string, values ...string) Predicate {
	parts := strings.Split(path, ".")
	want := lowerSet(values)

	return func(resp Response) bool {
		var data interface{}
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			return false
		}
		v, ok := extractJSONPath(data, parts)
		if !ok {
			return false
		}
		_, hit := want[strings.ToLower(v)]
		return hit
	}
}

// FieldNotIn returns a [Predicate] that is true when the JSON field at path
// is present and equals none of values (case-insensitively).
//
// A missing field never satisfies FieldNotIn, so a malformed or empty
// response keeps the session polling.
func FieldNotIn(path string, values ...string) Predicate {
	parts := strings.Split(path, ".")
	pending := lowerSet(values)

	return func(resp Response) bool {
		var data interface{}
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			return false
		}
		v, ok := extractJSONPath(data, parts)
		if !ok {
			return false
		}
		_, hit := pending[strings.ToLower(v)]
		return !hit
	}
}

// StatusLeaves returns a [Predicate] that is true once summary.status is
// present and no longer one of the given pending values.
//
// Example:
//
//	test := pollwatch.StatusLeaves("Pending", "Pending Review")
func StatusLeaves(pending ...string) Predicate {
	return FieldNotIn("summary.status", pending...)
}

// StatusCodeIn returns a [Predicate] that is true when the response status
// code is one of codes.
func StatusCodeIn(codes ...int) Predicate {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(resp Response) bool {
		_, ok := set[resp.StatusCode]
		return ok
	}
}

// HTTPSuccess is a [Predicate] that is true for any 2xx status code.
var HTTPSuccess Predicate = func(resp Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// BodyContains returns a [Predicate] that is true when the response body
// contains text (case-insensitive).
func BodyContains(text string) Predicate {
	lower := strings.ToLower(text)
	return func(resp Response) bool {
		return strings.Contains(strings.ToLower(string(resp.Body)), lower)
	}
}

// MatchRegex returns a [Predicate] that matches the response body against a
// regular expression.
//
// The predicate is true when the first capture group equals want
// (case-insensitively). If want is empty, any match is enough.
//
// Returns an error if the pattern is invalid, or if want is set and the
// pattern has no capture group.
//
// Example:
//
//	test, err := pollwatch.MatchRegex(`"status":\s*"(\w+)"`, "Accepted")
func MatchRegex(pattern string, want string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if want != "" && re.NumSubexp() < 1 {
		return nil, errors.New("regex pattern must contain a capture group to compare against " + strconv.Quote(want))
	}

	return func(resp Response) bool {
		matches := re.FindSubmatch(resp.Body)
		if matches == nil {
			return false
		}
		if want == "" {
			return true
		}
		return strings.EqualFold(string(matches[1]), want)
	}, nil
}

// MustMatchRegex is like [MatchRegex] but panics if the pattern is invalid.
//
// Use this for compile-time constant patterns.
func MustMatchRegex(pattern string, want string) Predicate {
	p, err := MatchRegex(pattern, want)
	if err != nil {
		panic("pollwatch: invalid regex pattern: " + err.Error())
	}
	return p
}

// AllOf returns a [Predicate] that is true when every predicate is true.
// AllOf with no predicates is always true.
func AllOf(preds ...Predicate) Predicate {
	return func(resp Response) bool {
		for _, p := range preds {
			if !p(resp) {
				return false
			}
		}
		return true
	}
}

// AnyOf returns a [Predicate] that is true when at least one predicate is
// true. AnyOf with no predicates is always false.
func AnyOf(preds ...Predicate) Predicate {
	return func(resp Response) bool {
		for _, p := range preds {
			if p(resp) {
				return true
			}
		}
		return false
	}
}

// DefaultPredicate is the [Predicate] used when a [Target] has none: the
// job is done once summary.status is present and not "Pending".
var DefaultPredicate = StatusLeaves("Pending")

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
