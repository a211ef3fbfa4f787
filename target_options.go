package pollwatch

import (
	"errors"
	"net/http"
	"time"
)

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	labels   map[string]string
	headers  map[string]string
	timeout  time.Duration
	method   string
	test     Predicate
	waitTime time.Duration
	maxTries int
}

// TargetOption is a function that configures a [Target] during construction.
//
// Options return an error if validation fails.
type TargetOption func(*targetConfig) error

// WithLabels adds metadata labels to the target, such as the STT or the
// fiscal quarter a data file belongs to. Labels are copied into session
// records served by the API.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	t, err := pollwatch.NewTarget("file-42", url,
//	    pollwatch.WithLabels("stt", "AK", "quarter", "Q1"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithLabels(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithHeaders adds custom HTTP headers to every probe request, typically an
// Authorization header.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the HTTP request timeout for each probe call.
//
// A timed out call is a transient failure and is retried.
// Defaults to 10 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the HTTP method for probe requests.
//
// Supported methods are GET (default), HEAD, and POST.
//
// Returns an error if the method is not GET, HEAD, or POST.
func WithMethod(method string) TargetOption {
	return func(cfg *targetConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithPredicate sets the success test for the target.
// If not specified, [DefaultPredicate] is used.
func WithPredicate(p Predicate) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.test = p
		return nil
	}
}

// WithTargetWaitTime sets the delay between attempts for this target,
// overriding the coordinator default.
//
// Returns an error if the duration is zero or negative.
func WithTargetWaitTime(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d <= 0 {
			return errors.New("wait time must be positive")
		}
		cfg.waitTime = d
		return nil
	}
}

// WithTargetMaxTries sets the attempt ceiling for this target, overriding
// the coordinator default.
//
// Returns an error if n is less than 1.
func WithTargetMaxTries(n int) TargetOption {
	return func(cfg *targetConfig) error {
		if n < 1 {
			return errors.New("max tries must be at least 1")
		}
		cfg.maxTries = n
		return nil
	}
}
