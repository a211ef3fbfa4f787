package pollwatch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// gridConfig holds configuration during target grid construction.
type gridConfig struct {
	urlTemplate  string
	dimensions   map[string][]string
	staticLabels map[string]string
	headers      map[string]string
	timeout      time.Duration
	method       string
	test         Predicate
	waitTime     time.Duration
	maxTries     int
}

// GridOption configures [NewTargetGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template, e.g.
// "https://tdp.example.gov/v1/data_files/{{.file}}/".
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the values to expand. Each key becomes a template
// variable.
//
// Returns an error if the map is empty, any dimension has no values, or any
// value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension %q has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension %q contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridLabels adds static labels to every generated target.
//
// Returns an error if an odd number of arguments is provided.
func WithGridLabels(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.staticLabels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridHeaders adds HTTP headers to every generated target.
//
// Returns an error if an odd number of arguments is provided.
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridTimeout sets the request timeout of every generated target.
// Zero keeps the target default.
func WithGridTimeout(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithGridMethod sets the HTTP method of every generated target.
func WithGridMethod(method string) GridOption {
	return func(cfg *gridConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithGridPredicate sets the success test of every generated target.
func WithGridPredicate(p Predicate) GridOption {
	return func(cfg *gridConfig) error {
		cfg.test = p
		return nil
	}
}

// WithGridWaitTime sets the delay between attempts for every generated
// target. Zero keeps the coordinator default.
func WithGridWaitTime(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("wait time cannot be negative")
		}
		cfg.waitTime = d
		return nil
	}
}

// WithGridMaxTries sets the attempt ceiling for every generated target.
// Zero keeps the coordinator default.
func WithGridMaxTries(n int) GridOption {
	return func(cfg *gridConfig) error {
		if n < 0 {
			return errors.New("max tries cannot be negative")
		}
		cfg.maxTries = n
		return nil
	}
}
