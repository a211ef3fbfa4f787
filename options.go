package pollwatch

import (
	"errors"
	"log/slog"
	"time"
)

// coordinatorConfig holds mutable state during Coordinator construction.
type coordinatorConfig struct {
	waitTime       time.Duration
	maxTries       int
	maxConcurrency int
	logger         *slog.Logger
	eventCallbacks []func(Event)
}

// Option is a function that configures a [Coordinator] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithDefaultWaitTime], [WithDefaultMaxTries],
// [WithMaxConcurrency], [WithLogger], [WithEventCallback].
type Option func(*coordinatorConfig) error

// WithDefaultWaitTime sets the delay between attempts for sessions that do
// not override it with [WithWaitTime]. Defaults to 2 seconds.
//
// Returns an error if the duration is zero or negative.
func WithDefaultWaitTime(d time.Duration) Option {
	return func(cfg *coordinatorConfig) error {
		if d <= 0 {
			return errors.New("wait time must be positive")
		}
		cfg.waitTime = d
		return nil
	}
}

// WithDefaultMaxTries sets the attempt ceiling for sessions that do not
// override it with [WithMaxTries]. Defaults to 30.
//
// Returns an error if n is less than 1.
func WithDefaultMaxTries(n int) Option {
	return func(cfg *coordinatorConfig) error {
		if n < 1 {
			return errors.New("max tries must be at least 1")
		}
		cfg.maxTries = n
		return nil
	}
}

// WithMaxConcurrency limits how many probe calls may be in flight at once
// across all sessions. Zero, the default, means no limit.
//
// Example:
//
//	c, err := pollwatch.New(
//	    pollwatch.WithMaxConcurrency(5),
//	)
//
// Returns an error if n is negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *coordinatorConfig) error {
		if n < 0 {
			return errors.New("max concurrency cannot be negative")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Coordinator.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *coordinatorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithEventCallback registers a function to be called on every session
// transition.
//
// Multiple callbacks may be registered by calling WithEventCallback multiple
// times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the attempt goroutine
// of the session that emitted the event, outside the coordinator lock. Panics
// within callbacks are recovered and logged.
//
// Example:
//
//	c, err := pollwatch.New(
//	    pollwatch.WithEventCallback(func(ev pollwatch.Event) {
//	        if ev.Type == pollwatch.EventTerminal {
//	            log.Printf("%s finished: %s", ev.Session.RequestID, ev.Session.Outcome)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithEventCallback(cb func(Event)) Option {
	return func(cfg *coordinatorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.eventCallbacks = append(cfg.eventCallbacks, cb)
		return nil
	}
}

// sessionConfig holds per-session overrides passed to StartPolling.
type sessionConfig struct {
	waitTime time.Duration
	maxTries int
}

// SessionOption overrides coordinator defaults for a single session.
type SessionOption func(*sessionConfig) error

// WithWaitTime sets the delay between attempts for one session.
func WithWaitTime(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("wait time must be positive")
		}
		cfg.waitTime = d
		return nil
	}
}

// WithMaxTries sets the attempt ceiling for one session.
func WithMaxTries(n int) SessionOption {
	return func(cfg *sessionConfig) error {
		if n < 1 {
			return errors.New("max tries must be at least 1")
		}
		cfg.maxTries = n
		return nil
	}
}
