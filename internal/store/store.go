package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// SessionRecord is the latest known state of one polling session.
//
// SessionRecord is the storage representation of a session, optimized for
// JSON serialization (used by the REST API, SSE and Redis). It is decoupled
// from the coordinator's types to allow independent evolution.
type SessionRecord struct {
	// RequestID identifies the session.
	RequestID string `json:"request_id"`

	// URL is the polled status URL, if the session polls over HTTP.
	URL string `json:"url,omitempty"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels,omitempty"`

	// State is one of idle, in_flight, waiting or terminal.
	State string `json:"state"`

	// Outcome is set once the session is terminal: success, error, timeout
	// or cancelled.
	Outcome string `json:"outcome,omitempty"`

	TryNumber int `json:"try_number"`
	MaxTries  int `json:"max_tries"`

	// StatusCode is the HTTP status of the most recent probe call.
	StatusCode int `json:"status_code,omitempty"`

	// LatencyMs is the latency of the most recent probe call.
	LatencyMs int64 `json:"latency_ms"`

	// Error contains the terminal error message, nil if none.
	Error *string `json:"error"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the record describes a finished session.
func (r SessionRecord) Done() bool {
	return r.State == "terminal"
}

// Store defines the interface for storing and subscribing to session records.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a record and notifies all subscribers.
	// Records are keyed by RequestID; later updates replace earlier ones.
	Update(ctx context.Context, rec SessionRecord) error

	// Get returns the record for requestID. The bool is false when no
	// record exists.
	Get(ctx context.Context, requestID string) (SessionRecord, bool, error)

	// GetAll returns all stored records sorted by RequestID.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll(ctx context.Context) ([]SessionRecord, error)

	// Subscribe returns a channel that receives record updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan SessionRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan SessionRecord)

	// Close closes every subscription and releases resources.
	// Safe to call multiple times.
	Close() error
}
