package pollwatch

import (
	"context"
	"net/http"
	"time"
)

// Response is the value a [Probe] returns on a successful call.
//
// Response is what the success [Predicate] inspects. For HTTP probes built
// from a [Target] it carries the decoded transport result; custom probes can
// fill only the fields they care about (usually Body).
type Response struct {
	// StatusCode is the HTTP status code, or zero for non-HTTP probes.
	StatusCode int

	// Body is the raw response payload, typically JSON.
	Body []byte

	// Header holds response headers for HTTP probes.
	Header http.Header

	// Latency is how long the probe call took.
	Latency time.Duration

	// CheckedAt is when the probe call completed.
	CheckedAt time.Time
}

// Probe is one asynchronous status check.
//
// A Probe is called once per attempt. It must honour ctx: the coordinator
// cancels it when the session is stopped or the coordinator is closed.
// Returning an error carrying a status code (see [PollError]) lets the
// coordinator tell fatal client errors (400, 401, 403) from transient ones.
type Probe func(ctx context.Context) (Response, error)

// Predicate reports whether a probe response means the job is finished.
//
// Predicates must be pure and fast; they run synchronously between the probe
// call and the scheduling of the next attempt.
type Predicate func(Response) bool

// Handlers are the completion callbacks for one polling session.
//
// Exactly one of OnSuccess or OnError fires per session. OnTimeout is only
// invoked when the attempt ceiling is exceeded; it receives the session's
// OnError so it can report the timeout in its own words. If OnTimeout does
// not call it, OnError is invoked with [ErrMaxTriesExceeded] afterwards.
type Handlers struct {
	OnSuccess func(Response)
	OnError   func(error)
	OnTimeout func(onError func(error))
}

