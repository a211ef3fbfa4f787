package pollwatch

import (
	"context"
	"time"
)

// State is the lifecycle state of a polling session.
type State string

const (
	// StateIdle means the session is registered but its first attempt has not
	// started yet.
	StateIdle State = "idle"

	// StateInFlight means a probe call is outstanding.
	StateInFlight State = "in_flight"

	// StateWaiting means the next attempt is scheduled on a timer.
	StateWaiting State = "waiting"

	// StateTerminal means no further probe calls will happen.
	StateTerminal State = "terminal"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Outcome is how a terminal session ended. It is empty while the session is
// still running.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// String returns the outcome name.
func (o Outcome) String() string {
	return string(o)
}

// SessionInfo is an immutable snapshot of one polling session.
type SessionInfo struct {
	RequestID string
	State     State
	Outcome   Outcome

	// TryNumber is the attempt currently running or scheduled next.
	// It starts at 1 and reaches MaxTries+1 on exhaustion.
	TryNumber int
	MaxTries  int
	WaitTime  time.Duration

	// Err is the terminal error, if the session ended with one.
	Err error

	StartedAt time.Time
	UpdatedAt time.Time

	// LastStatusCode and Latency describe the most recent probe call.
	LastStatusCode int
	Latency        time.Duration
}

// Done reports whether the session reached a terminal state.
func (si SessionInfo) Done() bool {
	return si.State == StateTerminal
}

// EventType names a session transition.
type EventType string

const (
	EventAttemptStarted  EventType = "attempt_started"
	EventAttemptFinished EventType = "attempt_finished"
	EventRetryScheduled  EventType = "retry_scheduled"
	EventTerminal        EventType = "terminal"

	// EventRejected reports a StartPolling call that did not create a
	// session. Its Session carries only RequestID, Outcome and Err.
	EventRejected EventType = "rejected"
)

// Event is delivered to callbacks registered with [WithEventCallback] on
// every session transition.
type Event struct {
	Type    EventType
	Session SessionInfo
}

// session is the coordinator-owned state of one polling run. All fields are
// guarded by Coordinator.mu.
type session struct {
	id       string
	probe    Probe
	test     Predicate
	handlers Handlers
	waitTime time.Duration
	maxTries int

	state     State
	outcome   Outcome
	err       error
	tryNumber int

	// timer is non-nil only while the session is Waiting.
	timer *time.Timer

	// probing is set while the probe call is outstanding. It can outlive
	// Terminal when Stop or Close cancels a probe that has not returned yet.
	probing bool

	ctx    context.Context
	cancel context.CancelFunc

	startedAt      time.Time
	updatedAt      time.Time
	lastStatusCode int
	latency        time.Duration
}

func (s *session) snapshot() SessionInfo {
	return SessionInfo{
		RequestID:      s.id,
		State:          s.state,
		Outcome:        s.outcome,
		TryNumber:      s.tryNumber,
		MaxTries:       s.maxTries,
		WaitTime:       s.waitTime,
		Err:            s.err,
		StartedAt:      s.startedAt,
		UpdatedAt:      s.updatedAt,
		LastStatusCode: s.lastStatusCode,
		Latency:        s.latency,
	}
}
