package pollwatch

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jpalmerr/pollwatch/internal/poller"
)

var (
	// ErrAlreadyPolling is reported through OnError when StartPolling is
	// called for a request id whose session is still running, or whose
	// stopped session still has a probe call outstanding.
	ErrAlreadyPolling = errors.New("Already performing request.") //nolint:staticcheck // message is part of the client contract

	// ErrMaxTriesExceeded is reported when a session runs out of attempts.
	ErrMaxTriesExceeded = errors.New("maximum polling attempts exceeded")

	// ErrCoordinatorClosed is reported when StartPolling is called after Close.
	ErrCoordinatorClosed = errors.New("coordinator is closed")

	// ErrInvalidSession is reported when StartPolling receives an empty
	// request id, a nil probe or predicate, or an invalid session option.
	ErrInvalidSession = errors.New("invalid polling session")
)

// PollError is a probe failure, optionally carrying an HTTP status code.
type PollError struct {
	// StatusCode is the HTTP status code returned by the polled resource.
	// Zero means the failure happened before a response was received.
	StatusCode int

	// Message is a short human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *PollError) Error() string {
	msg := e.Message
	if msg == "" && e.StatusCode != 0 {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil && msg != e.Err.Error() {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// StatusCodeOf returns the status code carried by the first [PollError] in
// err's chain, or zero.
func StatusCodeOf(err error) int {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// IsFatal reports whether a probe error must end the session instead of being
// retried. Only 400, 401 and 403 are fatal; everything else is transient.
func IsFatal(err error) bool {
	return poller.Refused(StatusCodeOf(err))
}
