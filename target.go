package pollwatch

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/jpalmerr/pollwatch/internal/poller"
)

const defaultTargetTimeout = poller.DefaultTimeout

// defaultClient backs [Target.Probe] for probes built outside a Coordinator.
var defaultClient = poller.NewClient()

// Target is an HTTP status resource to poll until its job finishes, for
// example the summary endpoint of an uploaded data file.
//
// Target is immutable after creation via [NewTarget]. All fields are private
// with getter methods that return copies of mutable data (maps).
//
// Targets are configured using [TargetOption] functions such as
// [WithLabels], [WithHeaders], [WithTimeout], [WithMethod], [WithPredicate],
// [WithTargetWaitTime] and [WithTargetMaxTries].
type Target struct {
	requestID string
	url       string
	method    string
	labels    map[string]string
	headers   map[string]string
	timeout   time.Duration
	test      Predicate
	waitTime  time.Duration
	maxTries  int
}

// RequestID returns the id the target is polled under.
func (t Target) RequestID() string {
	return t.requestID
}

// URL returns the status URL.
func (t Target) URL() string {
	return t.url
}

// Method returns the HTTP method. Empty means GET.
func (t Target) Method() string {
	return t.method
}

// Labels returns a copy of the target's labels. Returns nil if none are set.
func (t Target) Labels() map[string]string {
	return copyMap(t.labels)
}

// Headers returns a copy of the custom HTTP headers sent with every probe.
func (t Target) Headers() map[string]string {
	return copyMap(t.headers)
}

// Timeout returns the per-request timeout. Defaults to 10 seconds.
func (t Target) Timeout() time.Duration {
	return t.timeout
}

// Predicate returns the success test, or nil if [DefaultPredicate] applies.
func (t Target) Predicate() Predicate {
	return t.test
}

// WaitTime returns the delay between attempts, or 0 for the coordinator
// default.
func (t Target) WaitTime() time.Duration {
	return t.waitTime
}

// MaxTries returns the attempt ceiling, or 0 for the coordinator default.
func (t Target) MaxTries() int {
	return t.maxTries
}

// NewTarget creates a [Target] polled under requestID.
//
// The rawURL parameter must be a valid URL with a scheme (http:// or https://).
//
// Returns an error if requestID is empty, the URL is invalid, or an option
// fails.
//
// Example:
//
//	t, err := pollwatch.NewTarget("file-42", "https://tdp.example.gov/v1/data_files/42/",
//	    pollwatch.WithHeaders("Authorization", "Bearer "+token),
//	    pollwatch.WithPredicate(pollwatch.StatusLeaves("Pending")),
//	)
func NewTarget(requestID, rawURL string, opts ...TargetOption) (Target, error) {
	if requestID == "" {
		return Target{}, errors.New("target request id cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme == "" {
		return Target{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &targetConfig{
		labels:  make(map[string]string),
		headers: make(map[string]string),
		timeout: defaultTargetTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Target{}, err
		}
	}

	return Target{
		requestID: requestID,
		url:       rawURL,
		method:    cfg.method,
		labels:    cfg.labels,
		headers:   cfg.headers,
		timeout:   cfg.timeout,
		test:      cfg.test,
		waitTime:  cfg.waitTime,
		maxTries:  cfg.maxTries,
	}, nil
}

// Probe returns an HTTP [Probe] for the target.
//
// A response with status 400 or above is returned together with a
// [*PollError] carrying the status code, so 400, 401 and 403 end the session
// and other failures are retried. Transport failures produce a PollError
// without a status code.
func (t Target) Probe() Probe {
	return t.probeWith(defaultClient)
}

func (t Target) probeWith(client *poller.Client) Probe {
	headers := copyMap(t.headers)
	timeout := t.timeout
	if timeout <= 0 {
		timeout = defaultTargetTimeout
	}

	req := poller.Request{
		Method:  t.method,
		URL:     t.url,
		Headers: headers,
		Timeout: timeout,
	}

	return func(ctx context.Context) (Response, error) {
		r := client.Check(ctx, req)

		resp := Response{
			StatusCode: r.StatusCode,
			Body:       r.Body,
			Header:     r.Header,
			Latency:    r.Latency,
			CheckedAt:  r.CheckedAt,
		}

		switch r.Failure {
		case poller.FailureNone:
			return resp, nil
		case poller.FailureTransport:
			return resp, &PollError{Message: "status request failed", Err: r.Err}
		default:
			return resp, &PollError{StatusCode: r.StatusCode}
		}
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
