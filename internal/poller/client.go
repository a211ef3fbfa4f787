package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// maxBodySize caps the status document read per check.
	maxBodySize = 1 << 20

	// maxDrainSize bounds how much of an oversized body is discarded so the
	// connection can go back to the pool.
	maxDrainSize = 64 << 10

	// DefaultTimeout applies to a [Request] without its own timeout.
	DefaultTimeout = 10 * time.Second
)

// Sessions usually poll many resources on one API host, so the per-host
// pool is sized close to the total.
const (
	poolIdleConns        = 100
	poolIdleConnsPerHost = 20
	poolConnsPerHost     = 20
	poolIdleTimeout      = 60 * time.Second
)

// Failure classifies a status check that did not yield a usable document.
type Failure int

const (
	// FailureNone means the resource answered with a status below 400.
	FailureNone Failure = iota

	// FailureTransport means no complete response was received: the request
	// could not be built, the connection failed, the timeout expired or the
	// body could not be read. Polling again may succeed.
	FailureTransport

	// FailureStatus means the resource answered with a retryable error
	// status, such as 404 while the job is being created or any 5xx.
	FailureStatus

	// FailureRefused means the resource answered 400, 401 or 403. Asking
	// again with the same request cannot succeed.
	FailureRefused
)

// String returns the failure name used in logs.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureStatus:
		return "status"
	case FailureRefused:
		return "refused"
	default:
		return fmt.Sprintf("Failure(%d)", int(f))
	}
}

// Refused reports whether status ends polling outright.
func Refused(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	default:
		return false
	}
}

// Request describes one check of a status resource.
type Request struct {
	// Method defaults to GET.
	Method  string
	URL     string
	Headers map[string]string

	// Timeout bounds the whole check; zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of a single [Client.Check].
type Result struct {
	// StatusCode is zero for transport failures.
	StatusCode int
	Header     http.Header

	// Body is the status document, truncated to 1MB.
	Body []byte

	Latency   time.Duration
	CheckedAt time.Time

	Failure Failure

	// Err is set for FailureTransport only.
	Err error
}

// Retryable reports whether a later check of the same resource can succeed.
func (r Result) Retryable() bool {
	return r.Failure != FailureRefused
}

// Client checks job status resources over pooled keep-alive connections.
// Each [Request] carries its own timeout; the underlying http.Client has none.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client].
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        poolIdleConns,
				MaxIdleConnsPerHost: poolIdleConnsPerHost,
				MaxConnsPerHost:     poolConnsPerHost,
				IdleConnTimeout:     poolIdleTimeout,
			},
		},
	}
}

// Check requests the status resource described by req and classifies the
// answer. Failures are reported through Result.Failure, and transport
// failures also set Result.Err.
func (c *Client) Check(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	transportFailure := func(res Result, err error) Result {
		res.Latency = time.Since(start)
		res.CheckedAt = time.Now()
		res.Failure = FailureTransport
		res.Err = err
		return res
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return transportFailure(Result{}, fmt.Errorf("build status request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(Result{}, fmt.Errorf("status request: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
		_ = resp.Body.Close()
	}()

	res := Result{StatusCode: resp.StatusCode, Header: resp.Header}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return transportFailure(res, fmt.Errorf("read status body: %w", err))
	}
	res.Body = body
	res.Latency = time.Since(start)
	res.CheckedAt = time.Now()

	switch {
	case Refused(resp.StatusCode):
		res.Failure = FailureRefused
	case resp.StatusCode >= http.StatusBadRequest:
		res.Failure = FailureStatus
	}
	return res
}

// Close drops idle pooled connections. The client stays usable, and Close is
// safe on a nil client.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
