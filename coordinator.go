package pollwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jpalmerr/pollwatch/internal/poller"
)

const (
	defaultWaitTime = 2 * time.Second
	defaultMaxTries = 30
)

// Coordinator polls asynchronous jobs until they finish.
//
// Each polling session is keyed by a caller-supplied request id. A session
// calls its [Probe], evaluates the success [Predicate] and either finishes or
// schedules the next attempt after its wait time. Sessions with different ids
// run independently; a single id never has two probe calls outstanding.
//
// The typical lifecycle is:
//
//	c, err := pollwatch.New(pollwatch.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.StartPolling("file-42", probe, pollwatch.DefaultPredicate, pollwatch.Handlers{
//	    OnSuccess: func(resp pollwatch.Response) { ... },
//	    OnError:   func(err error) { ... },
//	})
//
// All methods are safe for concurrent use.
type Coordinator struct {
	waitTime       time.Duration
	maxTries       int
	logger         *slog.Logger
	eventCallbacks []func(Event)
	sem            *semaphore.Weighted
	client         *poller.Client

	// ctx is the parent of every session context; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// wg counts attempt goroutines and armed retry timers.
	wg sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// New creates a [Coordinator] with the given options.
//
// Defaults:
//   - Wait time between attempts: 2 seconds
//   - Max tries per session: 30
//   - Max concurrency: unlimited
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Coordinator, error) {
	cfg := &coordinatorConfig{
		waitTime: defaultWaitTime,
		maxTries: defaultMaxTries,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var sem *semaphore.Weighted
	if cfg.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(cfg.maxConcurrency))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		waitTime:       cfg.waitTime,
		maxTries:       cfg.maxTries,
		logger:         logger,
		eventCallbacks: cfg.eventCallbacks,
		sem:            sem,
		client:         poller.NewClient(),
		ctx:            ctx,
		cancel:         cancel,
		sessions:       make(map[string]*session),
	}, nil
}

// StartPolling begins a polling session for requestID.
//
// The first attempt runs immediately; later attempts run the session's wait
// time after the previous attempt completed. Exactly one of h.OnSuccess or
// h.OnError fires for the session (h.OnError possibly by way of h.OnTimeout).
//
// StartPolling never returns an error. Misuse is reported through h.OnError:
//   - [ErrAlreadyPolling] if requestID already has a running session; the
//     running session is left untouched.
//   - [ErrInvalidSession] for an empty id, nil probe or predicate, or an
//     invalid [SessionOption].
//   - [ErrCoordinatorClosed] after [Coordinator.Close].
//
// A finished session for the same id is discarded and replaced, unless it
// was stopped while its probe was still running: until that probe returns,
// the id is reported as [ErrAlreadyPolling].
func (c *Coordinator) StartPolling(requestID string, probe Probe, test Predicate, h Handlers, opts ...SessionOption) {
	scfg := sessionConfig{waitTime: c.waitTime, maxTries: c.maxTries}
	for _, opt := range opts {
		if err := opt(&scfg); err != nil {
			c.reject(requestID, h, fmt.Errorf("%w: %v", ErrInvalidSession, err))
			return
		}
	}

	switch {
	case requestID == "":
		c.reject(requestID, h, fmt.Errorf("%w: request id is required", ErrInvalidSession))
		return
	case probe == nil:
		c.reject(requestID, h, fmt.Errorf("%w: probe is required", ErrInvalidSession))
		return
	case test == nil:
		c.reject(requestID, h, fmt.Errorf("%w: predicate is required", ErrInvalidSession))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.reject(requestID, h, ErrCoordinatorClosed)
		return
	}
	if prev, ok := c.sessions[requestID]; ok && (prev.state != StateTerminal || prev.probing) {
		c.mu.Unlock()
		c.reject(requestID, h, ErrAlreadyPolling)
		return
	}

	now := time.Now()
	ctx, cancel := context.WithCancel(c.ctx)
	s := &session{
		id:        requestID,
		probe:     probe,
		test:      test,
		handlers:  h,
		waitTime:  scfg.waitTime,
		maxTries:  scfg.maxTries,
		state:     StateIdle,
		tryNumber: 1,
		ctx:       ctx,
		cancel:    cancel,
		startedAt: now,
		updatedAt: now,
	}
	c.sessions[requestID] = s
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("polling started",
		"request_id", requestID,
		"max_tries", s.maxTries,
		"wait_time", s.waitTime.String(),
	)

	go c.attempt(s)
}

// Watch starts polling a [Target] using its HTTP probe, predicate, wait time
// and max tries. Zero target settings fall back to the coordinator defaults
// and [DefaultPredicate].
func (c *Coordinator) Watch(t Target, h Handlers) {
	var opts []SessionOption
	if t.waitTime > 0 {
		opts = append(opts, WithWaitTime(t.waitTime))
	}
	if t.maxTries > 0 {
		opts = append(opts, WithMaxTries(t.maxTries))
	}

	test := t.test
	if test == nil {
		test = DefaultPredicate
	}

	c.StartPolling(t.requestID, t.probeWith(c.client), test, h, opts...)
}

// attempt runs one try of s. It is started by StartPolling and by retry
// timers, each of which holds one wg count.
func (c *Coordinator) attempt(s *session) {
	defer c.wg.Done()

	c.mu.Lock()
	if s.state == StateTerminal {
		c.mu.Unlock()
		return
	}
	s.timer = nil

	if s.tryNumber > s.maxTries {
		err := fmt.Errorf("%w after %d attempts", ErrMaxTriesExceeded, s.maxTries)
		c.finishLocked(s, OutcomeTimeout, err)
		info := s.snapshot()
		c.mu.Unlock()

		c.logger.Warn("polling timed out",
			"request_id", s.id,
			"try", info.TryNumber,
			"max_tries", info.MaxTries,
		)
		c.emit(Event{Type: EventTerminal, Session: info})
		c.timeout(s, err)
		return
	}

	s.state = StateInFlight
	s.probing = true
	s.updatedAt = time.Now()
	started := s.snapshot()
	ctx := s.ctx
	c.mu.Unlock()

	c.logger.Debug("attempt started",
		"request_id", s.id,
		"try", started.TryNumber,
		"max_tries", started.MaxTries,
	)
	c.emit(Event{Type: EventAttemptStarted, Session: started})

	resp, err := c.callProbe(ctx, s)

	c.mu.Lock()
	s.probing = false
	c.mu.Unlock()

	var ok bool
	var testErr error
	if err == nil {
		ok, testErr = c.evaluate(s, resp)
	}

	c.mu.Lock()
	if s.state == StateTerminal {
		// stopped or closed while the probe was running
		c.mu.Unlock()
		return
	}
	s.updatedAt = time.Now()
	s.latency = resp.Latency
	s.lastStatusCode = resp.StatusCode
	if err != nil {
		s.lastStatusCode = StatusCodeOf(err)
	}

	retry := false
	switch {
	case testErr != nil:
		c.finishLocked(s, OutcomeError, testErr)
	case err == nil && ok:
		c.finishLocked(s, OutcomeSuccess, nil)
	case err != nil && IsFatal(err):
		c.finishLocked(s, OutcomeError, err)
	default:
		s.state = StateWaiting
		retry = true
	}
	finished := s.snapshot()
	c.mu.Unlock()

	logAttrs := []any{
		"request_id", s.id,
		"try", finished.TryNumber,
		"max_tries", finished.MaxTries,
		"status_code", finished.LastStatusCode,
		"latency_ms", finished.Latency.Milliseconds(),
	}
	c.emit(Event{Type: EventAttemptFinished, Session: finished})

	if retry {
		if err != nil {
			c.logger.Debug("attempt failed, retrying", append(logAttrs, "error", err.Error())...)
		} else {
			c.logger.Debug("attempt not done, retrying", logAttrs...)
		}
		c.scheduleRetry(s)
		return
	}

	c.emit(Event{Type: EventTerminal, Session: finished})

	switch finished.Outcome {
	case OutcomeSuccess:
		c.logger.Info("polling succeeded", logAttrs...)
		if s.handlers.OnSuccess != nil {
			c.invokeSafe(s.id, "on_success", func() { s.handlers.OnSuccess(resp) })
		}
	default:
		c.logger.Warn("polling failed", append(logAttrs, "error", finished.Err.Error())...)
		c.callOnError(s.id, s.handlers, finished.Err)
	}
}

// scheduleRetry advances s to its next try and arms the retry timer, unless
// the session was finished in the meantime.
func (c *Coordinator) scheduleRetry(s *session) {
	c.mu.Lock()
	if s.state != StateWaiting {
		c.mu.Unlock()
		return
	}
	s.tryNumber++
	s.updatedAt = time.Now()
	info := s.snapshot()
	c.mu.Unlock()

	c.emit(Event{Type: EventRetryScheduled, Session: info})

	c.mu.Lock()
	defer c.mu.Unlock()
	if s.state != StateWaiting {
		return
	}
	c.wg.Add(1)
	s.timer = time.AfterFunc(s.waitTime, func() { c.attempt(s) })
}

// callProbe runs the probe under the concurrency limit. A panicking probe is
// reported as a transient failure.
func (c *Coordinator) callProbe(ctx context.Context, s *session) (resp Response, err error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return Response{}, &PollError{Message: "waiting for probe slot", Err: err}
		}
		defer c.sem.Release(1)
	}

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("probe panicked",
				"panic", r,
				"request_id", s.id,
				"correlation_id", correlationID,
			)
			resp = Response{}
			err = &PollError{Message: "probe panicked (correlation id " + correlationID + ")"}
		}
	}()

	start := time.Now()
	resp, err = s.probe(ctx)
	if resp.Latency == 0 {
		resp.Latency = time.Since(start)
	}
	if resp.CheckedAt.IsZero() {
		resp.CheckedAt = time.Now()
	}
	return resp, err
}

// evaluate runs the success predicate. A panicking predicate ends the
// session with an error, since retrying would panic again.
func (c *Coordinator) evaluate(s *session, resp Response) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("predicate panicked",
				"panic", r,
				"request_id", s.id,
				"correlation_id", correlationID,
			)
			ok = false
			err = &PollError{Message: "predicate panicked (correlation id " + correlationID + ")"}
		}
	}()
	return s.test(resp), nil
}

// timeout runs the exhaustion path: OnTimeout receives a once-only OnError,
// and OnError is called with err if OnTimeout did not report anything.
func (c *Coordinator) timeout(s *session, err error) {
	var once sync.Once
	onError := func(e error) {
		once.Do(func() { c.callOnError(s.id, s.handlers, e) })
	}

	if s.handlers.OnTimeout != nil {
		c.invokeSafe(s.id, "on_timeout", func() { s.handlers.OnTimeout(onError) })
	}
	onError(err)
}

// finishLocked moves s to Terminal and releases its timer and context.
// c.mu must be held.
func (c *Coordinator) finishLocked(s *session, outcome Outcome, err error) {
	s.state = StateTerminal
	s.outcome = outcome
	s.err = err
	s.updatedAt = time.Now()

	if s.timer != nil {
		if s.timer.Stop() {
			// the timer will never fire, so release its wg count here
			c.wg.Done()
		}
		s.timer = nil
	}
	s.cancel()
}

// Stop cancels the session for requestID: its pending timer is stopped and
// an in-flight probe sees its context cancelled. No handlers fire.
//
// Returns false if no running session exists for requestID. Other sessions
// are never affected.
func (c *Coordinator) Stop(requestID string) bool {
	c.mu.Lock()
	s, ok := c.sessions[requestID]
	if !ok || s.state == StateTerminal {
		c.mu.Unlock()
		return false
	}
	c.finishLocked(s, OutcomeCancelled, nil)
	info := s.snapshot()
	c.mu.Unlock()

	c.logger.Info("polling stopped", "request_id", requestID, "try", info.TryNumber)
	c.emit(Event{Type: EventTerminal, Session: info})
	return true
}

// Close cancels every running session and waits for attempt goroutines to
// exit. No handlers fire for cancelled sessions. Session bookkeeping is kept
// so [Coordinator.Session] still reports them as cancelled.
//
// Close is idempotent. After Close, StartPolling reports
// [ErrCoordinatorClosed]. Close must not be called from a handler or event
// callback, since it waits for them to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	var cancelled []SessionInfo
	for _, s := range c.sessions {
		if s.state == StateTerminal {
			continue
		}
		c.finishLocked(s, OutcomeCancelled, nil)
		cancelled = append(cancelled, s.snapshot())
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.client.Close()

	for _, info := range cancelled {
		c.emit(Event{Type: EventTerminal, Session: info})
	}
	c.logger.Debug("coordinator closed", "cancelled_sessions", len(cancelled))
}

// IsDonePolling reports whether the session for requestID is finished.
// It returns true for ids that were never started.
func (c *Coordinator) IsDonePolling(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[requestID]
	return !ok || s.state == StateTerminal
}

// AnyDonePolling is a coarse aggregate: it reports true when no sessions are
// tracked or at least one tracked session is finished.
func (c *Coordinator) AnyDonePolling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sessions) == 0 {
		return true
	}
	for _, s := range c.sessions {
		if s.state == StateTerminal {
			return true
		}
	}
	return false
}

// Session returns a snapshot of the session for requestID.
func (c *Coordinator) Session(requestID string) (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[requestID]
	if !ok {
		return SessionInfo{}, false
	}
	return s.snapshot(), true
}

// Sessions returns snapshots of all tracked sessions, sorted by request id.
func (c *Coordinator) Sessions() []SessionInfo {
	c.mu.Lock()
	out := make([]SessionInfo, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.snapshot())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

// Forget drops the bookkeeping of a finished session. Running sessions, and
// stopped sessions whose probe has not returned yet, are left alone.
func (c *Coordinator) Forget(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[requestID]
	if !ok || s.state != StateTerminal || s.probing {
		return false
	}
	delete(c.sessions, requestID)
	return true
}

// reject reports a StartPolling call that did not create a session.
func (c *Coordinator) reject(requestID string, h Handlers, err error) {
	c.logger.Warn("polling request rejected", "request_id", requestID, "error", err.Error())

	now := time.Now()
	c.emit(Event{
		Type: EventRejected,
		Session: SessionInfo{
			RequestID: requestID,
			State:     StateTerminal,
			Outcome:   OutcomeRejected,
			Err:       err,
			StartedAt: now,
			UpdatedAt: now,
		},
	})
	c.callOnError(requestID, h, err)
}

func (c *Coordinator) callOnError(requestID string, h Handlers, err error) {
	if h.OnError == nil {
		return
	}
	c.invokeSafe(requestID, "on_error", func() { h.OnError(err) })
}

func (c *Coordinator) emit(ev Event) {
	for _, cb := range c.eventCallbacks {
		c.invokeEventSafe(cb, ev)
	}
}

func (c *Coordinator) invokeEventSafe(cb func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event callback panicked",
				"panic", r,
				"request_id", ev.Session.RequestID,
				"event", string(ev.Type),
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	cb(ev)
}

// invokeSafe calls a session handler with panic recovery.
// Panics are logged with a correlation id but do not propagate.
func (c *Coordinator) invokeSafe(requestID, handler string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked",
				"panic", r,
				"request_id", requestID,
				"handler", handler,
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	fn()
}
