package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pollwatch"
	"github.com/jpalmerr/pollwatch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePoller records Watch and Stop calls. Ids in running are rejected
// with ErrAlreadyPolling.
type fakePoller struct {
	mu      sync.Mutex
	watched []pollwatch.Target
	running map[string]bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{running: make(map[string]bool)}
}

func (f *fakePoller) Watch(t pollwatch.Target, h pollwatch.Handlers) {
	f.mu.Lock()
	if f.running[t.RequestID()] {
		f.mu.Unlock()
		h.OnError(pollwatch.ErrAlreadyPolling)
		return
	}
	f.running[t.RequestID()] = true
	f.watched = append(f.watched, t)
	f.mu.Unlock()
}

func (f *fakePoller) Stop(requestID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[requestID] {
		return false
	}
	delete(f.running, requestID)
	return true
}

func newTestServer(t *testing.T) (*Server, *store.MemoryStore, *fakePoller) {
	t.Helper()
	ms := store.NewMemoryStore()
	fp := newFakePoller()
	srv := NewServer(ms, fp, NewRecorder(ms, testLogger()), 0, testLogger())
	return srv, ms, fp
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- REST API ---

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleList(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	ctx := context.Background()
	_ = ms.Update(ctx, store.SessionRecord{RequestID: "b", State: "waiting"})
	_ = ms.Update(ctx, store.SessionRecord{RequestID: "a", State: "terminal", Outcome: "success"})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got []store.SessionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 || got[0].RequestID != "a" || got[1].RequestID != "b" {
		t.Errorf("records = %+v, want a, b", got)
	}
}

func TestHandleList_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/sessions", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestHandleGet(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	_ = ms.Update(context.Background(), store.SessionRecord{RequestID: "files/42", State: "waiting", TryNumber: 3})

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"found with slash in id", "/api/sessions/files/42", http.StatusOK},
		{"missing", "/api/sessions/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodGet, tt.path, "")
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleCreate(t *testing.T) {
	srv, _, fp := newTestServer(t)

	body := `{
		"request_id": "file-42",
		"url": "https://tdp.example.gov/v1/data_files/42/summary",
		"headers": {"Authorization": "Bearer x"},
		"labels": {"stt": "AK"},
		"success_field": "summary.status",
		"wait_time": "5s",
		"max_tries": 10
	}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp watchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.RequestID != "file-42" {
		t.Errorf("request_id = %q, want file-42", resp.RequestID)
	}

	if len(fp.watched) != 1 {
		t.Fatalf("Watch called %d times, want 1", len(fp.watched))
	}
	target := fp.watched[0]
	if target.WaitTime() != 5*time.Second || target.MaxTries() != 10 {
		t.Errorf("target wait/tries = %v/%d", target.WaitTime(), target.MaxTries())
	}
	if target.Labels()["stt"] != "AK" || target.Headers()["Authorization"] != "Bearer x" {
		t.Errorf("target labels/headers = %v/%v", target.Labels(), target.Headers())
	}

	pred := target.Predicate()
	if pred(pollwatch.Response{Body: []byte(`{"summary":{"status":"Pending"}}`)}) {
		t.Error("predicate should be false while Pending")
	}
	if !pred(pollwatch.Response{Body: []byte(`{"summary":{"status":"Accepted"}}`)}) {
		t.Error("predicate should be true once Accepted")
	}
}

func TestHandleCreate_GeneratesID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", `{"url":"http://localhost/status"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp watchResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.RequestID) != 36 {
		t.Errorf("request_id = %q, want generated uuid", resp.RequestID)
	}
}

func TestHandleCreate_AlreadyPolling(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := `{"request_id":"x","url":"http://localhost/status"}`

	if rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want 202", rec.Code)
	}

	rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Already performing request.") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleCreate_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing url", `{"request_id":"x"}`},
		{"bad scheme", `{"url":"localhost/status"}`},
		{"bad method", `{"url":"http://localhost","method":"PATCH"}`},
		{"bad wait", `{"url":"http://localhost","wait_time":"soon"}`},
		{"negative tries", `{"url":"http://localhost","max_tries":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, fp := newTestServer(t)
			rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(fp.watched) != 0 {
				t.Error("Watch should not be called")
			}
		})
	}
}

func TestHandleCreate_TooLarge(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := `{"url":"http://localhost","request_id":"` + strings.Repeat("x", maxRequestBody) + `"}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandleStop(t *testing.T) {
	srv, _, fp := newTestServer(t)
	fp.running["x"] = true

	if rec := do(t, srv.Handler(), http.MethodDelete, "/api/sessions/x", ""); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec := do(t, srv.Handler(), http.MethodDelete, "/api/sessions/x", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second stop status = %d, want 404", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodPut, "/api/sessions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// TestServer_EndToEnd drives a real coordinator through the API against a
// status resource that reports Pending twice before Accepted.
func TestServer_EndToEnd(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := "Pending"
		if calls.Add(1) >= 3 {
			status = "Accepted"
		}
		fmt.Fprintf(w, `{"summary":{"status":%q}}`, status)
	}))
	defer api.Close()

	ms := store.NewMemoryStore()
	recorder := NewRecorder(ms, testLogger())
	c, err := pollwatch.New(
		pollwatch.WithDefaultWaitTime(10*time.Millisecond),
		pollwatch.WithLogger(testLogger()),
		pollwatch.WithEventCallback(recorder.Record),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	srv := NewServer(ms, c, recorder, 0, testLogger())
	body := `{"request_id":"file-7","url":"` + api.URL + `","labels":{"stt":"AK"}}`
	if rec := do(t, srv.Handler(), http.MethodPost, "/api/sessions", body); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var got store.SessionRecord
	deadline := time.Now().Add(2 * time.Second)
	for !got.Done() {
		if time.Now().After(deadline) {
			t.Fatalf("session did not finish, last record %+v", got)
		}
		time.Sleep(5 * time.Millisecond)

		rec := do(t, srv.Handler(), http.MethodGet, "/api/sessions/file-7", "")
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
		}
	}

	if got.Outcome != "success" || got.TryNumber != 3 || got.StatusCode != http.StatusOK {
		t.Errorf("record = %+v, want success on try 3", got)
	}
	if got.URL != api.URL || got.Labels["stt"] != "AK" {
		t.Errorf("record url/labels = %q/%v", got.URL, got.Labels)
	}
}

// TestServer_ConflictKeepsRunningTarget verifies that a POST rejected with
// 409 does not change the URL and labels recorded for the running session.
func TestServer_ConflictKeepsRunningTarget(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"summary":{"status":"Pending"}}`)
	}))
	defer api.Close()

	ms := store.NewMemoryStore()
	recorder := NewRecorder(ms, testLogger())
	c, err := pollwatch.New(
		pollwatch.WithDefaultWaitTime(5*time.Millisecond),
		pollwatch.WithDefaultMaxTries(1000),
		pollwatch.WithLogger(testLogger()),
		pollwatch.WithEventCallback(recorder.Record),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	srv := NewServer(ms, c, recorder, 0, testLogger())
	h := srv.Handler()

	body := `{"request_id":"x","url":"` + api.URL + `","labels":{"stt":"AK"}}`
	if rec := do(t, h, http.MethodPost, "/api/sessions", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first POST status = %d, want 202", rec.Code)
	}
	other := `{"request_id":"x","url":"http://other.invalid/status","labels":{"stt":"WY"}}`
	if rec := do(t, h, http.MethodPost, "/api/sessions", other); rec.Code != http.StatusConflict {
		t.Fatalf("second POST status = %d, want 409", rec.Code)
	}

	// wait for records written after the rejected POST
	var got store.SessionRecord
	deadline := time.Now().Add(2 * time.Second)
	for got.TryNumber < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("session did not progress, last record %+v", got)
		}
		time.Sleep(5 * time.Millisecond)
		got, _, _ = ms.Get(context.Background(), "x")
	}

	if got.URL != api.URL || got.Labels["stt"] != "AK" {
		t.Errorf("record url/labels = %q/%v, want %q/AK", got.URL, got.Labels, api.URL)
	}
}

// --- Middleware ---

func TestLoggingMiddleware_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := LoggingMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/x", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "http request panic: GET /x") {
		t.Errorf("log = %q, want panic entry", buf.String())
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := LoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	do(t, h, http.MethodGet, "/tea", "")
	if !strings.Contains(buf.String(), "status=418") {
		t.Errorf("log = %q, want status=418", buf.String())
	}
}

// --- Recorder ---

func TestRecorder_SkipsRejected(t *testing.T) {
	ms := store.NewMemoryStore()
	r := NewRecorder(ms, testLogger())

	r.Record(pollwatch.Event{
		Type:    pollwatch.EventRejected,
		Session: pollwatch.SessionInfo{RequestID: "x", Outcome: pollwatch.OutcomeRejected},
	})

	if _, ok, _ := ms.Get(context.Background(), "x"); ok {
		t.Error("rejected event should not be recorded")
	}
}

// TestRecorder_IgnoresLateEvents verifies that an attempt event delivered
// after the session's terminal event does not reopen the record.
func TestRecorder_IgnoresLateEvents(t *testing.T) {
	ms := store.NewMemoryStore()
	r := NewRecorder(ms, testLogger())
	started := time.Now()

	r.Record(pollwatch.Event{
		Type: pollwatch.EventTerminal,
		Session: pollwatch.SessionInfo{
			RequestID: "x", State: pollwatch.StateTerminal, Outcome: pollwatch.OutcomeCancelled, StartedAt: started,
		},
	})
	r.Record(pollwatch.Event{
		Type:    pollwatch.EventAttemptStarted,
		Session: pollwatch.SessionInfo{RequestID: "x", State: pollwatch.StateInFlight, StartedAt: started},
	})

	got, _, _ := ms.Get(context.Background(), "x")
	if got.Outcome != "cancelled" {
		t.Errorf("Outcome = %q, want cancelled", got.Outcome)
	}

	// a new run of the same id is recorded again
	r.Record(pollwatch.Event{
		Type:    pollwatch.EventAttemptStarted,
		Session: pollwatch.SessionInfo{RequestID: "x", State: pollwatch.StateInFlight, StartedAt: started.Add(time.Second)},
	})
	got, _, _ = ms.Get(context.Background(), "x")
	if got.State != "in_flight" {
		t.Errorf("State = %q, want in_flight", got.State)
	}
}

// TestRecorder_TrackBindsNextSession verifies that a tracked target only
// applies to a session started after it, and that untrack restores the
// previous pending target.
func TestRecorder_TrackBindsNextSession(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	r := NewRecorder(ms, testLogger())

	first, err := pollwatch.NewTarget("x", "http://first.invalid/")
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	second, err := pollwatch.NewTarget("x", "http://second.invalid/")
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	started := time.Now()
	attempt := func(at time.Time) {
		r.Record(pollwatch.Event{
			Type:    pollwatch.EventAttemptStarted,
			Session: pollwatch.SessionInfo{RequestID: "x", State: pollwatch.StateInFlight, StartedAt: at},
		})
	}

	r.Track(first)
	attempt(started)

	untrack := r.Track(second)
	attempt(started)
	got, _, _ := ms.Get(ctx, "x")
	if got.URL != "http://first.invalid/" {
		t.Errorf("running session URL = %q, want first", got.URL)
	}

	untrack()
	attempt(started.Add(time.Second))
	got, _, _ = ms.Get(ctx, "x")
	if got.URL != "http://first.invalid/" {
		t.Errorf("URL after untrack = %q, want first", got.URL)
	}

	r.Track(second)
	attempt(started.Add(2 * time.Second))
	got, _, _ = ms.Get(ctx, "x")
	if got.URL != "http://second.invalid/" {
		t.Errorf("restarted session URL = %q, want second", got.URL)
	}
}

func TestToRecord(t *testing.T) {
	rec := ToRecord(pollwatch.SessionInfo{
		RequestID:      "x",
		State:          pollwatch.StateTerminal,
		Outcome:        pollwatch.OutcomeError,
		TryNumber:      2,
		MaxTries:       30,
		Err:            &pollwatch.PollError{StatusCode: 403},
		LastStatusCode: 403,
		Latency:        250 * time.Millisecond,
	})

	if rec.State != "terminal" || rec.Outcome != "error" || rec.StatusCode != 403 || rec.LatencyMs != 250 {
		t.Errorf("ToRecord() = %+v", rec)
	}
	if rec.Error == nil || *rec.Error != "Forbidden (status 403)" {
		t.Errorf("ToRecord().Error = %v", rec.Error)
	}
}

// --- SSE ---

func TestHandleSSE_BasicFlow(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	_ = ms.Update(context.Background(), store.SessionRecord{RequestID: "file-1", State: "waiting"})
	_ = ms.Update(context.Background(), store.SessionRecord{RequestID: "file-2", State: "terminal"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "file-1") || !strings.Contains(body, "file-2") {
		t.Errorf("response should contain initial records, got: %s", body)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	srv, ms, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	_ = ms.Update(context.Background(), store.SessionRecord{RequestID: "file-new", State: "in_flight"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if body := rec.Body.String(); !strings.Contains(body, "file-new") {
		t.Errorf("response should contain streamed update, got: %s", body)
	}
}

func TestHandleSSE_StoreClosed(t *testing.T) {
	srv, ms, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	_ = ms.Close()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after store close")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv, _, _ := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := &nonFlushWriter{header: make(http.Header)}
	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestHandleSSE_Headers(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}
	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

// TestHandleSSE_ThroughMiddleware verifies that the logging wrapper still
// supports flushing.
func TestHandleSSE_ThroughMiddleware(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	_ = ms.Update(context.Background(), store.SessionRecord{RequestID: "file-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "data: ") {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
}
