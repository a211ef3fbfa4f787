package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jpalmerr/pollwatch"
	"github.com/jpalmerr/pollwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// maxRequestBody bounds POST /api/sessions payloads.
	maxRequestBody = 64 << 10
)

// Poller is the part of [pollwatch.Coordinator] the server drives.
type Poller interface {
	Watch(t pollwatch.Target, h pollwatch.Handlers)
	Stop(requestID string) bool
}

// Server handles HTTP requests for the session API.
//
// Routes:
//   - GET /api/sessions: all stored session records
//   - POST /api/sessions: start polling a new target
//   - GET /api/sessions/{id}: one session record
//   - DELETE /api/sessions/{id}: stop a running session
//   - GET /api/sse: Server-Sent Events stream of record updates
//   - GET /healthz: liveness
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	poller     Poller
	recorder   *Recorder
	port       int
	httpServer *http.Server
	logger     *slog.Logger

	createMu sync.Mutex
}

// NewServer creates a new HTTP [Server]. Targets started through the API are
// tracked with rec so their records carry URL and labels.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, p Poller, rec *Recorder, port int, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		poller:   p,
		recorder: rec,
		port:     port,
		logger:   logger,
	}
}

// Handler returns the routed and logged HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id:.+}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id:.+}", s.handleStop).Methods(http.MethodDelete)
	r.HandleFunc("/api/sse", s.handleSSE).Methods(http.MethodGet)

	return LoggingMiddleware(s.logger, r)
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok\n")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.GetAll(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, ok, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load session", "request_id", id, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.poller.Stop(id) {
		writeError(w, http.StatusNotFound, "no running session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// watchRequest is the body of POST /api/sessions.
type watchRequest struct {
	RequestID     string            `json:"request_id"`
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	Labels        map[string]string `json:"labels"`
	SuccessField  string            `json:"success_field"`
	PendingValues []string          `json:"pending_values"`
	WaitTime      string            `json:"wait_time"`
	MaxTries      int               `json:"max_tries"`
}

type watchResponse struct {
	RequestID string `json:"request_id"`
}

func (req watchRequest) target() (pollwatch.Target, error) {
	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	var opts []pollwatch.TargetOption
	if req.Method != "" {
		opts = append(opts, pollwatch.WithMethod(req.Method))
	}
	if len(req.Headers) > 0 {
		opts = append(opts, pollwatch.WithHeaders(flatten(req.Headers)...))
	}
	if len(req.Labels) > 0 {
		opts = append(opts, pollwatch.WithLabels(flatten(req.Labels)...))
	}
	if req.SuccessField != "" {
		pending := req.PendingValues
		if len(pending) == 0 {
			pending = []string{"Pending"}
		}
		opts = append(opts, pollwatch.WithPredicate(pollwatch.FieldNotIn(req.SuccessField, pending...)))
	}
	if req.WaitTime != "" {
		d, err := time.ParseDuration(req.WaitTime)
		if err != nil {
			return pollwatch.Target{}, fmt.Errorf("invalid wait_time: %w", err)
		}
		opts = append(opts, pollwatch.WithTargetWaitTime(d))
	}
	if req.MaxTries != 0 {
		opts = append(opts, pollwatch.WithTargetMaxTries(req.MaxTries))
	}

	return pollwatch.NewTarget(id, req.URL, opts...)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) > maxRequestBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var req watchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	t, err := req.target()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// rejections are reported synchronously, before Watch returns
	var rejected error
	id := t.RequestID()
	h := pollwatch.Handlers{
		OnSuccess: func(resp pollwatch.Response) {
			s.logger.Info("session succeeded", "request_id", id, "status_code", resp.StatusCode)
		},
		OnError: func(err error) {
			if isRejection(err) {
				rejected = err
				return
			}
			s.logger.Info("session failed", "request_id", id, "error", err.Error())
		},
	}

	// Track and Watch pair up under createMu so a rejected call can undo
	// its Track before another request tracks the same id.
	s.createMu.Lock()
	untrack := s.recorder.Track(t)
	s.poller.Watch(t, h)
	if rejected != nil {
		untrack()
	}
	s.createMu.Unlock()

	switch {
	case rejected == nil:
		writeJSON(w, http.StatusAccepted, watchResponse{RequestID: id})
	case errors.Is(rejected, pollwatch.ErrAlreadyPolling):
		writeError(w, http.StatusConflict, rejected.Error())
	case errors.Is(rejected, pollwatch.ErrCoordinatorClosed):
		writeError(w, http.StatusServiceUnavailable, rejected.Error())
	default:
		writeError(w, http.StatusBadRequest, rejected.Error())
	}
}

func isRejection(err error) bool {
	return errors.Is(err, pollwatch.ErrAlreadyPolling) ||
		errors.Is(err, pollwatch.ErrCoordinatorClosed) ||
		errors.Is(err, pollwatch.ErrInvalidSession)
}

// handleSSE streams record updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// some ResponseWriter implementations cannot set deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before the snapshot so no update is missed in between
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	records, err := s.store.GetAll(r.Context())
	if err != nil {
		s.logger.Error("failed to load sessions for sse", "error", err.Error())
		return
	}
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func flatten(m map[string]string) []string {
	out := make([]string, 0, 2*len(m))
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}
