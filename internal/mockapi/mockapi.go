// Package mockapi serves a fake data file status API for demos and manual
// testing of pollwatch.
//
// Each file id reports "Pending" for a while after it is first seen, then
// settles on a final status. Requests for file ids starting with "403"
// are refused with 403 Forbidden.
package mockapi

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// finalStatuses are the statuses a file can settle on.
var finalStatuses = []string{"Accepted", "Accepted with Errors", "Partially Accepted with Errors", "Rejected"}

type fileState struct {
	firstSeen  time.Time
	pendingFor time.Duration
	final      string
}

// API is the fake status API.
type API struct {
	logger     *slog.Logger
	minPending time.Duration
	maxPending time.Duration

	mu    sync.Mutex
	files map[string]*fileState
}

// New creates an [API] whose files stay Pending for a random duration in
// [minPending, maxPending].
func New(logger *slog.Logger, minPending, maxPending time.Duration) *API {
	if maxPending < minPending {
		maxPending = minPending
	}
	return &API{
		logger:     logger,
		minPending: minPending,
		maxPending: maxPending,
		files:      make(map[string]*fileState),
	}
}

// Handler returns the routed handler serving
// GET /v1/data_files/{id}/summary/.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/data_files/{id}/summary/", a.handleSummary).Methods(http.MethodGet)
	return r
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if strings.HasPrefix(id, "403") {
		http.Error(w, `{"detail":"You do not have permission to perform this action."}`, http.StatusForbidden)
		return
	}

	status := a.status(id, time.Now())

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"id": id,
		"summary": map[string]string{
			"status": status,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Error("failed to write response", "error", err)
	}
}

// status returns the status of file id at now, registering it on first use.
func (a *API) status(id string, now time.Time) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.files[id]
	if !ok {
		pending := a.minPending
		if spread := a.maxPending - a.minPending; spread > 0 {
			pending += time.Duration(rand.Int63n(int64(spread)))
		}
		st = &fileState{
			firstSeen:  now,
			pendingFor: pending,
			final:      finalStatuses[rand.Intn(len(finalStatuses))],
		}
		a.files[id] = st
		a.logger.Info("file registered", "file", id, "pending_for", pending.String(), "final", st.final)
	}

	if now.Sub(st.firstSeen) < st.pendingFor {
		return "Pending"
	}
	return st.final
}
