package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/pollwatch"
	"github.com/jpalmerr/pollwatch/internal/store"
)

const recordTimeout = 2 * time.Second

// Recorder mirrors coordinator events into a [store.Store]. Register
// [Recorder.Record] with [pollwatch.WithEventCallback], and [Recorder.Track]
// each target before watching it so its URL and labels are stored too.
type Recorder struct {
	store  store.Store
	logger *slog.Logger

	mu sync.Mutex

	// pending holds targets tracked for a session that has not emitted an
	// event yet. The first event with a new start time binds it.
	pending map[string]pollwatch.Target
	bound   map[string]boundTarget

	// finished holds the start time of each id's last terminal record.
	// Events are emitted outside the coordinator lock, so a late
	// attempt event can arrive after Stop's terminal one.
	finished map[string]time.Time
}

// boundTarget is the target owning the session started at startedAt.
type boundTarget struct {
	target    pollwatch.Target
	startedAt time.Time
}

// NewRecorder creates a [Recorder] writing to st.
func NewRecorder(st store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:    st,
		logger:   logger,
		pending:  make(map[string]pollwatch.Target),
		bound:    make(map[string]boundTarget),
		finished: make(map[string]time.Time),
	}
}

// Track remembers t so records of the next session for its request id carry
// its URL and labels. A session already running under that id keeps its own
// target. The returned func undoes the call, for a Watch that was rejected.
func (r *Recorder) Track(t pollwatch.Target) (untrack func()) {
	id := t.RequestID()

	r.mu.Lock()
	prev, hadPrev := r.pending[id]
	r.pending[id] = t
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if hadPrev {
			r.pending[id] = prev
		} else {
			delete(r.pending, id)
		}
	}
}

// Record stores the session snapshot carried by ev. Rejected calls are
// skipped: they never own the record of a running session.
func (r *Recorder) Record(ev pollwatch.Event) {
	if ev.Type == pollwatch.EventRejected {
		return
	}

	id := ev.Session.RequestID
	r.mu.Lock()
	if started, ok := r.finished[id]; ok && started.Equal(ev.Session.StartedAt) {
		r.mu.Unlock()
		return
	}
	if ev.Session.Done() {
		r.finished[id] = ev.Session.StartedAt
	}
	b, ok := r.bound[id]
	if !ok || !b.startedAt.Equal(ev.Session.StartedAt) {
		if t, tracked := r.pending[id]; tracked {
			b = boundTarget{target: t, startedAt: ev.Session.StartedAt}
			r.bound[id] = b
			delete(r.pending, id)
			ok = true
		}
	}
	r.mu.Unlock()

	rec := ToRecord(ev.Session)
	if ok {
		rec.URL = b.target.URL()
		rec.Labels = b.target.Labels()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.Update(ctx, rec); err != nil {
		r.logger.Warn("failed to record session",
			"request_id", rec.RequestID,
			"event", string(ev.Type),
			"error", err.Error(),
		)
	}
}

// ToRecord converts a session snapshot to its stored form.
func ToRecord(si pollwatch.SessionInfo) store.SessionRecord {
	rec := store.SessionRecord{
		RequestID:  si.RequestID,
		State:      si.State.String(),
		Outcome:    si.Outcome.String(),
		TryNumber:  si.TryNumber,
		MaxTries:   si.MaxTries,
		StatusCode: si.LastStatusCode,
		LatencyMs:  si.Latency.Milliseconds(),
		StartedAt:  si.StartedAt,
		UpdatedAt:  si.UpdatedAt,
	}
	if si.Err != nil {
		msg := si.Err.Error()
		rec.Error = &msg
	}
	return rec
}
