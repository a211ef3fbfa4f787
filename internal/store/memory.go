package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Records are keyed by request id, with new records replacing previous
// values. Records are lost when the process exits; use [RedisStore] to keep
// them across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
	hub     *hub
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]SessionRecord),
		hub:     newHub(),
	}
}

// Update stores rec and notifies all subscribers. It only fails after Close.
func (m *MemoryStore) Update(_ context.Context, rec SessionRecord) error {
	if m.hub.isClosed() {
		return ErrClosed
	}

	rec.Labels = copyLabels(rec.Labels)

	m.mu.Lock()
	m.records[rec.RequestID] = rec
	m.mu.Unlock()

	m.hub.publish(rec)
	return nil
}

// Get returns the record for requestID.
func (m *MemoryStore) Get(_ context.Context, requestID string) (SessionRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[requestID]
	if ok {
		rec.Labels = copyLabels(rec.Labels)
	}
	return rec, ok, nil
}

// GetAll returns a snapshot of all records sorted by request id.
func (m *MemoryStore) GetAll(_ context.Context) ([]SessionRecord, error) {
	m.mu.RLock()
	out := make([]SessionRecord, 0, len(m.records))
	for _, rec := range m.records {
		rec.Labels = copyLabels(rec.Labels)
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

// Subscribe creates a new subscription. The channel has a buffer of 100
// records; when it fills, new updates are dropped for this subscriber.
func (m *MemoryStore) Subscribe() <-chan SessionRecord {
	return m.hub.subscribe()
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan SessionRecord) {
	m.hub.unsubscribe(ch)
}

// Close closes all subscriptions. Records stay readable.
func (m *MemoryStore) Close() error {
	m.hub.close()
	return nil
}

func sortRecords(recs []SessionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].RequestID < recs[j].RequestID
	})
}

func copyLabels(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
