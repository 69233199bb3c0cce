package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/mozart/review"
)

// MemStore is an in-memory review.OutcomeStore. Records are kept in their
// encoded form so callers never share slices with the store.
//
// Data is lost when the process exits.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]memEntry
	closed  bool
}

type memEntry struct {
	data string
	rec  review.Record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]memEntry)}
}

// SaveOutcome stores rec, replacing any record with the same session id.
func (m *MemStore) SaveOutcome(_ context.Context, rec review.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.records[rec.SessionID] = memEntry{data: data, rec: rec}
	return nil
}

// LoadOutcome returns a copy of the stored record.
func (m *MemStore) LoadOutcome(_ context.Context, sessionID string) (review.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return review.Record{}, ErrStoreClosed
	}
	e, ok := m.records[sessionID]
	if !ok {
		return review.Record{}, review.ErrRecordNotFound
	}
	return decodeRecord(e.data)
}

// ListOutcomes returns records most recently completed first.
func (m *MemStore) ListOutcomes(_ context.Context, limit int) ([]review.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := make([]memEntry, 0, len(m.records))
	for _, e := range m.records {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].rec, entries[j].rec
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.After(b.CompletedAt)
		}
		return a.SessionID > b.SessionID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]review.Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeRecord(e.data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close marks the store closed. Calling Close twice is a no-op.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
