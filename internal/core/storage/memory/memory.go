// Package memory provides in-memory implementations of the storage
// contracts. Used by tests and by embedded deployments that do not need
// durability.
package memory

import (
	"context"
	"sort"
	"sync"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
)

// EventStore is an append-only in-memory event log.
type EventStore struct {
	mu     sync.Mutex
	seq    int64
	events []*v1.Event
	seen   map[string]bool // user_id + "\x00" + id
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{seen: make(map[string]bool)}
}

// SaveEvent appends the event, assigning its ingest sequence.
func (s *EventStore) SaveEvent(_ context.Context, event *v1.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.UserID + "\x00" + event.ID
	if s.seen[key] {
		return storage.ErrDuplicate
	}
	s.seen[key] = true
	s.seq++
	event.IngestSeq = s.seq

	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// RetrieveUserEvents returns the user's most recent events, newest first.
func (s *EventStore) RetrieveUserEvents(_ context.Context, userID string, limit int) ([]*v1.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*v1.Event
	for _, evt := range s.events {
		if evt.UserID == userID {
			cp := *evt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestSeq > out[j].IngestSeq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type progressKey struct {
	missionID string
	userID    string
}

// ProgressStore is an in-memory keyed progress store. Reads and writes for
// a key are atomic under one mutex; copies are handed out so callers can
// never mutate stored state in place.
type ProgressStore struct {
	mu      sync.Mutex
	records map[progressKey]progress.Progress
}

// NewProgressStore creates an empty in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{records: make(map[progressKey]progress.Progress)}
}

// Get returns a copy of the progress record, or storage.ErrNotFound.
func (s *ProgressStore) Get(_ context.Context, missionID, userID string) (*progress.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[progressKey{missionID, userID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := p
	return &cp, nil
}

// Upsert creates or replaces the record.
func (s *ProgressStore) Upsert(_ context.Context, p *progress.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[progressKey{p.MissionID, p.UserID}] = *p
	return nil
}

// Delete removes the record; missing records are not an error.
func (s *ProgressStore) Delete(_ context.Context, missionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, progressKey{missionID, userID})
	return nil
}
