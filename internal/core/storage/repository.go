// Package storage defines the persistence contracts the engine depends on:
// an append-only event store and a keyed progress store with
// read-modify-write atomicity per (mission, user) pair.
package storage

import (
	"context"
	"errors"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
)

// ErrDuplicate is returned when an event with the same (user_id, id)
// already exists.
var ErrDuplicate = errors.New("event already exists")

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// EventStore persists the event stream and serves bounded history reads.
type EventStore interface {
	SaveEvent(ctx context.Context, event *v1.Event) error

	// RetrieveUserEvents returns the user's most recent events, newest
	// first, bounded by limit.
	RetrieveUserEvents(ctx context.Context, userID string, limit int) ([]*v1.Event, error)
}

// ProgressStore persists per-(mission, user) progress records.
//
// Contract: Get followed by Upsert for the same key must not lose updates
// when two events for the same user land concurrently. Implementations
// provide per-key atomicity (mutex, row lock); the dispatcher additionally
// serializes events per (user, mission) partition.
type ProgressStore interface {
	// Get returns the progress record, or ErrNotFound.
	Get(ctx context.Context, missionID, userID string) (*progress.Progress, error)

	// Upsert creates or replaces the record.
	Upsert(ctx context.Context, p *progress.Progress) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, missionID, userID string) error
}
