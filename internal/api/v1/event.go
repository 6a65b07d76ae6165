package v1

import (
	"fmt"
	"time"
)

// Event is the atomic unit of the system: one behavioral fact about one user.
// The envelope fields identify and order the event; Data carries the
// domain-specific payload (bet amount, game id, deposit method, ...).
type Event struct {
	// ID is the unique identifier provided by the client. It MUST be unique
	// per UserID; the event store enforces this, the engine itself does not
	// deduplicate.
	ID string `json:"id"`

	// UserID identifies the player that generated this event.
	UserID string `json:"user_id"`

	// Type is the domain event name, e.g. "deposit_made", "sportsbook_bet_placed".
	// Triggers match on this key.
	Type string `json:"type"`

	// Module is the vertical that produced the event (casino, sportsbook,
	// deposits, igaming). Informational; not required for evaluation.
	Module string `json:"module,omitempty"`

	// Timestamp is when the event happened in the real world (client clock).
	// All window arithmetic uses this, never IngestedAt.
	Timestamp time.Time `json:"timestamp"`

	// IngestedAt is when the service received the event. Set on ingestion,
	// never by the client.
	IngestedAt time.Time `json:"ingested_at"`

	// IngestSeq is a monotonic sequence assigned by the event store
	// (BIGSERIAL). Provides strict total ordering for history pagination.
	IngestSeq int64 `json:"-"`

	// Data is the domain payload. Dynamic JSON; condition fields resolve
	// into it with dot-path lookup (e.g. "bet.sport").
	Data map[string]interface{} `json:"data"`
}

// Validate ensures the event has all required envelope attributes.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if e.Data == nil {
		return fmt.Errorf("data is required")
	}
	return nil
}
