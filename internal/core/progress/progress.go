// Package progress defines the per-(mission, user) progress record and the
// update events the engine emits when a record changes.
package progress

import (
	"time"

	"github.com/shopspring/decimal"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
)

// State is the lifecycle position of a progress record.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	// StateLocked is terminal: claim count reached max_claims. Only an
	// explicit reset (which deletes the record) leaves it.
	StateLocked State = "LOCKED"
)

// Progress tracks one user's standing against one mission. Records are
// created lazily on the first matching event and deleted only by an
// explicit reset.
type Progress struct {
	MissionID       string          `json:"mission_id"`
	UserID          string          `json:"user_id"`
	State           State           `json:"state"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	TargetValue     decimal.Decimal `json:"target_value"`
	ClaimCount      int             `json:"claim_count"`
	StreakCount     int             `json:"streak_count,omitempty"`
	LastEventAt     *time.Time      `json:"last_event_at,omitempty"`
	LastCompletedAt *time.Time      `json:"last_completed_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Ratio returns completion as a fraction in [0, 1].
func (p *Progress) Ratio() float64 {
	if p.State == StateCompleted || p.State == StateLocked {
		return 1
	}
	if p.TargetValue.IsZero() {
		return 0
	}
	r, _ := p.CurrentValue.Div(p.TargetValue).Float64()
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Update is emitted to subscribers whenever an event changes a progress
// record.
type Update struct {
	MissionID     string          `json:"mission_id"`
	UserID        string          `json:"user_id"`
	PreviousValue decimal.Decimal `json:"previous_value"`
	NewValue      decimal.Decimal `json:"new_value"`
	Progress      float64         `json:"progress"`
	Completed     bool            `json:"completed"`
	Delta         decimal.Decimal `json:"delta"`
	SourceEvent   *v1.Event       `json:"source_event,omitempty"`
}
