package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
)

// ProgressAdapter implements storage.ProgressStore for PostgreSQL.
// Write atomicity per key comes from single-statement upserts; the engine
// serializes the read-evaluate-write cycle per (mission, user) partition.
type ProgressAdapter struct {
	db         *sql.DB
	stmtGet    *sql.Stmt
	stmtUpsert *sql.Stmt
	stmtDelete *sql.Stmt
}

// NewProgressAdapter prepares the progress statements over an existing pool.
func NewProgressAdapter(db *sql.DB) (*ProgressAdapter, error) {
	stmtGet, err := db.Prepare(queryGetProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getProgress statement: %w", err)
	}
	stmtUpsert, err := db.Prepare(queryUpsertProgress)
	if err != nil {
		stmtGet.Close()
		return nil, fmt.Errorf("failed to prepare upsertProgress statement: %w", err)
	}
	stmtDelete, err := db.Prepare(queryDeleteProgress)
	if err != nil {
		stmtGet.Close()
		stmtUpsert.Close()
		return nil, fmt.Errorf("failed to prepare deleteProgress statement: %w", err)
	}
	return &ProgressAdapter{
		db:         db,
		stmtGet:    stmtGet,
		stmtUpsert: stmtUpsert,
		stmtDelete: stmtDelete,
	}, nil
}

// Close releases the prepared statements. The shared pool stays open.
func (a *ProgressAdapter) Close() error {
	a.stmtGet.Close()
	a.stmtUpsert.Close()
	a.stmtDelete.Close()
	return nil
}

// Get returns the progress record, or storage.ErrNotFound.
func (a *ProgressAdapter) Get(ctx context.Context, missionID, userID string) (*progress.Progress, error) {
	var p progress.Progress
	var state string
	var currentValue, targetValue string
	var lastEventAt, lastCompletedAt sql.NullTime

	err := a.stmtGet.QueryRowContext(ctx, missionID, userID).Scan(
		&p.MissionID,
		&p.UserID,
		&state,
		&currentValue,
		&targetValue,
		&p.ClaimCount,
		&p.StreakCount,
		&lastEventAt,
		&lastCompletedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	p.State = progress.State(state)
	if p.CurrentValue, err = decimal.NewFromString(currentValue); err != nil {
		return nil, fmt.Errorf("invalid current_value %q: %w", currentValue, err)
	}
	if p.TargetValue, err = decimal.NewFromString(targetValue); err != nil {
		return nil, fmt.Errorf("invalid target_value %q: %w", targetValue, err)
	}
	if lastEventAt.Valid {
		t := lastEventAt.Time
		p.LastEventAt = &t
	}
	if lastCompletedAt.Valid {
		t := lastCompletedAt.Time
		p.LastCompletedAt = &t
	}
	return &p, nil
}

// Upsert creates or replaces the record in one statement.
func (a *ProgressAdapter) Upsert(ctx context.Context, p *progress.Progress) error {
	_, err := a.stmtUpsert.ExecContext(ctx,
		p.MissionID,
		p.UserID,
		string(p.State),
		p.CurrentValue.String(),
		p.TargetValue.String(),
		p.ClaimCount,
		p.StreakCount,
		nullTime(p.LastEventAt),
		nullTime(p.LastCompletedAt),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}

// Delete removes the record; missing records are not an error.
func (a *ProgressAdapter) Delete(ctx context.Context, missionID, userID string) error {
	if _, err := a.stmtDelete.ExecContext(ctx, missionID, userID); err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
