package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
)

// MissionAdapter implements mission.Repository over PostgreSQL. Rule
// definitions are stored as JSON documents and decoded on read.
type MissionAdapter struct {
	db *sql.DB
}

// NewMissionAdapter creates the read path for DB-backed mission rules.
func NewMissionAdapter(db *sql.DB) *MissionAdapter {
	return &MissionAdapter{db: db}
}

// Get returns the mission with the given ID, or an error if not found.
func (a *MissionAdapter) Get(ctx context.Context, id string) (*mission.Mission, error) {
	row := a.db.QueryRowContext(ctx, queryGetMission, id)
	m, err := scanMissionRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mission %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListActive returns every mission flagged active, rules decoded.
func (a *MissionAdapter) ListActive(ctx context.Context) ([]mission.Mission, error) {
	rows, err := a.db.QueryContext(ctx, queryListActiveMissions)
	if err != nil {
		return nil, fmt.Errorf("failed to query active missions: %w", err)
	}
	defer rows.Close()

	var out []mission.Mission
	for rows.Next() {
		m, err := scanMissionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missions: %w", err)
	}
	return out, nil
}

func scanMissionRow(row scanner) (*mission.Mission, error) {
	var m mission.Mission
	var ruleJSON []byte
	if err := row.Scan(&m.ID, &m.Name, &m.Active, &ruleJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mission row: %w", err)
	}
	if err := json.Unmarshal(ruleJSON, &m.Rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule for mission %q: %w", m.ID, err)
	}
	return &m, nil
}
