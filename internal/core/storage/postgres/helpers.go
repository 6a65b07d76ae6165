package postgres

import (
	"encoding/json"
	"fmt"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
)

// marshalEventData marshals the event payload to JSON for storage.
func marshalEventData(event *v1.Event) ([]byte, error) {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	return dataJSON, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a database row into an Event struct.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var dataJSON []byte

	err := row.Scan(
		&evt.ID,
		&evt.UserID,
		&evt.Type,
		&evt.Module,
		&evt.Timestamp,
		&evt.IngestedAt,
		&dataJSON,
		&evt.IngestSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	if err := json.Unmarshal(dataJSON, &evt.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return &evt, nil
}
