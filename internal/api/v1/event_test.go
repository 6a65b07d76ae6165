package v1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validEvent() *Event {
	return &Event{
		ID:        "evt-1",
		UserID:    "user-1",
		Type:      "deposit_made",
		Module:    "deposits",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:      map[string]interface{}{"amount": 50.0},
	}
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr string
	}{
		{name: "valid", mutate: func(e *Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.ID = "" }, wantErr: "id is required"},
		{name: "missing user", mutate: func(e *Event) { e.UserID = "" }, wantErr: "user_id is required"},
		{name: "missing type", mutate: func(e *Event) { e.Type = "" }, wantErr: "type is required"},
		{name: "zero timestamp", mutate: func(e *Event) { e.Timestamp = time.Time{} }, wantErr: "timestamp is required"},
		{name: "nil data", mutate: func(e *Event) { e.Data = nil }, wantErr: "data is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt := validEvent()
			tc.mutate(evt)
			err := evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.wantErr)
		})
	}
}
