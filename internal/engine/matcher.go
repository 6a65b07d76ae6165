package engine

import (
	"log/slog"
	"sync"
	"time"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/condition"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
)

// matchTriggers returns the indexes of the rule's triggers that fire for
// the event: event key matches and every filter passes. An empty filter
// list fires unconditionally (catch-all trigger).
func matchTriggers(missionID string, r *mission.Rule, evt *v1.Event) []int {
	var fired []int
	for i := range r.Triggers {
		t := &r.Triggers[i]
		if t.EventKey != evt.Type {
			continue
		}
		if filtersPass(missionID, t.Filters, evt) {
			fired = append(fired, i)
		}
	}
	return fired
}

// filtersPass evaluates the trigger's filters against the event payload.
// Filters are ANDed. A filter that fails to evaluate (validation should
// have caught it) is logged and treated as not matching.
func filtersPass(missionID string, filters []mission.Condition, evt *v1.Event) bool {
	for _, f := range filters {
		ok, err := condition.EvaluateLeaf(f, payloadResolver(evt))
		if err != nil {
			slog.Warn("[Engine] Trigger filter failed to evaluate",
				"mission_id", missionID,
				"event_id", evt.ID,
				"field", f.Field,
				"error", err,
			)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// payloadResolver resolves condition fields by dot-path lookup into the
// event payload. Missing fields resolve to nil so exists/not_exists work.
func payloadResolver(evt *v1.Event) condition.Resolver {
	return func(c mission.Condition) (interface{}, error) {
		v, ok := condition.Extract(evt.Data, c.Field)
		if !ok {
			return nil, nil
		}
		return v, nil
	}
}

type debounceKey struct {
	missionID string
	userID    string
	trigger   int
}

// debouncer gates repeat trigger firings per (mission, user, trigger).
// Event timestamps drive the gate, not wall clock, so replayed streams
// behave deterministically.
type debouncer struct {
	mu       sync.Mutex
	lastFire map[debounceKey]time.Time
}

func newDebouncer() *debouncer {
	return &debouncer{lastFire: make(map[debounceKey]time.Time)}
}

// allow reports whether the trigger may fire at ts, and records the firing
// when it does.
func (d *debouncer) allow(key debounceKey, debounceMs int, ts time.Time) bool {
	if debounceMs <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastFire[key]; ok {
		if ts.Sub(last) < time.Duration(debounceMs)*time.Millisecond {
			return false
		}
	}
	d.lastFire[key] = ts
	return true
}

// reset clears debounce state for a (mission, user) pair.
func (d *debouncer) reset(missionID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.lastFire {
		if key.missionID == missionID && key.userID == userID {
			delete(d.lastFire, key)
		}
	}
}
