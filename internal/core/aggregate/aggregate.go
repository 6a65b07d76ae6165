// Package aggregate maintains windowed running aggregates per
// (user, mission, field): sum, count, avg, min, max, unique_count and
// streak_count, bounded by sliding or fixed time window semantics.
package aggregate

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
)

// Key uniquely identifies one aggregate stream.
// Scope is empty for rule-level condition leaves and carries the trigger's
// event key for trigger-scoped conditions, so two triggers aggregating the
// same field name stay independent.
type Key struct {
	MissionID string
	UserID    string
	Scope     string
	Field     string
	Kind      string
}

// sample is one retained in-window observation. avg/min/max and sliding
// eviction require per-event values, not just a running scalar.
type sample struct {
	at  time.Time
	num decimal.Decimal
	raw string
	ok  bool // field resolved on the source event
}

// state holds everything retained for one Key.
type state struct {
	samples      []sample
	streakLen    int
	streakPeriod time.Time // start of the last qualifying streak period
}

// defaultMaxSamples bounds retained observations per key so a pathological
// unbounded window cannot exhaust memory. Oldest samples are dropped first.
const defaultMaxSamples = 10000

// Store maintains aggregate state for all keys. Safe for concurrent use
// across dispatcher shards; per-key event ordering is the caller's
// responsibility.
type Store struct {
	mu         sync.Mutex
	states     map[Key]*state
	maxSamples int
}

// NewStore creates an empty aggregate store.
func NewStore() *Store {
	return &Store{
		states:     make(map[Key]*state),
		maxSamples: defaultMaxSamples,
	}
}

// Apply folds one event observation into the key's aggregate.
// at is the event timestamp; value is the extracted field value and found
// reports whether the field resolved on the event (count-style aggregates
// still advance on unresolved fields).
func (s *Store) Apply(key Key, w *mission.TimeWindow, at time.Time, value interface{}, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		st = &state{}
		s.states[key] = st
	}

	sm := sample{at: at, ok: found}
	if found {
		sm.raw = Stringify(value)
		if d, numOK := ToDecimal(value); numOK {
			sm.num = d
		}
	}
	st.samples = append(st.samples, sm)
	if len(st.samples) > s.maxSamples {
		st.samples = st.samples[len(st.samples)-s.maxSamples:]
	}

	if key.Kind == mission.AggStreakCount {
		s.advanceStreak(st, w, at)
	}
}

// advanceStreak counts consecutive qualifying periods (calendar days on
// the window's reset wall time). Same period: unchanged. Adjacent period:
// +1. A gap longer than one period resets the streak to 1, not 0.
func (s *Store) advanceStreak(st *state, w *mission.TimeWindow, at time.Time) {
	window := w
	if window == nil {
		window = &mission.TimeWindow{Duration: "1d"}
	}
	period := window.PeriodStart(at)
	switch {
	case st.streakPeriod.IsZero():
		st.streakLen = 1
	case period.Equal(st.streakPeriod):
		// already counted this period
	case period.Equal(st.streakPeriod.Add(24 * time.Hour)):
		st.streakLen++
	default:
		st.streakLen = 1
	}
	if period.After(st.streakPeriod) {
		st.streakPeriod = period
	}
}

// Value computes the key's aggregate at now, excluding anything outside
// the active window. Eviction is lazy: expired samples are dropped here,
// and the result never includes stale data.
func (s *Store) Value(key Key, w *mission.TimeWindow, now time.Time) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		return decimal.Zero
	}
	s.evict(st, w, now)

	switch key.Kind {
	case mission.AggCount:
		return decimal.NewFromInt(int64(len(st.samples)))
	case mission.AggSum:
		total := decimal.Zero
		for _, sm := range st.samples {
			total = total.Add(sm.num)
		}
		return total
	case mission.AggAvg:
		n := 0
		total := decimal.Zero
		for _, sm := range st.samples {
			if sm.ok {
				total = total.Add(sm.num)
				n++
			}
		}
		if n == 0 {
			return decimal.Zero
		}
		return total.Div(decimal.NewFromInt(int64(n)))
	case mission.AggMin:
		var min decimal.Decimal
		first := true
		for _, sm := range st.samples {
			if !sm.ok {
				continue
			}
			if first || sm.num.LessThan(min) {
				min = sm.num
				first = false
			}
		}
		return min
	case mission.AggMax:
		var max decimal.Decimal
		first := true
		for _, sm := range st.samples {
			if !sm.ok {
				continue
			}
			if first || sm.num.GreaterThan(max) {
				max = sm.num
				first = false
			}
		}
		return max
	case mission.AggUniqueCount:
		distinct := make(map[string]struct{})
		for _, sm := range st.samples {
			if sm.ok {
				distinct[sm.raw] = struct{}{}
			}
		}
		return decimal.NewFromInt(int64(len(distinct)))
	case mission.AggStreakCount:
		return decimal.NewFromInt(int64(st.streakLen))
	}
	return decimal.Zero
}

// evict drops samples outside the window active at now. Events straddling
// a fixed boundary belong to the period containing their timestamp, so a
// plain cutoff at the current period start is exact for both kinds.
func (s *Store) evict(st *state, w *mission.TimeWindow, now time.Time) {
	if w == nil {
		return
	}
	cutoff := w.Start(now)
	i := 0
	for ; i < len(st.samples); i++ {
		if !st.samples[i].at.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		st.samples = st.samples[i:]
	}
}

// Reset discards all aggregate state for a (mission, user) pair.
// Used by explicit mission progress resets.
func (s *Store) Reset(missionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.states {
		if key.MissionID == missionID && key.UserID == userID {
			delete(s.states, key)
		}
	}
}
