package engine

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/aggregate"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/condition"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
)

// scopedLeaf pairs an aggregation condition with the scope its aggregate
// lives under (empty for tree leaves, the trigger event key otherwise).
type scopedLeaf struct {
	cond  mission.Condition
	scope string
}

// aggregationLeaves lists the rule's aggregation conditions in
// deterministic order: tree leaves first, then per-trigger conditions.
// The first one drives the progress ratio reported to users.
func aggregationLeaves(r *mission.Rule) []scopedLeaf {
	var out []scopedLeaf
	for _, c := range r.FlatConditions() {
		if c.Aggregation != "" {
			out = append(out, scopedLeaf{cond: c})
		}
	}
	for i := range r.Triggers {
		for _, c := range r.Triggers[i].Conditions {
			if c.Aggregation != "" {
				out = append(out, scopedLeaf{cond: c, scope: r.Triggers[i].EventKey})
			}
		}
	}
	return out
}

// targetOf derives the numeric target from a condition's configured value:
// the value itself for threshold operators, the upper bound for between.
func targetOf(c mission.Condition) decimal.Decimal {
	switch c.Operator {
	case condition.OpBetween:
		if bounds, ok := c.Value.([]interface{}); ok && len(bounds) == 2 {
			if hi, ok := aggregate.ToDecimal(bounds[1]); ok {
				return hi
			}
		}
	default:
		if d, ok := aggregate.ToDecimal(c.Value); ok {
			return d
		}
	}
	return decimal.Zero
}

// measure computes the user-facing current/target values and streak count
// from the rule's aggregates. Rules with no aggregation leaves are binary:
// current is 1 once satisfied, target 1.
func (e *Engine) measure(m *mission.Mission, userID string, satisfied bool, now time.Time) (current, target decimal.Decimal, streak int) {
	leaves := aggregationLeaves(&m.Rule)
	if len(leaves) == 0 {
		target = decimal.NewFromInt(1)
		if satisfied {
			current = decimal.NewFromInt(1)
		}
		return current, target, 0
	}

	primary := leaves[0]
	key := aggregate.Key{
		MissionID: m.ID, UserID: userID,
		Scope: primary.scope, Field: primary.cond.Field, Kind: primary.cond.Aggregation,
	}
	current = e.aggregates.Value(key, m.Rule.Window(primary.cond), now)
	target = targetOf(primary.cond)

	for _, leaf := range leaves {
		if leaf.cond.Aggregation != mission.AggStreakCount {
			continue
		}
		sk := aggregate.Key{
			MissionID: m.ID, UserID: userID,
			Scope: leaf.scope, Field: leaf.cond.Field, Kind: leaf.cond.Aggregation,
		}
		streak = int(e.aggregates.Value(sk, m.Rule.Window(leaf.cond), now).IntPart())
		break
	}
	return current, target, streak
}

// transition runs the claim state machine for one evaluated event and
// mutates prog in place. It returns the update to emit, or nil when
// nothing observable changed. The caller persists prog afterwards; no
// partial writes happen here.
//
// Cooldown suppresses a completion (the event is otherwise recorded);
// reaching max_claims locks the record terminally.
func (e *Engine) transition(m *mission.Mission, evt *v1.Event, prog *progress.Progress, satisfied bool, created bool, now time.Time) *progress.Update {
	r := &m.Rule
	prevValue := prog.CurrentValue
	prevState := prog.State

	current, target, streak := e.measure(m, evt.UserID, satisfied, now)
	prog.CurrentValue = current
	prog.TargetValue = target
	prog.StreakCount = streak
	ts := evt.Timestamp
	prog.LastEventAt = &ts

	completed := false
	if satisfied {
		switch {
		case e.inCooldown(r, prog, now):
			slog.Debug("[Engine] Completion suppressed by cooldown",
				"mission_id", m.ID,
				"user_id", evt.UserID,
				"cooldown_seconds", r.CooldownSeconds,
			)
			prog.State = progress.StateInProgress
		case r.MaxClaims > 0 && prog.ClaimCount >= r.MaxClaims:
			prog.State = progress.StateLocked
		default:
			prog.ClaimCount++
			prog.LastCompletedAt = &now
			completed = true
			if r.MaxClaims > 0 && prog.ClaimCount >= r.MaxClaims {
				prog.State = progress.StateLocked
			} else {
				prog.State = progress.StateCompleted
			}
		}
	} else {
		// Window rollover re-enters IN_PROGRESS for recurring missions.
		prog.State = progress.StateInProgress
	}

	changed := created ||
		completed ||
		prog.State != prevState ||
		!prog.CurrentValue.Equal(prevValue)
	if !changed {
		return nil
	}

	return &progress.Update{
		MissionID:     m.ID,
		UserID:        evt.UserID,
		PreviousValue: prevValue,
		NewValue:      prog.CurrentValue,
		Progress:      prog.Ratio(),
		Completed:     completed,
		Delta:         prog.CurrentValue.Sub(prevValue),
		SourceEvent:   evt,
	}
}

// inCooldown reports whether a new completion would land inside the
// cooldown period following the previous one.
func (e *Engine) inCooldown(r *mission.Rule, prog *progress.Progress, now time.Time) bool {
	if r.CooldownSeconds <= 0 || prog.LastCompletedAt == nil {
		return false
	}
	return now.Sub(*prog.LastCompletedAt) < time.Duration(r.CooldownSeconds)*time.Second
}
