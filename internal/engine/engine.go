// Package engine drives the mission evaluation pipeline: trigger matching,
// windowed aggregation, condition tree evaluation and progress/claim state
// tracking, one event at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/aggregate"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/condition"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/partition"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
)

// Engine evaluates events against the active mission catalog.
// Construct one explicitly and pass it where needed; there is no package
// singleton, so tests can spin up isolated instances.
type Engine struct {
	missions      []mission.Mission
	aggregates    *aggregate.Store
	progressStore storage.ProgressStore
	eventStore    storage.EventStore
	debounce      *debouncer

	// locks serializes read-evaluate-write per (user, mission) partition
	// so two events for the same pair in one batch cannot lose updates.
	locks [partition.Count]sync.Mutex

	nowFn func() time.Time
}

// New creates an engine over the given mission catalog and stores.
func New(missions []mission.Mission, progressStore storage.ProgressStore, eventStore storage.EventStore) *Engine {
	if progressStore == nil {
		panic("engine: progress store must not be nil")
	}
	return &Engine{
		missions:      missions,
		aggregates:    aggregate.NewStore(),
		progressStore: progressStore,
		eventStore:    eventStore,
		debounce:      newDebouncer(),
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}

// ValidateRule runs static validation against the engine's operator
// registry. Side-effect free.
func (e *Engine) ValidateRule(r *mission.Rule) mission.ValidationResult {
	return mission.Validate(r, condition.Known)
}

// ProcessEvent runs the full pipeline for one event and returns one update
// per mission whose progress changed. A failure while processing one
// mission is logged and never aborts the others.
func (e *Engine) ProcessEvent(ctx context.Context, evt *v1.Event) []progress.Update {
	var updates []progress.Update
	for i := range e.missions {
		m := &e.missions[i]
		upd, err := e.processMission(ctx, m, evt)
		if err != nil {
			slog.Error("[Engine] Mission evaluation failed",
				"mission_id", m.ID,
				"user_id", evt.UserID,
				"event_id", evt.ID,
				"error", err,
			)
			continue
		}
		if upd != nil {
			updates = append(updates, *upd)
		}
	}
	return updates
}

// processMission evaluates one mission against one event under the
// partition lock for the (user, mission) pair. Panics inside evaluation
// (a hostile payload shape, a bad rule that slipped validation) are
// contained here so one event can never take down a batch.
func (e *Engine) processMission(ctx context.Context, m *mission.Mission, evt *v1.Event) (upd *progress.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			upd = nil
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()

	fired := matchTriggers(m.ID, &m.Rule, evt)
	if len(fired) == 0 {
		return nil, nil
	}

	allowed := make([]int, 0, len(fired))
	for _, idx := range fired {
		key := debounceKey{missionID: m.ID, userID: evt.UserID, trigger: idx}
		if e.debounce.allow(key, m.Rule.Triggers[idx].DebounceMs, evt.Timestamp) {
			allowed = append(allowed, idx)
		}
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	lock := &e.locks[partition.For(evt.UserID, m.ID)]
	lock.Lock()
	defer lock.Unlock()

	return e.advance(ctx, m, evt, allowed)
}

// advance performs the atomic read-evaluate-write cycle for one
// (mission, user) record: load progress, fold the event into the relevant
// aggregates, evaluate the condition tree and per-trigger conditions, run
// the claim state machine and persist the result in a single upsert.
func (e *Engine) advance(ctx context.Context, m *mission.Mission, evt *v1.Event, fired []int) (*progress.Update, error) {
	prog, created, err := e.loadOrCreate(ctx, m, evt)
	if err != nil {
		return nil, err
	}
	if prog.State == progress.StateLocked {
		return nil, nil
	}

	e.applyAggregates(m, evt, fired)

	now := e.nowFn()
	satisfied, err := e.evaluate(m, evt, now)
	if err != nil {
		return nil, err
	}

	upd := e.transition(m, evt, prog, satisfied, created, now)
	if upd == nil {
		return nil, nil
	}

	prog.UpdatedAt = now
	if err := e.progressStore.Upsert(ctx, prog); err != nil {
		return nil, fmt.Errorf("persist progress: %w", err)
	}
	return upd, nil
}

func (e *Engine) loadOrCreate(ctx context.Context, m *mission.Mission, evt *v1.Event) (*progress.Progress, bool, error) {
	prog, err := e.progressStore.Get(ctx, m.ID, evt.UserID)
	if err == nil {
		return prog, false, nil
	}
	if err != storage.ErrNotFound {
		return nil, false, fmt.Errorf("load progress: %w", err)
	}
	return &progress.Progress{
		MissionID: m.ID,
		UserID:    evt.UserID,
		State:     progress.StateNotStarted,
	}, true, nil
}

// applyAggregates folds one event into every aggregate the rule tracks:
// a fire-count per trigger (trigger satisfaction for triggers with no
// conditions), trigger-scoped condition aggregates, and rule-level tree
// leaf aggregates.
func (e *Engine) applyAggregates(m *mission.Mission, evt *v1.Event, fired []int) {
	r := &m.Rule
	for _, idx := range fired {
		t := &r.Triggers[idx]

		fireKey := aggregate.Key{
			MissionID: m.ID, UserID: evt.UserID,
			Scope: t.EventKey, Kind: mission.AggCount,
		}
		e.aggregates.Apply(fireKey, r.TimeWindow, evt.Timestamp, nil, false)

		for _, c := range t.Conditions {
			if c.Aggregation == "" {
				continue
			}
			v, ok := condition.Extract(evt.Data, c.Field)
			key := aggregate.Key{
				MissionID: m.ID, UserID: evt.UserID,
				Scope: t.EventKey, Field: c.Field, Kind: c.Aggregation,
			}
			e.aggregates.Apply(key, r.Window(c), evt.Timestamp, v, ok)
		}
	}

	for _, c := range r.FlatConditions() {
		if c.Aggregation == "" {
			continue
		}
		v, ok := condition.Extract(evt.Data, c.Field)
		key := aggregate.Key{
			MissionID: m.ID, UserID: evt.UserID,
			Field: c.Field, Kind: c.Aggregation,
		}
		e.aggregates.Apply(key, r.Window(c), evt.Timestamp, v, ok)
	}
}

// resolver builds the leaf resolver for one scope: aggregation leaves read
// the live windowed aggregate; plain leaves read the event payload.
func (e *Engine) resolver(m *mission.Mission, evt *v1.Event, scope string, now time.Time) condition.Resolver {
	return func(c mission.Condition) (interface{}, error) {
		if c.Aggregation != "" {
			key := aggregate.Key{
				MissionID: m.ID, UserID: evt.UserID,
				Scope: scope, Field: c.Field, Kind: c.Aggregation,
			}
			return e.aggregates.Value(key, m.Rule.Window(c), now), nil
		}
		v, ok := condition.Extract(evt.Data, c.Field)
		if !ok {
			return nil, nil
		}
		return v, nil
	}
}

// evaluate decides whether the rule is satisfied right now: the condition
// tree must hold, and the triggers must reach satisfaction per the rule's
// logic. A trigger with its own conditions is satisfied when all of them
// hold over its scoped aggregates; a trigger without conditions is
// satisfied once it has fired at least once inside the window.
func (e *Engine) evaluate(m *mission.Mission, evt *v1.Event, now time.Time) (bool, error) {
	r := &m.Rule

	treeOK, err := condition.EvaluateTree(r.ConditionTree, e.resolver(m, evt, "", now))
	if err != nil {
		return false, err
	}
	if !treeOK {
		return false, nil
	}

	logic := r.Logic
	if logic == "" {
		logic = mission.LogicAnd
	}

	anySatisfied := false
	for i := range r.Triggers {
		t := &r.Triggers[i]
		ok, err := e.triggerSatisfied(m, t, evt, now)
		if err != nil {
			return false, err
		}
		if ok {
			anySatisfied = true
			continue
		}
		if logic == mission.LogicAnd || t.Required {
			return false, nil
		}
	}
	if logic == mission.LogicOr && !anySatisfied {
		return false, nil
	}
	return true, nil
}

func (e *Engine) triggerSatisfied(m *mission.Mission, t *mission.Trigger, evt *v1.Event, now time.Time) (bool, error) {
	if len(t.Conditions) == 0 {
		fireKey := aggregate.Key{
			MissionID: m.ID, UserID: evt.UserID,
			Scope: t.EventKey, Kind: mission.AggCount,
		}
		return e.aggregates.Value(fireKey, m.Rule.TimeWindow, now).IsPositive(), nil
	}
	resolve := e.resolver(m, evt, t.EventKey, now)
	for _, c := range t.Conditions {
		ok, err := condition.EvaluateLeaf(c, resolve)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// GetMissionProgress returns the stored progress, or nil when the user has
// never matched the mission.
func (e *Engine) GetMissionProgress(ctx context.Context, missionID, userID string) (*progress.Progress, error) {
	p, err := e.progressStore.Get(ctx, missionID, userID)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CheckMissionCompletion reports whether the user has completed the
// mission at least once in the current state.
func (e *Engine) CheckMissionCompletion(ctx context.Context, missionID, userID string) (bool, error) {
	p, err := e.GetMissionProgress(ctx, missionID, userID)
	if err != nil || p == nil {
		return false, err
	}
	return p.State == progress.StateCompleted || p.State == progress.StateLocked, nil
}

// ResetMissionProgress fully deletes the progress record and all derived
// state for the pair, returning the mission to NOT_STARTED. This is the
// only way out of LOCKED.
func (e *Engine) ResetMissionProgress(ctx context.Context, missionID, userID string) error {
	if err := e.progressStore.Delete(ctx, missionID, userID); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	e.aggregates.Reset(missionID, userID)
	e.debounce.reset(missionID, userID)
	return nil
}

// GetEventHistory returns the user's most recent events, newest first.
func (e *Engine) GetEventHistory(ctx context.Context, userID string, limit int) ([]*v1.Event, error) {
	if e.eventStore == nil {
		return nil, nil
	}
	return e.eventStore.RetrieveUserEvents(ctx, userID, limit)
}

// Missions returns the catalog the engine evaluates.
func (e *Engine) Missions() []mission.Mission {
	return e.missions
}
