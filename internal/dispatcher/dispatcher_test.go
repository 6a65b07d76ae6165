package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
)

// recordingProcessor captures processed events and optionally emits one
// update per event.
type recordingProcessor struct {
	mu          sync.Mutex
	ids         []string
	emitUpdates bool
}

func (p *recordingProcessor) ProcessEvent(_ context.Context, evt *v1.Event) []progress.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, evt.ID)
	if !p.emitUpdates {
		return nil
	}
	return []progress.Update{{
		MissionID:   "m1",
		UserID:      evt.UserID,
		NewValue:    decimal.NewFromInt(1),
		SourceEvent: evt,
	}}
}

func (p *recordingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}

func validEvent(id, userID, typ string) *v1.Event {
	return &v1.Event{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		Timestamp: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Data:      map[string]interface{}{"amount": 10.0},
	}
}

// runDispatcher starts d in the background and returns a stop function
// that cancels it and waits for the final drain.
func runDispatcher(t *testing.T, d *Dispatcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Start(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("dispatcher did not stop")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDispatcher_RejectsMalformedEvents(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})

	require.ErrorContains(t, d.Emit(nil), "must not be nil")

	missing := validEvent("e1", "u1", "deposit_made")
	missing.UserID = ""
	require.Error(t, d.Emit(missing))

	require.Zero(t, d.QueueStatus().QueueLength)
}

func TestDispatcher_PerUserOrdering(t *testing.T) {
	proc := &recordingProcessor{}
	d := New(proc, Config{FlushInterval: time.Millisecond, WorkerCount: 4})
	stop := runDispatcher(t, d)
	defer stop()

	var want []string
	for i := 0; i < 50; i++ {
		id := string(rune('A' + i%26)) // ids may repeat, order is what matters
		want = append(want, id)
		require.NoError(t, d.Emit(validEvent(id, "same-user", "deposit_made")))
	}

	waitFor(t, func() bool { return len(proc.processed()) == 50 })
	require.Equal(t, want, proc.processed())
}

func TestDispatcher_SubscribersAndWildcard(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})

	var mu sync.Mutex
	var deposits, all []string
	d.Subscribe("deposit_made", func(evt *v1.Event) {
		mu.Lock()
		defer mu.Unlock()
		deposits = append(deposits, evt.ID)
	})
	d.Subscribe("*", func(evt *v1.Event) {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, evt.ID)
	})

	require.NoError(t, d.Emit(validEvent("e1", "u1", "deposit_made")))
	require.NoError(t, d.Emit(validEvent("e2", "u1", "bet_placed")))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"e1"}, deposits)
	require.Equal(t, []string{"e1", "e2"}, all)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})

	var got int
	id := d.Subscribe("deposit_made", func(*v1.Event) { got++ })
	require.NoError(t, d.Emit(validEvent("e1", "u1", "deposit_made")))
	d.Unsubscribe("deposit_made", id)
	require.NoError(t, d.Emit(validEvent("e2", "u1", "deposit_made")))

	require.Equal(t, 1, got)
}

func TestDispatcher_PanickingSubscriberIsContained(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})

	var delivered bool
	d.Subscribe("deposit_made", func(*v1.Event) { panic("subscriber bug") })
	d.Subscribe("deposit_made", func(*v1.Event) { delivered = true })

	require.NoError(t, d.Emit(validEvent("e1", "u1", "deposit_made")))
	require.True(t, delivered)
}

func TestDispatcher_UpdateFanOut(t *testing.T) {
	proc := &recordingProcessor{emitUpdates: true}
	d := New(proc, Config{FlushInterval: time.Millisecond})

	var mu sync.Mutex
	var updates []progress.Update
	d.SubscribeUpdates(func(upd progress.Update) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, upd)
	})

	stop := runDispatcher(t, d)
	defer stop()

	require.NoError(t, d.Emit(validEvent("e1", "u1", "deposit_made")))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "m1", updates[0].MissionID)
	require.Equal(t, "e1", updates[0].SourceEvent.ID)
}

func TestDispatcher_QueueFull(t *testing.T) {
	// Never started: nothing drains the shards.
	d := New(&recordingProcessor{}, Config{WorkerCount: 1, QueueCapacity: 2})

	require.NoError(t, d.Emit(validEvent("e1", "u1", "deposit_made")))
	require.NoError(t, d.Emit(validEvent("e2", "u1", "deposit_made")))
	require.ErrorContains(t, d.Emit(validEvent("e3", "u1", "deposit_made")), "queue full")

	require.Equal(t, 2, d.QueueStatus().QueueLength)
}

func TestDispatcher_QueueStatusCountsSubscribers(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})
	d.Subscribe("a", func(*v1.Event) {})
	d.Subscribe("b", func(*v1.Event) {})
	d.Subscribe("*", func(*v1.Event) {})

	st := d.QueueStatus()
	require.Equal(t, 3, st.SubscriberCount)
	require.False(t, st.Processing)
}

func TestDispatcher_RecentHistory(t *testing.T) {
	d := New(&recordingProcessor{}, Config{HistoryLimit: 3, QueueCapacity: 16})

	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		require.NoError(t, d.Emit(validEvent(id, "u1", "deposit_made")))
	}
	require.NoError(t, d.Emit(validEvent("x1", "u2", "deposit_made")))

	got := d.RecentHistory("u1", 2)
	require.Len(t, got, 2)
	require.Equal(t, "e4", got[0].ID)
	require.Equal(t, "e3", got[1].ID)

	// The ring is bounded: e1 fell out (limit 3 across all users).
	all := d.RecentHistory("u1", 0)
	require.Len(t, all, 2)
}

func TestDispatcher_GracefulDrain(t *testing.T) {
	proc := &recordingProcessor{}
	// Long flush interval: the drain path, not the ticker, must process
	// what is queued at shutdown.
	d := New(proc, Config{FlushInterval: time.Minute, QueueCapacity: 16})
	stop := runDispatcher(t, d)

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, d.Emit(validEvent(id, "u1", "deposit_made")))
	}
	stop()

	require.ElementsMatch(t, []string{"e1", "e2", "e3"}, proc.processed())
}

func TestDispatcher_StartTwice(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})
	stop := runDispatcher(t, d)
	defer stop()

	waitFor(t, func() bool { return d.started.Load() })
	require.ErrorContains(t, d.Start(context.Background()), "already started")
}

func TestDispatcher_EmitStampsIngestedAt(t *testing.T) {
	d := New(&recordingProcessor{}, Config{})
	evt := validEvent("e1", "u1", "deposit_made")
	require.True(t, evt.IngestedAt.IsZero())
	require.NoError(t, d.Emit(evt))
	require.False(t, evt.IngestedAt.IsZero())
}
