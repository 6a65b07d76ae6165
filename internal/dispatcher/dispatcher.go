// Package dispatcher ingests events, fans them out to subscribers and
// drives the mission engine through partitioned batch workers. Events for
// the same user are processed strictly in arrival order on one shard;
// independent users proceed in parallel.
package dispatcher

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
)

const (
	defaultFlushInterval = 100 * time.Millisecond
	defaultMaxBatchSize  = 256
	defaultWorkerCount   = 8
	defaultQueueCapacity = 1024
	defaultHistoryLimit  = 1000
)

// Processor runs the evaluation pipeline for one event. Implemented by
// the engine.
type Processor interface {
	ProcessEvent(ctx context.Context, evt *v1.Event) []progress.Update
}

// EventCallback receives ingested events for one subscribed type.
type EventCallback func(evt *v1.Event)

// UpdateCallback receives progress updates produced by the pipeline
// (reward issuance and notification delivery hook in here).
type UpdateCallback func(upd progress.Update)

// Config tunes dispatcher throughput.
type Config struct {
	FlushInterval time.Duration
	MaxBatchSize  int
	WorkerCount   int
	QueueCapacity int
	HistoryLimit  int
}

func (c Config) normalized() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaultWorkerCount
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	return c
}

// QueueStatus is a point-in-time observability snapshot.
type QueueStatus struct {
	QueueLength     int  `json:"queue_length"`
	Processing      bool `json:"processing"`
	SubscriberCount int  `json:"subscriber_count"`
}

type subscriber struct {
	id int64
	fn EventCallback
}

// Dispatcher owns the ingestion queue and its shard workers.
type Dispatcher struct {
	cfg       Config
	processor Processor
	shards    []chan *v1.Event

	mu          sync.RWMutex
	nextSubID   int64
	subscribers map[string][]subscriber // keyed by event type; "*" receives everything
	onUpdate    []UpdateCallback

	histMu  sync.Mutex
	history []*v1.Event // bounded ring, newest last

	inFlight atomic.Int64
	started  atomic.Bool
}

// New creates a dispatcher over the given processor.
func New(processor Processor, cfg Config) *Dispatcher {
	if processor == nil {
		panic("dispatcher: processor must not be nil")
	}
	cfg = cfg.normalized()
	shards := make([]chan *v1.Event, cfg.WorkerCount)
	for i := range shards {
		shards[i] = make(chan *v1.Event, cfg.QueueCapacity)
	}
	return &Dispatcher{
		cfg:         cfg,
		processor:   processor,
		shards:      shards,
		subscribers: make(map[string][]subscriber),
	}
}

// Emit validates and enqueues one event. It never blocks on processing;
// a full shard queue or a malformed event drops the event with a log line
// and an error, leaving other events untouched.
func (d *Dispatcher) Emit(evt *v1.Event) error {
	if evt == nil {
		return fmt.Errorf("emit: event must not be nil")
	}
	if err := evt.Validate(); err != nil {
		slog.Warn("[Dispatcher] Dropping malformed event",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"error", err,
		)
		return fmt.Errorf("emit: %w", err)
	}
	if evt.IngestedAt.IsZero() {
		evt.IngestedAt = time.Now().UTC()
	}

	d.recordHistory(evt)
	d.fanOut(evt)

	shard := d.shards[d.shardFor(evt.UserID)]
	select {
	case shard <- evt:
		return nil
	default:
		slog.Error("[Dispatcher] Shard queue full, dropping event",
			"event_id", evt.ID,
			"user_id", evt.UserID,
		)
		return fmt.Errorf("emit: queue full")
	}
}

// shardFor maps a user to a shard. All events for one user land on one
// shard, which is what preserves per-(user, mission) ordering.
func (d *Dispatcher) shardFor(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32()) % len(d.shards)
}

// Subscribe registers a callback for an exact event type, or for every
// event with the "*" wildcard. The returned id is the unsubscribe handle.
func (d *Dispatcher) Subscribe(eventType string, fn EventCallback) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSubID++
	d.subscribers[eventType] = append(d.subscribers[eventType], subscriber{id: d.nextSubID, fn: fn})
	return d.nextSubID
}

// Unsubscribe removes a previously registered callback.
func (d *Dispatcher) Unsubscribe(eventType string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			d.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// SubscribeUpdates registers a callback for progress updates emitted by
// the pipeline.
func (d *Dispatcher) SubscribeUpdates(fn UpdateCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = append(d.onUpdate, fn)
}

// fanOut delivers the event to exact-type and wildcard subscribers.
// A panicking subscriber is logged and never disturbs ingestion.
func (d *Dispatcher) fanOut(evt *v1.Event) {
	d.mu.RLock()
	subs := make([]subscriber, 0, len(d.subscribers[evt.Type])+len(d.subscribers["*"]))
	subs = append(subs, d.subscribers[evt.Type]...)
	subs = append(subs, d.subscribers["*"]...)
	d.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("[Dispatcher] Subscriber panicked",
						"event_type", evt.Type,
						"panic", r,
					)
				}
			}()
			s.fn(evt)
		}()
	}
}

func (d *Dispatcher) recordHistory(evt *v1.Event) {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	d.history = append(d.history, evt)
	if len(d.history) > d.cfg.HistoryLimit {
		d.history = d.history[len(d.history)-d.cfg.HistoryLimit:]
	}
}

// RecentHistory returns the most recently ingested events for a user,
// newest first, bounded by limit. In-memory only; durable history lives
// in the event store.
func (d *Dispatcher) RecentHistory(userID string, limit int) []*v1.Event {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	var out []*v1.Event
	for i := len(d.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if d.history[i].UserID == userID {
			out = append(out, d.history[i])
		}
	}
	return out
}

// QueueStatus reports queue depth, whether any shard is mid-batch, and
// the number of registered event subscribers.
func (d *Dispatcher) QueueStatus() QueueStatus {
	depth := 0
	for _, shard := range d.shards {
		depth += len(shard)
	}
	d.mu.RLock()
	count := 0
	for _, subs := range d.subscribers {
		count += len(subs)
	}
	d.mu.RUnlock()
	return QueueStatus{
		QueueLength:     depth,
		Processing:      d.inFlight.Load() > 0,
		SubscriberCount: count,
	}
}

// Start runs one batch worker per shard and blocks until ctx is cancelled
// and all shards have drained their final batch.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already started")
	}
	slog.Info("[Dispatcher] Starting shard workers",
		"workers", d.cfg.WorkerCount,
		"flush_interval", d.cfg.FlushInterval,
		"max_batch_size", d.cfg.MaxBatchSize,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := range d.shards {
		i := i
		g.Go(func() error {
			d.runShard(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

// runShard accumulates events and flushes them on the batch interval, on
// reaching the max batch size, or on shutdown. Events within a shard are
// processed strictly in arrival order.
func (d *Dispatcher) runShard(ctx context.Context, shard int) {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*v1.Event, 0, d.cfg.MaxBatchSize)
	flush := func(flushCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		d.inFlight.Add(1)
		defer d.inFlight.Add(-1)
		for _, evt := range batch {
			for _, upd := range d.processor.ProcessEvent(flushCtx, evt) {
				d.deliverUpdate(upd)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-d.shards[shard]:
			batch = append(batch, evt)
			if len(batch) >= d.cfg.MaxBatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			// Final drain with a fresh context so in-queue events are not
			// lost on graceful shutdown.
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for {
				select {
				case evt := <-d.shards[shard]:
					batch = append(batch, evt)
					continue
				default:
				}
				break
			}
			flush(drainCtx)
			cancel()
			return
		}
	}
}

func (d *Dispatcher) deliverUpdate(upd progress.Update) {
	d.mu.RLock()
	callbacks := make([]UpdateCallback, len(d.onUpdate))
	copy(callbacks, d.onUpdate)
	d.mu.RUnlock()
	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("[Dispatcher] Update subscriber panicked",
						"mission_id", upd.MissionID,
						"panic", r,
					)
				}
			}()
			fn(upd)
		}()
	}
}
