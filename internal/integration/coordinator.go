// Package integration implements the fan-out router from state store
// events to the protocol publisher adapters. Adapters are isolated from
// each other: a failing, slow, or panicking adapter degrades only its own
// integration. Events for one entity are delivered to each adapter in
// order; different adapters and different entities run concurrently.
package integration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snapzone/snapzone/internal/events"
	"github.com/snapzone/snapzone/internal/metric"
	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/publish"
)

const (
	subscriberID   = "integration-coordinator"
	queueBuffer    = 64
	defaultTimeout = 5 * time.Second
)

// queueKey identifies one (entity, adapter) delivery lane.
type queueKey struct {
	entity  models.EntityKind
	index   int
	adapter string
}

// Coordinator subscribes to the event bus at composition time and routes
// every event through a single-flight sequential queue per
// (entity, adapter) pair.
type Coordinator struct {
	bus        *events.Bus
	publishers []publish.Publisher
	timeout    time.Duration
	metrics    *metric.Metrics

	mu     sync.Mutex
	queues map[queueKey]chan models.ChangeEvent
	wg     sync.WaitGroup
}

// Option tunes the coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the per-delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// New creates a coordinator for the given adapters. Call Run to start it.
func New(bus *events.Bus, publishers []publish.Publisher, metrics *metric.Metrics, opts ...Option) *Coordinator {
	c := &Coordinator{
		bus:        bus,
		publishers: publishers,
		timeout:    defaultTimeout,
		metrics:    metrics,
		queues:     make(map[queueKey]chan models.ChangeEvent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes to the bus and dispatches until ctx is cancelled, then
// unsubscribes and waits for the per-lane workers to drain.
func (c *Coordinator) Run(ctx context.Context) {
	ch := c.bus.Subscribe(subscriberID)
	defer c.bus.Unsubscribe(subscriberID)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				c.wg.Wait()
				return
			}
			c.dispatch(ctx, ev)
		case <-ctx.Done():
			c.wg.Wait()
			return
		}
	}
}

// dispatch places the event on every adapter's lane for that entity.
// Lane sends never block: a full lane drops the event for that adapter
// only, keeping one slow integration from delaying the rest.
func (c *Coordinator) dispatch(ctx context.Context, ev models.ChangeEvent) {
	for _, pub := range c.publishers {
		key := queueKey{entity: ev.Entity, index: ev.Index, adapter: pub.Name()}
		q := c.lane(ctx, key, pub)
		select {
		case q <- ev:
		default:
			slog.Warn("coordinator: adapter lane full, dropping event",
				"adapter", pub.Name(), "entity", ev.Entity, "index", ev.Index, "type", ev.Type)
			if c.metrics != nil {
				c.metrics.EventsDropped.WithLabelValues(pub.Name()).Inc()
			}
		}
	}
}

// lane returns the sequential delivery queue for key, starting its worker
// on first use.
func (c *Coordinator) lane(ctx context.Context, key queueKey, pub publish.Publisher) chan models.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.queues[key]; ok {
		return q
	}
	q := make(chan models.ChangeEvent, queueBuffer)
	c.queues[key] = q
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev := <-q:
				c.deliver(ctx, pub, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
	return q
}

// deliver invokes one adapter for one event with panic recovery and a
// per-call timeout. Failures are logged and counted, never propagated.
func (c *Coordinator) deliver(ctx context.Context, pub publish.Publisher, ev models.ChangeEvent) {
	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			slog.Error("coordinator: adapter panicked",
				"adapter", pub.Name(), "entity", ev.Entity, "index", ev.Index, "panic", r)
		}
		if c.metrics != nil {
			c.metrics.PublishesTotal.WithLabelValues(pub.Name(), result).Inc()
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := pub.Publish(callCtx, ev); err != nil {
		result = "error"
		slog.Warn("coordinator: adapter publish failed",
			"adapter", pub.Name(), "entity", ev.Entity, "index", ev.Index, "type", ev.Type, "err", err)
	}
}
