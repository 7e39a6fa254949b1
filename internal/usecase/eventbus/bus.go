package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"maa/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffer used when New gets size <= 0.
const DefaultQueueSize = 64

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscriber struct {
	id      uint64
	all     bool
	typ     domain.EventType
	handler domain.EventHandler
	queue   chan delivery
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber has its own
// queue and worker, so a subscriber sees events in publish order. A full queue
// drops the event for that subscriber only.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscriber
	nextID    atomic.Uint64
	queueSize int
	logger    *slog.Logger
	wg        sync.WaitGroup
	closed    bool
	dropped   atomic.Uint64
}

// New creates an event bus.
func New(logger *slog.Logger, queueSize int) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		logger:    logger,
	}
}

// Publish enqueues an event for matching typed subscribers and all-event subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.all && sub.typ != event.Type {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: context.WithoutCancel(ctx), event: event}:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"subscriber", sub.id,
			)
		}
	}
}

// Dropped returns how many deliveries were discarded because a queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) run(sub *subscriber) {
	defer b.wg.Done()
	for d := range sub.queue {
		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *subscriber, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

func (b *Bus) add(sub *subscriber) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.queue)
			return
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(&subscriber{
		id:      b.nextID.Add(1),
		typ:     eventType,
		handler: handler,
		queue:   make(chan delivery, b.queueSize),
	})
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(&subscriber{
		id:      b.nextID.Add(1),
		all:     true,
		handler: handler,
		queue:   make(chan delivery, b.queueSize),
	})
}

// Close prevents new publishes and waits for queued events to be handled.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.queue)
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
}
