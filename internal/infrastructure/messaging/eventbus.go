// Package messaging implements the in-process event bus the engine publishes
// domain events on after a commit, plus a fan-out publisher for forwarding
// the same events to Redis.
package messaging

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// ErrEventBusClosed is returned by operations on a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands events to a fixed set of workers instead of running
	// handlers on the publisher goroutine.
	AsyncMode bool

	// WorkerPoolSize is the number of async workers.
	WorkerPoolSize int

	// QueueSize bounds pending events per worker. Publish blocks while the
	// target queue is full.
	QueueSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 8, QueueSize: 256}
}

type dispatch struct {
	event    shared.Event
	handlers []shared.EventHandler
}

// InMemoryEventBus dispatches events to handlers registered in this process.
// In async mode events of one aggregate always land on the same worker, so
// handlers see them in publish order. Handlers must not publish.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	closed      bool

	async  bool
	queues []chan dispatch
	wg     sync.WaitGroup
	log    *logger.Logger

	published atomic.Int64
	failed    atomic.Int64
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// NewInMemoryEventBus creates a new in-memory event bus. In async mode the
// workers start immediately and stop on Close.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	def := DefaultInMemoryEventBusConfig()
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = def.WorkerPoolSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	b := &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		async:    cfg.AsyncMode,
		log:      cfg.Logger.With(logger.Component("eventbus")),
	}
	if b.async {
		b.queues = make([]chan dispatch, cfg.WorkerPoolSize)
		for i := range b.queues {
			b.queues[i] = make(chan dispatch, cfg.QueueSize)
			b.wg.Add(1)
			go b.worker(b.queues[i])
		}
	}
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish hands event to every matching handler. Handler errors are logged,
// never returned: the write that produced the event has already committed.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.published.Add(1)

	if b.async {
		// Close takes the write lock before closing queues, so this send
		// never hits a closed channel.
		b.queues[b.shard(event.AggregateID())] <- dispatch{event: event, handlers: handlers}
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.run(event, h)
	}
	return nil
}

func (b *InMemoryEventBus) shard(aggregateID string) int {
	h := fnv.New32a()
	h.Write([]byte(aggregateID))
	return int(h.Sum32() % uint32(len(b.queues)))
}

func (b *InMemoryEventBus) worker(queue <-chan dispatch) {
	defer b.wg.Done()
	for d := range queue {
		for _, h := range d.handlers {
			b.run(d.event, h)
		}
	}
}

func (b *InMemoryEventBus) run(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.log.Error("event handler panicked",
				logger.String("event_type", string(event.EventType())),
				logger.Any("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := h(event); err != nil {
		b.failed.Add(1)
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}
}

// Close stops accepting events and waits until queued events are handled.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Stats reports how many events were published and how many handler runs failed.
func (b *InMemoryEventBus) Stats() (published, failed int64) {
	return b.published.Load(), b.failed.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// FAN-OUT
// ══════════════════════════════════════════════════════════════════════════════

// Fanout publishes each event to every target and joins their errors.
type Fanout []shared.EventPublisher

// Publish implements shared.EventPublisher.
func (f Fanout) Publish(event shared.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
