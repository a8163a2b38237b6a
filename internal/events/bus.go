// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event channel full")
)

type registration struct {
	id      string
	handler Handler
}

// Bus is an in-memory event bus. Events are delivered by one goroutine in
// publish order, and to the handlers of a type in subscription order, so the
// indexer sees an asset's lifecycle the way the engines produced it.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]registration
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	queue    chan Event

	// sendMu orders queue sends before the cancel in Shutdown.
	sendMu sync.RWMutex
	closed bool

	published atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	BufferSize int
	Queued     int
	Published  uint64
	Processed  uint64
	Dropped    uint64
	Handlers   map[EventType]int
}

// NewBus starts a bus that queues up to bufferSize undelivered events.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers: make(map[EventType][]registration),
		logger:   logger.Named("event_bus"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		queue:    make(chan Event, bufferSize),
	}
	go b.run()
	return b
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	id := uuid.New().String()

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, eventBus: b, typ: eventType}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for asynchronous delivery. A full queue drops the
// event rather than blocking the publishing engine.
func (b *Bus) Publish(event Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- event:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())),
			zap.String("event_id", event.ID()))
		return ErrBusFull
	}
}

// PublishSync delivers event to every handler of its type before returning.
// Every handler runs; their errors are joined.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[event.Type()]...)
	b.mu.RUnlock()

	var errs []error
	for _, r := range regs {
		if err := r.handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("event_id", event.ID()),
				zap.String("handler_id", r.id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

func (b *Bus) run() {
	defer close(b.done)

	for {
		select {
		case event := <-b.queue:
			b.deliver(b.ctx, event)
		case <-b.ctx.Done():
			// Deliver what was accepted before shutdown.
			for {
				select {
				case event := <-b.queue:
					b.deliver(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ctx context.Context, event Event) {
	defer b.processed.Add(1)
	// Handler errors are already logged by PublishSync.
	_ = b.PublishSync(ctx, event)
}

// Pending returns how many accepted events have not finished delivery.
func (b *Bus) Pending() uint64 {
	processed := b.processed.Load()
	published := b.published.Load()
	if published <= processed {
		return 0
	}
	return published - processed
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = regs
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, delivers what is already queued and waits
// for the delivery loop to exit or ctx to expire.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")
	b.sendMu.Lock()
	b.closed = true
	b.cancel()
	b.sendMu.Unlock()

	select {
	case <-b.done:
		b.logger.Info("Event bus shutdown complete",
			zap.Uint64("published", b.published.Load()),
			zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout", zap.Uint64("pending", b.Pending()))
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		BufferSize: cap(b.queue),
		Queued:     len(b.queue),
		Published:  b.published.Load(),
		Processed:  b.processed.Load(),
		Dropped:    b.dropped.Load(),
		Handlers:   make(map[EventType]int, len(b.handlers)),
	}
	for eventType, regs := range b.handlers {
		s.Handlers[eventType] = len(regs)
	}
	return s
}

// Publish sends event to p and logs instead of failing when delivery is not
// possible. A nil publisher is accepted.
func Publish(p Publisher, logger *zap.Logger, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(event); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("event_type", string(event.Type())),
			zap.String("event_id", event.ID()),
			zap.Error(err))
	}
}
