package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	SubscribeAll(handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	wildcard  []EventHandler
	logger    *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher instance. Handler errors are
// logged and never stop delivery to the remaining handlers.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
		logger:    logger,
	}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.deliver(ctx, event)
	return nil
}

func (d *inMemoryDispatcher) deliver(ctx context.Context, event Event) {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	handlers = append(handlers, d.wildcard...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (d *inMemoryDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wildcard = append(d.wildcard, handler)
}

var (
	// ErrQueueFull is returned when an async publish would block.
	ErrQueueFull = errors.New("event queue full")
	// ErrDispatcherClosed is returned by Publish after Close.
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

// AsyncDispatcher queues events and delivers them from one goroutine, so
// publishers never wait on slow handlers such as the Kafka writer or the
// log channel post. Events are delivered in publish order.
type AsyncDispatcher struct {
	*inMemoryDispatcher

	mu     sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewAsyncDispatcher creates a dispatcher buffering up to size events.
// Start must be called before events are delivered.
func NewAsyncDispatcher(logger *zap.Logger, size int) *AsyncDispatcher {
	if size <= 0 {
		size = 256
	}
	return &AsyncDispatcher{
		inMemoryDispatcher: NewInMemoryDispatcher(logger).(*inMemoryDispatcher),
		queue:              make(chan Event, size),
		done:               make(chan struct{}),
	}
}

// Start launches the delivery goroutine. Handlers get a context that is
// never canceled; they bound their own work.
func (d *AsyncDispatcher) Start() {
	go func() {
		defer close(d.done)
		for event := range d.queue {
			d.deliver(context.Background(), event)
		}
	}()
}

// Publish enqueues the event and returns at once. A full queue drops the
// event with a warning rather than stalling the caller.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("event dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until the queued ones are
// delivered or ctx is done.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
