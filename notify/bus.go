package notify

import (
	"log/slog"
	"sync"
	"time"
)

// EventRecordOverwritten is emitted when a deferred choice replaced a value
// that was already recorded on the server.
const EventRecordOverwritten = "record.overwritten"

// defaultSubscriberBuffer is the channel capacity for each subscriber.
const defaultSubscriberBuffer = 16

// Event is a domain event published for UI collaborators.
type Event struct {
	Name  string            `json:"name"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Time  time.Time         `json:"time"`
}

// Emitter publishes events without waiting for consumers.
type Emitter interface {
	Emit(Event)
}

// Bus fans events out to subscribers. Delivery is non-blocking: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *slog.Logger
}

var _ Emitter = (*Bus)(nil)

// NewBus creates an event bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a consumer. buffer <= 0 uses the default capacity.
// The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Emit delivers evt to every subscriber without blocking.
func (b *Bus) Emit(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("subscriber queue full, dropping event", "event", evt.Name)
		}
	}
}

// Close unregisters all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
