package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventEmitter handles event emission for the orchestrator.
// It provides a simple, thread-safe way to emit events to subscribers.
// A nil *EventEmitter discards everything.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *zap.Logger
	closeOnce    sync.Once
	mu           sync.RWMutex
	closed       bool
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *zap.Logger) *EventEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	// Give the receiver 100ms to drain before dropping.
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropped event",
				zap.Uint64("total_dropped", count),
				zap.String("type", string(event.Type)))
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	if e == nil {
		return 0
	}
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
// This is used by subscribers (e.g., TUI) to receive updates.
func (e *EventEmitter) Events() <-chan Event {
	if e == nil {
		return nil
	}
	return e.events
}

// Close closes the events channel. Later Emit calls are ignored.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.events)
		e.mu.Unlock()
	})
}
