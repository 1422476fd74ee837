package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Levels used by the engine.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Appender persists events durably.
type Appender interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error
}

// Bus validates, buffers and fans out diagnostic events. A nil *Bus drops
// everything, so optional wiring needs no checks at call sites.
type Bus struct {
	buffer      *history
	broadcaster *Broadcaster
	total       atomic.Uint64
	evicted     atomic.Uint64

	mu          sync.RWMutex
	appender    Appender
	errorLogged bool
}

// NewBus creates a bus that keeps the last 256 events.
func NewBus() *Bus {
	return &Bus{
		buffer:      newHistory(256),
		broadcaster: NewBroadcaster(),
	}
}

// SetAppender sets the durable sink for events.
func (b *Bus) SetAppender(a Appender) {
	b.mu.Lock()
	b.appender = a
	b.errorLogged = false
	b.mu.Unlock()
}

func (b *Bus) Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	b.keep(e)
	b.total.Add(1)
	b.broadcaster.broadcast(e)

	b.mu.RLock()
	appender := b.appender
	b.mu.RUnlock()

	if appender != nil {
		runID, _ := fields["run_id"].(string)
		if err := appender.Append(ts, level, name, msg, fields, runID); err != nil {
			b.appendFailed(err)
		}
	}

	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return out, nil
}

// appendFailed records one system.error straight into the buffer. It never
// goes through Emit, so a failing appender cannot recurse.
func (b *Bus) appendFailed(err error) {
	b.mu.Lock()
	if b.errorLogged {
		b.mu.Unlock()
		return
	}
	b.errorLogged = true
	b.mu.Unlock()

	b.keep(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     LevelError,
		Name:      "system.error",
		Message:   "event append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

func (b *Bus) keep(e Event) {
	if b.buffer.add(e) {
		b.evicted.Add(1)
	}
}

// Snapshot returns every buffered event, oldest first.
func (b *Bus) Snapshot() []Event {
	if b == nil {
		return nil
	}
	return b.buffer.last(0)
}

// RecentEvents returns the last n buffered events. n <= 0 or more than are
// buffered returns all of them.
func (b *Bus) RecentEvents(n int) []Event {
	if b == nil {
		return nil
	}
	return b.buffer.last(n)
}

// Buffered returns how many events the bus currently holds.
func (b *Bus) Buffered() int {
	if b == nil {
		return 0
	}
	return b.buffer.buffered()
}

// Evicted returns how many buffered events were overwritten by newer ones.
func (b *Bus) Evicted() uint64 {
	if b == nil {
		return 0
	}
	return b.evicted.Load()
}

// Total returns how many events were emitted since the bus was created.
func (b *Bus) Total() uint64 {
	if b == nil {
		return 0
	}
	return b.total.Load()
}

// Clear resets the event buffer.
func (b *Bus) Clear() {
	if b == nil {
		return
	}
	b.buffer.reset()
}

// Subscribe adds a live subscriber.
func (b *Bus) Subscribe() Subscriber {
	return b.broadcaster.Subscribe()
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.broadcaster.Unsubscribe(sub)
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	return b.broadcaster.Count()
}

// CloseAllSubscribers disconnects every subscriber on shutdown.
func (b *Bus) CloseAllSubscribers() {
	b.broadcaster.CloseAll()
}
