// Package events carries engine and connectivity notifications to UI and
// telemetry subscribers over a small typed publish/subscribe bus with a
// fixed event catalogue.
package events

import (
	"sync"
	"time"
)

// Type enumerates the event catalogue.
type Type string

const (
	TypeConnectivityChanged Type = "connectivity_changed"
	TypeDrainCompleted      Type = "drain_completed"
	TypeDrainFailed         Type = "drain_failed"
	TypeConflictResolved    Type = "conflict_resolved"
	TypeRecordFailed        Type = "record_failed"
)

// Event is a single notification. Fields beyond Type and At are sparse and
// populated per event type.
type Event struct {
	Type Type
	At   time.Time

	// Reachability state name, for TypeConnectivityChanged.
	Reachability string

	// RecordID, for conflict/failure events.
	RecordID string

	// Winner of a conflict resolution: "local" or "remote".
	Winner string

	// Drain counters.
	Processed int
	Failed    int

	// Err carries the failure message, if any.
	Err string
}

// Bus fans events out to subscribers. Publish never blocks: when a
// subscriber's buffer is full the oldest buffered event is dropped to make
// room, so a stalled UI cannot stall the sync engine.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size (minimum 1)
// and returns its channel plus a cancel function. The channel is closed on
// cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers ev to all current subscribers. A zero At is stamped with
// the current time.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop the oldest event, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
