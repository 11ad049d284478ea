// Package events implements the publish-only fan-out bus: a channel
// per subscriber, with a non-blocking broadcast so a slow subscriber
// cannot stall a run.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Type names a published event.
type Type string

const (
	Health              Type = "health"
	Stats               Type = "stats"
	CollectionProgress  Type = "collectionProgress"
	CollectionCompleted Type = "collectionCompleted"
	SchemaChange        Type = "schemaChange"
	AutoRunTriggered    Type = "autoRunTriggered"
	RecoveryProgress    Type = "recoveryProgress"
	CollectionRecovered Type = "collectionRecovered"
	AuthProgress        Type = "authProgress"
	AuthCompleted       Type = "authCompleted"
	IntegrityReport     Type = "integrityReport"
	AuthIntegrityReport Type = "authIntegrityReport"
	RunStarted          Type = "started"
	RunCompleted        Type = "completed"
	StatsReset          Type = "statsReset"
	Busy                Type = "busy"
)

// Event wraps a typed payload for transit over the bus.
type Event struct {
	Type    Type
	Payload interface{}
}

// subscriberBuffer is the bounded capacity of each subscriber
// channel; beyond this, the bus drops the oldest unread event rather
// than block the publisher ("overflow may drop events or
// buffer per subscriber, implementer's choice").
const subscriberBuffer = 64

// Bus is a many-readers, one-writer-per-run fan-out. Zero value is
// usable.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Event)}
}

// Subscribe registers a new listener and returns its ID (for
// Unsubscribe) and receive channel.
func (b *Bus) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Publish fans an event out to every current subscriber. A full
// subscriber buffer causes that subscriber's oldest event to be
// dropped to make room; publish itself never blocks.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}
