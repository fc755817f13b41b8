// Package events provides an in-process pub/sub bus for relay lifecycle
// events. Subscribers receive events in real time; slow subscribers lose
// events rather than block the data path.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the relay core.
const (
	TypeNodeRegistered = "node.registered"
	TypeMessageRelayed = "message.relayed"
	TypeMessageBounced = "message.bounced"
	TypeMessageDropped = "message.dropped"
	TypeVerifyFailed   = "verify.failed"
)

// Event is one relay lifecycle notification.
type Event struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Source  string                 `json:"source"`
	Subject string                 `json:"subject,omitempty"`
	Time    time.Time              `json:"time"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType, source, subject string, data map[string]interface{}) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Source:  source,
		Subject: subject,
		Time:    time.Now(),
		Data:    data,
	}
}

// Bus is an in-process pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *Event // event type -> channels
	allSubs     []chan *Event
	logger      *log.Logger
	bufferSize  int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *Event),
		allSubs:     make([]chan *Event, 0),
		logger:      log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
		bufferSize:  100,
	}
}

// Subscribe creates a channel receiving events of the given types.
// Pass no types to receive all events.
func (b *Bus) Subscribe(eventTypes ...string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, b.bufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
	} else {
		for _, et := range eventTypes {
			b.subscribers[et] = append(b.subscribers[et], ch)
		}
	}
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for et, subs := range b.subscribers {
		filtered := subs[:0]
		for _, s := range subs {
			if s != ch {
				filtered = append(filtered, s)
			}
		}
		b.subscribers[et] = filtered
	}

	filtered := b.allSubs[:0]
	for _, s := range b.allSubs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.allSubs = filtered

	close(ch)
}

// Publish delivers an event to all matching subscribers without blocking.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop.
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emit creates and publishes an event. A nil *Bus is a no-op so components
// can treat the bus as optional.
func (b *Bus) Emit(eventType, source, subject string, data map[string]interface{}) {
	if b == nil {
		return
	}
	b.Publish(NewEvent(eventType, source, subject, data))
}

// SubscriberCount returns the number of active subscription channels.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}
