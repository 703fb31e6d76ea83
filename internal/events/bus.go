package events

import (
	"sync"
	"time"
)

// EventType names a domain event.
type EventType string

const (
	// EventExecutorStarted is published when an executor begins polling.
	EventExecutorStarted EventType = "executor:started"
	// EventExecutorStopped is published after an executor has shut down.
	EventExecutorStopped EventType = "executor:stopped"
	// EventTaskClaimed is published when an agent takes a task.
	EventTaskClaimed EventType = "task:claimed"
	// EventTaskMoved is published after a task changes queue.
	EventTaskMoved EventType = "task:moved"
	// EventTaskCreated is published when a task is inserted.
	EventTaskCreated EventType = "task:created"
	// EventTaskUpdated is published for edits, errors and releases.
	EventTaskUpdated EventType = "task:updated"
	// EventTaskDeleted is published when a task is removed.
	EventTaskDeleted EventType = "task:deleted"
	// EventTaskComment is published when a comment is appended.
	EventTaskComment EventType = "task:comment"
)

// AllTypes lists every event type, in a stable order.
var AllTypes = []EventType{
	EventExecutorStarted,
	EventExecutorStopped,
	EventTaskClaimed,
	EventTaskMoved,
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskDeleted,
	EventTaskComment,
}

// Event is a single published occurrence.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber receives events.
type Subscriber func(Event)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(eventType EventType, data map[string]interface{})
}

// Bus is a non-blocking publish/subscribe hub. Each subscriber owns a
// buffered channel; when it is full the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool
}

// NewBus creates a bus with the given per-subscriber buffer.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe func.
// fn runs on its own goroutine; panics inside it are recovered.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	unsubs := make([]func(), 0, len(AllTypes))
	for _, t := range AllTypes {
		unsubs = append(unsubs, b.Subscribe(t, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish delivers an event to the current subscribers of its type.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
	b.closed = true
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(EventType, map[string]interface{}) {}
