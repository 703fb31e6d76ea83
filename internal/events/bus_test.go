package events

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(EventTaskMoved, func(e Event) { got <- e })

	bus.Publish(EventTaskMoved, map[string]interface{}{"task_id": "t1"})

	e := waitFor(t, got)
	if e.Type != EventTaskMoved {
		t.Errorf("Type = %q, want %q", e.Type, EventTaskMoved)
	}
	if e.Data["task_id"] != "t1" {
		t.Errorf("Data[task_id] = %v, want t1", e.Data["task_id"])
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 2)
	bus.Subscribe(EventTaskCreated, func(e Event) { got <- e })

	bus.Publish(EventTaskDeleted, nil)
	bus.Publish(EventTaskCreated, nil)

	e := waitFor(t, got)
	if e.Type != EventTaskCreated {
		t.Errorf("Type = %q, want %q", e.Type, EventTaskCreated)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe(EventTaskComment, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()

	bus.Publish(EventTaskComment, nil)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("received %d events after unsubscribe", count)
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	block := make(chan struct{})
	bus.Subscribe(EventTaskUpdated, func(Event) { <-block })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(EventTaskUpdated, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	close(block)
}

func TestSubscriberPanicRecovered(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 2)
	bus.Subscribe(EventTaskClaimed, func(e Event) {
		if e.Data["panic"] == true {
			panic("boom")
		}
		got <- e
	})

	bus.Publish(EventTaskClaimed, map[string]interface{}{"panic": true})
	bus.Publish(EventTaskClaimed, map[string]interface{}{"panic": false})

	e := waitFor(t, got)
	if e.Data["panic"] != false {
		t.Error("expected second event after recovered panic")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, len(AllTypes))
	unsub := bus.SubscribeAll(func(e Event) { got <- e })
	defer unsub()

	bus.Publish(EventExecutorStarted, nil)
	bus.Publish(EventExecutorStopped, nil)

	seen := map[EventType]bool{}
	seen[waitFor(t, got).Type] = true
	seen[waitFor(t, got).Type] = true
	if !seen[EventExecutorStarted] || !seen[EventExecutorStopped] {
		t.Errorf("expected both executor events, got %v", seen)
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus(10)
	bus.Subscribe(EventTaskMoved, func(Event) {})
	bus.Close()

	// Must not panic on closed channels.
	bus.Publish(EventTaskMoved, nil)
}
