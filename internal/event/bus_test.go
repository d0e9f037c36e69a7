package event

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe("task.submitted", func(e Event) {
		got = e
	})

	bus.Publish(NewTaskSubmittedEvent("t1", "s1", "streaming"))

	if got == nil {
		t.Fatal("handler was not called")
	}
	ev, ok := got.(TaskSubmittedEvent)
	if !ok {
		t.Fatalf("event type = %T, want TaskSubmittedEvent", got)
	}
	if ev.TaskID != "t1" || ev.SessionKey != "s1" || ev.Mode != "streaming" {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if ev.Timestamp().IsZero() {
		t.Error("event timestamp should be set")
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("task.failed", func(Event) { calls++ })

	bus.Publish(NewTaskCompletedEvent("t1", "s1", false, 3, 42))

	if calls != 0 {
		t.Errorf("handler for task.failed called %d times for task.completed", calls)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewTaskSubmittedEvent("t1", "s1", "artifact"))
	bus.Publish(NewGuardEvictedEvent("s1", "t0", 20*time.Minute))
	bus.Publish(NewRetryEscalatedEvent("submit", 6, "refresh", "NetworkError"))

	want := []string{"task.submitted", "guard.evicted", "retry.escalated"}
	if len(types) != len(want) {
		t.Fatalf("got %d events, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe("task.failed", func(Event) { calls++ })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe() should return true for a live subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe() should return false the second time")
	}

	bus.Publish(NewTaskFailedEvent("t1", "s1", "General", "boom"))
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
}

func TestPanickingHandlerDoesNotBlockDelivery(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("task.failed", func(Event) { panic("bad handler") })

	called := false
	bus.Subscribe("task.failed", func(Event) { called = true })

	bus.Publish(NewTaskFailedEvent("t1", "s1", "General", "boom"))

	if !called {
		t.Error("second handler should still be called after a panic")
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewTaskSubmittedEvent("t", "s", "streaming"))
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("handler called %d times, want 1000", count)
	}
}

func TestClear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("task.failed", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if bus.SubscriptionCount() != 2 {
		t.Fatalf("SubscriptionCount() = %d, want 2", bus.SubscriptionCount())
	}

	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() after Clear = %d, want 0", bus.SubscriptionCount())
	}
}
