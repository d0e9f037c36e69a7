package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/event"
)

func TestTryAdmitFreeSession(t *testing.T) {
	g := New()

	adm := g.TryAdmit("s1", "t1", 0)
	if !adm.Admitted {
		t.Fatalf("TryAdmit() refused a free session: %+v", adm)
	}

	holder, ok := g.Holder("s1")
	if !ok {
		t.Fatal("Holder() should report the admitted task")
	}
	if holder.TaskID != "t1" {
		t.Errorf("holder task = %q, want %q", holder.TaskID, "t1")
	}
	if holder.StartedAt.IsZero() || holder.LastActivityAt.IsZero() {
		t.Error("admission should stamp start and activity times")
	}
}

func TestTryAdmitRefusals(t *testing.T) {
	tests := []struct {
		name       string
		taskID     string
		wantReason string
	}{
		{"same task re-submission", "t1", ReasonAlreadyExecuting},
		{"different task", "t2", ReasonSessionBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			if adm := g.TryAdmit("s1", "t1", 0); !adm.Admitted {
				t.Fatal("setup admission refused")
			}

			adm := g.TryAdmit("s1", tt.taskID, 0)
			if adm.Admitted {
				t.Fatal("TryAdmit() should refuse a held session")
			}
			if adm.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", adm.Reason, tt.wantReason)
			}
			if adm.HolderTaskID != "t1" {
				t.Errorf("HolderTaskID = %q, want %q", adm.HolderTaskID, "t1")
			}
		})
	}
}

func TestStalenessEviction(t *testing.T) {
	current := time.Now()
	g := New(withClock(func() time.Time { return current }))

	if adm := g.TryAdmit("s1", "t1", 10*time.Minute); !adm.Admitted {
		t.Fatal("setup admission refused")
	}

	// Not yet stale: refused.
	current = current.Add(9 * time.Minute)
	if adm := g.TryAdmit("s1", "t2", 10*time.Minute); adm.Admitted {
		t.Fatal("TryAdmit() should refuse before staleAfter elapses")
	}

	// Stale: evicted and superseded.
	current = current.Add(2 * time.Minute)
	adm := g.TryAdmit("s1", "t2", 10*time.Minute)
	if !adm.Admitted {
		t.Fatalf("TryAdmit() should evict the stale holder: %+v", adm)
	}

	holder, _ := g.Holder("s1")
	if holder.TaskID != "t2" {
		t.Errorf("holder task = %q, want %q", holder.TaskID, "t2")
	}
}

func TestEvictionPublishesEvent(t *testing.T) {
	current := time.Now()
	bus := event.NewBus()

	var got event.GuardEvictedEvent
	received := false
	bus.Subscribe("guard.evicted", func(e event.Event) {
		got = e.(event.GuardEvictedEvent)
		received = true
	})

	g := New(WithBus(bus), withClock(func() time.Time { return current }))
	g.TryAdmit("s1", "t1", time.Minute)

	current = current.Add(2 * time.Minute)
	g.TryAdmit("s1", "t2", time.Minute)

	if !received {
		t.Fatal("eviction should publish guard.evicted")
	}
	if got.SessionKey != "s1" || got.EvictedTaskID != "t1" {
		t.Errorf("unexpected event fields: %+v", got)
	}
	if got.HeldFor != 2*time.Minute {
		t.Errorf("HeldFor = %s, want 2m", got.HeldFor)
	}
}

func TestConcurrentAdmissionExactlyOneWins(t *testing.T) {
	g := New()

	const contenders = 32
	var wg sync.WaitGroup
	results := make([]Admission, contenders)

	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = g.TryAdmit("s1", "task-"+string(rune('a'+i)), 0)
		}(i)
	}
	close(start)
	wg.Wait()

	admitted := 0
	for _, adm := range results {
		if adm.Admitted {
			admitted++
		} else if adm.Reason != ReasonSessionBusy {
			t.Errorf("refusal reason = %q, want %q", adm.Reason, ReasonSessionBusy)
		}
	}
	if admitted != 1 {
		t.Errorf("admitted = %d, want exactly 1", admitted)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New()

	// Releasing a never-admitted key is a no-op.
	g.Release("s1")

	g.TryAdmit("s1", "t1", 0)
	g.Release("s1")
	g.Release("s1") // second release is also a no-op

	if _, ok := g.Holder("s1"); ok {
		t.Error("session should be free after release")
	}
	if adm := g.TryAdmit("s1", "t2", 0); !adm.Admitted {
		t.Error("released session should admit a new task")
	}
}

func TestTouchUpdatesActivity(t *testing.T) {
	current := time.Now()
	g := New(withClock(func() time.Time { return current }))

	g.TryAdmit("s1", "t1", 0)
	before, _ := g.Holder("s1")

	current = current.Add(time.Minute)
	g.Touch("s1")

	after, _ := g.Holder("s1")
	if !after.LastActivityAt.After(before.LastActivityAt) {
		t.Error("Touch() should advance LastActivityAt")
	}
	if !after.StartedAt.Equal(before.StartedAt) {
		t.Error("Touch() must not change StartedAt")
	}

	// Touching a free session is a no-op.
	g.Touch("s2")
}

func TestActiveCount(t *testing.T) {
	g := New()

	g.TryAdmit("s1", "t1", 0)
	g.TryAdmit("s2", "t2", 0)
	if got := g.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}

	g.Release("s1")
	if got := g.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}
