package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/adapter"
	"github.com/yamakatsunamamugi/autoai/internal/detect"
	"github.com/yamakatsunamamugi/autoai/internal/errors"
	"github.com/yamakatsunamamugi/autoai/internal/guard"
	"github.com/yamakatsunamamugi/autoai/internal/retry"
)

// fakeAdapter scripts phase failures and replays a progress trace. It
// implements the full capability surface including remedies and the
// continuation step.
type fakeAdapter struct {
	mu sync.Mutex

	// Remaining failures to inject per phase.
	prepareFailures int
	submitFailures  int
	extractFailures int
	extractBroken   bool

	output  string
	samples []detect.ProgressSample
	next    int

	// gate, when set, keeps samples active until it is closed.
	gate chan struct{}

	prepares, configures, submits, extracts int
	refreshes, resets, continues            int
}

func (f *fakeAdapter) Prepare(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepares++
	if f.prepareFailures > 0 {
		f.prepareFailures--
		return errors.New("session not ready")
	}
	return nil
}

func (f *fakeAdapter) Configure(ctx context.Context, opts adapter.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configures++
	return nil
}

func (f *fakeAdapter) Submit(ctx context.Context, input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitFailures > 0 {
		f.submitFailures--
		return errors.New("input field missing")
	}
	return nil
}

func (f *fakeAdapter) Extract(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts++
	if f.extractBroken {
		return "", errors.New("response container vanished")
	}
	if f.extractFailures > 0 {
		f.extractFailures--
		return "", errors.New("response container vanished")
	}
	return f.output, nil
}

func (f *fakeAdapter) Continue(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continues++
	return nil
}

func (f *fakeAdapter) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeAdapter) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeAdapter) Sample(ctx context.Context) detect.ProgressSample {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
			return detect.ProgressSample{Active: false, OutputLength: len(f.output)}
		default:
			return detect.ProgressSample{Active: true, OutputLength: len(f.output)}
		}
	}
	if len(f.samples) == 0 {
		return detect.ProgressSample{Active: false, OutputLength: len(f.output)}
	}
	if f.next >= len(f.samples) {
		return f.samples[len(f.samples)-1]
	}
	s := f.samples[f.next]
	f.next++
	return s
}

func (f *fakeAdapter) counts() (prepares, submits, extracts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepares, f.submits, f.extracts
}

// recordingSink captures hook invocations.
type recordingSink struct {
	mu        sync.Mutex
	submitted []Task
	completed []TaskResult
	failed    []TaskResult
}

func (s *recordingSink) OnSubmitted(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, task)
}

func (s *recordingSink) OnCompleted(task Task, result TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, result)
}

func (s *recordingSink) OnFailed(task Task, result TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, result)
}

func (s *recordingSink) snapshot() (submitted, completed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted), len(s.completed), len(s.failed)
}

// testConfig returns timing parameters scaled down for tests.
func testConfig() Config {
	return Config{
		Retry: retry.Config{
			MaxAttempts:            20,
			RateLimitedMaxAttempts: 30,
			LocalDelays:            []time.Duration{0},
			RefreshDelays:          []time.Duration{0},
			ResetDelays:            []time.Duration{0},
		},
		Detect: detect.Config{
			PollInterval:       time.Millisecond,
			StabilityWindow:    10 * time.Millisecond,
			SettleDelay:        time.Millisecond,
			AppearWindow:       50 * time.Millisecond,
			ConfirmationWindow: 5 * time.Millisecond,
			ExtendedMaxWait:    time.Second,
		},
		StreamingMaxWait:  time.Second,
		ArtifactMaxWait:   time.Second,
		MultiPhaseMaxWait: time.Second,
	}
}

func s(active bool, length int) detect.ProgressSample {
	return detect.ProgressSample{Active: active, OutputLength: length}
}

func TestRunTaskHappyPath(t *testing.T) {
	fake := &fakeAdapter{
		output:  "the answer",
		samples: []detect.ProgressSample{s(true, 0), s(true, 10), s(false, 10)},
	}
	sink := &recordingSink{}
	o := New(testConfig(), fake, fake, WithSink(sink))

	task := NewTask("session-1", "summarize", detect.ModeStreaming)
	res := o.RunTask(context.Background(), task)

	if !res.Success {
		t.Fatalf("RunTask() failed: %+v", res)
	}
	if res.Output != "the answer" {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Partial {
		t.Error("confirmed completion should not be partial")
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4 (one per phase)", res.Attempts)
	}
	submitted, completed, failed := sink.snapshot()
	if submitted != 1 || completed != 1 || failed != 0 {
		t.Errorf("sink calls = %d/%d/%d, want 1/1/0", submitted, completed, failed)
	}
}

func TestRunTaskValidationFailure(t *testing.T) {
	fake := &fakeAdapter{}
	o := New(testConfig(), fake, fake)

	res := o.RunTask(context.Background(), NewTask("session-1", "   ", detect.ModeStreaming))

	if res.Success {
		t.Fatal("blank input should be rejected")
	}
	if prepares, _, _ := fake.counts(); prepares != 0 {
		t.Error("no phase should run for an invalid task")
	}
	if o.Guard().ActiveCount() != 0 {
		t.Error("invalid task must not hold the session")
	}
}

func TestRunTaskDoubleSubmission(t *testing.T) {
	// Two tasks race for the same session: the second is refused with
	// SessionBusy while the first holds, and succeeds after release.
	gate := make(chan struct{})
	fake := &fakeAdapter{output: "done", gate: gate}
	sink := &recordingSink{}
	o := New(testConfig(), fake, fake, WithSink(sink))

	first := NewTask("session-1", "long running", detect.ModeStreaming)
	firstDone := make(chan TaskResult, 1)
	go func() { firstDone <- o.RunTask(context.Background(), first) }()

	// Wait until the first task actually holds the session.
	deadline := time.Now().Add(2 * time.Second)
	for o.Guard().ActiveCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first task never acquired the session")
		}
		time.Sleep(time.Millisecond)
	}

	second := NewTask("session-1", "duplicate", detect.ModeStreaming)
	res := o.RunTask(context.Background(), second)
	if res.Success {
		t.Fatal("second task should be refused while the first holds")
	}
	if res.ErrorType != guard.ReasonSessionBusy {
		t.Errorf("ErrorType = %q, want %q", res.ErrorType, guard.ReasonSessionBusy)
	}

	close(gate)
	firstRes := <-firstDone
	if !firstRes.Success {
		t.Fatalf("first task should complete unaffected: %+v", firstRes)
	}

	// Refusals fire no sink hooks; only the first task's lifecycle shows.
	submitted, completed, failed := sink.snapshot()
	if submitted != 1 || completed != 1 || failed != 0 {
		t.Errorf("sink calls = %d/%d/%d, want 1/1/0", submitted, completed, failed)
	}

	// The session is free again.
	third := NewTask("session-1", "follow-up", detect.ModeStreaming)
	if res := o.RunTask(context.Background(), third); !res.Success {
		t.Errorf("released session should admit a new task: %+v", res)
	}
}

func TestRunTaskSameIDRefusedAsAlreadyExecuting(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeAdapter{output: "done", gate: gate}
	o := New(testConfig(), fake, fake)

	task := NewTask("session-1", "work", detect.ModeStreaming)
	done := make(chan TaskResult, 1)
	go func() { done <- o.RunTask(context.Background(), task) }()

	deadline := time.Now().Add(2 * time.Second)
	for o.Guard().ActiveCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("task never acquired the session")
		}
		time.Sleep(time.Millisecond)
	}

	res := o.RunTask(context.Background(), task)
	if res.ErrorType != guard.ReasonAlreadyExecuting {
		t.Errorf("ErrorType = %q, want %q", res.ErrorType, guard.ReasonAlreadyExecuting)
	}

	close(gate)
	<-done
}

func TestRunTaskPhaseExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.RateLimitedMaxAttempts = 3

	fake := &fakeAdapter{prepareFailures: 99}
	sink := &recordingSink{}
	o := New(cfg, fake, fake, WithSink(sink))

	res := o.RunTask(context.Background(), NewTask("session-1", "work", detect.ModeStreaming))

	if res.Success {
		t.Fatal("exhausted prepare phase should fail the task")
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Err == nil {
		t.Error("failed result should carry the last error")
	}
	submitted, _, failed := sink.snapshot()
	if submitted != 0 {
		t.Error("OnSubmitted must not fire when submission never happened")
	}
	if failed != 1 {
		t.Errorf("OnFailed calls = %d, want 1", failed)
	}
	if o.Guard().ActiveCount() != 0 {
		t.Error("session must be released after failure")
	}
}

func TestRunTaskRecoveryUsesAdapterRemedies(t *testing.T) {
	// Six prepare failures walk the ladder into the refresh tier; the
	// adapter's own Refresh must be invoked without explicit wiring.
	fake := &fakeAdapter{
		prepareFailures: 6,
		output:          "recovered",
		samples:         []detect.ProgressSample{s(false, 9)},
	}
	o := New(testConfig(), fake, fake)

	res := o.RunTask(context.Background(), NewTask("session-1", "work", detect.ModeStreaming))

	if !res.Success {
		t.Fatalf("task should recover: %+v", res)
	}
	fake.mu.Lock()
	refreshes := fake.refreshes
	fake.mu.Unlock()
	if refreshes == 0 {
		t.Error("refresh remedy should have run during escalation")
	}
}

func TestRunTaskTimeoutWithoutPartialFails(t *testing.T) {
	cfg := testConfig()
	cfg.StreamingMaxWait = 20 * time.Millisecond

	fake := &fakeAdapter{samples: []detect.ProgressSample{s(true, 0)}}
	o := New(cfg, fake, fake)

	res := o.RunTask(context.Background(), NewTask("session-1", "work", detect.ModeStreaming))

	if res.Success {
		t.Fatal("timeout with no content must fail")
	}
	if res.Err == nil || res.ErrorType == "" {
		t.Errorf("timeout failure should be classified: %+v", res)
	}
	if _, _, extracts := fake.counts(); extracts != 0 {
		t.Error("extraction must not run after a contentless timeout")
	}
}

func TestRunTaskPartialOutputExtracted(t *testing.T) {
	cfg := testConfig()
	cfg.StreamingMaxWait = 20 * time.Millisecond

	fake := &fakeAdapter{
		output:  "partial text",
		samples: []detect.ProgressSample{s(true, 12)},
	}
	o := New(cfg, fake, fake)

	res := o.RunTask(context.Background(), NewTask("session-1", "work", detect.ModeStreaming))

	if !res.Success {
		t.Fatalf("partial content should still produce a result: %+v", res)
	}
	if !res.Partial {
		t.Error("Partial should be set after a timeout with content")
	}
	if res.Output != "partial text" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestRunTaskPartialFallbackPlaceholder(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.RateLimitedMaxAttempts = 2
	cfg.StreamingMaxWait = 20 * time.Millisecond

	fake := &fakeAdapter{
		extractBroken: true,
		samples:       []detect.ProgressSample{s(true, 12)},
	}
	o := New(cfg, fake, fake)

	res := o.RunTask(context.Background(), NewTask("session-1", "work", detect.ModeStreaming))

	if !res.Success {
		t.Fatalf("partial fallback should succeed: %+v", res)
	}
	if res.Output != PartialUnavailable {
		t.Errorf("Output = %q, want the placeholder", res.Output)
	}
	if !res.Partial {
		t.Error("placeholder result must be marked partial")
	}
}

func TestRunTaskMultiPhaseTriggersContinuation(t *testing.T) {
	fake := &fakeAdapter{
		output: "research report",
		samples: []detect.ProgressSample{
			s(true, 0),   // active at submission
			s(false, 10), // first phase done
			s(true, 10),  // second phase begins
			s(false, 40), // cleared; confirmation runs on repeats
		},
	}
	o := New(testConfig(), fake, fake)

	res := o.RunTask(context.Background(), NewTask("session-1", "deep dive", detect.ModeMultiPhase))

	if !res.Success {
		t.Fatalf("RunTask() failed: %+v", res)
	}
	fake.mu.Lock()
	continues := fake.continues
	fake.mu.Unlock()
	if continues != 1 {
		t.Errorf("continuation called %d times, want 1", continues)
	}
}

type panickySink struct{ NopSink }

func (panickySink) OnCompleted(Task, TaskResult) { panic("sink bug") }

func TestRunTaskContainsSinkPanic(t *testing.T) {
	fake := &fakeAdapter{
		output:  "ok",
		samples: []detect.ProgressSample{s(false, 2)},
	}
	o := New(testConfig(), fake, fake, WithSink(panickySink{}))

	res := o.RunTask(context.Background(), NewTask("session-1", "work", detect.ModeStreaming))

	if !res.Success {
		t.Fatalf("sink panic must not fail the task: %+v", res)
	}
	if o.Guard().ActiveCount() != 0 {
		t.Error("session must be released despite the sink panic")
	}
}

func TestRunTaskSharedGuardAcrossOrchestrators(t *testing.T) {
	shared := guard.New()
	gate := make(chan struct{})

	fakeA := &fakeAdapter{output: "a", gate: gate}
	fakeB := &fakeAdapter{output: "b", samples: []detect.ProgressSample{s(false, 1)}}

	oa := New(testConfig(), fakeA, fakeA, WithGuard(shared))
	ob := New(testConfig(), fakeB, fakeB, WithGuard(shared))

	done := make(chan TaskResult, 1)
	go func() { done <- oa.RunTask(context.Background(), NewTask("session-1", "first", detect.ModeStreaming)) }()

	deadline := time.Now().Add(2 * time.Second)
	for shared.ActiveCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first task never acquired the session")
		}
		time.Sleep(time.Millisecond)
	}

	res := ob.RunTask(context.Background(), NewTask("session-1", "second", detect.ModeStreaming))
	if res.Success || res.ErrorType != guard.ReasonSessionBusy {
		t.Errorf("cross-orchestrator admission should be refused: %+v", res)
	}

	close(gate)
	<-done
}
