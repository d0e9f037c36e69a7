// Package guard prevents two overlapping logical tasks from driving the
// same session concurrently. It keeps a process-wide keyed registry with a
// single atomic check-then-insert admission step, replacing ad hoc
// "task executing" flags and their check-then-act races.
package guard

import (
	"sync"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/event"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
)

// DefaultStaleAfter is how old a holder may be before it is treated as
// abandoned by a crashed task and evicted.
const DefaultStaleAfter = 15 * time.Minute

// Refusal reasons returned in Admission.Reason. These are stable strings
// surfaced in TaskResult.ErrorType.
const (
	ReasonAlreadyExecuting = "AlreadyExecuting"
	ReasonSessionBusy      = "SessionBusy"
)

// SessionState records the current holder of a session. Owned exclusively
// by the guard: written at admission, touched on activity, deleted on
// release or staleness eviction.
type SessionState struct {
	SessionKey     string
	TaskID         string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Admission is the outcome of a TryAdmit call. A refusal is a normal
// synchronous outcome meaning "try later", not an error.
type Admission struct {
	Admitted bool

	// Reason is set on refusal: ReasonAlreadyExecuting for an idempotent
	// re-submission of the in-flight task, ReasonSessionBusy otherwise.
	Reason string

	// HolderTaskID identifies the current holder on refusal, for
	// diagnostics.
	HolderTaskID string
}

// Guard is the process-wide duplicate-execution registry.
// It is safe for concurrent use; all admissions across all session keys are
// serialized by one mutex, keeping check-then-insert atomic.
type Guard struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
	logger   *logging.Logger
	bus      *event.Bus
	now      func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithBus sets the event bus for eviction events.
func WithBus(b *event.Bus) Option {
	return func(g *Guard) { g.bus = b }
}

// withClock overrides the time source, for tests.
func withClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates an empty guard registry.
func New(opts ...Option) *Guard {
	g := &Guard{
		sessions: make(map[string]*SessionState),
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAdmit admits taskID onto sessionKey if the session is free, the prior
// holder is stale, or nothing holds it. staleAfter <= 0 uses
// DefaultStaleAfter. The check-then-insert sequence is atomic.
func (g *Guard) TryAdmit(sessionKey, taskID string, staleAfter time.Duration) Admission {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	g.mu.Lock()
	now := g.now()

	var evicted *SessionState
	if existing, ok := g.sessions[sessionKey]; ok {
		if now.Sub(existing.StartedAt) > staleAfter {
			// The prior holder is presumed crashed: evict and admit.
			evicted = existing
		} else if existing.TaskID == taskID {
			holder := existing.TaskID
			g.mu.Unlock()
			return Admission{Reason: ReasonAlreadyExecuting, HolderTaskID: holder}
		} else {
			holder := existing.TaskID
			g.mu.Unlock()
			return Admission{Reason: ReasonSessionBusy, HolderTaskID: holder}
		}
	}

	g.sessions[sessionKey] = &SessionState{
		SessionKey:     sessionKey,
		TaskID:         taskID,
		StartedAt:      now,
		LastActivityAt: now,
	}
	g.mu.Unlock()

	if evicted != nil {
		heldFor := now.Sub(evicted.StartedAt)
		g.logger.Warn("evicted stale session holder",
			"session_key", sessionKey,
			"evicted_task_id", evicted.TaskID,
			"held_for", heldFor.String(),
		)
		if g.bus != nil {
			g.bus.Publish(event.NewGuardEvictedEvent(sessionKey, evicted.TaskID, heldFor))
		}
	}

	return Admission{Admitted: true}
}

// Touch updates the holder's last-activity time. A no-op when the session
// is not held.
func (g *Guard) Touch(sessionKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state, ok := g.sessions[sessionKey]; ok {
		state.LastActivityAt = g.now()
	}
}

// Release removes the session entry unconditionally. Safe to call when no
// entry exists, and safe to call more than once.
func (g *Guard) Release(sessionKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.sessions, sessionKey)
}

// Holder returns a copy of the current holder's state and true, or a zero
// state and false if the session is free.
func (g *Guard) Holder(sessionKey string) (SessionState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state, ok := g.sessions[sessionKey]; ok {
		return *state, true
	}
	return SessionState{}, false
}

// ActiveCount returns the number of held sessions.
func (g *Guard) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.sessions)
}
