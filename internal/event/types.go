package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.submitted", "guard.evicted").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskSubmittedEvent is emitted after a task's input has been delivered to
// the target service (the Submit phase succeeded).
type TaskSubmittedEvent struct {
	baseEvent
	TaskID     string // Unique identifier for the task
	SessionKey string // Session the task is executing on
	Mode       string // Completion shape ("streaming", "artifact", "multiphase")
}

// NewTaskSubmittedEvent creates a TaskSubmittedEvent.
func NewTaskSubmittedEvent(taskID, sessionKey, mode string) TaskSubmittedEvent {
	return TaskSubmittedEvent{
		baseEvent:  newBaseEvent("task.submitted"),
		TaskID:     taskID,
		SessionKey: sessionKey,
		Mode:       mode,
	}
}

// TaskCompletedEvent is emitted when a task finishes with a usable result,
// including partial output captured before a timeout.
type TaskCompletedEvent struct {
	baseEvent
	TaskID     string // Unique identifier for the task
	SessionKey string // Session the task executed on
	Partial    bool   // Whether the output is partial (timeout after progress)
	Attempts   int    // Total phase attempts consumed
	OutputLen  int    // Length of the extracted output
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID, sessionKey string, partial bool, attempts, outputLen int) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent:  newBaseEvent("task.completed"),
		TaskID:     taskID,
		SessionKey: sessionKey,
		Partial:    partial,
		Attempts:   attempts,
		OutputLen:  outputLen,
	}
}

// TaskFailedEvent is emitted when a task could not complete.
type TaskFailedEvent struct {
	baseEvent
	TaskID     string // Unique identifier for the task
	SessionKey string // Session the task executed on
	ErrorType  string // Classification name (e.g., "RateLimited")
	Error      string // Error message
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(taskID, sessionKey, errorType, errMsg string) TaskFailedEvent {
	return TaskFailedEvent{
		baseEvent:  newBaseEvent("task.failed"),
		TaskID:     taskID,
		SessionKey: sessionKey,
		ErrorType:  errorType,
		Error:      errMsg,
	}
}

// -----------------------------------------------------------------------------
// Guard Events
// -----------------------------------------------------------------------------

// GuardEvictedEvent is emitted when a stale session holder is evicted so a
// new task can be admitted.
type GuardEvictedEvent struct {
	baseEvent
	SessionKey    string        // Session whose holder was evicted
	EvictedTaskID string        // Task that held the session
	HeldFor       time.Duration // How long the stale entry had been held
}

// NewGuardEvictedEvent creates a GuardEvictedEvent.
func NewGuardEvictedEvent(sessionKey, evictedTaskID string, heldFor time.Duration) GuardEvictedEvent {
	return GuardEvictedEvent{
		baseEvent:     newBaseEvent("guard.evicted"),
		SessionKey:    sessionKey,
		EvictedTaskID: evictedTaskID,
		HeldFor:       heldFor,
	}
}

// -----------------------------------------------------------------------------
// Retry Events
// -----------------------------------------------------------------------------

// RetryEscalatedEvent is emitted when the retry manager moves an operation
// to a more drastic remedial tier.
type RetryEscalatedEvent struct {
	baseEvent
	Operation string // Name of the operation being retried
	Attempt   int    // Attempt number that triggered the escalation
	Tier      string // Tier name ("local", "refresh", "reset")
	ErrorType string // Classification that drove the decision
}

// NewRetryEscalatedEvent creates a RetryEscalatedEvent.
func NewRetryEscalatedEvent(operation string, attempt int, tier, errorType string) RetryEscalatedEvent {
	return RetryEscalatedEvent{
		baseEvent: newBaseEvent("retry.escalated"),
		Operation: operation,
		Attempt:   attempt,
		Tier:      tier,
		ErrorType: errorType,
	}
}
