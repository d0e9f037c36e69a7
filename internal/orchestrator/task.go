package orchestrator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yamakatsunamamugi/autoai/internal/adapter"
	"github.com/yamakatsunamamugi/autoai/internal/detect"
	"github.com/yamakatsunamamugi/autoai/internal/errors"
)

// Task is one unit of work to run against a session.
type Task struct {
	// ID identifies this logical task. Re-submitting the same ID onto a
	// busy session is reported as AlreadyExecuting rather than SessionBusy.
	ID string

	// SessionKey names the session the task runs on. Exactly one task may
	// hold a key at a time.
	SessionKey string

	// Input is the text delivered at submission.
	Input string

	// Options carries per-task adapter configuration.
	Options adapter.Options

	// Mode selects the completion shape to watch for.
	Mode detect.Mode
}

// NewTask builds a task with a generated ID.
func NewTask(sessionKey, input string, mode detect.Mode) Task {
	return Task{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Input:      input,
		Mode:       mode,
	}
}

// validate rejects tasks the orchestrator cannot meaningfully run.
func (t Task) validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task ID must not be empty")
	}
	if strings.TrimSpace(t.SessionKey) == "" {
		return errors.New("session key must not be empty")
	}
	if strings.TrimSpace(t.Input) == "" {
		return errors.New("task input must not be empty")
	}
	return nil
}

// TaskResult is the uniform outcome of a task run. Failures are values,
// not raised errors: callers branch on Success and ErrorType.
type TaskResult struct {
	TaskID  string
	Success bool

	// Output is the extracted text. On a partial-output fallback where
	// extraction itself failed, it carries PartialUnavailable.
	Output string

	// Partial marks output captured after detection gave up rather than a
	// confirmed completion.
	Partial bool

	// Attempts is the total attempt count summed across all phases.
	Attempts int

	// ErrorType names the failure class on Success=false, or a refusal
	// reason when admission was denied. Empty on success.
	ErrorType string

	// Err carries the underlying error for diagnostics. Never set on
	// success.
	Err error
}

// PartialUnavailable is the placeholder output used when detection saw
// partial content but extraction could not read it back.
const PartialUnavailable = "<partial output unavailable>"
