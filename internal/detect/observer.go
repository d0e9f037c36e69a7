// Package detect infers task completion from externally visible progress
// signals. The target services expose no deterministic completion callback:
// the only evidence is an "operation in progress" indicator and a growing
// output buffer, sampled on demand through a ProgressObserver.
//
// Three completion shapes are supported:
//   - Streaming: output accumulates inline; completion is the indicator
//     going inactive.
//   - Artifact: output accumulates in a side-channel long-form container;
//     completion is the container's length going stable.
//   - MultiPhase: two work phases separated by a continuation trigger, with
//     flicker-tolerant confirmation of the final clearance.
package detect

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode identifies the completion shape of a task.
type Mode int

const (
	// ModeStreaming is inline, continuously streamed output.
	ModeStreaming Mode = iota
	// ModeArtifact is output accumulating in a side-channel container.
	ModeArtifact
	// ModeMultiPhase is a two-phase flow with an intermediate continuation.
	ModeMultiPhase
)

// String returns the mode name used in task schemas, logs, and events.
func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModeArtifact:
		return "artifact"
	case ModeMultiPhase:
		return "multiphase"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "streaming":
		return ModeStreaming, nil
	case "artifact":
		return ModeArtifact, nil
	case "multiphase", "multi-phase":
		return ModeMultiPhase, nil
	default:
		return ModeStreaming, fmt.Errorf("unknown mode %q", s)
	}
}

// ProgressSample is a point-in-time observation of the target service.
// Samples are ephemeral: produced on demand, consumed immediately, never
// persisted.
type ProgressSample struct {
	// Active reports whether the "operation in progress" indicator is shown.
	Active bool

	// OutputLength is the current size of the observable output. For
	// artifact mode this is the side-channel container's content length;
	// zero means the container has not appeared or is empty.
	OutputLength int

	// Timestamp is when the sample was taken.
	Timestamp time.Time
}

// Observer yields progress samples on demand at the detector's poll
// cadence. Implementations must not block longer than a small bounded time.
type Observer interface {
	Sample(ctx context.Context) ProgressSample
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context) ProgressSample

func (f ObserverFunc) Sample(ctx context.Context) ProgressSample { return f(ctx) }

// Status is the terminal state of a detection run.
type Status int

const (
	// StatusCompleted means the service finished and full output is
	// expected to be available.
	StatusCompleted Status = iota
	// StatusCompletedPartial means the wait budget elapsed after some
	// output had been observed; partial output is available.
	StatusCompletedPartial
	// StatusTimedOut means the wait budget elapsed (or the run was
	// cancelled) with no observable output.
	StatusTimedOut
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCompletedPartial:
		return "completed_partial"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result describes the outcome of a detection run.
type Result struct {
	// Status is the terminal state reached.
	Status Status

	// Elapsed is how long detection ran.
	Elapsed time.Duration

	// Polls is how many progress samples were taken.
	Polls int

	// Err carries detail for TimedOut results (cancellation, the indicator
	// never appearing, a failed continuation). Nil for completed results.
	Err error
}

// Partial reports whether the result carries only partial output.
func (r Result) Partial() bool {
	return r.Status == StatusCompletedPartial
}
