// Package adapter defines the capability boundary between the session core
// and per-service integrations. The core is indifferent to how an adapter
// locates input controls, injects text, or resolves an operation internally;
// it sees only success, failure, and return values.
package adapter

import (
	"context"
)

// Options carries per-task configuration as opaque string pairs (model
// name, feature selectors). Adapters interpret the keys they recognize and
// ignore the rest.
type Options map[string]string

// PlatformAdapter is the per-service integration surface. Each call is
// expected to be idempotent enough to retry safely: the retry manager may
// invoke the same phase several times before advancing.
type PlatformAdapter interface {
	// Prepare brings the session to a state where a task can be configured.
	Prepare(ctx context.Context) error

	// Configure applies per-task options before submission.
	Configure(ctx context.Context, opts Options) error

	// Submit delivers the task input to the service.
	Submit(ctx context.Context, input string) error

	// Extract reads the final (or partial) output after completion.
	Extract(ctx context.Context) (string, error)
}

// Continuer is implemented by adapters whose service requires an
// intermediate continuation step between two work phases (multi-phase
// completion shape).
type Continuer interface {
	Continue(ctx context.Context) error
}
