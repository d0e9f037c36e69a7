// Package errors provides centralized error definitions and classification
// for the autoai codebase. It defines domain-specific errors, sentinel
// errors, and the failure taxonomy that drives retry escalation decisions.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - AdapterError: errors surfaced by a platform adapter phase call
//   - DetectionError: errors from completion detection
//   - GuardError: admission refusals and guard registry failures
//
// Semantic errors represent common conditions:
//   - NotFoundError: an expected resource or interactive element was absent
//   - TimeoutError: an operation exceeded its wait budget
//
// # Classification
//
// Every failure surfaced by a phase function is mapped to a Classification
// (Overload, RateLimited, ModeSpecific, Network, ResourceNotFound, Timing,
// Cancelled, General). Classification is computed freshly per failure by a
// Classifier (see classify.go) and is never stored beyond the current retry
// decision.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Classification Taxonomy
// -----------------------------------------------------------------------------

// Classification is the enumerated failure category attached to any error
// surfaced by a phase function. It determines the escalation behavior of the
// retry manager.
type Classification int

const (
	// ClassGeneral is the conservative default for unclassified failures.
	ClassGeneral Classification = iota
	// ClassOverload indicates the target service reported overload or
	// exhausted quota. Escalates immediately to the Reset tier.
	ClassOverload
	// ClassRateLimited indicates the target service throttled the request.
	// Escalates immediately to the Reset tier.
	ClassRateLimited
	// ClassModeSpecific indicates a failure particular to a completion shape
	// (artifact container missing, continuation step rejected, ...).
	ClassModeSpecific
	// ClassNetwork indicates connectivity failures and request timeouts.
	ClassNetwork
	// ClassResourceNotFound indicates an expected interactive element or
	// state was absent.
	ClassResourceNotFound
	// ClassTiming indicates an operation was attempted before the target
	// was ready.
	ClassTiming
	// ClassCancelled indicates the surrounding context was cancelled.
	// Never retried.
	ClassCancelled
)

// String returns the stable string name for a classification. These names
// appear in TaskResult.ErrorType and in logs.
func (c Classification) String() string {
	switch c {
	case ClassOverload:
		return "Overload"
	case ClassRateLimited:
		return "RateLimited"
	case ClassModeSpecific:
		return "ModeSpecific"
	case ClassNetwork:
		return "NetworkError"
	case ClassResourceNotFound:
		return "ResourceNotFound"
	case ClassTiming:
		return "TimingError"
	case ClassCancelled:
		return "Cancelled"
	case ClassGeneral:
		return "General"
	default:
		return "Unknown"
	}
}

// ImmediatelyEscalates reports whether this classification bypasses the
// attempt-based tier ladder and jumps straight to the Reset tier.
func (c Classification) ImmediatelyEscalates() bool {
	return c == ClassOverload || c == ClassRateLimited
}

// Retryable reports whether a failure with this classification may be
// retried at all. Only cancellation is terminal.
func (c Classification) Retryable() bool {
	return c != ClassCancelled
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Guard-related sentinel errors
var (
	// ErrAlreadyExecuting indicates the same task was re-submitted while
	// still in flight on its session.
	ErrAlreadyExecuting = New("task already executing")
	// ErrSessionBusy indicates a different task currently holds the session.
	ErrSessionBusy = New("another task in progress on session")
)

// Detection-related sentinel errors
var (
	// ErrDetectionTimeout indicates completion was never observed within
	// the wait budget and no partial output existed.
	ErrDetectionTimeout = New("completion not detected before deadline")
	// ErrIndicatorNeverAppeared indicates the in-progress indicator never
	// showed up within the initial appearance window (multi-phase mode).
	ErrIndicatorNeverAppeared = New("progress indicator never appeared")
)

// General sentinel errors
var (
	// ErrCancelled indicates an operation was cancelled by the caller.
	ErrCancelled = New("operation cancelled")
	// ErrAttemptsExhausted indicates the retry manager hit its attempt
	// ceiling without a success.
	ErrAttemptsExhausted = New("attempt ceiling reached")
	// ErrNotReady indicates the target was not yet ready for the operation.
	ErrNotReady = New("target not ready")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// baseError provides common functionality for the domain error types.
type baseError struct {
	message string
	cause   error
	class   Classification
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Class returns the classification carried by this error.
func (e *baseError) Class() Classification { return e.class }

// classified is implemented by errors that carry their own classification.
// The Classifier honors it before falling back to message inspection.
type classified interface {
	Class() Classification
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// AdapterError represents a failure surfaced by a platform adapter call.
//
// Example:
//
//	err := errors.NewAdapterError("submit", "input box rejected text", cause)
//	err = err.WithClass(errors.ClassTiming)
type AdapterError struct {
	baseError
	Phase string
}

// NewAdapterError creates a new AdapterError for the given phase.
func NewAdapterError(phase, message string, cause error) *AdapterError {
	return &AdapterError{
		baseError: baseError{message: message, cause: cause, class: ClassGeneral},
		Phase:     phase,
	}
}

// WithClass sets the classification carried by the error.
func (e *AdapterError) WithClass(c Classification) *AdapterError {
	e.class = c
	return e
}

// Error returns the formatted error message.
func (e *AdapterError) Error() string {
	prefix := "adapter error"
	if e.Phase != "" {
		prefix = fmt.Sprintf("adapter error [phase=%s]", e.Phase)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AdapterError) Is(target error) bool {
	if _, ok := target.(*AdapterError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DetectionError represents a failure from the completion detector.
type DetectionError struct {
	baseError
	Mode string
}

// NewDetectionError creates a new DetectionError.
func NewDetectionError(mode, message string, cause error) *DetectionError {
	return &DetectionError{
		baseError: baseError{message: message, cause: cause, class: ClassModeSpecific},
		Mode:      mode,
	}
}

// Error returns the formatted error message.
func (e *DetectionError) Error() string {
	prefix := "detection error"
	if e.Mode != "" {
		prefix = fmt.Sprintf("detection error [mode=%s]", e.Mode)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DetectionError) Is(target error) bool {
	if _, ok := target.(*DetectionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GuardError represents an admission refusal from the duplicate-execution
// guard. A refusal is a normal, synchronous outcome, not a retryable failure;
// callers are expected to report it and try later.
type GuardError struct {
	baseError
	SessionKey string
	HolderID   string
}

// NewGuardError creates a new GuardError wrapping a guard sentinel.
func NewGuardError(sessionKey, holderID string, cause error) *GuardError {
	return &GuardError{
		baseError:  baseError{message: "admission refused", cause: cause, class: ClassGeneral},
		SessionKey: sessionKey,
		HolderID:   holderID,
	}
}

// Error returns the formatted error message.
func (e *GuardError) Error() string {
	prefix := fmt.Sprintf("guard error [session=%s", e.SessionKey)
	if e.HolderID != "" {
		prefix += fmt.Sprintf(", holder=%s", e.HolderID)
	}
	prefix += "]"
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *GuardError) Is(target error) bool {
	if _, ok := target.(*GuardError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents an expected resource or interactive element that
// was absent when an operation needed it.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message: fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			class:   ClassResourceNotFound,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that exceeded its wait budget.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{message: operation, class: ClassNetwork},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrDetectionTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "submit phase failed")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
