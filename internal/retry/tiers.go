// Package retry implements the tiered retry and escalation machinery that
// wraps every fallible phase of a session task. Failures are classified,
// recorded, and answered with an increasingly drastic remedy: retry in
// place, refresh the session, or reset it entirely.
package retry

import (
	"context"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/errors"
)

// Tier identifies a remedial strategy of increasing severity.
type Tier int

const (
	// TierLocal retries in place with no side effect.
	TierLocal Tier = iota
	// TierRefresh reloads and re-establishes the current session in place.
	TierRefresh
	// TierReset clears session-local transient storage and re-establishes
	// the session, invalidating in-flight UI state.
	TierReset
)

// String returns the tier name used in logs and events.
func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierRefresh:
		return "refresh"
	case TierReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Attempt ranges for the tier ladder. Attempts 1..localMaxAttempt use
// TierLocal, localMaxAttempt+1..refreshMaxAttempt use TierRefresh, and
// everything beyond uses TierReset.
const (
	localMaxAttempt   = 5
	refreshMaxAttempt = 8
)

// rangeStart returns the first attempt number served by a tier. Delay
// schedules are indexed relative to this.
func (t Tier) rangeStart() int {
	switch t {
	case TierRefresh:
		return localMaxAttempt + 1
	case TierReset:
		return refreshMaxAttempt + 1
	default:
		return 1
	}
}

// Remedies supplies the side-effecting recovery actions for the Refresh and
// Reset tiers. Implementations come from the adapter layer; the escalation
// logic itself contains no platform-specific remediation code.
type Remedies interface {
	// Refresh reloads or re-establishes the current session in place.
	Refresh(ctx context.Context) error

	// Reset clears session-local transient storage and re-establishes the
	// session. More destructive than Refresh: in-flight UI state is assumed
	// to be invalidated.
	Reset(ctx context.Context) error
}

// NopRemedies is a Remedies implementation with no side effects, for tests
// and for adapters whose sessions cannot be refreshed.
type NopRemedies struct{}

func (NopRemedies) Refresh(context.Context) error { return nil }
func (NopRemedies) Reset(context.Context) error   { return nil }

// Config holds the retry manager's tunable parameters. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// MaxAttempts is the global attempt ceiling (default 20).
	MaxAttempts int

	// RateLimitedMaxAttempts is the higher ceiling applied while failures
	// classify as RateLimited (default 30).
	RateLimitedMaxAttempts int

	// Per-tier wait schedules. A schedule saturates at its last value
	// rather than growing unbounded.
	LocalDelays   []time.Duration
	RefreshDelays []time.Duration
	ResetDelays   []time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:            20,
		RateLimitedMaxAttempts: 30,
		LocalDelays: []time.Duration{
			1 * time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second,
		},
		RefreshDelays: []time.Duration{
			10 * time.Second, 20 * time.Second, 30 * time.Second,
		},
		ResetDelays: []time.Duration{
			30 * time.Second, 60 * time.Second, 120 * time.Second,
		},
	}
}

// TierFor picks the escalation tier for a failed attempt. Classifications
// with an immediate-escalation rule jump straight to TierReset regardless
// of attempt count; otherwise the tier is chosen purely by attempt number.
func TierFor(attempt int, class errors.Classification) Tier {
	if class.ImmediatelyEscalates() {
		return TierReset
	}
	switch {
	case attempt <= localMaxAttempt:
		return TierLocal
	case attempt <= refreshMaxAttempt:
		return TierRefresh
	default:
		return TierReset
	}
}

// DelayFor returns the wait duration before the next attempt. The schedule
// index is the attempt's offset into the tier's range, clamped to the
// schedule bounds so late attempts saturate at the last value and immediate
// escalations (attempt below the tier's range) use the first.
func (c Config) DelayFor(tier Tier, attempt int) time.Duration {
	var delays []time.Duration
	switch tier {
	case TierRefresh:
		delays = c.RefreshDelays
	case TierReset:
		delays = c.ResetDelays
	default:
		delays = c.LocalDelays
	}
	if len(delays) == 0 {
		return 0
	}

	idx := attempt - tier.rangeStart()
	if idx < 0 {
		idx = 0
	}
	if idx > len(delays)-1 {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// ceilingFor returns the attempt ceiling in effect for a classification.
func (c Config) ceilingFor(class errors.Classification) int {
	if class == errors.ClassRateLimited && c.RateLimitedMaxAttempts > c.MaxAttempts {
		return c.RateLimitedMaxAttempts
	}
	return c.MaxAttempts
}
