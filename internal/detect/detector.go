package detect

import (
	"context"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/errors"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
)

// Config holds the detector's timing parameters.
type Config struct {
	// PollInterval is the cadence at which progress is sampled.
	PollInterval time.Duration

	// StabilityWindow is how long the artifact container's length must not
	// grow before the artifact is considered complete.
	StabilityWindow time.Duration

	// SettleDelay is the fixed delay before artifact polling begins, giving
	// the side-channel container time to open.
	SettleDelay time.Duration

	// AppearWindow bounds the wait for the in-progress indicator to first
	// appear in multi-phase mode. Failing fast here catches submissions the
	// service silently dropped.
	AppearWindow time.Duration

	// ConfirmationWindow is how long the cleared indicator must persist in
	// multi-phase mode before completion is declared, rejecting transient
	// flicker.
	ConfirmationWindow time.Duration

	// ExtendedMaxWait is the wait budget for the second multi-phase work
	// phase, which runs far longer than the first (research-style runs).
	ExtendedMaxWait time.Duration
}

// DefaultConfig returns the default detection timing parameters.
func DefaultConfig() Config {
	return Config{
		PollInterval:       2 * time.Second,
		StabilityWindow:    15 * time.Second,
		SettleDelay:        5 * time.Second,
		AppearWindow:       30 * time.Second,
		ConfirmationWindow: 10 * time.Second,
		ExtendedMaxWait:    40 * time.Minute,
	}
}

// ContinuationFunc triggers the intermediate continuation step between the
// two work phases of a multi-phase task.
type ContinuationFunc func(ctx context.Context) error

// Detector runs the completion-detection polling loop for one task at a
// time. It is an explicit loop with a single suspension point per
// iteration, so cancellation and timeout compose predictably.
type Detector struct {
	cfg          Config
	observer     Observer
	continuation ContinuationFunc
	logger       *logging.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithContinuation sets the continuation trigger for multi-phase mode.
func WithContinuation(f ContinuationFunc) DetectorOption {
	return func(d *Detector) { d.continuation = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) DetectorOption {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a detector polling the given observer.
func NewDetector(cfg Config, observer Observer, opts ...DetectorOption) *Detector {
	d := &Detector{
		cfg:      cfg,
		observer: observer,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run tracks shared polling state across a detection run.
type run struct {
	start      time.Time
	polls      int
	hasPartial bool
}

// result finalizes a Result for the run.
func (r *run) result(status Status, err error) Result {
	return Result{
		Status:  status,
		Elapsed: time.Since(r.start),
		Polls:   r.polls,
		Err:     err,
	}
}

// timeoutResult maps an expired budget to CompletedPartial when any content
// was ever observed, else TimedOut.
func (r *run) timeoutResult(op string, budget time.Duration) Result {
	if r.hasPartial {
		return r.result(StatusCompletedPartial, nil)
	}
	return r.result(StatusTimedOut, errors.NewTimeoutError(op, budget))
}

// Run polls the observer until a terminal state is reached. maxWait bounds
// the primary work phase; multi-phase mode additionally uses the configured
// ExtendedMaxWait for its second phase. An externally cancelled context
// yields an immediate TimedOut without consuming the remaining budget.
func (d *Detector) Run(ctx context.Context, mode Mode, maxWait time.Duration) Result {
	r := &run{start: time.Now()}
	log := d.logger.With("mode", mode.String())

	var res Result
	switch mode {
	case ModeArtifact:
		res = d.runArtifact(ctx, r, maxWait)
	case ModeMultiPhase:
		res = d.runMultiPhase(ctx, r, maxWait)
	default:
		res = d.runStreaming(ctx, r, maxWait)
	}

	log.Info("detection finished",
		"status", res.Status.String(),
		"polls", res.Polls,
		"elapsed", res.Elapsed.String(),
	)
	return res
}

// sample takes one observation and updates shared state.
func (d *Detector) sample(ctx context.Context, r *run) ProgressSample {
	s := d.observer.Sample(ctx)
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	r.polls++
	if s.OutputLength > 0 {
		r.hasPartial = true
	}
	return s
}

// runStreaming handles inline streamed output: any inactive poll means the
// service finished.
func (d *Detector) runStreaming(ctx context.Context, r *run, maxWait time.Duration) Result {
	deadline := r.start.Add(maxWait)

	for {
		s := d.sample(ctx, r)
		if !s.Active {
			return r.result(StatusCompleted, nil)
		}
		if !time.Now().Before(deadline) {
			return r.timeoutResult("streaming completion", maxWait)
		}
		if err := d.wait(ctx, d.cfg.PollInterval); err != nil {
			return r.result(StatusTimedOut, err)
		}
	}
}

// runArtifact handles side-channel output: completion is the container's
// length holding stable for the configured window. Growth detection is
// strictly `>`; no-op polls and render glitches that shrink the length
// never reset the stability clock.
func (d *Detector) runArtifact(ctx context.Context, r *run, maxWait time.Duration) Result {
	if err := d.wait(ctx, d.cfg.SettleDelay); err != nil {
		return r.result(StatusTimedOut, err)
	}

	deadline := r.start.Add(maxWait)
	lastLength := 0
	lastChange := time.Now()

	for {
		s := d.sample(ctx, r)
		now := time.Now()

		if s.OutputLength > lastLength {
			lastLength = s.OutputLength
			lastChange = now
		}

		// Stability only counts once the container has appeared with
		// content; an absent container must run out the budget instead.
		if lastLength > 0 && now.Sub(lastChange) >= d.cfg.StabilityWindow {
			return r.result(StatusCompleted, nil)
		}
		if !now.Before(deadline) {
			return r.timeoutResult("artifact completion", maxWait)
		}
		if err := d.wait(ctx, d.cfg.PollInterval); err != nil {
			return r.result(StatusTimedOut, err)
		}
	}
}

// runMultiPhase handles the two-phase flow: wait for the indicator to
// appear and clear, trigger the continuation, then wait out the extended
// second phase with flicker-tolerant confirmation of the final clearance.
func (d *Detector) runMultiPhase(ctx context.Context, r *run, maxWait time.Duration) Result {
	// Phase 1a: the indicator must appear within the short appear window,
	// else the submission was dropped and waiting longer is pointless.
	if res, ok := d.awaitActive(ctx, r, time.Now().Add(d.cfg.AppearWindow)); !ok {
		return res
	}

	// Phase 1b: first work phase completes when the indicator clears.
	if res, ok := d.awaitInactive(ctx, r, time.Now().Add(maxWait), 0, "first phase completion", maxWait); !ok {
		return res
	}

	// Phase 2: the intermediate continuation step.
	if d.continuation != nil {
		if err := d.continuation(ctx); err != nil {
			return r.result(StatusTimedOut, errors.Wrap(err, "continuation step failed"))
		}
	}

	// Phase 3: the extended second work phase. The indicator must reappear
	// and then clear, and the cleared state must persist for the
	// confirmation window before completion is declared.
	extendedDeadline := time.Now().Add(d.cfg.ExtendedMaxWait)
	if res, ok := d.awaitActive(ctx, r, extendedDeadline); !ok {
		return res
	}
	res, _ := d.awaitInactive(ctx, r, extendedDeadline, d.cfg.ConfirmationWindow, "second phase completion", d.cfg.ExtendedMaxWait)
	return res
}

// awaitActive polls until the indicator is active. Returns ok=false with a
// terminal result if the deadline passes or the run is cancelled first.
func (d *Detector) awaitActive(ctx context.Context, r *run, deadline time.Time) (Result, bool) {
	for {
		s := d.sample(ctx, r)
		if s.Active {
			return Result{}, true
		}
		if !time.Now().Before(deadline) {
			if r.hasPartial {
				return r.result(StatusCompletedPartial, nil), false
			}
			return r.result(StatusTimedOut, errors.ErrIndicatorNeverAppeared), false
		}
		if err := d.wait(ctx, d.cfg.PollInterval); err != nil {
			return r.result(StatusTimedOut, err), false
		}
	}
}

// awaitInactive polls until the indicator clears and, when confirm > 0, the
// cleared state has persisted for the confirmation window. An active poll
// during confirmation resets the clock: flicker is still-in-progress.
func (d *Detector) awaitInactive(ctx context.Context, r *run, deadline time.Time, confirm time.Duration, op string, budget time.Duration) (Result, bool) {
	var clearedSince time.Time

	for {
		s := d.sample(ctx, r)
		now := time.Now()

		if s.Active {
			clearedSince = time.Time{}
		} else {
			if confirm <= 0 {
				return Result{}, true
			}
			if clearedSince.IsZero() {
				clearedSince = now
			} else if now.Sub(clearedSince) >= confirm {
				return r.result(StatusCompleted, nil), false
			}
		}

		if !now.Before(deadline) {
			return r.timeoutResult(op, budget), false
		}
		if err := d.wait(ctx, d.cfg.PollInterval); err != nil {
			return r.result(StatusTimedOut, err), false
		}
	}
}

// wait is the loop's single suspension point: a cancellable timer, never a
// busy loop.
func (d *Detector) wait(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCancelled, "detection aborted")
		default:
			return nil
		}
	}

	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCancelled, "detection aborted")
	}
}
