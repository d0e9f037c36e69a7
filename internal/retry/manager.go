package retry

import (
	"context"
	"sync"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/errors"
	"github.com/yamakatsunamamugi/autoai/internal/event"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
)

// Operation is a fallible step wrapped by the manager. Phases that produce
// no value return an empty string.
type Operation func(ctx context.Context) (string, error)

// Outcome is the structured result of an Execute call. The manager never
// panics or raises past this boundary: callers must interpret Success.
type Outcome struct {
	Success   bool
	Value     string
	Attempts  int
	LastError error
	ErrorType errors.Classification
}

// Manager drives tiered retries for fallible operations. Each failure is
// classified, recorded in the bounded history, and answered with the tier's
// remedial action after a saturating backoff wait.
//
// A Manager is scoped to one orchestration instance. Its history and
// metrics require no cross-task synchronization.
type Manager struct {
	cfg        Config
	classifier *errors.Classifier
	remedies   Remedies
	history    *History
	metrics    *Metrics
	logger     *logging.Logger
	bus        *event.Bus

	cancelOnce sync.Once
	cancelled  chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClassifier sets the failure classifier.
func WithClassifier(c *errors.Classifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// WithRemedies sets the tier remedial actions.
func WithRemedies(r Remedies) Option {
	return func(m *Manager) { m.remedies = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBus sets the event bus for escalation events.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// NewManager creates a retry manager with the given configuration.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		remedies:  NopRemedies{},
		history:   NewHistory(defaultHistorySize),
		metrics:   NewMetrics(),
		logger:    logging.NopLogger(),
		cancelled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.classifier == nil {
		m.classifier = errors.NewClassifier()
	}
	return m
}

// Execute attempts op up to the configured ceiling, escalating remedies as
// attempts accumulate. On success it returns immediately with the attempt
// count. After the ceiling is reached without success it returns a failed
// Outcome carrying the last error; it never returns an error directly.
func (m *Manager) Execute(ctx context.Context, name string, op Operation) Outcome {
	log := m.logger.With("operation", name)

	var lastErr error
	lastClass := errors.ClassGeneral
	prevTier := TierLocal
	ceiling := m.cfg.MaxAttempts
	attempts := 0

	for attempt := 1; attempt <= ceiling; attempt++ {
		attempts = attempt
		if err := m.interrupted(ctx); err != nil {
			return Outcome{
				Attempts:  attempt - 1,
				LastError: err,
				ErrorType: errors.ClassCancelled,
			}
		}

		value, err := op(ctx)
		if err == nil {
			m.metrics.recordAttempt(true)
			if attempt > 1 {
				log.Info("operation recovered", "attempt", attempt)
			}
			return Outcome{Success: true, Value: value, Attempts: attempt}
		}

		m.metrics.recordAttempt(false)
		lastErr = err
		lastClass = m.classifier.Classify(err)
		m.history.Append(lastClass)

		if lastClass == errors.ClassCancelled {
			log.Info("operation cancelled", "attempt", attempt)
			return Outcome{Attempts: attempt, LastError: err, ErrorType: lastClass}
		}

		ceiling = m.cfg.ceilingFor(lastClass)
		tier := TierFor(attempt, lastClass)
		m.metrics.recordFailure(lastClass, tier)

		log.Warn("operation failed",
			"attempt", attempt,
			"error_type", lastClass.String(),
			"tier", tier.String(),
			"error", err.Error(),
		)

		if attempt >= ceiling {
			break
		}

		if tier > prevTier || (tier == TierReset && lastClass.ImmediatelyEscalates()) {
			if m.bus != nil {
				m.bus.Publish(event.NewRetryEscalatedEvent(name, attempt, tier.String(), lastClass.String()))
			}
		}
		prevTier = tier

		if err := m.wait(ctx, m.cfg.DelayFor(tier, attempt)); err != nil {
			return Outcome{Attempts: attempt, LastError: err, ErrorType: errors.ClassCancelled}
		}

		// The remedial action runs after the wait so the target service has
		// had its backoff before being poked again.
		if err := m.remediate(ctx, tier); err != nil {
			log.Warn("remedial action failed",
				"tier", tier.String(),
				"error", err.Error(),
			)
		}
	}

	log.Error("operation exhausted attempts",
		"attempts", attempts,
		"error_type", lastClass.String(),
	)
	return Outcome{
		Attempts:  attempts,
		LastError: lastErr,
		ErrorType: lastClass,
	}
}

// remediate runs the side effect for a tier. TierLocal has none: the next
// loop iteration simply retries in place.
func (m *Manager) remediate(ctx context.Context, tier Tier) error {
	switch tier {
	case TierRefresh:
		return m.remedies.Refresh(ctx)
	case TierReset:
		return m.remedies.Reset(ctx)
	default:
		return nil
	}
}

// wait blocks for the backoff delay using a cancellable timer, never a busy
// loop. Returns ErrCancelled if the context is done or Cancel was called.
func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return m.interrupted(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCancelled, "backoff wait aborted")
	case <-m.cancelled:
		return errors.Wrap(errors.ErrCancelled, "backoff wait aborted")
	}
}

// interrupted reports cancellation without blocking.
func (m *Manager) interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCancelled, "operation aborted")
	case <-m.cancelled:
		return errors.Wrap(errors.ErrCancelled, "operation aborted")
	default:
		return nil
	}
}

// Cancel aborts any pending backoff wait and fails in-flight Execute calls
// with a Cancelled classification. Safe to call from a different goroutine
// than the one running Execute, and safe to call more than once.
func (m *Manager) Cancel() {
	m.cancelOnce.Do(func() {
		close(m.cancelled)
	})
}

// History returns the manager's failure history.
func (m *Manager) History() *History { return m.history }

// Metrics returns the manager's aggregate counters.
func (m *Manager) Metrics() *Metrics { return m.metrics }
