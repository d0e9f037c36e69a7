// Package orchestrator sequences a task's full lifecycle against a
// session: admission, preparation, configuration, submission, completion
// detection, and extraction. Each phase runs under tiered retry, and every
// outcome (including refusals and timeouts) is reported as a TaskResult
// value rather than a raised error.
package orchestrator

import (
	"context"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/adapter"
	"github.com/yamakatsunamamugi/autoai/internal/detect"
	"github.com/yamakatsunamamugi/autoai/internal/errors"
	"github.com/yamakatsunamamugi/autoai/internal/event"
	"github.com/yamakatsunamamugi/autoai/internal/guard"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
	"github.com/yamakatsunamamugi/autoai/internal/retry"
)

// Config holds the orchestrator's tunable parameters.
type Config struct {
	// Retry parameterizes the per-task escalation manager.
	Retry retry.Config

	// Detect parameterizes completion detection timing.
	Detect detect.Config

	// StaleAfter is forwarded to guard admission; zero uses the guard's
	// default.
	StaleAfter time.Duration

	// Per-mode completion budgets for the primary work phase.
	StreamingMaxWait  time.Duration
	ArtifactMaxWait   time.Duration
	MultiPhaseMaxWait time.Duration
}

// DefaultConfig returns production timing parameters.
func DefaultConfig() Config {
	return Config{
		Retry:             retry.DefaultConfig(),
		Detect:            detect.DefaultConfig(),
		StaleAfter:        guard.DefaultStaleAfter,
		StreamingMaxWait:  10 * time.Minute,
		ArtifactMaxWait:   15 * time.Minute,
		MultiPhaseMaxWait: 10 * time.Minute,
	}
}

// maxWaitFor returns the primary-phase budget for a mode.
func (c Config) maxWaitFor(mode detect.Mode) time.Duration {
	switch mode {
	case detect.ModeArtifact:
		return c.ArtifactMaxWait
	case detect.ModeMultiPhase:
		return c.MultiPhaseMaxWait
	default:
		return c.StreamingMaxWait
	}
}

// Orchestrator runs tasks against one platform adapter. Safe for
// concurrent use: per-task state (retry manager, detector) is created
// inside RunTask, and cross-task state lives in the shared guard.
type Orchestrator struct {
	adapter    adapter.PlatformAdapter
	observer   detect.Observer
	remedies   retry.Remedies
	guard      *guard.Guard
	cfg        Config
	classifier *errors.Classifier
	logger     *logging.Logger
	bus        *event.Bus
	sink       ResultSink
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithBus sets the event bus, shared with the guard and retry managers.
func WithBus(b *event.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithSink sets the result sink notified on task lifecycle transitions.
func WithSink(s ResultSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithGuard shares an existing admission guard across orchestrators.
func WithGuard(g *guard.Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithClassifier sets the failure classifier used by retry managers.
func WithClassifier(c *errors.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithRemedies overrides the remedial actions. By default the adapter is
// used when it implements retry.Remedies, else remediation is a no-op.
func WithRemedies(r retry.Remedies) Option {
	return func(o *Orchestrator) { o.remedies = r }
}

// New creates an orchestrator driving the given adapter and observing
// progress through the given observer.
func New(cfg Config, pa adapter.PlatformAdapter, observer detect.Observer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapter:    pa,
		observer:   observer,
		cfg:        cfg,
		classifier: errors.NewClassifier(),
		logger:     logging.NopLogger(),
		sink:       NopSink{},
	}
	if r, ok := pa.(retry.Remedies); ok {
		o.remedies = r
	} else {
		o.remedies = retry.NopRemedies{}
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.guard == nil {
		o.guard = guard.New(guard.WithLogger(o.logger), guard.WithBus(o.bus))
	}
	return o
}

// Guard returns the admission guard, for sharing across orchestrators.
func (o *Orchestrator) Guard() *guard.Guard { return o.guard }

// RunTask runs one task end to end and returns its result. It never
// returns a raised error: validation failures, admission refusals, phase
// exhaustion, and timeouts all come back as TaskResult values.
func (o *Orchestrator) RunTask(ctx context.Context, task Task) TaskResult {
	log := o.logger.WithTask(task.ID).WithSession(task.SessionKey)

	if err := task.validate(); err != nil {
		log.Warn("rejecting invalid task", "error", err.Error())
		return TaskResult{
			TaskID:    task.ID,
			ErrorType: errors.ClassGeneral.String(),
			Err:       err,
		}
	}

	adm := o.guard.TryAdmit(task.SessionKey, task.ID, o.cfg.StaleAfter)
	if !adm.Admitted {
		// A refusal is a normal outcome: no phases run, no sink hooks fire.
		log.Info("admission refused",
			"reason", adm.Reason,
			"holder_task_id", adm.HolderTaskID,
		)
		return TaskResult{
			TaskID:    task.ID,
			ErrorType: adm.Reason,
			Err:       errors.NewGuardError(task.SessionKey, adm.HolderTaskID, errors.ErrSessionBusy),
		}
	}
	defer o.guard.Release(task.SessionKey)

	log.Info("task admitted", "mode", task.Mode.String())
	result := o.run(ctx, task, log)

	if result.Success {
		log.Info("task completed",
			"partial", result.Partial,
			"attempts", result.Attempts,
			"output_len", len(result.Output),
		)
		notify(log, task.ID, "on_completed", func() { o.sink.OnCompleted(task, result) })
	} else {
		log.Warn("task failed",
			"error_type", result.ErrorType,
			"attempts", result.Attempts,
			"error", errString(result.Err),
		)
		notify(log, task.ID, "on_failed", func() { o.sink.OnFailed(task, result) })
	}
	return result
}

// run executes the admitted task's phases. The caller owns admission,
// release, and sink notification for the terminal result.
func (o *Orchestrator) run(ctx context.Context, task Task, log *logging.Logger) TaskResult {
	mgr := retry.NewManager(o.cfg.Retry,
		retry.WithClassifier(o.classifier),
		retry.WithRemedies(o.remedies),
		retry.WithLogger(log),
		retry.WithBus(o.bus),
	)
	attempts := 0

	// phase runs one adapter step under escalation, accumulating attempts.
	phase := func(name string, fn func(ctx context.Context) error) (bool, TaskResult) {
		out := mgr.Execute(ctx, name, func(ctx context.Context) (string, error) {
			o.guard.Touch(task.SessionKey)
			return "", fn(ctx)
		})
		attempts += out.Attempts
		if out.Success {
			return true, TaskResult{}
		}
		return false, TaskResult{
			TaskID:    task.ID,
			Attempts:  attempts,
			ErrorType: out.ErrorType.String(),
			Err:       errors.Wrapf(out.LastError, "%s phase failed", name),
		}
	}

	if ok, res := phase("prepare", o.adapter.Prepare); !ok {
		return res
	}
	if ok, res := phase("configure", func(ctx context.Context) error {
		return o.adapter.Configure(ctx, task.Options)
	}); !ok {
		return res
	}
	if ok, res := phase("submit", func(ctx context.Context) error {
		return o.adapter.Submit(ctx, task.Input)
	}); !ok {
		return res
	}
	notify(log, task.ID, "on_submitted", func() { o.sink.OnSubmitted(task) })

	detector := detect.NewDetector(o.cfg.Detect, o.observer,
		detect.WithLogger(log),
		detect.WithContinuation(o.continuation()),
	)
	res := detector.Run(ctx, task.Mode, o.cfg.maxWaitFor(task.Mode))
	o.guard.Touch(task.SessionKey)

	if res.Status == detect.StatusTimedOut {
		return TaskResult{
			TaskID:    task.ID,
			Attempts:  attempts,
			ErrorType: o.classifier.Classify(res.Err).String(),
			Err:       res.Err,
		}
	}

	out := mgr.Execute(ctx, "extract", func(ctx context.Context) (string, error) {
		o.guard.Touch(task.SessionKey)
		return o.adapter.Extract(ctx)
	})
	attempts += out.Attempts

	if !out.Success {
		// Detection saw content but extraction cannot read it back. The
		// run still succeeds with a placeholder so the partial flag and
		// telemetry survive.
		if res.Partial() {
			log.Warn("extraction failed after partial completion, using placeholder",
				"error", errString(out.LastError),
			)
			return TaskResult{
				TaskID:   task.ID,
				Success:  true,
				Output:   PartialUnavailable,
				Partial:  true,
				Attempts: attempts,
			}
		}
		return TaskResult{
			TaskID:    task.ID,
			Attempts:  attempts,
			ErrorType: out.ErrorType.String(),
			Err:       errors.Wrap(out.LastError, "extract phase failed"),
		}
	}

	return TaskResult{
		TaskID:   task.ID,
		Success:  true,
		Output:   out.Value,
		Partial:  res.Partial(),
		Attempts: attempts,
	}
}

// continuation exposes the adapter's intermediate step to multi-phase
// detection, or nil when the adapter has none.
func (o *Orchestrator) continuation() detect.ContinuationFunc {
	if c, ok := o.adapter.(adapter.Continuer); ok {
		return c.Continue
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
