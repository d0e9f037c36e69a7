package orchestrator

import (
	"github.com/yamakatsunamamugi/autoai/internal/event"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
)

// ResultSink receives task lifecycle notifications. Implementations must
// not block: the orchestrator calls them synchronously on the task
// goroutine. A panicking sink is contained and logged; it never corrupts
// the run that triggered it.
type ResultSink interface {
	OnSubmitted(task Task)
	OnCompleted(task Task, result TaskResult)
	OnFailed(task Task, result TaskResult)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) OnSubmitted(Task)             {}
func (NopSink) OnCompleted(Task, TaskResult) {}
func (NopSink) OnFailed(Task, TaskResult)    {}

// BusSink republishes lifecycle notifications on an event bus, for
// subscribers that want task telemetry without implementing a sink.
type BusSink struct {
	bus *event.Bus
}

// NewBusSink creates a sink publishing to the given bus.
func NewBusSink(bus *event.Bus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) OnSubmitted(task Task) {
	s.bus.Publish(event.NewTaskSubmittedEvent(task.ID, task.SessionKey, task.Mode.String()))
}

func (s *BusSink) OnCompleted(task Task, result TaskResult) {
	s.bus.Publish(event.NewTaskCompletedEvent(
		task.ID, task.SessionKey, result.Partial, result.Attempts, len(result.Output)))
}

func (s *BusSink) OnFailed(task Task, result TaskResult) {
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	s.bus.Publish(event.NewTaskFailedEvent(task.ID, task.SessionKey, result.ErrorType, errMsg))
}

// notify invokes fn with panic containment.
func notify(logger *logging.Logger, taskID, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result sink panicked",
				"task_id", taskID,
				"hook", hook,
				"panic", r,
			)
		}
	}()
	fn()
}
