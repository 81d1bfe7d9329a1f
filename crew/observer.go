package crew

import (
	"context"
	"time"
)

// RunInfo identifies a run to observers.
type RunInfo struct {
	RunID     string
	Crew      string
	Process   Process
	Inputs    map[string]string
	StartedAt time.Time
}

// TaskReport is emitted each time a task reaches a terminal state or is
// re-executed for rework.
type TaskReport struct {
	TaskID     string
	Agent      string
	State      TaskState
	Input      string
	Output     string
	Sink       string
	Revision   int
	Attempts   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Observer receives run lifecycle events. Calls are made from the run's
// goroutine, in order; an observer must not block for long.
type Observer interface {
	RunStarted(ctx context.Context, run RunInfo)
	TaskFinished(ctx context.Context, run RunInfo, report TaskReport)
	RunFinished(ctx context.Context, run RunInfo, result *CrewResult)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	OnRunStarted   func(ctx context.Context, run RunInfo)
	OnTaskFinished func(ctx context.Context, run RunInfo, report TaskReport)
	OnRunFinished  func(ctx context.Context, run RunInfo, result *CrewResult)
}

func (o ObserverFuncs) RunStarted(ctx context.Context, run RunInfo) {
	if o.OnRunStarted != nil {
		o.OnRunStarted(ctx, run)
	}
}

func (o ObserverFuncs) TaskFinished(ctx context.Context, run RunInfo, report TaskReport) {
	if o.OnTaskFinished != nil {
		o.OnTaskFinished(ctx, run, report)
	}
}

func (o ObserverFuncs) RunFinished(ctx context.Context, run RunInfo, result *CrewResult) {
	if o.OnRunFinished != nil {
		o.OnRunFinished(ctx, run, result)
	}
}
