package crew

import (
	"errors"
	"time"
)

// TaskResult is one immutable task output.
type TaskResult struct {
	TaskID string `json:"task_id"`
	Agent  string `json:"agent,omitempty"`
	// Input is the rendered description the task ran with.
	Input      string        `json:"input,omitempty"`
	Output     string        `json:"output"`
	Sink       string        `json:"sink,omitempty"`
	Revision   int           `json:"revision"`
	ProducedAt time.Time     `json:"produced_at"`
	Duration   time.Duration `json:"duration"`
}

// RunStatus 运行状态
type RunStatus string

const (
	RunDone      RunStatus = "done"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// CrewResult is the aggregate outcome of one Kickoff.
type CrewResult struct {
	RunID   string    `json:"run_id"`
	Name    string    `json:"name"`
	Process Process   `json:"process"`
	Status  RunStatus `json:"status"`
	// Final is the output of the designated final task, or the outputs of
	// all terminal tasks joined in declaration order.
	Final  string                `json:"final"`
	Tasks  map[string]TaskResult `json:"tasks"`
	States map[string]TaskState  `json:"states"`
	// Order lists task ids in the order they first produced a result.
	Order      []string         `json:"order"`
	Errors     map[string]error `json:"-"`
	Sinks      []string         `json:"sinks,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Raw returns the final output.
func (r *CrewResult) Raw() string {
	if r == nil {
		return ""
	}
	return r.Final
}

// Task returns the latest result of one task.
func (r *CrewResult) Task(id string) (TaskResult, bool) {
	if r == nil {
		return TaskResult{}, false
	}
	tr, ok := r.Tasks[id]
	return tr, ok
}

// Duration returns the wall time of the run.
func (r *CrewResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err joins the task errors in the given order.
func (r *CrewResult) Err(order []string) error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, id := range order {
		if err, ok := r.Errors[id]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
