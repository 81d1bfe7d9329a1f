package crew

import (
	"context"

	"github.com/BaSui01/crewflow/agent"
)

// CustomFunc replaces the agent invocation of a task with a local
// computation. args are the task's FuncArgs, rendered. The return value
// becomes the task output verbatim.
type CustomFunc func(ctx context.Context, rc *RunContext, args map[string]string) (string, error)

// Task is one unit of orchestrated work.
type Task struct {
	ID string `json:"id"`
	// Description is the input template.
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output,omitempty"`
	// Agent is the name of the executing agent.
	Agent     string       `json:"agent"`
	DependsOn []string     `json:"depends_on,omitempty"`
	Calls     []agent.Call `json:"calls,omitempty"`

	// OutputSink is a file path template; {timestamp} and run inputs are
	// expanded. Empty means the result is kept in memory only.
	OutputSink string `json:"output_sink,omitempty"`
	// ArchiveFolder overrides the archive subfolder name of the sink's
	// directory, e.g. "old posts".
	ArchiveFolder string `json:"archive_folder,omitempty"`

	Func CustomFunc `json:"-"`
	// FuncArgs are templates rendered and passed to Func.
	FuncArgs map[string]string `json:"func_args,omitempty"`
}

// TaskState 任务状态
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskReady   TaskState = "ready"
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
	TaskSkipped TaskState = "skipped"
)

// Terminal reports whether s is final for the run.
func (s TaskState) Terminal() bool {
	return s == TaskDone || s == TaskFailed || s == TaskSkipped
}

// Process 执行流程
type Process string

const (
	ProcessSequential   Process = "sequential"
	ProcessHierarchical Process = "hierarchical"
)

// compiledTask is a validated task with parsed templates.
type compiledTask struct {
	*Task
	index       int
	description *template
	expected    *template
	sink        *template
	args        []map[string]*template
	funcArgs    map[string]*template
}
