package crew

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/archive"
	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/knowledge"
	"github.com/BaSui01/crewflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// execution is the mutable state of one run. Only the run goroutine
// touches states, errs and order.
type execution struct {
	crew    *Crew
	info    RunInfo
	rc      *RunContext
	session *archive.Session
	logger  *zap.Logger

	states    map[string]TaskState
	errs      map[string]error
	assignees map[string]string
	order     []string
	sinks     []string
}

// outcome is one task execution before it is committed.
type outcome struct {
	result  TaskResult
	err     error
	started time.Time
}

// blocked returns the first dependency that did not finish.
func (e *execution) blocked(t *compiledTask) (string, bool) {
	for _, dep := range t.DependsOn {
		if e.states[dep] != TaskDone {
			return dep, true
		}
	}
	return "", false
}

// execute renders the task and produces its output without side effects
// on the run state.
func (e *execution) execute(ctx context.Context, t *compiledTask, assignee string) outcome {
	started := time.Now()
	// 已开始的任务不会被中途取消, 取消只在任务边界生效
	ctx = types.WithTaskID(context.WithoutCancel(ctx), t.ID)
	ctx, span := e.crew.tracer.Start(ctx, "crew.task", trace.WithAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.agent", assignee),
	))
	defer span.End()

	fail := func(err error) outcome {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome{err: withTask(err, t.ID), started: started, result: TaskResult{TaskID: t.ID, Agent: assignee}}
	}

	input, err := e.rc.render(t.description)
	if err != nil {
		return fail(err)
	}
	expected, err := e.rc.render(t.expected)
	if err != nil {
		return fail(err)
	}

	var out string
	if t.Func != nil {
		args := make(map[string]string, len(t.funcArgs))
		for k, tmpl := range t.funcArgs {
			v, rerr := e.rc.render(tmpl)
			if rerr != nil {
				return fail(rerr)
			}
			args[k] = v
		}
		out, err = t.Func(ctx, e.rc, args)
		if err != nil {
			if _, typed := types.AsError(err); !typed {
				err = types.Errorf(types.ErrCapabilityFailure, "custom function of task %s failed", t.ID).WithCause(err)
			}
			return fail(err)
		}
	} else {
		a, ok := e.crew.agents[assignee]
		if !ok {
			return fail(types.Errorf(types.ErrUnknownAgent, "agent %q is not registered", assignee))
		}
		calls, err := e.renderCalls(t)
		if err != nil {
			return fail(err)
		}
		out, err = a.Act(ctx, agent.Request{
			TaskID:         t.ID,
			Input:          input,
			ExpectedOutput: expected,
			Calls:          calls,
			Context:        e.actContext(t),
		})
		if err != nil {
			return fail(err)
		}
	}

	return outcome{
		started: started,
		result: TaskResult{
			TaskID:     t.ID,
			Agent:      assignee,
			Input:      input,
			Output:     out,
			ProducedAt: time.Now(),
			Duration:   time.Since(started),
		},
	}
}

func (e *execution) renderCalls(t *compiledTask) ([]agent.Call, error) {
	calls := make([]agent.Call, len(t.Calls))
	for i, call := range t.Calls {
		args := make(capability.Args, len(t.args[i]))
		for k, tmpl := range t.args[i] {
			v, err := e.rc.render(tmpl)
			if err != nil {
				return nil, err
			}
			args[k] = v
		}
		calls[i] = agent.Call{Capability: call.Capability, Args: args}
	}
	return calls, nil
}

// actContext is the generation context of a task: the latest outputs of
// its direct dependencies plus the joined knowledge.
func (e *execution) actContext(t *compiledTask) map[string]string {
	ctx := make(map[string]string, len(t.DependsOn)+1)
	for _, dep := range t.DependsOn {
		if r, ok := e.rc.Result(dep); ok {
			ctx[dep] = r.Output
		}
	}
	if v, ok := e.rc.Knowledge(knowledge.AllKey); ok {
		ctx[knowledge.AllKey] = v
	}
	return ctx
}

// commit records the result and performs archive-then-write for the sink.
func (e *execution) commit(ctx context.Context, t *compiledTask, o outcome) outcome {
	if o.err != nil {
		return o
	}
	if t.OutputSink != "" {
		path, err := e.rc.render(t.sink)
		if err != nil {
			o.err = withTask(err, t.ID)
			return o
		}
		var opts []archive.WriteOption
		if t.ArchiveFolder != "" {
			opts = append(opts, archive.WithFolder(t.ArchiveFolder))
		}
		if err := e.session.RotateAndWrite(context.WithoutCancel(ctx), path, o.result.Output, opts...); err != nil {
			o.err = withTask(err, t.ID)
			o.result = e.rc.commit(o.result)
			return o
		}
		o.result.Sink = path
		e.sinks = append(e.sinks, path)
	}
	o.result = e.rc.commit(o.result)
	return o
}

// finish moves the task to its terminal state and notifies observers.
func (e *execution) finish(ctx context.Context, t *compiledTask, o outcome, attempts int) {
	state := TaskDone
	if o.err != nil {
		state = TaskFailed
		e.errs[t.ID] = o.err
		e.logger.Warn("task failed",
			zap.String("task_id", t.ID),
			zap.String("agent", o.result.Agent),
			zap.String("code", string(types.GetErrorCode(o.err))),
			zap.Error(o.err),
		)
	} else {
		e.markProduced(t.ID)
		e.logger.Info("task done",
			zap.String("task_id", t.ID),
			zap.String("agent", o.result.Agent),
			zap.Int("revision", o.result.Revision),
			zap.Duration("duration", o.result.Duration),
		)
	}
	e.states[t.ID] = state
	e.report(ctx, t, state, o, attempts)
}

// skip marks a task that can never run.
func (e *execution) skip(ctx context.Context, t *compiledTask, err error) {
	err = withTask(err, t.ID)
	e.states[t.ID] = TaskSkipped
	e.errs[t.ID] = err
	e.logger.Info("task skipped", zap.String("task_id", t.ID), zap.Error(err))
	e.report(ctx, t, TaskSkipped, outcome{err: err, started: time.Now(), result: TaskResult{TaskID: t.ID, Agent: e.assignees[t.ID]}}, 0)
}

func (e *execution) skipBlocked(ctx context.Context, t *compiledTask, dep string) {
	e.skip(ctx, t, types.Errorf(types.ErrDependencyFailed, "dependency %q did not complete (%s)", dep, e.states[dep]))
}

func (e *execution) skipCancelled(ctx context.Context, t *compiledTask) {
	e.skip(ctx, t, types.NewError(types.ErrCancelled, "run cancelled").WithCause(errCancelledCause(ctx)))
}

func errCancelledCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return errCancelled
}

func (e *execution) report(ctx context.Context, t *compiledTask, state TaskState, o outcome, attempts int) {
	finished := time.Now()
	e.crew.metrics.RecordTask(e.crew.name, t.ID, string(state), finished.Sub(o.started))
	report := TaskReport{
		TaskID:     t.ID,
		Agent:      o.result.Agent,
		State:      state,
		Input:      o.result.Input,
		Output:     o.result.Output,
		Sink:       o.result.Sink,
		Revision:   o.result.Revision,
		Attempts:   attempts,
		Err:        o.err,
		StartedAt:  o.started,
		FinishedAt: finished,
	}
	for _, obs := range e.crew.observers {
		obs.TaskFinished(ctx, e.info, report)
	}
}

func (e *execution) markProduced(id string) {
	for _, seen := range e.order {
		if seen == id {
			return
		}
	}
	e.order = append(e.order, id)
}

// errOrder lists failed or skipped tasks in declaration order.
func (e *execution) errOrder() []string {
	ids := make([]string, 0, len(e.errs))
	for _, t := range e.crew.tasks {
		if _, ok := e.errs[t.ID]; ok {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (e *execution) result() *CrewResult {
	c := e.crew
	r := &CrewResult{
		RunID:     e.info.RunID,
		Name:      c.name,
		Process:   c.process,
		Status:    RunDone,
		Tasks:     make(map[string]TaskResult, len(c.tasks)),
		States:    make(map[string]TaskState, len(c.tasks)),
		Order:     append([]string(nil), e.order...),
		Errors:    make(map[string]error, len(e.errs)),
		Sinks:     append([]string(nil), e.sinks...),
		StartedAt: e.info.StartedAt,
	}
	for _, t := range c.tasks {
		r.States[t.ID] = e.states[t.ID]
		if tr, ok := e.rc.Result(t.ID); ok {
			r.Tasks[t.ID] = tr
		}
	}
	for id, err := range e.errs {
		r.Errors[id] = err
	}

	if len(r.Errors) > 0 {
		r.Status = RunFailed
		for _, err := range r.Errors {
			if types.IsCode(err, types.ErrCancelled) {
				r.Status = RunCancelled
				break
			}
		}
	}

	if c.finalTask != "" {
		if e.states[c.finalTask] == TaskDone {
			r.Final = r.Tasks[c.finalTask].Output
		}
		return r
	}
	var parts []string
	for _, id := range c.graph.terminals() {
		if e.states[id] == TaskDone {
			parts = append(parts, r.Tasks[id].Output)
		}
	}
	r.Final = strings.Join(parts, "\n\n")
	return r
}

// withTask attaches the task id to typed errors that lack one.
func withTask(err error, taskID string) error {
	if err == nil {
		return nil
	}
	if e, ok := types.AsError(err); ok {
		if e.TaskID != "" {
			return err
		}
		// callers may hand back shared error values; never stamp them
		if direct, isDirect := err.(*types.Error); isDirect {
			return direct.Clone().WithTask(taskID)
		}
		return types.NewError(e.Code, e.Message).WithRetryable(e.Retryable).WithCause(err).WithTask(taskID)
	}
	return types.NewError(types.ErrCapabilityFailure, "task failed").WithCause(err).WithTask(taskID)
}
