package crew

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/archive"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/knowledge"
	"github.com/BaSui01/crewflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// resultSinkKey keys a result sink failure in CrewResult.Errors.
const resultSinkKey = "<result>"

// Crew owns the agents, the task graph and the process of a run. It is
// immutable after Build and may be kicked off more than once; every
// Kickoff gets its own RunContext and archive session.
type Crew struct {
	name       string
	process    Process
	agents     map[string]*agent.Agent
	agentOrder []string
	manager    *agent.Agent
	decider    Manager

	tasks          []*compiledTask
	byID           map[string]*compiledTask
	graph          *graph
	order          []string
	requiredInputs []string

	loader     *knowledge.Loader
	sources    []knowledge.Source
	archive    *archive.Manager
	observers  []Observer
	metrics    *metrics.Collector
	tracer     trace.Tracer
	logger     *zap.Logger
	resultSink *template

	maxParallel int
	maxRework   int
	finalTask   string
	defaults    map[string]string
}

// Name returns the crew name.
func (c *Crew) Name() string { return c.name }

// Process returns the coordination policy.
func (c *Crew) Process() Process { return c.process }

// Order returns the sequential execution order.
func (c *Crew) Order() []string { return append([]string(nil), c.order...) }

// RequiredInputs returns the run inputs referenced by templates, in
// first-reference order.
func (c *Crew) RequiredInputs() []string { return append([]string(nil), c.requiredInputs...) }

// Agents returns the member agent names in registration order.
func (c *Crew) Agents() []string { return append([]string(nil), c.agentOrder...) }

// Manager returns the manager agent, or nil.
func (c *Crew) Manager() *agent.Agent { return c.manager }

// Tasks returns copies of the tasks in declaration order.
func (c *Crew) Tasks() []Task {
	out := make([]Task, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = *t.Task
	}
	return out
}

// ValidateInputs reports every required input missing from inputs, and
// inputs that shadow a task id.
func (c *Crew) ValidateInputs(inputs map[string]string) error {
	inputs = c.withDefaults(inputs)
	var missing []string
	for _, name := range c.requiredInputs {
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return unresolved(missing)
	}
	return c.checkShadowed(inputs)
}

// checkShadowed rejects inputs named after a task, the timestamp or a
// knowledge key.
func (c *Crew) checkShadowed(inputs map[string]string) error {
	var shadow []string
	for k := range inputs {
		if _, isTask := c.byID[k]; isTask || k == TimestampKey || k == knowledge.AllKey || strings.HasPrefix(k, knowledge.KeyPrefix) {
			shadow = append(shadow, k)
		}
	}
	if len(shadow) > 0 {
		sort.Strings(shadow)
		return types.Errorf(types.ErrConfiguration, "inputs shadow reserved names: %s", strings.Join(shadow, ", "))
	}
	return nil
}

// Kickoff runs the crew to completion. Input validation and knowledge
// loading happen before any task runs; their failures return a nil
// result. Otherwise the result is always returned, together with the
// joined task errors when the run did not succeed.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*CrewResult, error) {
	inputs = c.withDefaults(inputs)
	if err := c.ValidateInputs(inputs); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	ctx = types.WithRunID(types.WithCrewName(ctx, c.name), runID)
	ctx, span := c.tracer.Start(ctx, "crew.kickoff", trace.WithAttributes(
		attribute.String("crew.name", c.name),
		attribute.String("crew.process", string(c.process)),
		attribute.String("crew.run_id", runID),
	))
	defer span.End()

	logger := c.logger.With(zap.String("run_id", runID))

	var fragment knowledge.Fragment
	if c.loader != nil && len(c.sources) > 0 {
		var err error
		fragment, err = c.loader.Load(ctx, c.sources)
		if err != nil {
			if _, typed := types.AsError(err); !typed {
				err = types.NewError(types.ErrKnowledgeMissing, "load knowledge").WithCause(err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("knowledge load failed", zap.Error(err))
			return nil, err
		}
	}

	info := RunInfo{RunID: runID, Crew: c.name, Process: c.process, Inputs: copyMap(inputs), StartedAt: startedAt}
	run := c.newExecution(info, newRunContext(runID, startedAt, inputs, fragment), logger)

	logger.Info("crew run started",
		zap.String("process", string(c.process)),
		zap.Int("tasks", len(c.tasks)),
		zap.Int("knowledge", len(fragment)),
	)
	for _, o := range c.observers {
		o.RunStarted(ctx, info)
	}

	switch c.process {
	case ProcessHierarchical:
		run.hierarchical(ctx)
	default:
		if c.maxParallel > 1 {
			run.parallel(ctx)
		} else {
			run.sequential(ctx)
		}
	}

	result := run.result()
	if result.Status == RunDone && c.resultSink != nil {
		if sink, err := c.writeResultSink(ctx, run, result.Final); err != nil {
			result.Errors[resultSinkKey] = err
			result.Status = RunFailed
		} else {
			result.Sinks = append(result.Sinks, sink)
		}
	}
	result.FinishedAt = time.Now()

	c.metrics.RecordRun(c.name, string(c.process), string(result.Status), result.Duration())
	for _, o := range c.observers {
		o.RunFinished(ctx, info, result)
	}

	err := result.Err(append(run.errOrder(), resultSinkKey))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(result.Status))
		logger.Warn("crew run finished with errors",
			zap.String("status", string(result.Status)),
			zap.Int("failed", len(result.Errors)),
			zap.Duration("duration", result.Duration()),
		)
	} else {
		logger.Info("crew run completed", zap.Duration("duration", result.Duration()))
	}
	return result, err
}

func (c *Crew) writeResultSink(ctx context.Context, run *execution, final string) (string, error) {
	path, err := run.rc.render(c.resultSink)
	if err != nil {
		return "", err
	}
	if err := run.session.RotateAndWrite(ctx, path, final); err != nil {
		return "", err
	}
	return path, nil
}

// DefaultInputs returns the input values used when Kickoff omits them.
func (c *Crew) DefaultInputs() map[string]string { return copyMap(c.defaults) }

func (c *Crew) withDefaults(inputs map[string]string) map[string]string {
	if len(c.defaults) == 0 {
		return inputs
	}
	out := copyMap(c.defaults)
	for k, v := range inputs {
		out[k] = v
	}
	return out
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// errCancelled marks tasks that never started because the run was aborted.
var errCancelled = errors.New("run cancelled before the task started")

func (c *Crew) newExecution(info RunInfo, rc *RunContext, logger *zap.Logger) *execution {
	run := &execution{
		crew:      c,
		info:      info,
		rc:        rc,
		session:   c.archive.NewSession(info.RunID),
		states:    make(map[string]TaskState, len(c.tasks)),
		errs:      make(map[string]error),
		assignees: make(map[string]string, len(c.tasks)),
		logger:    logger,
	}
	for _, t := range c.tasks {
		run.states[t.ID] = TaskPending
		run.assignees[t.ID] = t.Agent
	}
	return run
}
