package crew

import (
	"strings"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/archive"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/knowledge"
	"github.com/BaSui01/crewflow/types"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Builder provides a fluent API for assembling a crew. Every check runs
// in Build.
type Builder struct {
	name        string
	process     Process
	agents      []*agent.Agent
	tasks       []*Task
	manager     *agent.Agent
	decider     Manager
	loader      *knowledge.Loader
	sources     []knowledge.Source
	archive     *archive.Manager
	observers   []Observer
	metrics     *metrics.Collector
	logger      *zap.Logger
	maxParallel int
	maxRework   int
	finalTask   string
	resultSink  string
}

// NewBuilder creates a builder for a sequential crew.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, process: ProcessSequential}
}

// WithProcess sets the coordination policy.
func (b *Builder) WithProcess(p Process) *Builder {
	b.process = p
	return b
}

// AddAgent registers a member agent.
func (b *Builder) AddAgent(agents ...*agent.Agent) *Builder {
	b.agents = append(b.agents, agents...)
	return b
}

// AddTask appends a task; declaration order breaks scheduling ties.
func (b *Builder) AddTask(tasks ...*Task) *Builder {
	b.tasks = append(b.tasks, tasks...)
	return b
}

// WithManager sets the manager agent of a hierarchical crew. A nil
// decider asks the manager agent's generator via agent.LLMManager.
func (b *Builder) WithManager(manager *agent.Agent, decider Manager) *Builder {
	b.manager = manager
	b.decider = decider
	return b
}

// WithKnowledge loads sources once at the start of every run.
func (b *Builder) WithKnowledge(loader *knowledge.Loader, sources ...knowledge.Source) *Builder {
	b.loader = loader
	b.sources = append(b.sources, sources...)
	return b
}

// WithArchive sets the archive manager used for output sinks.
func (b *Builder) WithArchive(m *archive.Manager) *Builder {
	b.archive = m
	return b
}

// WithObserver adds run observers.
func (b *Builder) WithObserver(observers ...Observer) *Builder {
	b.observers = append(b.observers, observers...)
	return b
}

// WithMetrics records run, task and manager metrics.
func (b *Builder) WithMetrics(c *metrics.Collector) *Builder {
	b.metrics = c
	return b
}

// WithLogger sets a custom logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMaxParallel runs up to n independent ready tasks at once in a
// sequential crew. Values below 2 keep strict one-at-a-time execution.
func (b *Builder) WithMaxParallel(n int) *Builder {
	b.maxParallel = n
	return b
}

// WithMaxRework bounds the attempts per task of a hierarchical crew.
func (b *Builder) WithMaxRework(n int) *Builder {
	b.maxRework = n
	return b
}

// WithFinalTask designates the task whose output is the run result.
func (b *Builder) WithFinalTask(id string) *Builder {
	b.finalTask = id
	return b
}

// WithResultSink writes the final result to path (a template over run
// inputs and {timestamp}) after a successful run.
func (b *Builder) WithResultSink(path string) *Builder {
	b.resultSink = path
	return b
}

// Build validates the configuration and creates the crew.
func (b *Builder) Build() (*Crew, error) {
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := strings.TrimSpace(b.name)
	if name == "" {
		return nil, types.NewError(types.ErrConfiguration, "crew name is required")
	}
	if b.process != ProcessSequential && b.process != ProcessHierarchical {
		return nil, types.Errorf(types.ErrConfiguration, "unknown process %q", b.process)
	}
	if len(b.tasks) == 0 {
		return nil, types.NewError(types.ErrConfiguration, "crew has no tasks")
	}
	if b.maxRework < 0 {
		return nil, types.Errorf(types.ErrConfiguration, "max rework must not be negative, got %d", b.maxRework)
	}

	c := &Crew{
		name:        name,
		process:     b.process,
		agents:      make(map[string]*agent.Agent, len(b.agents)),
		loader:      b.loader,
		sources:     append([]knowledge.Source(nil), b.sources...),
		archive:     b.archive,
		observers:   append([]Observer(nil), b.observers...),
		metrics:     b.metrics,
		tracer:      otel.Tracer("github.com/BaSui01/crewflow/crew"),
		logger:      logger.With(zap.String("component", "crew"), zap.String("crew", name)),
		maxParallel: b.maxParallel,
		maxRework:   b.maxRework,
		finalTask:   b.finalTask,
	}
	if c.maxParallel < 1 {
		c.maxParallel = 1
	}
	if c.maxRework == 0 {
		c.maxRework = DefaultMaxRework
	}
	if c.archive == nil {
		c.archive = archive.NewManager(archive.DefaultConfig(), b.metrics, logger)
	}
	if c.loader == nil && len(c.sources) > 0 {
		c.loader = knowledge.NewLoader(nil, logger)
	}

	if err := b.buildAgents(c); err != nil {
		return nil, err
	}
	if err := b.buildTasks(c); err != nil {
		return nil, err
	}

	if c.process == ProcessHierarchical && c.manager == nil {
		return nil, types.NewError(types.ErrConfiguration, "hierarchical process requires a manager")
	}
	if c.process == ProcessSequential && c.manager != nil {
		c.logger.Warn("manager is ignored by the sequential process", zap.String("manager", c.manager.Name()))
	}
	if c.finalTask != "" {
		if _, ok := c.byID[c.finalTask]; !ok {
			return nil, types.Errorf(types.ErrUnknownTask, "final task %q is not defined", c.finalTask)
		}
	}
	if b.resultSink != "" {
		c.resultSink = parseTemplate(b.resultSink)
		for _, n := range c.resultSink.Names() {
			if _, isTask := c.byID[n]; isTask {
				return nil, types.Errorf(types.ErrUnresolvedPlaceholder, "result sink cannot reference task %q", n)
			}
			if n == TimestampKey {
				continue
			}
			c.addRequiredInput(n)
		}
	}

	c.logger.Info("crew built",
		zap.String("process", string(c.process)),
		zap.Int("agents", len(c.agents)),
		zap.Int("tasks", len(c.tasks)),
		zap.Strings("order", c.order),
		zap.Strings("inputs", c.requiredInputs),
	)
	return c, nil
}

func (b *Builder) buildAgents(c *Crew) error {
	for _, a := range b.agents {
		if a == nil {
			return types.NewError(types.ErrConfiguration, "nil agent")
		}
		if a.IsManager() {
			return types.Errorf(types.ErrConfiguration, "manager %q must be set with WithManager, not added as a member", a.Name())
		}
		if _, dup := c.agents[a.Name()]; dup {
			return types.Errorf(types.ErrConfiguration, "duplicate agent %q", a.Name())
		}
		c.agents[a.Name()] = a
		c.agentOrder = append(c.agentOrder, a.Name())
	}

	if b.manager != nil {
		if _, clash := c.agents[b.manager.Name()]; clash {
			return types.Errorf(types.ErrConfiguration, "manager %q is also registered as a member", b.manager.Name())
		}
		c.manager = b.manager
		c.decider = b.decider
		if c.decider == nil {
			c.decider = agent.NewLLMManager(b.manager, c.logger)
		}
	}
	return nil
}

func (b *Builder) buildTasks(c *Crew) error {
	tasks := make([]*Task, len(b.tasks))
	for i, t := range b.tasks {
		if t == nil {
			return types.Errorf(types.ErrConfiguration, "task #%d is nil", i+1)
		}
		cp := *t
		cp.DependsOn = append([]string(nil), t.DependsOn...)
		cp.Calls = append([]agent.Call(nil), t.Calls...)
		if t.FuncArgs != nil {
			cp.FuncArgs = make(map[string]string, len(t.FuncArgs))
			for k, v := range t.FuncArgs {
				cp.FuncArgs[k] = v
			}
		}
		tasks[i] = &cp
	}

	g, err := newGraph(tasks)
	if err != nil {
		return err
	}
	c.graph = g
	c.order = g.topoOrder()
	c.byID = make(map[string]*compiledTask, len(tasks))

	knowledgeKeys := map[string]struct{}{}
	if len(c.sources) > 0 {
		knowledgeKeys[knowledge.AllKey] = struct{}{}
		for _, s := range c.sources {
			knowledgeKeys[s.Key()] = struct{}{}
		}
	}

	for i, t := range tasks {
		if t.ID == TimestampKey {
			return types.Errorf(types.ErrConfiguration, "task id %q is reserved", t.ID).WithTask(t.ID)
		}
		if _, clash := knowledgeKeys[t.ID]; clash {
			return types.Errorf(types.ErrConfiguration, "task id %q collides with a knowledge key", t.ID).WithTask(t.ID)
		}
		if err := c.checkAssignment(t); err != nil {
			return err
		}

		ct := &compiledTask{
			Task:        t,
			index:       i,
			description: parseTemplate(t.Description),
			expected:    parseTemplate(t.ExpectedOutput),
			sink:        parseTemplate(t.OutputSink),
		}
		for _, call := range t.Calls {
			args := make(map[string]*template, len(call.Args))
			for k, v := range call.Args {
				args[k] = parseTemplate(v)
			}
			ct.args = append(ct.args, args)
		}
		if len(t.FuncArgs) > 0 {
			if t.Func == nil {
				return types.Errorf(types.ErrConfiguration, "task %q has function args but no custom function", t.ID).WithTask(t.ID)
			}
			ct.funcArgs = make(map[string]*template, len(t.FuncArgs))
			for k, v := range t.FuncArgs {
				ct.funcArgs[k] = parseTemplate(v)
			}
		}

		ancestors := g.ancestors(t.ID)
		check := func(names []string, allowTasks bool) error {
			for _, n := range names {
				if _, isTask := g.index[n]; isTask {
					if !allowTasks {
						return types.Errorf(types.ErrUnresolvedPlaceholder, "output sink of task %q cannot reference task %q", t.ID, n).WithTask(t.ID)
					}
					if _, ok := ancestors[n]; !ok {
						return types.Errorf(types.ErrUnresolvedPlaceholder, "task %q references {%s}, which is not one of its dependencies", t.ID, n).WithTask(t.ID)
					}
					continue
				}
				if n == knowledge.AllKey || strings.HasPrefix(n, knowledge.KeyPrefix) {
					if _, ok := knowledgeKeys[n]; !ok {
						return types.Errorf(types.ErrUnresolvedPlaceholder, "task %q references {%s}, but no such knowledge source is configured", t.ID, n).WithTask(t.ID)
					}
					continue
				}
				if n == TimestampKey {
					continue
				}
				c.addRequiredInput(n)
			}
			return nil
		}
		if err := check(ct.description.Names(), true); err != nil {
			return err
		}
		if err := check(ct.expected.Names(), true); err != nil {
			return err
		}
		for _, args := range ct.args {
			for _, tmpl := range args {
				if err := check(tmpl.Names(), true); err != nil {
					return err
				}
			}
		}
		for _, tmpl := range ct.funcArgs {
			if err := check(tmpl.Names(), true); err != nil {
				return err
			}
		}
		if err := check(ct.sink.Names(), false); err != nil {
			return err
		}

		c.tasks = append(c.tasks, ct)
		c.byID[t.ID] = ct
	}
	return nil
}

// checkAssignment validates the executing agent and its calls.
func (c *Crew) checkAssignment(t *Task) error {
	if c.manager != nil && t.Agent == c.manager.Name() {
		return types.Errorf(types.ErrConfiguration, "task %q is assigned to the manager %q", t.ID, t.Agent).WithTask(t.ID)
	}
	if t.Func != nil {
		if len(t.Calls) > 0 {
			return types.Errorf(types.ErrConfiguration, "task %q has both a custom function and capability calls", t.ID).WithTask(t.ID)
		}
		if t.Agent != "" {
			if _, ok := c.agents[t.Agent]; !ok {
				return types.Errorf(types.ErrUnknownAgent, "task %q is assigned to unknown agent %q", t.ID, t.Agent).WithTask(t.ID)
			}
		}
		return nil
	}

	a, ok := c.agents[t.Agent]
	if !ok {
		return types.Errorf(types.ErrUnknownAgent, "task %q is assigned to unknown agent %q", t.ID, t.Agent).WithTask(t.ID)
	}
	for _, call := range t.Calls {
		if !a.HasCapability(call.Capability) {
			return types.Errorf(types.ErrUnknownCapability, "task %q calls %q, which agent %q does not hold", t.ID, call.Capability, a.Name()).WithTask(t.ID)
		}
	}
	return nil
}

func (c *Crew) addRequiredInput(name string) {
	for _, n := range c.requiredInputs {
		if n == name {
			return
		}
	}
	c.requiredInputs = append(c.requiredInputs, name)
}
