package crew

import (
	"strings"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/archive"
	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/knowledge"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
)

// Dependencies are the process-wide collaborators a definition is compiled
// against.
type Dependencies struct {
	Registry  *capability.Registry
	Generator llm.Generator
	Archive   *archive.Manager
	Knowledge *knowledge.Loader
	Observers []Observer
	Metrics   *metrics.Collector
	Logger    *zap.Logger

	// Decider overrides the LLM-backed manager of hierarchical crews.
	Decider Manager
	// MaxParallel overrides the definition when positive.
	MaxParallel int
	// MaxRework applies when the definition leaves it unset.
	MaxRework int
	// ResultsDir receives <name>.md when the definition has no result sink.
	// Empty disables the default result file.
	ResultsDir string
}

// FromDefinition compiles a typed crew definition. Every missing or
// dangling reference is reported as a configuration error before any
// side effect.
func FromDefinition(def *config.CrewDefinition, deps Dependencies) (*Crew, error) {
	if def == nil {
		return nil, types.NewError(types.ErrConfiguration, "crew definition is nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		return nil, types.NewError(types.ErrConfiguration, "capability registry is required")
	}
	if deps.Generator == nil {
		return nil, types.NewError(types.ErrConfiguration, "generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var agentOpts []agent.Option
	if deps.Metrics != nil {
		agentOpts = append(agentOpts, agent.WithMetrics(deps.Metrics))
	}

	b := NewBuilder(def.Name).
		WithLogger(logger).
		WithMetrics(deps.Metrics).
		WithArchive(deps.Archive).
		WithObserver(deps.Observers...).
		WithFinalTask(def.FinalTask)

	process := Process(strings.ToLower(def.Process))
	if process == "" {
		process = ProcessSequential
	}
	b.WithProcess(process)

	maxParallel := def.MaxParallel
	if deps.MaxParallel > 0 {
		maxParallel = deps.MaxParallel
	}
	b.WithMaxParallel(maxParallel)
	maxRework := def.MaxRework
	if maxRework == 0 {
		maxRework = deps.MaxRework
	}
	b.WithMaxRework(maxRework)

	switch {
	case def.ResultSink != "":
		b.WithResultSink(def.ResultSink)
	case deps.ResultsDir != "":
		b.WithResultSink(strings.TrimRight(deps.ResultsDir, "/") + "/" + def.Name + ".md")
	}

	if len(def.Knowledge) > 0 {
		sources := make([]knowledge.Source, len(def.Knowledge))
		for i, s := range def.Knowledge {
			sources[i] = knowledge.Source{Name: s.Name, Path: s.Path}
		}
		b.WithKnowledge(deps.Knowledge, sources...)
	}

	members := make([]*agent.Agent, 0, len(def.Agents))
	for _, ad := range def.Agents {
		a, err := agent.New(agentConfig(ad), deps.Registry, deps.Generator, logger, agentOpts...)
		if err != nil {
			return nil, err
		}
		members = append(members, a)
	}
	b.AddAgent(members...)

	if def.Manager != nil {
		mgr, err := agent.NewManager(agentConfig(*def.Manager), members, deps.Registry, deps.Generator, logger, agentOpts...)
		if err != nil {
			return nil, err
		}
		b.WithManager(mgr, deps.Decider)
	}

	for _, td := range def.Tasks {
		t, err := taskFromDefinition(td)
		if err != nil {
			return nil, err
		}
		b.AddTask(t)
	}

	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := c.checkShadowed(def.Inputs); err != nil {
		return nil, err
	}
	c.defaults = copyMap(def.Inputs)
	return c, nil
}

func agentConfig(d config.AgentDefinition) agent.Config {
	return agent.Config{
		Name:            d.Name,
		Role:            d.Role,
		Goal:            d.Goal,
		Backstory:       d.Backstory,
		Capabilities:    append([]string(nil), d.Capabilities...),
		AllowDelegation: d.AllowDelegation,
	}
}

func taskFromDefinition(td config.TaskDefinition) (*Task, error) {
	t := &Task{
		ID:             td.ID,
		Description:    td.Description,
		ExpectedOutput: td.ExpectedOutput,
		Agent:          td.Agent,
		DependsOn:      append([]string(nil), td.DependsOn...),
		OutputSink:     td.OutputSink,
		ArchiveFolder:  td.ArchiveFolder,
	}
	for _, cd := range td.Calls {
		t.Calls = append(t.Calls, agent.Call{Capability: cd.Capability, Args: capability.Args(cd.Args).Clone()})
	}
	if td.Function == "" {
		return t, nil
	}

	factory, ok := LookupFunc(td.Function)
	if !ok {
		return nil, types.Errorf(types.ErrConfiguration, "task %q uses unknown function %q (known: %s)",
			td.ID, td.Function, strings.Join(FuncNames(), ", ")).WithTask(td.ID)
	}
	if len(td.FunctionArgs) > 0 {
		t.FuncArgs = make(map[string]string, len(td.FunctionArgs))
		for k, v := range td.FunctionArgs {
			t.FuncArgs[k] = v
		}
	}
	fn, err := factory(t)
	if err != nil {
		return nil, err
	}
	t.Func = fn
	return t, nil
}
