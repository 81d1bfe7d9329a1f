package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextKeyPrefix prefixes capability outputs in the generation context.
const ContextKeyPrefix = "capability."

// Config 描述一个 Agent 角色
type Config struct {
	// Name is the stable key other parts of a crew use to address the
	// agent. Defaults to Role.
	Name            string   `yaml:"name" json:"name"`
	Role            string   `yaml:"role" json:"role"`
	Goal            string   `yaml:"goal" json:"goal"`
	Backstory       string   `yaml:"backstory" json:"backstory"`
	Capabilities    []string `yaml:"capabilities" json:"capabilities"`
	AllowDelegation bool     `yaml:"allow_delegation" json:"allow_delegation"`
}

// Validate checks the static fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Role) == "" {
		return fmt.Errorf("%w: role is required", ErrConfigInvalid)
	}
	seen := make(map[string]struct{}, len(c.Capabilities))
	for _, name := range c.Capabilities {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: capability %q listed twice", ErrConfigInvalid, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Call is one capability invocation requested by a task.
type Call struct {
	Capability string          `yaml:"capability" json:"capability"`
	Args       capability.Args `yaml:"args" json:"args"`
}

// Request is the input of Act.
type Request struct {
	TaskID         string
	Input          string
	ExpectedOutput string
	Calls          []Call
	// Context holds run inputs, knowledge and dependency outputs.
	Context map[string]string
}

// Agent is a role bound to capabilities.
type Agent struct {
	cfg       Config
	caps      map[string]capability.Capability
	generator llm.Generator
	manager   bool

	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithMetrics records generation metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Agent) { a.metrics = c }
}

// New 创建 Agent, 能力名在此一次性解析
func New(cfg Config, registry *capability.Registry, generator llm.Generator, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrConfiguration, err.Error()).WithCause(err)
	}
	if generator == nil {
		return nil, types.Errorf(types.ErrConfiguration, "agent %s", cfg.Role).WithCause(ErrGeneratorNotSet)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Role
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Capabilities = append([]string(nil), cfg.Capabilities...)

	caps := make(map[string]capability.Capability, len(cfg.Capabilities))
	for _, name := range cfg.Capabilities {
		if registry == nil {
			return nil, types.Errorf(types.ErrUnknownCapability, "agent %s: capability %q is not registered", cfg.Name, name)
		}
		c, err := registry.Get(name)
		if err != nil {
			return nil, types.Errorf(types.ErrUnknownCapability, "agent %s: capability %q is not registered", cfg.Name, name).WithCause(err)
		}
		caps[name] = c
	}

	a := &Agent{
		cfg:       cfg,
		caps:      caps,
		generator: generator,
		tracer:    otel.Tracer("github.com/BaSui01/crewflow/agent"),
		logger:    logger.With(zap.String("component", "agent"), zap.String("agent", cfg.Name)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the agent key.
func (a *Agent) Name() string { return a.cfg.Name }

// Role returns the role description.
func (a *Agent) Role() string { return a.cfg.Role }

// Config returns a copy of the configuration.
func (a *Agent) Config() Config {
	cfg := a.cfg
	cfg.Capabilities = append([]string(nil), a.cfg.Capabilities...)
	return cfg
}

// AllowDelegation reports whether the agent's tasks may be reassigned.
func (a *Agent) AllowDelegation() bool { return a.cfg.AllowDelegation }

// IsManager reports whether the agent was built by NewManager.
func (a *Agent) IsManager() bool { return a.manager }

// Capabilities returns the bound capability names in declaration order.
func (a *Agent) Capabilities() []string {
	return append([]string(nil), a.cfg.Capabilities...)
}

// HasCapability reports whether name is bound.
func (a *Agent) HasCapability(name string) bool {
	_, ok := a.caps[name]
	return ok
}

// Generator returns the agent's generator.
func (a *Agent) Generator() llm.Generator { return a.generator }

// Act runs the requested capability calls, then the generation step.
func (a *Agent) Act(ctx context.Context, req Request) (string, error) {
	if req.TaskID != "" {
		ctx = types.WithTaskID(ctx, req.TaskID)
	}
	ctx, span := a.tracer.Start(ctx, "agent.act", trace.WithAttributes(
		attribute.String("agent.name", a.cfg.Name),
		attribute.String("task.id", req.TaskID),
		attribute.Int("agent.calls", len(req.Calls)),
	))
	defer span.End()

	logger := a.logger.With(zap.String("task_id", req.TaskID))

	genCtx := make(map[string]string, len(req.Context)+len(req.Calls))
	for k, v := range req.Context {
		genCtx[k] = v
	}

	seen := make(map[string]int, len(req.Calls))
	for _, call := range req.Calls {
		c, ok := a.caps[call.Capability]
		if !ok {
			err := types.Errorf(types.ErrUnknownCapability, "agent %s does not hold capability %q", a.cfg.Name, call.Capability).
				WithTask(req.TaskID)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		out, err := c.Invoke(ctx, call.Args)
		if err != nil {
			if !types.IsCode(err, types.ErrCapabilityFailure) {
				err = types.Errorf(types.ErrCapabilityFailure, "capability %s failed", call.Capability).WithCause(err)
			}
			if e, ok := types.AsError(err); ok && e.TaskID == "" {
				e.WithTask(req.TaskID)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("capability call failed", zap.String("capability", call.Capability), zap.Error(err))
			return "", err
		}

		seen[call.Capability]++
		key := ContextKeyPrefix + call.Capability
		if n := seen[call.Capability]; n > 1 {
			key += "#" + strconv.Itoa(n)
		}
		genCtx[key] = out
	}

	start := time.Now()
	out, err := a.generator.Generate(ctx, llm.GenerateRequest{
		Role:           a.cfg.Role,
		Goal:           a.cfg.Goal,
		Backstory:      a.cfg.Backstory,
		Prompt:         req.Input,
		ExpectedOutput: req.ExpectedOutput,
		Context:        genCtx,
	})
	a.metrics.RecordGeneration(a.cfg.Name, metrics.Status(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("generation failed", zap.Error(err))
		return "", types.Errorf(types.ErrGenerationFailure, "agent %s: generation failed", a.cfg.Name).
			WithCause(err).
			WithTask(req.TaskID).
			WithRetryable(types.IsRetryable(err))
	}

	logger.Debug("agent acted", zap.Int("calls", len(req.Calls)), zap.Int("output_len", len(out)))
	return out, nil
}
