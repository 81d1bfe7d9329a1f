package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
)

// Action 管理者决策类型
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReassign Action = "reassign"
	ActionRework   Action = "rework"
)

// Decision is the manager's answer for one scheduling point.
type Decision struct {
	Action Action `json:"action"`
	// Agent names the reassignment target or the agent sent back for rework.
	Agent  string `json:"agent,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Approve is the decision to run the task as scheduled.
func Approve() Decision { return Decision{Action: ActionApprove} }

// Consultation is what a manager sees before a task becomes eligible.
type Consultation struct {
	TaskID         string
	Input          string
	ExpectedOutput string
	Assignee       string
	// Members lists the agents the manager may choose from.
	Members      []MemberInfo
	Dependencies map[string]string
	// Attempt counts prior non-approve decisions and failed executions.
	Attempt   int
	LastError error
}

// MemberInfo describes one managed agent.
type MemberInfo struct {
	Name            string
	Role            string
	Capabilities    []string
	AllowDelegation bool
}

// Describe returns the member info of a.
func Describe(a *Agent) MemberInfo {
	return MemberInfo{
		Name:            a.Name(),
		Role:            a.Role(),
		Capabilities:    a.Capabilities(),
		AllowDelegation: a.AllowDelegation(),
	}
}

// NewManager 创建管理者 Agent, 其能力集为成员能力的并集(按首次出现排序)
func NewManager(cfg Config, members []*Agent, registry *capability.Registry, generator llm.Generator, logger *zap.Logger, opts ...Option) (*Agent, error) {
	seen := make(map[string]struct{})
	union := make([]string, 0)
	add := func(names []string) {
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			union = append(union, name)
		}
	}
	add(cfg.Capabilities)
	for _, m := range members {
		if m == nil {
			continue
		}
		if m.IsManager() {
			return nil, types.Errorf(types.ErrConfiguration, "manager %s cannot manage another manager %s", cfg.Role, m.Name())
		}
		add(m.Capabilities())
	}
	cfg.Capabilities = union

	a, err := New(cfg, registry, generator, logger, opts...)
	if err != nil {
		return nil, err
	}
	a.manager = true
	return a, nil
}

// LLMManager asks the manager agent's generator for each decision. The
// first word of the answer selects the action: APPROVE, REASSIGN <agent>
// or REWORK <agent>.
type LLMManager struct {
	agent  *Agent
	logger *zap.Logger
}

// NewLLMManager wraps a manager agent.
func NewLLMManager(manager *Agent, logger *zap.Logger) *LLMManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMManager{agent: manager, logger: logger.With(zap.String("component", "llm_manager"))}
}

// Agent returns the wrapped manager agent.
func (m *LLMManager) Agent() *Agent { return m.agent }

// Decide implements the crew manager contract.
func (m *LLMManager) Decide(ctx context.Context, c Consultation) (Decision, error) {
	out, err := m.agent.generator.Generate(ctx, llm.GenerateRequest{
		Role:           m.agent.cfg.Role,
		Goal:           m.agent.cfg.Goal,
		Backstory:      m.agent.cfg.Backstory,
		Prompt:         consultationPrompt(c),
		ExpectedOutput: "One line: APPROVE, REASSIGN <agent> or REWORK <agent>, followed by a short reason.",
		Context:        c.Dependencies,
	})
	if err != nil {
		return Decision{}, types.Errorf(types.ErrGenerationFailure, "manager %s: decision failed", m.agent.Name()).
			WithCause(err).
			WithTask(c.TaskID)
	}

	d, ok := ParseDecision(out)
	if !ok {
		m.logger.Warn("unparseable manager answer, approving",
			zap.String("task_id", c.TaskID),
			zap.String("answer", firstLine(out)),
		)
		return Decision{Action: ActionApprove, Reason: "unparseable answer"}, nil
	}
	return d, nil
}

// ParseDecision reads the first non-empty line of a manager answer.
func ParseDecision(answer string) (Decision, bool) {
	fields := strings.Fields(firstLine(answer))
	if len(fields) == 0 {
		return Decision{}, false
	}

	verb := strings.ToUpper(strings.Trim(fields[0], ":.,*"))
	rest := fields[1:]
	switch verb {
	case "APPROVE", "APPROVED":
		return Decision{Action: ActionApprove, Reason: strings.Join(rest, " ")}, true
	case "REASSIGN", "REWORK":
		if len(rest) == 0 {
			return Decision{}, false
		}
		action := ActionReassign
		if verb == "REWORK" {
			action = ActionRework
		}
		return Decision{
			Action: action,
			Agent:  strings.Trim(rest[0], ":.,*\"'"),
			Reason: strings.Join(rest[1:], " "),
		}, true
	default:
		return Decision{}, false
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func consultationPrompt(c Consultation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q is ready to run.\n\nInput:\n%s\n", c.TaskID, c.Input)
	if c.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\nExpected output: %s\n", c.ExpectedOutput)
	}
	fmt.Fprintf(&b, "\nCurrently assigned to: %s\n", c.Assignee)
	if c.Attempt > 0 {
		fmt.Fprintf(&b, "Previous attempts: %d\n", c.Attempt)
	}
	if c.LastError != nil {
		fmt.Fprintf(&b, "Last failure: %v\n", c.LastError)
	}
	b.WriteString("\nTeam:\n")
	for _, m := range c.Members {
		fmt.Fprintf(&b, "- %s (%s), capabilities: %s", m.Name, m.Role, strings.Join(m.Capabilities, ", "))
		if !m.AllowDelegation {
			b.WriteString(", no delegation")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer APPROVE to run it as assigned, REASSIGN <agent> to give it to another member, or REWORK <agent> to send that member's upstream work back.")
	return b.String()
}
