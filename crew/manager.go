package crew

import (
	"context"

	"github.com/BaSui01/crewflow/agent"
)

// DefaultMaxRework bounds the attempts per task in a hierarchical run.
const DefaultMaxRework = 3

// Manager decides, before each ready task runs, whether it runs as
// scheduled, moves to another agent, or sends upstream work back.
type Manager interface {
	Decide(ctx context.Context, c agent.Consultation) (agent.Decision, error)
}

// ManagerFunc adapts a function to Manager.
type ManagerFunc func(ctx context.Context, c agent.Consultation) (agent.Decision, error)

// Decide calls f.
func (f ManagerFunc) Decide(ctx context.Context, c agent.Consultation) (agent.Decision, error) {
	return f(ctx, c)
}

// ApproveAll approves every task as scheduled.
var ApproveAll Manager = ManagerFunc(func(context.Context, agent.Consultation) (agent.Decision, error) {
	return agent.Approve(), nil
})
