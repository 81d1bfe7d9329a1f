package crew

import (
	"context"
	"time"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
)

// hierarchical consults the manager before every ready task. The manager
// approves, reassigns the task, or sends the upstream work of one agent
// back; each non-approve decision and each failed execution is an
// attempt, and more than maxRework attempts ends the task with
// NO_CONVERGENCE.
func (e *execution) hierarchical(ctx context.Context) {
	members := make([]agent.MemberInfo, 0, len(e.crew.agentOrder))
	for _, name := range e.crew.agentOrder {
		members = append(members, agent.Describe(e.crew.agents[name]))
	}

	for _, id := range e.crew.order {
		t := e.crew.byID[id]
		if ctx.Err() != nil {
			e.skipCancelled(ctx, t)
			continue
		}
		if dep, blocked := e.blocked(t); blocked {
			e.skipBlocked(ctx, t, dep)
			continue
		}
		e.states[id] = TaskReady
		e.supervise(ctx, t, members)
	}
}

func (e *execution) supervise(ctx context.Context, t *compiledTask, members []agent.MemberInfo) {
	logger := e.logger.With(zap.String("task_id", t.ID))
	attempts := 0
	var lastErr error
	started := time.Now()
	last := outcome{started: started, result: TaskResult{TaskID: t.ID}}

	for {
		if ctx.Err() != nil {
			e.skipCancelled(ctx, t)
			return
		}
		if attempts > e.crew.maxRework {
			err := types.Errorf(types.ErrNoConvergence, "task %s did not converge after %d attempts", t.ID, attempts).
				WithCause(lastErr).
				WithTask(t.ID)
			last.err = err
			last.result.Agent = e.assignees[t.ID]
			e.finish(ctx, t, last, attempts)
			return
		}

		input, err := e.rc.render(t.description)
		var expected string
		if err == nil {
			expected, err = e.rc.render(t.expected)
		}
		if err != nil {
			e.finish(ctx, t, outcome{err: withTask(err, t.ID), started: started, result: TaskResult{TaskID: t.ID, Agent: e.assignees[t.ID]}}, attempts)
			return
		}
		deps := make(map[string]string, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if r, ok := e.rc.Result(dep); ok {
				deps[dep] = r.Output
			}
		}

		decision, err := e.crew.decider.Decide(ctx, agent.Consultation{
			TaskID:         t.ID,
			Input:          input,
			ExpectedOutput: expected,
			Assignee:       e.assignees[t.ID],
			Members:        members,
			Dependencies:   deps,
			Attempt:        attempts,
			LastError:      lastErr,
		})
		if err != nil {
			logger.Error("manager decision failed", zap.Error(err))
			e.finish(ctx, t, outcome{err: withTask(err, t.ID), started: started, result: TaskResult{TaskID: t.ID, Agent: e.assignees[t.ID]}}, attempts)
			return
		}
		e.crew.metrics.RecordManagerDecision(string(decision.Action))
		logger.Info("manager decision",
			zap.String("action", string(decision.Action)),
			zap.String("agent", decision.Agent),
			zap.String("reason", decision.Reason),
			zap.Int("attempt", attempts),
		)

		switch decision.Action {
		case agent.ActionApprove, "":
			e.states[t.ID] = TaskRunning
			o := e.execute(ctx, t, e.assignees[t.ID])
			o = e.commit(ctx, t, o)
			if o.err == nil {
				e.finish(ctx, t, o, attempts)
				return
			}
			e.states[t.ID] = TaskReady
			logger.Warn("task attempt failed", zap.Error(o.err))
			last, lastErr = o, o.err

		case agent.ActionReassign:
			if err := e.reassign(t, decision.Agent); err != nil {
				lastErr = err
			} else {
				lastErr = nil
			}

		case agent.ActionRework:
			lastErr = e.rework(ctx, t, decision.Agent)

		default:
			lastErr = types.Errorf(types.ErrConfiguration, "manager returned unknown action %q", decision.Action).WithTask(t.ID)
		}
		attempts++
	}
}

// reassign moves t to target when delegation rules allow it.
func (e *execution) reassign(t *compiledTask, target string) error {
	current := e.assignees[t.ID]
	deny := func(format string, args ...any) error {
		return types.Errorf(types.ErrDelegationDenied, format, args...).WithTask(t.ID)
	}

	if t.Func != nil {
		return deny("task %s runs a custom function and cannot be reassigned", t.ID)
	}
	if cur, ok := e.crew.agents[current]; ok && !cur.AllowDelegation() {
		return deny("agent %s does not allow delegation of task %s", current, t.ID)
	}
	if e.crew.manager != nil && target == e.crew.manager.Name() {
		return deny("task %s cannot be reassigned to the manager", t.ID)
	}
	next, ok := e.crew.agents[target]
	if !ok {
		return deny("reassignment target %q is not a registered agent", target)
	}
	for _, call := range t.Calls {
		if !next.HasCapability(call.Capability) {
			return deny("agent %s lacks capability %s required by task %s", target, call.Capability, t.ID)
		}
	}

	e.assignees[t.ID] = target
	e.logger.Info("task reassigned",
		zap.String("task_id", t.ID),
		zap.String("from", current),
		zap.String("to", target),
	)
	return nil
}

// rework re-executes the direct dependencies of t owned by owner. Each
// success appends a new revision; the first failure is returned.
func (e *execution) rework(ctx context.Context, t *compiledTask, owner string) error {
	if _, ok := e.crew.agents[owner]; !ok {
		return types.Errorf(types.ErrDelegationDenied, "rework target %q is not a registered agent", owner).WithTask(t.ID)
	}

	var redo []*compiledTask
	for _, dep := range t.DependsOn {
		if e.assignees[dep] == owner {
			redo = append(redo, e.crew.byID[dep])
		}
	}
	if len(redo) == 0 {
		return types.Errorf(types.ErrDelegationDenied, "agent %s owns no dependency of task %s", owner, t.ID).WithTask(t.ID)
	}

	for _, dep := range redo {
		o := e.execute(ctx, dep, owner)
		o = e.commit(ctx, dep, o)
		if o.err != nil {
			e.logger.Warn("rework failed", zap.String("task_id", dep.ID), zap.Error(o.err))
			return o.err
		}
		e.logger.Info("dependency reworked",
			zap.String("task_id", dep.ID),
			zap.String("for", t.ID),
			zap.Int("revision", o.result.Revision),
		)
		e.report(ctx, dep, TaskDone, o, 0)
	}
	return nil
}
