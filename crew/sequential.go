package crew

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// sequential runs the tasks one at a time in topological order.
func (e *execution) sequential(ctx context.Context) {
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

		e.states[id] = TaskRunning
		o := e.execute(ctx, t, e.assignees[id])
		o = e.commit(ctx, t, o)
		e.finish(ctx, t, o, 0)
	}
}

// parallel runs waves of ready tasks, at most maxParallel at a time.
// Outcomes are committed strictly in topological order: a task that
// finishes before an earlier task in that order is held back until every
// predecessor has been committed, so sinks, Order and dependents observe
// the same sequence as in sequential mode.
func (e *execution) parallel(ctx context.Context) {
	order := e.crew.order
	held := make(map[string]outcome, len(order))
	next := 0

	for next < len(order) {
		// commit everything the cursor can reach without running anything
		for next < len(order) {
			t := e.crew.byID[order[next]]
			if o, ok := held[t.ID]; ok {
				delete(held, t.ID)
				e.finish(ctx, t, e.commit(ctx, t, o), 0)
				next++
				continue
			}
			if ctx.Err() != nil {
				e.skipCancelled(ctx, t)
				next++
				continue
			}
			if dep, blocked := e.blocked(t); blocked {
				e.skipBlocked(ctx, t, dep)
				next++
				continue
			}
			break
		}
		if next >= len(order) {
			return
		}

		// the task at the cursor is ready; fill the wave with later tasks
		// whose dependencies are already committed
		wave := make([]*compiledTask, 0, e.crew.maxParallel)
		for _, id := range order[next:] {
			if len(wave) == e.crew.maxParallel {
				break
			}
			t := e.crew.byID[id]
			if _, done := held[id]; done {
				continue
			}
			if _, blocked := e.blocked(t); blocked {
				continue
			}
			wave = append(wave, t)
		}

		outcomes := make([]outcome, len(wave))
		var g errgroup.Group
		for i, t := range wave {
			e.states[t.ID] = TaskRunning
			assignee := e.assignees[t.ID]
			g.Go(func() error {
				outcomes[i] = e.execute(ctx, t, assignee)
				return nil
			})
		}
		_ = g.Wait()

		for i, t := range wave {
			held[t.ID] = outcomes[i]
		}
	}
}
