package crew

import (
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/knowledge"
)

// RunContext is the append-only value store of one run. Inputs and
// knowledge are fixed at start; task results are appended as revisions.
type RunContext struct {
	runID     string
	startedAt time.Time
	inputs    map[string]string
	knowledge knowledge.Fragment

	mu      sync.RWMutex
	results map[string][]TaskResult
}

func newRunContext(runID string, startedAt time.Time, inputs map[string]string, fragment knowledge.Fragment) *RunContext {
	in := make(map[string]string, len(inputs))
	for k, v := range inputs {
		in[k] = v
	}
	kn := make(knowledge.Fragment, len(fragment))
	for k, v := range fragment {
		kn[k] = v
	}
	return &RunContext{
		runID:     runID,
		startedAt: startedAt,
		inputs:    in,
		knowledge: kn,
		results:   make(map[string][]TaskResult),
	}
}

// RunID returns the run identifier.
func (rc *RunContext) RunID() string { return rc.runID }

// StartedAt returns the run start time.
func (rc *RunContext) StartedAt() time.Time { return rc.startedAt }

// Timestamp returns StartedAt formatted with TimestampLayout.
func (rc *RunContext) Timestamp() string { return rc.startedAt.Format(TimestampLayout) }

// Input returns a run input.
func (rc *RunContext) Input(name string) (string, bool) {
	v, ok := rc.inputs[name]
	return v, ok
}

// Knowledge returns a knowledge fragment value.
func (rc *RunContext) Knowledge(key string) (string, bool) {
	v, ok := rc.knowledge[key]
	return v, ok
}

// Get resolves a placeholder name: task results first, then inputs,
// knowledge and the built-in timestamp.
func (rc *RunContext) Get(name string) (string, bool) {
	if r, ok := rc.Result(name); ok {
		return r.Output, true
	}
	if v, ok := rc.inputs[name]; ok {
		return v, true
	}
	if v, ok := rc.knowledge[name]; ok {
		return v, true
	}
	if name == TimestampKey {
		return rc.Timestamp(), true
	}
	return "", false
}

// Result returns the latest revision of a task result.
func (rc *RunContext) Result(taskID string) (TaskResult, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	revs := rc.results[taskID]
	if len(revs) == 0 {
		return TaskResult{}, false
	}
	return revs[len(revs)-1], true
}

// Revisions returns every recorded result of a task, oldest first.
func (rc *RunContext) Revisions(taskID string) []TaskResult {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return append([]TaskResult(nil), rc.results[taskID]...)
}

// Values returns a snapshot of every resolvable name.
func (rc *RunContext) Values() map[string]string {
	out := make(map[string]string, len(rc.inputs)+len(rc.knowledge)+1)
	out[TimestampKey] = rc.Timestamp()
	for k, v := range rc.knowledge {
		out[k] = v
	}
	for k, v := range rc.inputs {
		out[k] = v
	}
	rc.mu.RLock()
	for id, revs := range rc.results {
		out[id] = revs[len(revs)-1].Output
	}
	rc.mu.RUnlock()
	return out
}

// Render expands raw against the current values.
func (rc *RunContext) Render(raw string) (string, error) {
	return rc.render(parseTemplate(raw))
}

func (rc *RunContext) render(t *template) (string, error) {
	out, missing := t.render(rc.Get)
	if len(missing) > 0 {
		return "", unresolved(missing)
	}
	return out, nil
}

// Join concatenates the latest outputs of ids, separated by a blank line.
// Ids without a result are skipped.
func (rc *RunContext) Join(ids ...string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := rc.Result(id); ok {
			parts = append(parts, r.Output)
		}
	}
	return strings.Join(parts, "\n\n")
}

// commit appends result as the next revision of its task.
func (rc *RunContext) commit(result TaskResult) TaskResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	result.Revision = len(rc.results[result.TaskID]) + 1
	rc.results[result.TaskID] = append(rc.results[result.TaskID], result)
	return result
}
