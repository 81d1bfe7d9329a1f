package crew

import (
	"strings"

	"github.com/BaSui01/crewflow/types"
)

// graph is the validated dependency structure of a crew.
type graph struct {
	ids        []string
	index      map[string]int
	deps       map[string][]string
	dependents map[string][]string
}

// newGraph indexes tasks and checks ids and dependency references.
func newGraph(tasks []*Task) (*graph, error) {
	g := &graph{
		ids:        make([]string, 0, len(tasks)),
		index:      make(map[string]int, len(tasks)),
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
	}
	for i, t := range tasks {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, types.Errorf(types.ErrConfiguration, "task #%d has an empty id", i+1)
		}
		if id != t.ID {
			return nil, types.Errorf(types.ErrConfiguration, "task id %q has surrounding whitespace", t.ID)
		}
		if _, dup := g.index[id]; dup {
			return nil, types.Errorf(types.ErrConfiguration, "duplicate task id %q", id)
		}
		g.index[id] = i
		g.ids = append(g.ids, id)
	}

	for _, t := range tasks {
		seen := make(map[string]struct{}, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if _, ok := g.index[dep]; !ok {
				return nil, types.Errorf(types.ErrUnknownTask, "task %q depends on unknown task %q", t.ID, dep).WithTask(t.ID)
			}
			if _, dup := seen[dep]; dup {
				return nil, types.Errorf(types.ErrConfiguration, "task %q lists dependency %q twice", t.ID, dep).WithTask(t.ID)
			}
			seen[dep] = struct{}{}
			g.deps[t.ID] = append(g.deps[t.ID], dep)
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, types.Errorf(types.ErrCyclicDependency, "cycle detected: %s", strings.Join(cycle, " -> ")).WithTask(cycle[0])
	}
	return g, nil
}

// findCycle returns a closed path such as [a b a], or nil.
func (g *graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.ids))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.deps[id] {
			switch color[dep] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.ids {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// topoOrder 返回拓扑序; 同时就绪的任务按声明顺序
func (g *graph) topoOrder() []string {
	remaining := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		remaining[id] = len(g.deps[id])
	}
	done := make([]bool, len(g.ids))
	order := make([]string, 0, len(g.ids))

	for len(order) < len(g.ids) {
		picked := -1
		for i, id := range g.ids {
			if !done[i] && remaining[id] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			// unreachable for an acyclic graph
			break
		}
		id := g.ids[picked]
		done[picked] = true
		order = append(order, id)
		for _, child := range g.dependents[id] {
			remaining[child]--
		}
	}
	return order
}

// ancestors returns every task id id transitively depends on.
func (g *graph) ancestors(id string) map[string]struct{} {
	out := make(map[string]struct{})
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.deps[cur] {
			if _, ok := out[dep]; ok {
				continue
			}
			out[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(id)
	return out
}

// terminals returns tasks nothing depends on, in declaration order.
func (g *graph) terminals() []string {
	var out []string
	for _, id := range g.ids {
		if len(g.dependents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}
