package crew

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/types"
)

// Names of the custom functions addressable from crew definitions.
const (
	FuncConcatDependencies = "concat_dependencies"
	FuncReadDirectory      = "read_directory"
)

// ConcatDependencies joins the latest outputs of ids, in the given order,
// separated by a blank line.
func ConcatDependencies(ids ...string) CustomFunc {
	ids = append([]string(nil), ids...)
	return func(_ context.Context, rc *RunContext, _ map[string]string) (string, error) {
		return rc.Join(ids...), nil
	}
}

// ReadDirectory concatenates every regular file under args["dir"],
// skipping the comma separated folder names in args["exclude"].
func ReadDirectory() CustomFunc {
	return func(ctx context.Context, _ *RunContext, args map[string]string) (string, error) {
		dir := strings.TrimSpace(args["dir"])
		if dir == "" {
			return "", types.NewError(types.ErrConfiguration, FuncReadDirectory+" requires a dir argument")
		}
		return capability.ReadDirectory(ctx, dir, splitList(args["exclude"])...)
	}
}

// FuncFactory builds the custom function of a task from its definition.
type FuncFactory func(task *Task) (CustomFunc, error)

var builtinFuncs = map[string]FuncFactory{
	FuncConcatDependencies: func(task *Task) (CustomFunc, error) {
		if len(task.DependsOn) == 0 {
			return nil, types.Errorf(types.ErrConfiguration, "task %q: %s needs at least one dependency", task.ID, FuncConcatDependencies).WithTask(task.ID)
		}
		return ConcatDependencies(task.DependsOn...), nil
	},
	FuncReadDirectory: func(task *Task) (CustomFunc, error) {
		if strings.TrimSpace(task.FuncArgs["dir"]) == "" {
			return nil, types.Errorf(types.ErrConfiguration, "task %q: %s requires a dir argument", task.ID, FuncReadDirectory).WithTask(task.ID)
		}
		return ReadDirectory(), nil
	},
}

// LookupFunc returns the factory registered under name.
func LookupFunc(name string) (FuncFactory, bool) {
	f, ok := builtinFuncs[name]
	return f, ok
}

// FuncNames returns the built-in function names, sorted.
func FuncNames() []string {
	names := make([]string, 0, len(builtinFuncs))
	for name := range builtinFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
