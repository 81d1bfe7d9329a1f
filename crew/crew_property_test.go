package crew

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// 任意 DAG 在任意并行度下: 每个任务开始时其所有依赖都已有结果, 且每个任务恰好执行一次
func TestProperty_DependenciesAvailableAtStart(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60

	properties := gopter.NewProperties(parameters)

	properties.Property("dependencies are committed before a task starts", prop.ForAll(
		func(n int, seed int64, parallel int) bool {
			tasks := randomDAG(n, seed)
			runs := make(map[string]int, n)
			var (
				mu        sync.Mutex
				violation string
			)

			for _, task := range tasks {
				task := task
				task.Func = func(_ context.Context, rc *RunContext, _ map[string]string) (string, error) {
					for _, dep := range task.DependsOn {
						if _, ok := rc.Result(dep); !ok {
							mu.Lock()
							if violation == "" {
								violation = fmt.Sprintf("%s started before %s", task.ID, dep)
							}
							mu.Unlock()
						}
					}
					return task.ID, nil
				}
			}
			c, err := NewBuilder("prop").WithMaxParallel(parallel).AddTask(tasks...).Build()
			if err != nil {
				t.Logf("build: %v", err)
				return false
			}
			res, err := c.Kickoff(context.Background(), nil)
			if err != nil {
				t.Logf("kickoff: %v", err)
				return false
			}
			if violation != "" {
				t.Log(violation)
				return false
			}
			for _, id := range res.Order {
				runs[id]++
			}
			for _, task := range tasks {
				if runs[task.ID] != 1 || res.Tasks[task.ID].Output != task.ID {
					return false
				}
			}
			return res.Status == RunDone
		},
		gen.IntRange(1, 10),
		gen.Int64(),
		gen.IntRange(1, 4),
	))

	properties.Property("sequential order is the graph's topological order", prop.ForAll(
		func(n int, seed int64) bool {
			tasks := randomDAG(n, seed)
			var started []string
			for _, task := range tasks {
				id := task.ID
				task.Func = func(context.Context, *RunContext, map[string]string) (string, error) {
					started = append(started, id)
					return id, nil
				}
			}
			c, err := NewBuilder("prop").AddTask(tasks...).Build()
			if err != nil {
				return false
			}
			if _, err := c.Kickoff(context.Background(), nil); err != nil {
				return false
			}
			return fmt.Sprint(started) == fmt.Sprint(c.Order())
		},
		gen.IntRange(1, 10),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
