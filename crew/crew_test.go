package crew

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/archive"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/knowledge"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestKickoff_DependencyOutputFlowsIntoPlaceholder(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted().answer("Researcher", "X")
	rec := &recorder{}

	c, err := NewBuilder("pipeline").
		WithLogger(zaptest.NewLogger(t)).
		AddAgent(
			newTestAgent(t, reg, gen, "Researcher", "search"),
			newTestAgent(t, reg, gen, "Editor"),
		).
		AddTask(
			&Task{ID: "T1", Agent: "Researcher", Description: "research {topic}",
				Calls: []agent.Call{{Capability: "search", Args: map[string]string{"q": "{topic}"}}}},
			&Task{ID: "T2", Agent: "Editor", Description: "summarize {T1}", DependsOn: []string{"T1"}},
		).
		WithObserver(rec).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"topic"}, c.RequiredInputs())
	assert.Equal(t, []string{"T1", "T2"}, c.Order())

	res, err := c.Kickoff(context.Background(), map[string]string{"topic": "agents"})
	require.NoError(t, err)

	assert.Equal(t, RunDone, res.Status)
	assert.Equal(t, "summarize X", res.Tasks["T2"].Output)
	assert.Equal(t, "summarize X", res.Final)
	assert.Equal(t, "summarize X", res.Raw())
	assert.Equal(t, "research agents", res.Tasks["T1"].Input)
	assert.Equal(t, []string{"T1", "T2"}, res.Order)
	assert.Equal(t, TaskDone, res.States["T1"])
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	researcher := gen.requests("Researcher")
	require.Len(t, researcher, 1)
	assert.Equal(t, "results for agents", researcher[0].Context["capability.search"])
	editor := gen.requests("Editor")
	require.Len(t, editor, 1)
	assert.Equal(t, "X", editor[0].Context["T1"])

	assert.Equal(t, []string{"run_started", "task:T1:done", "task:T2:done", "run_finished"}, rec.events)
	assert.Same(t, res, rec.result)
}

func TestKickoff_UnresolvedInputsFailBeforeSideEffects(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	rec := &recorder{}
	dir := t.TempDir()

	c, err := NewBuilder("c").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "post", Agent: "Writer", Description: "{topic} in a {tone} voice", OutputSink: "{out}/post.md"}).
		WithObserver(rec).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"topic", "tone", "out"}, c.RequiredInputs())

	res, err := c.Kickoff(context.Background(), map[string]string{"out": dir})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, types.IsCode(err, types.ErrUnresolvedPlaceholder))
	assert.Contains(t, err.Error(), "tone, topic")

	assert.Zero(t, gen.count())
	assert.Empty(t, rec.events)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestKickoff_InputsCannotShadowReservedNames(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	c, err := NewBuilder("c").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "a", Agent: "Writer", Description: "x"}).
		Build()
	require.NoError(t, err)

	_, err = c.Kickoff(context.Background(), map[string]string{"a": "spoof", "timestamp": "now"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
	assert.Contains(t, err.Error(), "a, timestamp")
}

func TestBuild_Validation(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	writer := newTestAgent(t, reg, gen, "Writer")
	searcher := newTestAgent(t, reg, gen, "Searcher", "search")
	mgr, err := agent.NewManager(agent.Config{Role: "Lead"}, nil, reg, gen, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func() *Builder
		code  types.ErrorCode
		msg   string
	}{
		{"no name", func() *Builder { return NewBuilder(" ").AddTask(&Task{ID: "a"}) }, types.ErrConfiguration, "name"},
		{"no tasks", func() *Builder { return NewBuilder("c") }, types.ErrConfiguration, "no tasks"},
		{"unknown process", func() *Builder {
			return NewBuilder("c").WithProcess("random").AddTask(&Task{ID: "a"})
		}, types.ErrConfiguration, "unknown process"},
		{"cycle", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(
				&Task{ID: "a", Agent: "Writer", DependsOn: []string{"b"}},
				&Task{ID: "b", Agent: "Writer", DependsOn: []string{"a"}},
			)
		}, types.ErrCyclicDependency, "a -> b -> a"},
		{"unknown dependency", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer", DependsOn: []string{"zz"}})
		}, types.ErrUnknownTask, "zz"},
		{"unknown agent", func() *Builder {
			return NewBuilder("c").AddTask(&Task{ID: "a", Agent: "Ghost"})
		}, types.ErrUnknownAgent, "Ghost"},
		{"capability not held", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer", Calls: []agent.Call{{Capability: "search"}}})
		}, types.ErrUnknownCapability, "search"},
		{"placeholder names a non-ancestor task", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(
				&Task{ID: "a", Agent: "Writer", Description: "use {b}"},
				&Task{ID: "b", Agent: "Writer"},
			)
		}, types.ErrUnresolvedPlaceholder, "not one of its dependencies"},
		{"placeholder in call args names a non-ancestor task", func() *Builder {
			return NewBuilder("c").AddAgent(searcher).AddTask(
				&Task{ID: "a", Agent: "Searcher", Calls: []agent.Call{{Capability: "search", Args: map[string]string{"q": "{b}"}}}},
				&Task{ID: "b", Agent: "Searcher"},
			)
		}, types.ErrUnresolvedPlaceholder, "{b}"},
		{"sink references a task", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(
				&Task{ID: "a", Agent: "Writer"},
				&Task{ID: "b", Agent: "Writer", DependsOn: []string{"a"}, OutputSink: "{a}.md"},
			)
		}, types.ErrUnresolvedPlaceholder, "output sink"},
		{"unknown knowledge key", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer", Description: "{knowledge.brand}"})
		}, types.ErrUnresolvedPlaceholder, "knowledge"},
		{"reserved task id", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "timestamp", Agent: "Writer"})
		}, types.ErrConfiguration, "reserved"},
		{"manager executes a task", func() *Builder {
			return NewBuilder("c").WithManager(mgr, ApproveAll).AddTask(&Task{ID: "a", Agent: "Lead"})
		}, types.ErrConfiguration, "manager"},
		{"manager added as member", func() *Builder {
			return NewBuilder("c").AddAgent(mgr).AddTask(&Task{ID: "a", Agent: "Lead"})
		}, types.ErrConfiguration, "WithManager"},
		{"hierarchical without manager", func() *Builder {
			return NewBuilder("c").WithProcess(ProcessHierarchical).AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer"})
		}, types.ErrConfiguration, "requires a manager"},
		{"custom function with calls", func() *Builder {
			return NewBuilder("c").AddAgent(searcher).AddTask(&Task{ID: "a", Agent: "Searcher", Func: ConcatDependencies(),
				Calls: []agent.Call{{Capability: "search"}}})
		}, types.ErrConfiguration, "both"},
		{"function args without function", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer", FuncArgs: map[string]string{"dir": "x"}})
		}, types.ErrConfiguration, "function args"},
		{"unknown final task", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer"}).WithFinalTask("z")
		}, types.ErrUnknownTask, "final task"},
		{"negative rework bound", func() *Builder {
			return NewBuilder("c").AddAgent(writer).AddTask(&Task{ID: "a", Agent: "Writer"}).WithMaxRework(-1)
		}, types.ErrConfiguration, "max rework"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err), err.Error())
			assert.Contains(t, err.Error(), tt.msg)
			assert.True(t, types.IsConfiguration(err))
		})
	}
}

func TestKickoff_SinkArchiveThenWrite(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("old notes"), 0o644))

	c, err := NewBuilder("writer").
		WithArchive(archive.NewManager(archive.DefaultConfig(), nil, zaptest.NewLogger(t))).
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "post", Agent: "Writer", Description: "post {n}", OutputSink: "{dir}/post.md", ArchiveFolder: "old posts"}).
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), map[string]string{"dir": dir, "n": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "post.md")}, res.Sinks)
	assert.Equal(t, filepath.Join(dir, "post.md"), res.Tasks["post"].Sink)

	readFile := func(parts ...string) string {
		data, err := os.ReadFile(filepath.Join(parts...))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "post 1", readFile(dir, "post.md"))
	assert.Equal(t, "old notes", readFile(dir, "old posts", "notes.txt"))

	_, err = c.Kickoff(context.Background(), map[string]string{"dir": dir, "n": "2"})
	require.NoError(t, err)
	assert.Equal(t, "post 2", readFile(dir, "post.md"))
	assert.Equal(t, "post 1", readFile(dir, "old posts", "post.md"))
}

func TestKickoff_TimestampSink(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	dir := t.TempDir()

	c, err := NewBuilder("social").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "post", Agent: "Writer", Description: "hello", OutputSink: "{dir}/Instagram/{timestamp}.txt"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"dir"}, c.RequiredInputs())

	res, err := c.Kickoff(context.Background(), map[string]string{"dir": dir})
	require.NoError(t, err)

	name := filepath.Base(res.Tasks["post"].Sink)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}-\d{2}-\d{2}\.txt$`), name)
	assert.Equal(t, res.StartedAt.Format(TimestampLayout)+".txt", name)
}

func TestKickoff_FailureSkipsDependentsOnly(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted().failing("Flaky", errModelDown)
	rec := &recorder{}

	c, err := NewBuilder("partial").
		AddAgent(newTestAgent(t, reg, gen, "Flaky"), newTestAgent(t, reg, gen, "Steady")).
		AddTask(
			&Task{ID: "a", Agent: "Flaky", Description: "a"},
			&Task{ID: "b", Agent: "Steady", Description: "b {a}", DependsOn: []string{"a"}},
			&Task{ID: "c", Agent: "Steady", Description: "c", DependsOn: []string{"b"}},
			&Task{ID: "d", Agent: "Steady", Description: "independent"},
		).
		WithObserver(rec).
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), nil)
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Equal(t, RunFailed, res.Status)
	assert.Equal(t, TaskFailed, res.States["a"])
	assert.Equal(t, TaskSkipped, res.States["b"])
	assert.Equal(t, TaskSkipped, res.States["c"])
	assert.Equal(t, TaskDone, res.States["d"])
	assert.Equal(t, "independent", res.Final)

	assert.True(t, types.IsCode(res.Errors["a"], types.ErrGenerationFailure))
	assert.ErrorIs(t, res.Errors["a"], errModelDown)
	assert.Equal(t, "a", types.TaskIDOf(res.Errors["a"]))
	assert.True(t, types.IsCode(res.Errors["b"], types.ErrDependencyFailed))
	assert.Equal(t, "b", types.TaskIDOf(res.Errors["b"]))
	assert.Contains(t, res.Errors["c"].Error(), `"b"`)

	assert.True(t, types.IsCode(err, types.ErrGenerationFailure))
	assert.True(t, types.IsCode(err, types.ErrDependencyFailed))
	_, hasA := res.Tasks["a"]
	assert.False(t, hasA, "a failed task has no result")
	assert.Equal(t, []string{"run_started", "task:a:failed", "task:b:skipped", "task:c:skipped", "task:d:done", "run_finished"}, rec.events)
}

func TestKickoff_CancellationBetweenTasks(t *testing.T) {
	reg := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawCancelled atomic.Bool
	gen := llm.GeneratorFunc(func(gctx context.Context, req llm.GenerateRequest) (string, error) {
		if req.Prompt == "first" {
			cancel()
			// 已开始的任务不受取消影响
			sawCancelled.Store(gctx.Err() != nil)
		}
		return "out:" + req.Prompt, nil
	})

	c, err := NewBuilder("cancel").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(
			&Task{ID: "a", Agent: "Writer", Description: "first"},
			&Task{ID: "b", Agent: "Writer", Description: "second", DependsOn: []string{"a"}},
			&Task{ID: "c", Agent: "Writer", Description: "third"},
		).
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(ctx, nil)
	require.Error(t, err)
	assert.False(t, sawCancelled.Load())

	assert.Equal(t, RunCancelled, res.Status)
	assert.Equal(t, TaskDone, res.States["a"])
	assert.Equal(t, "out:first", res.Tasks["a"].Output)
	for _, id := range []string{"b", "c"} {
		assert.Equal(t, TaskSkipped, res.States[id])
		assert.True(t, types.IsCode(res.Errors[id], types.ErrCancelled))
		assert.ErrorIs(t, res.Errors[id], context.Canceled)
	}
}

func TestKickoff_ParallelWavesMatchSequential(t *testing.T) {
	reg := newTestRegistry(t)
	var inFlight, peak atomic.Int32
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.GenerateRequest) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		inFlight.Add(-1)
		return "<" + req.Prompt + ">", nil
	})

	build := func(parallel int) *Crew {
		c, err := NewBuilder("diamond").
			WithMaxParallel(parallel).
			AddAgent(newTestAgent(t, reg, gen, "Writer")).
			AddTask(
				&Task{ID: "root", Agent: "Writer", Description: "root"},
				&Task{ID: "left", Agent: "Writer", Description: "L {root}", DependsOn: []string{"root"}},
				&Task{ID: "mid", Agent: "Writer", Description: "M {root}", DependsOn: []string{"root"}},
				&Task{ID: "right", Agent: "Writer", Description: "R {root}", DependsOn: []string{"root"}},
				&Task{ID: "join", Agent: "Writer", Description: "{left}|{mid}|{right}", DependsOn: []string{"left", "mid", "right"}},
			).
			Build()
		require.NoError(t, err)
		return c
	}

	seq, err := build(1).Kickoff(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, peak.Load())

	peak.Store(0)
	par, err := build(2).Kickoff(context.Background(), nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, seq.Final, par.Final)
	assert.Equal(t, "<<L <root>>|<M <root>>|<R <root>>>", par.Final)
	assert.Equal(t, []string{"root", "left", "mid", "right", "join"}, par.Order)
}

func TestKickoff_ParallelCommitsInTopologicalOrder(t *testing.T) {
	reg := newTestRegistry(t)
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.GenerateRequest) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return req.Prompt, nil
	})

	// b depends on a and is declared before the independent c, so c is
	// ready in the first wave but must still be written after b.
	run := func(parallel int) (*CrewResult, string) {
		dir := t.TempDir()
		c, err := NewBuilder("sinks").
			WithMaxParallel(parallel).
			AddAgent(newTestAgent(t, reg, gen, "Writer")).
			AddTask(
				&Task{ID: "a", Agent: "Writer", Description: "A"},
				&Task{ID: "b", Agent: "Writer", Description: "B {a}", DependsOn: []string{"a"}, OutputSink: "{dir}/post.txt"},
				&Task{ID: "c", Agent: "Writer", Description: "C", OutputSink: "{dir}/post.txt"},
			).
			Build()
		require.NoError(t, err)

		res, err := c.Kickoff(context.Background(), map[string]string{"dir": dir})
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "post.txt"))
		require.NoError(t, err)
		return res, string(data)
	}

	seq, seqSink := run(1)
	par, parSink := run(2)

	assert.Equal(t, "C", seqSink)
	assert.Equal(t, seqSink, parSink)
	assert.Equal(t, []string{"a", "b", "c"}, seq.Order)
	assert.Equal(t, seq.Order, par.Order)
	assert.Equal(t, "B A", par.Tasks["b"].Output)
}

func TestKickoff_ParallelSkipsDependentsOfFailures(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted().failing("Flaky", errModelDown)

	c, err := NewBuilder("p").
		WithMaxParallel(4).
		AddAgent(newTestAgent(t, reg, gen, "Flaky"), newTestAgent(t, reg, gen, "Steady")).
		AddTask(
			&Task{ID: "a", Agent: "Flaky", Description: "a"},
			&Task{ID: "b", Agent: "Steady", Description: "b"},
			&Task{ID: "c", Agent: "Steady", Description: "c", DependsOn: []string{"a", "b"}},
		).
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, TaskFailed, res.States["a"])
	assert.Equal(t, TaskDone, res.States["b"])
	assert.Equal(t, TaskSkipped, res.States["c"])
}

func TestKickoff_KnowledgeAndFinalTask(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	dir := t.TempDir()
	brand := filepath.Join(dir, "brand.txt")
	require.NoError(t, os.WriteFile(brand, []byte("Be bold."), 0o644))

	c, err := NewBuilder("kb").
		WithKnowledge(nil, knowledge.Source{Name: "brand", Path: brand}).
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(
			&Task{ID: "draft", Agent: "Writer", Description: "follow {knowledge.brand}"},
			&Task{ID: "extra", Agent: "Writer", Description: "side note"},
		).
		WithFinalTask("draft").
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "follow Be bold.", res.Final)

	reqs := gen.requests("Writer")
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].Context[knowledge.AllKey], "Be bold.")
}

func TestKickoff_MissingKnowledgeIsFatal(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()

	c, err := NewBuilder("kb").
		WithKnowledge(nil, knowledge.Source{Name: "brand", Path: filepath.Join(t.TempDir(), "missing.md")}).
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "draft", Agent: "Writer", Description: "follow {knowledge.brand}"}).
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), nil)
	assert.Nil(t, res)
	assert.True(t, types.IsCode(err, types.ErrKnowledgeMissing))
	assert.Zero(t, gen.count())
}

func TestKickoff_ResultSink(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	dir := t.TempDir()

	c, err := NewBuilder("report").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "a", Agent: "Writer", Description: "final words"}).
		WithResultSink("{dir}/results/report.md").
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), map[string]string{"dir": dir})
	require.NoError(t, err)

	path := filepath.Join(dir, "results", "report.md")
	assert.Contains(t, res.Sinks, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "final words", string(data))
}

func TestKickoff_ResultSinkSkippedOnFailure(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted().failing("Writer", errModelDown)
	dir := t.TempDir()

	c, err := NewBuilder("report").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "a", Agent: "Writer", Description: "final words"}).
		WithResultSink(filepath.Join(dir, "report.md")).
		Build()
	require.NoError(t, err)

	_, err = c.Kickoff(context.Background(), nil)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "report.md"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestKickoff_ArchiveFailureFailsTaskButKeepsResult(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	c, err := NewBuilder("broken-sink").
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(
			&Task{ID: "a", Agent: "Writer", Description: "text", OutputSink: filepath.Join(blocker, "out.md")},
			&Task{ID: "b", Agent: "Writer", Description: "after {a}", DependsOn: []string{"a"}},
		).
		Build()
	require.NoError(t, err)

	res, err := c.Kickoff(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(res.Errors["a"], types.ErrArchive))
	assert.Equal(t, TaskFailed, res.States["a"])
	assert.Equal(t, "text", res.Tasks["a"].Output)
	assert.Equal(t, TaskSkipped, res.States["b"])
}

func TestKickoff_Metrics(t *testing.T) {
	reg := newTestRegistry(t)
	gen := newScripted()
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector("crew_test", promReg, zaptest.NewLogger(t))

	c, err := NewBuilder("m").
		WithMetrics(collector).
		AddAgent(newTestAgent(t, reg, gen, "Writer")).
		AddTask(&Task{ID: "a", Agent: "Writer", Description: "x"}, &Task{ID: "b", Agent: "Writer", Description: "y"}).
		Build()
	require.NoError(t, err)

	_, err = c.Kickoff(context.Background(), nil)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(promReg, "crew_test_crew_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(promReg, "crew_test_task_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
