package crew

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/llm"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scripted is a Generator whose answers are chosen by role. Roles without a
// script echo the rendered prompt.
type scripted struct {
	mu      sync.Mutex
	outputs map[string][]string
	fail    map[string]error
	calls   []llm.GenerateRequest
}

func newScripted() *scripted {
	return &scripted{outputs: map[string][]string{}, fail: map[string]error{}}
}

func (s *scripted) answer(role string, outs ...string) *scripted {
	s.outputs[role] = append(s.outputs[role], outs...)
	return s
}

func (s *scripted) failing(role string, err error) *scripted {
	s.fail[role] = err
	return s
}

func (s *scripted) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if err := s.fail[req.Role]; err != nil {
		return "", err
	}
	if q := s.outputs[req.Role]; len(q) > 0 {
		out := q[0]
		// 最后一个答案重复使用
		if len(q) > 1 {
			s.outputs[req.Role] = q[1:]
		}
		return out, nil
	}
	return req.Prompt, nil
}

func (s *scripted) requests(role string) []llm.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []llm.GenerateRequest
	for _, r := range s.calls {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var errModelDown = errors.New("model is down")

func newTestRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry(capability.ModeMock, zaptest.NewLogger(t))
	require.NoError(t, reg.Register("search", func(_ context.Context, args capability.Args) (string, error) {
		return "results for " + args["q"], nil
	}, capability.Metadata{}))
	require.NoError(t, reg.Register("scan", func(context.Context, capability.Args) (string, error) {
		return "scanned", nil
	}, capability.Metadata{}))
	return reg
}

func newTestAgent(t *testing.T, reg *capability.Registry, gen llm.Generator, role string, caps ...string) *agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{Role: role, Goal: "help", Capabilities: caps}, reg, gen, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

func newDelegatingAgent(t *testing.T, reg *capability.Registry, gen llm.Generator, role string, caps ...string) *agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{Role: role, Capabilities: caps, AllowDelegation: true}, reg, gen, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

// recorder captures observer events in order.
type recorder struct {
	mu      sync.Mutex
	events  []string
	reports []TaskReport
	result  *CrewResult
}

func (r *recorder) RunStarted(context.Context, RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "run_started")
}

func (r *recorder) TaskFinished(_ context.Context, _ RunInfo, rep TaskReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "task:"+rep.TaskID+":"+string(rep.State))
	r.reports = append(r.reports, rep)
}

func (r *recorder) RunFinished(_ context.Context, _ RunInfo, res *CrewResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "run_finished")
	r.result = res
}

func (r *recorder) taskReports(id string) []TaskReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TaskReport
	for _, rep := range r.reports {
		if rep.TaskID == id {
			out = append(out, rep)
		}
	}
	return out
}
