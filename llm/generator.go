package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// GenerateRequest is one call to the language model on behalf of an agent.
type GenerateRequest struct {
	Role           string            `json:"role"`
	Goal           string            `json:"goal,omitempty"`
	Backstory      string            `json:"backstory,omitempty"`
	Prompt         string            `json:"prompt"`
	ExpectedOutput string            `json:"expected_output,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

// Generator is the opaque generation boundary.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// EchoGenerator returns "[<role>] <prompt>" without any network call.
type EchoGenerator struct{}

// Generate implements Generator.
func (EchoGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", req.Role, req.Prompt), nil
}

// SystemPrompt 由角色、目标与背景组成系统消息
func SystemPrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", req.Role)
	if req.Goal != "" {
		fmt.Fprintf(&b, "\nYour goal: %s", req.Goal)
	}
	if req.Backstory != "" {
		fmt.Fprintf(&b, "\n%s", req.Backstory)
	}
	return b.String()
}

// UserPrompt 由任务输入、期望输出与按键排序的上下文块组成用户消息
func UserPrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\n\nExpected output: %s", req.ExpectedOutput)
	}
	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n\nContext:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n### %s\n%s", k, req.Context[k])
		}
	}
	return b.String()
}
