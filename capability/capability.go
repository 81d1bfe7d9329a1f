package capability

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Args are the string arguments of one invocation.
type Args map[string]string

// Clone returns a copy of the arguments.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Capability is an opaque external action with a success/failure contract.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, args Args) (string, error)
}

// Func defines the capability function signature.
type Func func(ctx context.Context, args Args) (string, error)

// Metadata describes how a capability is invoked.
type Metadata struct {
	Description string           // 描述
	Timeout     time.Duration    // 单次调用超时（默认 60s）
	RateLimit   *RateLimitConfig // 速率限制（可选）
	Cacheable   bool             // 是否允许结果缓存
	CacheTTL    time.Duration    // 缓存过期时间
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           `yaml:"max_calls" json:"max_calls"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// Mode selects live or mock implementations for the built-in capabilities.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// ParseMode parses a mode name; empty means live.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLive:
		return ModeLive, nil
	case ModeMock, "stub", "demo":
		return ModeMock, nil
	default:
		return "", fmt.Errorf("unknown capability mode %q", s)
	}
}

// ResultCache stores successful capability outputs.
type ResultCache interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Store(ctx context.Context, key, value string, ttl time.Duration) error
}

// requireArg returns a non-empty argument or an error naming it.
func requireArg(args Args, name string) (string, error) {
	v := strings.TrimSpace(args[name])
	if v == "" {
		return "", fmt.Errorf("argument %q is required", name)
	}
	return v, nil
}
