package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultTimeout = 60 * time.Second

// ErrRegistryFrozen 注册表冻结后不再接受注册.
var ErrRegistryFrozen = errors.New("capability registry is frozen")

type entry struct {
	name    string
	fn      Func
	meta    Metadata
	limiter *rate.Limiter
}

// Registry holds every capability of the process.
type Registry struct {
	mode    Mode
	mu      sync.RWMutex
	entries map[string]*entry
	frozen  bool

	cache   ResultCache
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache enables result caching for capabilities marked Cacheable.
func WithCache(cache ResultCache) Option {
	return func(r *Registry) { r.cache = cache }
}

// WithMetrics records invocation metrics.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = collector }
}

// WithTracer overrides the tracer used for invocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) { r.tracer = tracer }
}

// NewRegistry 创建能力注册表.
func NewRegistry(mode Mode, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeLive
	}
	r := &Registry{
		mode:    mode,
		entries: make(map[string]*entry),
		tracer:  otel.Tracer("github.com/BaSui01/crewflow/capability"),
		logger:  logger.With(zap.String("component", "capability_registry"), zap.String("mode", string(mode))),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the implementation mode chosen at construction.
func (r *Registry) Mode() Mode {
	return r.mode
}

// Register adds a capability. Names are unique.
func (r *Registry) Register(name string, fn Func, meta Metadata) error {
	if name == "" {
		return fmt.Errorf("capability name is required")
	}
	if fn == nil {
		return fmt.Errorf("capability %s: nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: %w", name, ErrRegistryFrozen)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("capability %s already registered", name)
	}
	if meta.Timeout <= 0 {
		meta.Timeout = defaultTimeout
	}

	e := &entry{name: name, fn: fn, meta: meta}
	if rl := meta.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		e.limiter = rate.NewLimiter(rate.Every(rl.Window/time.Duration(rl.MaxCalls)), rl.MaxCalls)
	}
	r.entries[name] = e

	r.logger.Info("capability registered", zap.String("name", name), zap.Duration("timeout", meta.Timeout))
	return nil
}

// Freeze stops further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a handle whose invocations go through the registry.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrUnknownCapability, "capability %q is not registered", name)
	}
	return &handle{registry: r, entry: e}, nil
}

// Invoke runs the named capability.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) (string, error) {
	c, err := r.Get(name)
	if err != nil {
		if taskID, ok := types.TaskID(ctx); ok {
			if e, isErr := types.AsError(err); isErr {
				e.WithTask(taskID)
			}
		}
		return "", err
	}
	return c.Invoke(ctx, args)
}

type handle struct {
	registry *Registry
	entry    *entry
}

func (h *handle) Name() string { return h.entry.name }

func (h *handle) Invoke(ctx context.Context, args Args) (string, error) {
	return h.registry.invoke(ctx, h.entry, args)
}

func (r *Registry) invoke(ctx context.Context, e *entry, args Args) (string, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "capability."+e.name,
		trace.WithAttributes(attribute.String("capability.name", e.name)))
	defer span.End()

	logger := r.logger.With(zap.String("capability", e.name))
	if taskID, ok := types.TaskID(ctx); ok {
		logger = logger.With(zap.String("task_id", taskID))
	}

	var key string
	if r.cache != nil && e.meta.Cacheable {
		key = cacheKey(e.name, args)
		cached, hit, err := r.cache.Lookup(ctx, key)
		if err != nil {
			logger.Warn("capability cache lookup failed", zap.Error(err))
		}
		r.metrics.RecordCapabilityCache(e.name, hit)
		if hit {
			span.SetAttributes(attribute.Bool("capability.cache_hit", true))
			logger.Debug("capability served from cache")
			return cached, nil
		}
	}

	out, err := r.call(ctx, e, args)
	duration := time.Since(start)
	r.metrics.RecordCapability(e.name, metrics.Status(err), duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("capability failed", zap.Error(err), zap.Duration("duration", duration))

		wrapped := types.Errorf(types.ErrCapabilityFailure, "capability %s failed", e.name).
			WithCause(err).
			WithRetryable(types.IsRetryable(err))
		if taskID, ok := types.TaskID(ctx); ok {
			wrapped.WithTask(taskID)
		}
		return "", wrapped
	}

	if key != "" {
		if err := r.cache.Store(ctx, key, out, e.meta.CacheTTL); err != nil {
			logger.Warn("capability cache store failed", zap.Error(err))
		}
	}
	logger.Info("capability invoked", zap.Duration("duration", duration), zap.Int("output_len", len(out)))
	return out, nil
}

// call 应用限流与超时后执行能力函数
func (r *Registry) call(ctx context.Context, e *entry, args Args) (string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, e.meta.Timeout)
	defer cancel()

	out, err := e.fn(callCtx, args.Clone())
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return "", types.Errorf(types.ErrUpstreamTimeout, "timed out after %s", e.meta.Timeout).WithCause(err)
	}
	return out, err
}

// cacheKey 按能力名与排序后的参数生成稳定键
func cacheKey(name string, args Args) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(args[k]))
		h.Write([]byte{0})
	}
	return "capability:" + name + ":" + hex.EncodeToString(h.Sum(nil))
}
