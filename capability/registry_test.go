package capability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	stores int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (c *memoryCache) Lookup(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memoryCache) Store(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.stores++
	return nil
}

func echo(prefix string) Func {
	return func(_ context.Context, args Args) (string, error) {
		return prefix + args["q"], nil
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(ModeLive, zaptest.NewLogger(t))

	require.NoError(t, reg.Register("echo", echo("> "), Metadata{}))
	assert.Error(t, reg.Register("echo", echo(""), Metadata{}), "duplicate names are rejected")
	assert.Error(t, reg.Register("", echo(""), Metadata{}))
	assert.Error(t, reg.Register("nil", nil, Metadata{}))

	assert.True(t, reg.Has("echo"))
	assert.Equal(t, []string{"echo"}, reg.Names())

	c, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", c.Name())

	out, err := c.Invoke(context.Background(), Args{"q": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "> hi", out)
}

func TestRegistry_UnknownCapability(t *testing.T) {
	reg := NewRegistry(ModeLive, nil)

	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownCapability, types.GetErrorCode(err))

	ctx := types.WithTaskID(context.Background(), "t9")
	_, err = reg.Invoke(ctx, "missing", nil)
	assert.Equal(t, "t9", types.TaskIDOf(err))
}

func TestRegistry_Freeze(t *testing.T) {
	reg := NewRegistry(ModeMock, nil)
	reg.Freeze()

	err := reg.Register("late", echo(""), Metadata{})
	assert.ErrorIs(t, err, ErrRegistryFrozen)
	assert.Equal(t, ModeMock, reg.Mode())
}

func TestRegistry_FailureIsWrapped(t *testing.T) {
	reg := NewRegistry(ModeLive, nil)
	root := errors.New("quota exceeded")
	require.NoError(t, reg.Register("flaky", func(context.Context, Args) (string, error) {
		return "", root
	}, Metadata{}))

	ctx := types.WithTaskID(context.Background(), "research")
	_, err := reg.Invoke(ctx, "flaky", nil)

	require.Error(t, err)
	assert.Equal(t, types.ErrCapabilityFailure, types.GetErrorCode(err))
	assert.Equal(t, "research", types.TaskIDOf(err))
	assert.ErrorIs(t, err, root)
}

func TestRegistry_EmptyOutputIsKept(t *testing.T) {
	reg := NewRegistry(ModeLive, nil)
	require.NoError(t, reg.Register("empty", func(context.Context, Args) (string, error) {
		return "", nil
	}, Metadata{}))

	out, err := reg.Invoke(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRegistry_Timeout(t *testing.T) {
	reg := NewRegistry(ModeLive, nil)
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ Args) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, Metadata{Timeout: 20 * time.Millisecond}))

	_, err := reg.Invoke(context.Background(), "slow", nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamTimeout))
	assert.Equal(t, types.ErrCapabilityFailure, types.GetErrorCode(err))
}

func TestRegistry_RateLimitWaits(t *testing.T) {
	reg := NewRegistry(ModeLive, nil)
	require.NoError(t, reg.Register("limited", echo(""), Metadata{
		RateLimit: &RateLimitConfig{MaxCalls: 1, Window: 50 * time.Millisecond},
	}))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := reg.Invoke(context.Background(), "limited", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Invoke(ctx, "limited", nil)
	assert.Error(t, err)
}

func TestRegistry_ResultCache(t *testing.T) {
	cache := newMemoryCache()
	collector := metrics.NewCollector("cap_test", prometheus.NewRegistry(), nil)
	reg := NewRegistry(ModeLive, nil, WithCache(cache), WithMetrics(collector))

	calls := 0
	require.NoError(t, reg.Register("search", func(_ context.Context, args Args) (string, error) {
		calls++
		return "result for " + args["q"], nil
	}, Metadata{Cacheable: true}))
	require.NoError(t, reg.Register("uncached", func(context.Context, Args) (string, error) {
		calls++
		return "x", nil
	}, Metadata{}))

	for i := 0; i < 3; i++ {
		out, err := reg.Invoke(context.Background(), "search", Args{"q": "go"})
		require.NoError(t, err)
		assert.Equal(t, "result for go", out)
	}
	assert.Equal(t, 1, calls)

	_, _ = reg.Invoke(context.Background(), "search", Args{"q": "rust"})
	assert.Equal(t, 2, calls)

	_, _ = reg.Invoke(context.Background(), "uncached", nil)
	_, _ = reg.Invoke(context.Background(), "uncached", nil)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 2, cache.stores)
}

func TestCacheKey_Stable(t *testing.T) {
	a := cacheKey("s", Args{"a": "1", "b": "2"})
	b := cacheKey("s", Args{"b": "2", "a": "1"})
	c := cacheKey("s", Args{"a": "12"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, cacheKey("t", Args{"a": "1", "b": "2"}))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeLive, "live": ModeLive, "MOCK": ModeMock, "stub": ModeMock} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("chaos")
	assert.Error(t, err)
}
