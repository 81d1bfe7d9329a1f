package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/crewflow/archive"
	"github.com/BaSui01/crewflow/capability"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/crew"
	"github.com/BaSui01/crewflow/internal/cache"
	"github.com/BaSui01/crewflow/internal/database"
	"github.com/BaSui01/crewflow/internal/history"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/internal/migration"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/BaSui01/crewflow/internal/telemetry"
	"github.com/BaSui01/crewflow/knowledge"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/openaicompat"
	"github.com/BaSui01/crewflow/llm/retry"
	"github.com/BaSui01/crewflow/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MockProvider selects the offline echo generator.
const MockProvider = "mock"

// Options tune New beyond the loaded configuration.
type Options struct {
	// Mock forces mock capabilities and the echo generator.
	Mock bool
	// Registerer receives the Prometheus collectors. Defaults to a fresh registry.
	Registerer prometheus.Registerer
	// Generator replaces the configured generator.
	Generator llm.Generator
	// SkipHistory leaves run history disabled even when configured.
	SkipHistory bool
}

// App holds the process-wide components.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *capability.Registry
	Generator llm.Generator
	Archive   *archive.Manager
	Knowledge *knowledge.Loader
	Metrics   *metrics.Collector
	Telemetry *telemetry.Providers
	History   *history.Store

	observers []crew.Observer
	checks    map[string]server.ReadinessCheck
	closers   []func(context.Context) error
}

// New wires every component described by cfg. Partial construction is
// unwound on error.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (app *App, err error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrConfiguration, "config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{Config: cfg, Logger: logger, checks: make(map[string]server.ReadinessCheck)}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace, registerer, logger)

	if app.Telemetry, err = telemetry.Init(ctx, cfg.Telemetry, logger,
		attribute.Bool("crewflow.mock", opts.Mock),
		attribute.String("crewflow.llm.provider", cfg.LLM.Provider),
		attribute.String("crewflow.llm.model", cfg.LLM.Model),
	); err != nil {
		return app, fmt.Errorf("init telemetry: %w", err)
	}
	app.closers = append(app.closers, app.Telemetry.Shutdown)
	if app.Telemetry.Enabled() {
		obs, oerr := telemetry.NewObserver(logger)
		if oerr != nil {
			return app, fmt.Errorf("telemetry observer: %w", oerr)
		}
		app.observers = append(app.observers, obs)
	}

	if err = app.initRegistry(cfg, opts); err != nil {
		return app, err
	}
	if app.Generator, err = newGenerator(cfg.LLM, opts, logger); err != nil {
		return app, err
	}

	app.Archive = archive.NewManager(archive.Config{
		DefaultFolder: cfg.Archive.DefaultFolder,
		DirPerm:       os.FileMode(cfg.Archive.DirPerm),
		FilePerm:      os.FileMode(cfg.Archive.FilePerm),
	}, app.Metrics, logger)
	app.Knowledge = knowledge.NewLoader(nil, logger)

	if cfg.Database.Enabled && !opts.SkipHistory {
		if err = app.initHistory(ctx, cfg.Database); err != nil {
			return app, err
		}
	}

	logger.Info("components initialized",
		zap.String("capability_mode", string(app.Registry.Mode())),
		zap.Strings("capabilities", app.Registry.Names()),
		zap.Bool("history", app.History != nil),
		zap.Bool("telemetry", app.Telemetry.Enabled()),
	)
	return app, nil
}

func (a *App) initRegistry(cfg *config.Config, opts Options) error {
	mode, err := capability.ParseMode(cfg.Capabilities.Mode)
	if err != nil {
		return types.NewError(types.ErrConfiguration, "invalid capability mode").WithCause(err)
	}
	if opts.Mock {
		mode = capability.ModeMock
	}

	regOpts := []capability.Option{capability.WithMetrics(a.Metrics)}
	if cfg.Redis.Enabled {
		cm, err := cache.NewManager(cache.Config{
			Enabled:             true,
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			KeyPrefix:           cfg.Redis.KeyPrefix,
			DefaultTTL:          cfg.Capabilities.CacheTTL,
			MaxRetries:          3,
			PoolSize:            cfg.Redis.PoolSize,
			MinIdleConns:        cfg.Redis.MinIdleConns,
			HealthCheckInterval: cache.DefaultConfig().HealthCheckInterval,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("connect capability cache: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return cm.Close() })
		a.checks["redis"] = cm.Ping
		regOpts = append(regOpts, capability.WithCache(cache.NewResultStore(cm)))
	}

	a.Registry = capability.NewRegistry(mode, a.Logger, regOpts...)

	limits := make(map[string]capability.RateLimitConfig, len(cfg.Capabilities.RateLimits))
	for name, rl := range cfg.Capabilities.RateLimits {
		limits[name] = capability.RateLimitConfig{MaxCalls: rl.MaxCalls, Window: rl.Window}
	}
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Capabilities.MaxRetries

	return capability.RegisterBuiltins(a.Registry, capability.BuiltinConfig{
		WebSearch: capability.WebSearchConfig{
			APIKey:     cfg.Capabilities.SearchAPIKey,
			BaseURL:    cfg.Capabilities.SearchBaseURL,
			MaxResults: cfg.Capabilities.SearchResults,
		},
		OpenAI: capability.OpenAIConfig{
			APIKey:  cfg.Capabilities.OpenAIAPIKey,
			BaseURL: cfg.Capabilities.OpenAIBaseURL,
			Model:   cfg.Capabilities.ImageModel,
		},
		Timeout:    cfg.Capabilities.Timeout,
		CacheTTL:   cfg.Capabilities.CacheTTL,
		RateLimits: limits,
		Retry:      policy,
	}, a.Logger)
}

func newGenerator(cfg config.LLMConfig, opts Options, logger *zap.Logger) (llm.Generator, error) {
	if opts.Generator != nil {
		return opts.Generator, nil
	}
	if opts.Mock || strings.EqualFold(cfg.Provider, MockProvider) {
		return llm.EchoGenerator{}, nil
	}
	if cfg.APIKey == "" {
		return nil, types.Errorf(types.ErrConfiguration,
			"llm provider %q requires an api key (set CREWFLOW_LLM_API_KEY or use -mock)", cfg.Provider)
	}
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	return openaicompat.New(openaicompat.Config{
		ProviderName: cfg.Provider,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Temperature:  float32(cfg.Temperature),
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		Retry:        policy,
	}, logger), nil
}

func (a *App) initHistory(ctx context.Context, cfg config.DatabaseConfig) error {
	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg)
	if err != nil {
		return fmt.Errorf("history migrations: %w", err)
	}
	upErr := migrator.Up(ctx)
	closeErr := migrator.Close()
	if err := errors.Join(upErr, closeErr); err != nil {
		return fmt.Errorf("history migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return pool.Close() })

	if a.History, err = history.NewStore(ctx, pool, a.Logger); err != nil {
		return err
	}
	a.observers = append(a.observers, a.History)
	a.checks["database"] = a.History.Ping
	return nil
}

// ReadinessChecks returns the dependency probes for the ops /ready endpoint.
func (a *App) ReadinessChecks() map[string]server.ReadinessCheck {
	out := make(map[string]server.ReadinessCheck, len(a.checks))
	for name, check := range a.checks {
		out[name] = check
	}
	return out
}

// CompileOptions adjust one crew compilation.
type CompileOptions struct {
	Decider     crew.Manager
	MaxParallel int
	Observers   []crew.Observer
}

// Compile builds a crew from def against the app's components.
func (a *App) Compile(def *config.CrewDefinition, opts CompileOptions) (*crew.Crew, error) {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 && def != nil && def.MaxParallel == 0 {
		maxParallel = a.Config.Crew.MaxParallel
	}
	observers := append(append([]crew.Observer(nil), a.observers...), opts.Observers...)
	return crew.FromDefinition(def, crew.Dependencies{
		Registry:    a.Registry,
		Generator:   a.Generator,
		Archive:     a.Archive,
		Knowledge:   a.Knowledge,
		Observers:   observers,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Decider:     opts.Decider,
		MaxParallel: maxParallel,
		MaxRework:   a.Config.Crew.MaxRework,
		ResultsDir:  a.Config.Crew.ResultsDir,
	})
}

// Close releases components in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
