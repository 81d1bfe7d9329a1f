package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/crew"
	"github.com/BaSui01/crewflow/internal/bootstrap"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// 🚀 run 命令
// =============================================================================

// runOutput 是 -json 模式下的输出
type runOutput struct {
	*crew.CrewResult
	Errors map[string]string `json:"errors,omitempty"`
}

func (c *cli) runCrew(ctx context.Context, args []string) int {
	fs := c.newFlagSet("run")
	configPath := fs.String("config", "", "Path to configuration file")
	crewPath := fs.String("crew", "", "Path to crew definition")
	inputs := inputFlags{}
	fs.Var(inputs, "input", "Run input as key=value (repeatable)")
	mock := fs.Bool("mock", false, "Use mock capabilities and the echo generator")
	parallel := fs.Int("parallel", 0, "Maximum concurrent tasks")
	metricsAddr := fs.String("metrics-addr", "", "Serve ops endpoints on this address while running")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	path, ok := c.crewPathArg(*crewPath, fs.Args())
	if !ok {
		return exitUsage
	}

	cfg, logger, code := c.setup(*configPath)
	if code != exitOK {
		return code
	}
	defer func() { _ = logger.Sync() }()

	def, err := config.LoadCrewDefinition(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Invalid crew definition: %v\n", err)
		return exitUsage
	}

	registry := prometheus.NewRegistry()
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Mock: *mock, Registerer: registry})
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to initialize: %v\n", err)
		return exitCode(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	addr := *metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		ops, err := c.startOps(app, registry, addr, logger)
		if err != nil {
			fmt.Fprintf(c.stderr, "Failed to start ops server: %v\n", err)
			return exitFailed
		}
		defer func() { _ = ops.Shutdown(context.WithoutCancel(ctx)) }()
	}

	compiled, err := app.Compile(def, bootstrap.CompileOptions{MaxParallel: *parallel})
	if err != nil {
		fmt.Fprintf(c.stderr, "Invalid crew: %v\n", err)
		return exitUsage
	}

	result, err := compiled.Kickoff(ctx, inputs)
	if result == nil {
		fmt.Fprintf(c.stderr, "Run aborted: %v\n", err)
		return exitCode(err)
	}

	if *asJSON {
		if encErr := c.writeJSON(result); encErr != nil {
			fmt.Fprintf(c.stderr, "Failed to encode result: %v\n", encErr)
			return exitFailed
		}
	} else if result.Status == crew.RunDone {
		fmt.Fprintln(c.stdout, result.Final)
	}

	if err != nil || result.Status != crew.RunDone {
		fmt.Fprintf(c.stderr, "Run %s %s after %s\n", result.RunID, result.Status, result.Duration().Round(time.Millisecond))
		if err != nil {
			fmt.Fprintln(c.stderr, err)
		}
		return exitFailed
	}
	for _, sink := range result.Sinks {
		fmt.Fprintf(c.stderr, "Saved %s\n", sink)
	}
	return exitOK
}

func (c *cli) startOps(app *bootstrap.App, registry *prometheus.Registry, addr string, logger *zap.Logger) (*server.Manager, error) {
	scfg := server.DefaultConfig()
	scfg.Addr = addr

	middlewares := []server.Middleware{server.Recovery(logger), server.RequestLogger(logger)}
	if secret := app.Config.Metrics.AuthSecret; secret != "" {
		middlewares = append(middlewares, server.JWTAuth(server.JWTConfig{
			Secret: secret,
			Issuer: app.Config.Metrics.AuthIssuer,
		}, []string{"/health"}, logger))
	}
	handler := server.Chain(server.OpsHandler(registry, Version, app.ReadinessChecks()), middlewares...)

	ops := server.NewManager(handler, scfg, logger)
	if err := ops.Start(); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.stderr, "Ops endpoints on http://%s\n", ops.Addr())
	return ops, nil
}

func (c *cli) writeJSON(result *crew.CrewResult) error {
	out := runOutput{CrewResult: result}
	if len(result.Errors) > 0 {
		out.Errors = make(map[string]string, len(result.Errors))
		for id, err := range result.Errors {
			out.Errors[id] = err.Error()
		}
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// crewPathArg 接受 -crew 或第一个位置参数
func (c *cli) crewPathArg(flagValue string, rest []string) (string, bool) {
	path := flagValue
	if path == "" && len(rest) > 0 {
		path = rest[0]
		rest = rest[1:]
	}
	if path == "" {
		fmt.Fprintln(c.stderr, "A crew definition is required (-crew <path>)")
		return "", false
	}
	if len(rest) > 0 {
		fmt.Fprintf(c.stderr, "Unexpected arguments: %s\n", strings.Join(rest, " "))
		return "", false
	}
	return path, true
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func (c *cli) runValidate(ctx context.Context, args []string) int {
	fs := c.newFlagSet("validate")
	configPath := fs.String("config", "", "Path to configuration file")
	crewPath := fs.String("crew", "", "Path to crew definition")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	path, ok := c.crewPathArg(*crewPath, fs.Args())
	if !ok {
		return exitUsage
	}

	cfg, logger, code := c.setup(*configPath)
	if code != exitOK {
		return code
	}
	defer func() { _ = logger.Sync() }()

	def, err := config.LoadCrewDefinition(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Invalid crew definition: %v\n", err)
		return exitUsage
	}

	// 校验不触达外部服务
	cfg.Redis.Enabled = false
	cfg.Telemetry.Enabled = false
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Mock: true, SkipHistory: true})
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to initialize: %v\n", err)
		return exitCode(err)
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

	compiled, err := app.Compile(def, bootstrap.CompileOptions{})
	if err != nil {
		fmt.Fprintf(c.stderr, "Invalid crew: %v\n", err)
		return exitUsage
	}

	fmt.Fprintf(c.stdout, "Crew:    %s (%s)\n", compiled.Name(), compiled.Process())
	fmt.Fprintf(c.stdout, "Agents:  %s\n", strings.Join(compiled.Agents(), ", "))
	fmt.Fprintf(c.stdout, "Order:   %s\n", strings.Join(compiled.Order(), " -> "))
	required := compiled.RequiredInputs()
	if len(required) == 0 {
		fmt.Fprintln(c.stdout, "Inputs:  none")
	} else {
		fmt.Fprintf(c.stdout, "Inputs:  %s\n", strings.Join(required, ", "))
	}
	return exitOK
}
