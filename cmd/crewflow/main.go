// =============================================================================
// crewflow 主入口
// =============================================================================
// 使用方法:
//
//	crewflow run -crew crews/social.yaml -input topic="AI agents"
//	crewflow run -crew crews/social.yaml -mock -parallel 4
//	crewflow validate -crew crews/social.yaml
//	crewflow history -crew social -limit 10
//	crewflow history show <run-id>
//	crewflow migrate up
//	crewflow health -addr http://localhost:9464
//	crewflow version
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/bootstrap"
	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli 携带一次调用的输出流
type cli struct {
	stdout io.Writer
	stderr io.Writer
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	if len(args) < 1 {
		c.printUsage()
		return exitUsage
	}

	switch args[0] {
	case "run":
		return c.runCrew(ctx, args[1:])
	case "validate":
		return c.runValidate(ctx, args[1:])
	case "history":
		return c.runHistory(ctx, args[1:])
	case "migrate":
		return c.runMigrate(ctx, args[1:])
	case "health":
		return c.runHealthCheck(ctx, args[1:])
	case "version":
		c.printVersion()
		return exitOK
	case "help", "-h", "--help":
		c.printUsage()
		return exitOK
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", args[0])
		c.printUsage()
		return exitUsage
	}
}

// =============================================================================
// 🔧 公共参数
// =============================================================================

// inputFlags 收集可重复的 -input key=value
type inputFlags map[string]string

func (f inputFlags) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, ",")
}

func (f inputFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("input must look like key=value, got %q", v)
	}
	f[key] = value
	return nil
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func (c *cli) setup(configPath string) (*config.Config, *zap.Logger, int) {
	cfg, err := c.loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to load config: %v\n", err)
		return nil, nil, exitUsage
	}
	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to build logger: %v\n", err)
		return nil, nil, exitUsage
	}
	return cfg, logger, exitOK
}

// exitCode 将错误映射为退出码
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case types.IsConfiguration(err):
		return exitUsage
	default:
		return exitFailed
	}
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func (c *cli) runHealthCheck(ctx context.Context, args []string) int {
	fs := c.newFlagSet("health")
	addr := fs.String("addr", "http://localhost:9464", "Ops endpoint address")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(*addr, "/")+"/health", nil)
	if err != nil {
		fmt.Fprintf(c.stderr, "Health check failed: %v\n", err)
		return exitUsage
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(c.stderr, "Health check failed: %v\n", err)
		return exitFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(c.stderr, "Health check failed: status %d\n", resp.StatusCode)
		return exitFailed
	}

	fmt.Fprintln(c.stdout, "OK")
	return exitOK
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func (c *cli) printVersion() {
	fmt.Fprintf(c.stdout, "crewflow %s\n", Version)
	fmt.Fprintf(c.stdout, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(c.stdout, "  Git Commit: %s\n", GitCommit)
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.stdout, `crewflow - run crews of role-playing agents

Usage:
  crewflow <command> [options]

Commands:
  run        Run a crew definition
  validate   Compile a crew definition without running it
  history    List recorded runs, or show one with 'history show <id>'
  migrate    Run history schema migrations (up, down, status, version)
  health     Check the ops endpoint of a running crew
  version    Show version information
  help       Show this help message

Options for 'run':
  -config <path>        Path to configuration file (YAML)
  -crew <path>          Path to the crew definition (YAML)
  -input key=value      Run input, repeatable
  -mock                 Use mock capabilities and the echo generator
  -parallel <n>         Maximum concurrent tasks
  -metrics-addr <addr>  Serve /metrics, /health and /ready while running
  -json                 Print the full result as JSON

Exit codes:
  0 success, 1 run failed or cancelled, 2 usage or configuration error

Examples:
  crewflow run -crew crews/social.yaml -input topic="AI agents"
  crewflow validate -crew crews/newsletter.yaml
  crewflow history show 0b6c7f0e-...`)
}
