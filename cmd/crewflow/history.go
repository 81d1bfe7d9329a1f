package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/database"
	"github.com/BaSui01/crewflow/internal/history"
	"go.uber.org/zap"
)

// =============================================================================
// 📜 history 命令
// =============================================================================

func (c *cli) runHistory(ctx context.Context, args []string) int {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		return c.runHistoryList(ctx, args)
	case "show":
		return c.runHistoryShow(ctx, args)
	case "prune":
		return c.runHistoryPrune(ctx, args)
	case "help", "-h", "--help":
		c.printHistoryUsage()
		return exitOK
	default:
		fmt.Fprintf(c.stderr, "Unknown history subcommand: %s\n", sub)
		c.printHistoryUsage()
		return exitUsage
	}
}

func (c *cli) printHistoryUsage() {
	fmt.Fprintln(c.stdout, `Run History Commands

Usage:
  crewflow history [list] [-crew <name>] [-status <status>] [-limit <n>]
  crewflow history show <run-id>
  crewflow history prune -older-than <duration>

Options:
  -config <path>   Path to configuration file (YAML)

Run history requires database.enabled and an applied schema ('crewflow migrate up').`)
}

// openHistory 打开运行历史存储
func (c *cli) openHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*history.Store, func(), int) {
	if !cfg.Database.Enabled {
		fmt.Fprintln(c.stderr, "Run history is disabled (set database.enabled or CREWFLOW_DATABASE_ENABLED=true)")
		return nil, nil, exitUsage
	}
	pool, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to open database: %v\n", err)
		return nil, nil, exitCode(err)
	}
	store, err := history.NewStore(ctx, pool, logger)
	if err != nil {
		_ = pool.Close()
		fmt.Fprintf(c.stderr, "Run history unavailable: %v\n", err)
		return nil, nil, exitCode(err)
	}
	return store, func() { _ = pool.Close() }, exitOK
}

func (c *cli) runHistoryList(ctx context.Context, args []string) int {
	fs := c.newFlagSet("history list")
	configPath := fs.String("config", "", "Path to configuration file")
	crewName := fs.String("crew", "", "Only runs of this crew")
	status := fs.String("status", "", "Only runs with this status")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, logger, code := c.setup(*configPath)
	if code != exitOK {
		return code
	}
	store, closeFn, code := c.openHistory(ctx, cfg, logger)
	if code != exitOK {
		return code
	}
	defer closeFn()

	runs, err := store.ListRuns(ctx, history.ListOptions{Crew: *crewName, Status: *status, Limit: *limit})
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to list runs: %v\n", err)
		return exitFailed
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "No runs recorded.")
		return exitOK
	}

	w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREW\tPROCESS\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Crew, r.Process, r.Status,
			r.StartedAt.Local().Format(time.DateTime), formatDuration(r.Duration()))
	}
	w.Flush()
	return exitOK
}

func (c *cli) runHistoryShow(ctx context.Context, args []string) int {
	fs := c.newFlagSet("history show")
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "Usage: crewflow history show <run-id>")
		return exitUsage
	}

	cfg, logger, code := c.setup(*configPath)
	if code != exitOK {
		return code
	}
	store, closeFn, code := c.openHistory(ctx, cfg, logger)
	if code != exitOK {
		return code
	}
	defer closeFn()

	run, err := store.GetRun(ctx, fs.Arg(0))
	if errors.Is(err, history.ErrRunNotFound) {
		fmt.Fprintf(c.stderr, "Run %s not found\n", fs.Arg(0))
		return exitFailed
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to load run: %v\n", err)
		return exitFailed
	}

	fmt.Fprintf(c.stdout, "Run:      %s\n", run.ID)
	fmt.Fprintf(c.stdout, "Crew:     %s (%s)\n", run.Crew, run.Process)
	fmt.Fprintf(c.stdout, "Status:   %s\n", run.Status)
	fmt.Fprintf(c.stdout, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(c.stdout, "Duration: %s\n", formatDuration(run.Duration()))
	if inputs := run.InputMap(); len(inputs) > 0 {
		keys := make([]string, 0, len(inputs))
		for k := range inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(c.stdout, "Inputs:")
		for _, k := range keys {
			fmt.Fprintf(c.stdout, "  %s = %s\n", k, inputs[k])
		}
	}
	if run.Sinks != "" {
		fmt.Fprintln(c.stdout, "Sinks:")
		for _, s := range strings.Split(run.Sinks, "\n") {
			fmt.Fprintf(c.stdout, "  %s\n", s)
		}
	}
	if run.Error != "" {
		fmt.Fprintf(c.stdout, "Errors:\n  %s\n", strings.ReplaceAll(run.Error, "\n", "\n  "))
	}

	fmt.Fprintln(c.stdout)
	w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tAGENT\tSTATE\tREV\tATTEMPTS\tERROR")
	for _, t := range run.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", t.TaskID, t.Agent, t.State, t.Revision, t.Attempts, t.ErrorCode)
	}
	w.Flush()

	if run.Final != "" {
		fmt.Fprintln(c.stdout)
		fmt.Fprintln(c.stdout, run.Final)
	}
	return exitOK
}

func (c *cli) runHistoryPrune(ctx context.Context, args []string) int {
	fs := c.newFlagSet("history prune")
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 0, "Remove runs started before now minus this duration")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *olderThan <= 0 {
		fmt.Fprintln(c.stderr, "-older-than must be a positive duration, e.g. 720h")
		return exitUsage
	}

	cfg, logger, code := c.setup(*configPath)
	if code != exitOK {
		return code
	}
	store, closeFn, code := c.openHistory(ctx, cfg, logger)
	if code != exitOK {
		return code
	}
	defer closeFn()

	removed, err := store.Prune(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to prune runs: %v\n", err)
		return exitFailed
	}
	fmt.Fprintf(c.stdout, "Removed %d runs.\n", removed)
	return exitOK
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
