package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/BaSui01/crewflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func (c *cli) runMigrate(ctx context.Context, args []string) int {
	if len(args) < 1 {
		c.printMigrateUsage()
		return exitUsage
	}

	sub, subargs := args[0], args[1:]
	if sub == "help" || sub == "-h" || sub == "--help" {
		c.printMigrateUsage()
		return exitOK
	}

	fs := c.newFlagSet("migrate " + sub)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	all := fs.Bool("all", false, "Rollback all migrations (down only)")
	if err := fs.Parse(subargs); err != nil {
		return exitUsage
	}

	var target int
	if sub == "goto" || sub == "force" {
		if fs.NArg() != 1 {
			fmt.Fprintf(c.stderr, "Usage: crewflow migrate %s <version>\n", sub)
			return exitUsage
		}
		v, err := strconv.Atoi(fs.Arg(0))
		if err != nil || v < 0 || (sub == "goto" && v == 0) {
			fmt.Fprintf(c.stderr, "Invalid version: %s\n", fs.Arg(0))
			return exitUsage
		}
		target = v
	}

	var run func(*migration.CLI) error
	switch sub {
	case "up":
		run = func(m *migration.CLI) error { return m.RunUp(ctx) }
	case "down":
		if *all {
			run = func(m *migration.CLI) error { return m.RunDownAll(ctx) }
		} else {
			run = func(m *migration.CLI) error { return m.RunDown(ctx) }
		}
	case "reset":
		run = func(m *migration.CLI) error { return m.RunDownAll(ctx) }
	case "status":
		run = func(m *migration.CLI) error { return m.RunStatus(ctx) }
	case "version":
		run = func(m *migration.CLI) error { return m.RunVersion(ctx) }
	case "info":
		run = func(m *migration.CLI) error { return m.RunInfo(ctx) }
	case "goto":
		run = func(m *migration.CLI) error { return m.RunGoto(ctx, uint(target)) }
	case "force":
		run = func(m *migration.CLI) error { return m.RunForce(ctx, target) }
	default:
		fmt.Fprintf(c.stderr, "Unknown migrate subcommand: %s\n", sub)
		c.printMigrateUsage()
		return exitUsage
	}

	cfg, err := c.loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to load config: %v\n", err)
		return exitUsage
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	migrator, err := migration.NewMigratorFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to create migrator: %v\n", err)
		return exitCode(err)
	}
	defer migrator.Close()

	cliRunner := migration.NewCLI(migrator)
	cliRunner.SetOutput(c.stdout)
	if err := run(cliRunner); err != nil {
		fmt.Fprintf(c.stderr, "Migration failed: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// printMigrateUsage prints the usage information for migrate command
func (c *cli) printMigrateUsage() {
	fmt.Fprintln(c.stdout, `Run History Migration Commands

Usage:
  crewflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (-all for every migration)
  status    Show migrations and history tables
  version   Show current migration version
  info      Show schema summary and recorded runs
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Drop the run history schema
  help      Show this help message

Options:
  -config <path>     Path to configuration file (YAML)
  -db-type <type>    Database type: postgres, mysql, sqlite (default: from config)

Examples:
  crewflow migrate up
  crewflow migrate up -config /etc/crewflow/config.yaml
  crewflow migrate status
  crewflow migrate goto 1
  crewflow migrate force 0`)
}
