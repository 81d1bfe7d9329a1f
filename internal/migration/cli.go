package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI prints the results of migrator operations for `crewflow migrate`.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput sets the output writer for CLI messages
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunUp applies pending migrations and reports whether run history is
// usable afterwards.
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.output, "Applying run history migrations...")
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	return c.printReady(ctx)
}

// RunDown rolls back the last migration.
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.output, "Rolling back the last run history migration...")
	if err := c.migrator.Down(ctx); err != nil {
		return err
	}
	return c.printVersion(ctx)
}

// RunDownAll drops the run history schema, saying how many recorded runs
// go with it.
func (c *CLI) RunDownAll(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Dropping run history schema (%d recorded runs)...\n", info.RecordedRuns())
	if err := c.migrator.DownAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.output, "Run history schema removed.")
	return nil
}

// RunGoto migrates to version.
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.output, "Migrating run history schema to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	return c.printVersion(ctx)
}

// RunForce records version without running migrations.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Run history schema version forced to %d.\n", version)
	return nil
}

// RunVersion shows the applied version.
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet. Run `crewflow migrate up` to enable run history.")
		return nil
	}
	fmt.Fprintf(c.output, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}

// RunStatus lists every migration and every history table.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		status := "Pending"
		switch {
		case s.Dirty:
			status = "Dirty"
		case s.Applied:
			status = "Applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	w.Flush()

	fmt.Fprintln(c.output)
	c.printTables(info.Tables)
	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Total: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

// RunInfo shows the schema summary.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.output, "Run history schema:")
	fmt.Fprintf(c.output, "  Current Version: %d\n", info.CurrentVersion)
	fmt.Fprintf(c.output, "  Latest Version:  %d\n", info.LatestVersion)
	fmt.Fprintf(c.output, "  Dirty:           %v\n", info.Dirty)
	fmt.Fprintf(c.output, "  Pending:         %d\n", info.PendingMigrations)
	fmt.Fprintf(c.output, "  Recorded Runs:   %d\n", info.RecordedRuns())
	fmt.Fprintf(c.output, "  Ready:           %v\n", info.Ready())
	return nil
}

func (c *CLI) printVersion(ctx context.Context) error {
	version, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Current version: %d\n", version)
	return nil
}

func (c *CLI) printReady(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Current version: %d\n", info.CurrentVersion)
	if info.Ready() {
		fmt.Fprintln(c.output, "Run history is ready.")
	}
	return nil
}

func (c *CLI) printTables(tables []TableStatus) {
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tPRESENT\tROWS")
	for _, t := range tables {
		rows := "-"
		present := "no"
		if t.Present {
			present = "yes"
			rows = fmt.Sprintf("%d", t.Rows)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, present, rows)
	}
	w.Flush()
}
