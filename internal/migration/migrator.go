package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/BaSui01/crewflow/types"
	_ "github.com/glebarez/go-sqlite" // registers the pure-Go "sqlite" driver
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// HistoryTables are the tables owned by the run history schema, in the
// order they are created.
var HistoryTables = []string{"crew_runs", "crew_task_reports"}

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// dialect binds a database type to its driver, its embedded migrations
// and the catalog query that tells whether a table exists.
type dialect struct {
	driver     string
	dir        string
	tableQuery string
	instance   func(db *sql.DB, table string) (database.Driver, error)
}

var dialects = map[DatabaseType]dialect{
	DatabaseTypePostgres: {
		driver:     "postgres",
		dir:        "migrations/postgres",
		tableQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
		instance: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	DatabaseTypeMySQL: {
		driver:     "mysql",
		dir:        "migrations/mysql",
		tableQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		instance: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	DatabaseTypeSQLite: {
		driver:     "sqlite",
		dir:        "migrations/sqlite",
		tableQuery: "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		instance: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
		},
	},
}

func dialectFor(t DatabaseType) (dialect, error) {
	d, ok := dialects[t]
	if !ok {
		return dialect{}, types.Errorf(types.ErrConfiguration, "unsupported database type: %s", t)
	}
	return d, nil
}

// MigrationStatus is one embedded migration and whether it is applied.
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// TableStatus reports one run history table.
type TableStatus struct {
	Name    string
	Present bool
	Rows    int64
}

// MigrationInfo summarizes the run history schema.
type MigrationInfo struct {
	CurrentVersion    uint
	LatestVersion     uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
	Tables            []TableStatus
}

// Ready reports whether the history store can use the schema as is.
func (i *MigrationInfo) Ready() bool {
	if i.Dirty || i.PendingMigrations > 0 {
		return false
	}
	for _, t := range i.Tables {
		if !t.Present {
			return false
		}
	}
	return true
}

// RecordedRuns returns the row count of crew_runs, or 0 when the table
// is missing.
func (i *MigrationInfo) RecordedRuns() int64 {
	for _, t := range i.Tables {
		if t.Name == HistoryTables[0] {
			return t.Rows
		}
	}
	return 0
}

// Config holds the configuration for the migrator
type Config struct {
	DatabaseType DatabaseType

	// DSN is the driver connection string, as produced by
	// config.DatabaseConfig.DSN. MySQL needs multiStatements=true.
	DSN string

	// TableName is the golang-migrate bookkeeping table (default: schema_migrations)
	TableName string
}

// Migrator manages the run history schema.
type Migrator interface {
	Up(ctx context.Context) error
	// Down rolls back the last migration
	Down(ctx context.Context) error
	// DownAll drops the run history schema
	DownAll(ctx context.Context) error
	Goto(ctx context.Context, version uint) error
	// Force records version as applied without running anything; it
	// clears a dirty flag left by a failed migration.
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// DefaultMigrator implements Migrator with golang-migrate over its own
// connection; Close releases it.
type DefaultMigrator struct {
	config  *Config
	dialect dialect
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewMigrator opens the database described by cfg and prepares the
// embedded migrations of its dialect.
func NewMigrator(cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	d, err := dialectFor(cfg.DatabaseType)
	if err != nil {
		return nil, err
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DatabaseType, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DatabaseType, err)
	}

	driver, err := d.instance(db, cfg.TableName)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare %s migration driver: %w", cfg.DatabaseType, err)
	}
	src, err := iofs.New(migrationsFS, d.dir)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(cfg.DatabaseType), driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &DefaultMigrator{config: cfg, dialect: d, migrate: m, db: db}, nil
}

// Up applies all pending migrations. A dirty schema is reported with the
// force command that clears it.
func (m *DefaultMigrator) Up(ctx context.Context) error {
	return m.apply(m.migrate.Up(), "up")
}

// Down rolls back the last applied migration.
func (m *DefaultMigrator) Down(ctx context.Context) error {
	return m.apply(m.migrate.Steps(-1), "down")
}

// DownAll rolls back every migration, dropping the history tables.
func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	return m.apply(m.migrate.Down(), "down all")
}

// Goto migrates up or down to version, which must be an embedded one.
func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	available, err := m.available()
	if err != nil {
		return err
	}
	known := false
	for _, mig := range available {
		if mig.Version == version {
			known = true
			break
		}
	}
	if !known {
		return types.Errorf(types.ErrConfiguration, "unknown run history schema version %d (latest is %d)", version, latest(available))
	}
	return m.apply(m.migrate.Migrate(version), fmt.Sprintf("goto %d", version))
}

// Force sets the recorded version without running migrations.
func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) apply(err error, op string) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) {
		return fmt.Errorf("run history schema is dirty at version %d; repair it and run `crewflow migrate force %d`: %w",
			dirty.Version, dirty.Version, err)
	}
	return fmt.Errorf("migration %s failed: %w", op, err)
}

// Version returns the applied version; 0 means nothing is applied.
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status lists the embedded migrations against the applied version.
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	available, err := m.available()
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(available))
	for _, mig := range available {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Identifier,
			Applied: mig.Version <= current,
			Dirty:   dirty && mig.Version == current,
		})
	}
	return statuses, nil
}

// Info summarizes versions and the state of the history tables.
func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := m.Tables(ctx)
	if err != nil {
		return nil, err
	}

	info := &MigrationInfo{
		CurrentVersion:  current,
		Dirty:           dirty,
		TotalMigrations: len(statuses),
		Tables:          tables,
	}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
		if s.Version > info.LatestVersion {
			info.LatestVersion = s.Version
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

// Tables reports whether each history table exists and how many rows it holds.
func (m *DefaultMigrator) Tables(ctx context.Context) ([]TableStatus, error) {
	out := make([]TableStatus, 0, len(HistoryTables))
	for _, name := range HistoryTables {
		ts := TableStatus{Name: name}
		var n int
		if err := m.db.QueryRowContext(ctx, m.dialect.tableQuery, name).Scan(&n); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", name, err)
		}
		ts.Present = n > 0
		if ts.Present {
			// name comes from HistoryTables, never from input
			if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&ts.Rows); err != nil {
				return nil, fmt.Errorf("count rows of %s: %w", name, err)
			}
		}
		out = append(out, ts)
	}
	return out, nil
}

// Close closes the migrator and its connection
func (m *DefaultMigrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

// available parses the embedded up migrations of the dialect, sorted by
// version.
func (m *DefaultMigrator) available() ([]*source.Migration, error) {
	return embeddedMigrations(m.dialect.dir)
}

func embeddedMigrations(dir string) ([]*source.Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []*source.Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mig, err := source.Parse(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path.Join(dir, entry.Name()), err)
		}
		if mig.Direction == source.Up {
			out = append(out, mig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func latest(migrations []*source.Migration) uint {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// ParseDatabaseType maps driver names and common aliases to a DatabaseType.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", types.Errorf(types.ErrConfiguration, "unsupported database type: %s", s)
	}
}
