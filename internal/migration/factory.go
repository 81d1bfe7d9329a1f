package migration

import (
	"fmt"

	appconfig "github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/types"
)

// NewMigratorFromConfig creates a new migrator from application configuration
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig creates a new migrator for the run history
// database described by dbCfg.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "invalid database type").WithCause(err)
	}

	// DSN 按规范化后的驱动名生成
	dbCfg.Driver = string(dbType)
	dsn := dbCfg.DSN()
	if dsn == "" {
		return nil, types.Errorf(types.ErrConfiguration, "database %s: connection settings are incomplete", dbType)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DSN:          dsn,
		TableName:    "schema_migrations",
	})
}
