// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoader_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "archive", cfg.Archive.DefaultFolder)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log:
  level: debug
  format: console
llm:
  model: gpt-4o
  timeout: 30s
capabilities:
  mode: mock
  rate_limits:
    web_search:
      max_calls: 5
      window: 1m
archive:
  default_folder: old
crew:
  max_parallel: 4
  max_rework: 2
redis:
  enabled: true
  addr: redis.example.com:6379
  db: 1
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "mock", cfg.Capabilities.Mode)
	assert.Equal(t, RateLimitConfig{MaxCalls: 5, Window: time.Minute}, cfg.Capabilities.RateLimits["web_search"])
	assert.Equal(t, "old", cfg.Archive.DefaultFolder)
	assert.Equal(t, 4, cfg.Crew.MaxParallel)
	assert.Equal(t, 2, cfg.Crew.MaxRework)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 1, cfg.Redis.DB)
	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, "crewflow:", cfg.Redis.KeyPrefix)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("CREWFLOW_LOG_LEVEL", "warn")
	t.Setenv("CREWFLOW_LLM_API_KEY", "sk-test")
	t.Setenv("CREWFLOW_LLM_TEMPERATURE", "0.2")
	t.Setenv("CREWFLOW_CAPABILITIES_TIMEOUT", "5s")
	t.Setenv("CREWFLOW_ARCHIVE_DIR_PERM", "0700")
	t.Setenv("CREWFLOW_CREW_MAX_PARALLEL", "3")
	t.Setenv("CREWFLOW_LOG_OUTPUT_PATHS", "stdout, /tmp/crewflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 5*time.Second, cfg.Capabilities.Timeout)
	assert.Equal(t, uint32(0o700), cfg.Archive.DirPerm)
	assert.Equal(t, 3, cfg.Crew.MaxParallel)
	assert.Equal(t, []string{"stdout", "/tmp/crewflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
llm:
  model: yaml-model
  base_url: http://yaml
`)
	t.Setenv("CREWFLOW_LLM_MODEL", "env-model")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "http://yaml", cfg.LLM.BaseURL)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LLM_MODEL", "custom")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.LLM.Model)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("CREWFLOW_CREW_MAX_PARALLEL", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREWFLOW_CREW_MAX_PARALLEL")
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "log: [unclosed")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.LLM.APIKey == "" {
			return assert.AnError
		}
		return nil
	}).Load()
	require.ErrorIs(t, err, assert.AnError)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
		{"mode", func(c *Config) { c.Capabilities.Mode = "replay" }, "invalid capabilities mode"},
		{"rate limit", func(c *Config) {
			c.Capabilities.RateLimits = map[string]RateLimitConfig{"web_search": {MaxCalls: 0, Window: time.Second}}
		}, "rate limit of web_search"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"parallel", func(c *Config) { c.Crew.MaxParallel = 0 }, "max_parallel"},
		{"rework", func(c *Config) { c.Crew.MaxRework = -1 }, "max_rework"},
		{"archive folder", func(c *Config) { c.Archive.DefaultFolder = " " }, "default_folder"},
		{"redis addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
		{"db driver", func(c *Config) { c.Database.Enabled = true; c.Database.Driver = "oracle" }, "unsupported database driver"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "u:p@tcp(db:3306)/n?parseTime=true&multiStatements=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "runs.db"}
	assert.Equal(t, "runs.db", lite.DSN())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}
