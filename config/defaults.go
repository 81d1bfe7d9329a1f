// =============================================================================
// 📦 CrewFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:          DefaultLogConfig(),
		LLM:          DefaultLLMConfig(),
		Capabilities: DefaultCapabilitiesConfig(),
		Archive:      DefaultArchiveConfig(),
		Crew:         DefaultCrewConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Metrics:      DefaultMetricsConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   4096,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
	}
}

// DefaultCapabilitiesConfig 返回默认能力配置
func DefaultCapabilitiesConfig() CapabilitiesConfig {
	return CapabilitiesConfig{
		Mode:          "live",
		Timeout:       60 * time.Second,
		CacheTTL:      time.Hour,
		MaxRetries:    3,
		SearchBaseURL: "https://google.serper.dev",
		SearchResults: 5,
		OpenAIBaseURL: "https://api.openai.com/v1",
		ImageModel:    "dall-e-3",
		VisionModel:   "gpt-4o-mini",
	}
}

// DefaultArchiveConfig 返回默认归档配置
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		DefaultFolder: "archive",
		DirPerm:       0o755,
		FilePerm:      0o644,
	}
}

// DefaultCrewConfig 返回默认运行配置
func DefaultCrewConfig() CrewConfig {
	return CrewConfig{
		MaxParallel: 1,
		MaxRework:   3,
		ResultsDir:  "results",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		KeyPrefix:    "crewflow:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "crewflow",
		Name:            "crewflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "crewflow",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow",
		SampleRate:   0.1,
	}
}
