// Package config loads the orchestrator configuration from a YAML file
// with environment-variable overrides, and hot-reloads routing knobs from
// a watched overrides directory.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/firmlens/orchestrator/internal/constants"
)

// Config is the full orchestrator configuration.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServiceConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// EngineConfig holds the routing thresholds and budgets.
type EngineConfig struct {
	ConfidenceThreshold      int `mapstructure:"confidence_threshold"`
	MaxResearchAttempts      int `mapstructure:"max_research_attempts"`
	MaxClarificationAttempts int `mapstructure:"max_clarification_attempts"`
	MaxTransitions           int `mapstructure:"max_transitions"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type StreamingConfig struct {
	ReplayCapacity int `mapstructure:"replay_capacity"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads the config file from CONFIG_PATH (default
// /app/config/orchestrator.yaml). A missing file is not an error: every
// field has a default, and FIRMLENS_* environment variables override both.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "/app/config/orchestrator.yaml"
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FIRMLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_addr", ":8080")
	v.SetDefault("service.metrics_addr", ":2112")
	v.SetDefault("service.graceful_timeout", 15*time.Second)
	v.SetDefault("service.read_timeout", 30*time.Second)
	v.SetDefault("service.write_timeout", 30*time.Second)

	v.SetDefault("engine.confidence_threshold", constants.ConfidenceThreshold)
	v.SetDefault("engine.max_research_attempts", constants.MaxResearchAttempts)
	v.SetDefault("engine.max_clarification_attempts", constants.MaxClarificationAttempts)
	v.SetDefault("engine.max_transitions", constants.MaxTransitions)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.base_url", "http://localhost:8000")
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("search.base_url", "http://localhost:8090")
	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.requests_per_second", 5.0)
	v.SetDefault("search.burst", 10)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "firmlens")
	v.SetDefault("database.database", "firmlens")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "firmlens-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("streaming.replay_capacity", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.ConfidenceThreshold < 1 || c.Engine.ConfidenceThreshold > 10 {
		return fmt.Errorf("engine.confidence_threshold must be within 1-10, got %d", c.Engine.ConfidenceThreshold)
	}
	if c.Engine.MaxResearchAttempts < 1 {
		return fmt.Errorf("engine.max_research_attempts must be at least 1, got %d", c.Engine.MaxResearchAttempts)
	}
	if c.Engine.MaxClarificationAttempts < 0 {
		return fmt.Errorf("engine.max_clarification_attempts must not be negative, got %d", c.Engine.MaxClarificationAttempts)
	}
	if c.Engine.MaxTransitions < 1 {
		return fmt.Errorf("engine.max_transitions must be at least 1, got %d", c.Engine.MaxTransitions)
	}
	return nil
}
