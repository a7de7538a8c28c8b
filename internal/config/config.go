package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// State backends for schedule run state
const (
	StateBackendFile   = "file"
	StateBackendRedis  = "redis"
	StateBackendSQLite = "sqlite"
)

// Config holds all configuration for the report worker and CLI
type Config struct {
	// Feishu open platform credentials
	FeishuAppID     string        `env:"FEISHU_APP_ID"`
	FeishuAppSecret string        `env:"FEISHU_APP_SECRET"`
	FeishuBaseURL   string        `env:"FEISHU_BASE_URL" envDefault:"https://open.feishu.cn/open-apis"`
	FeishuDocURL    string        `env:"FEISHU_DOC_URL" envDefault:"https://my.feishu.cn/docx/"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"report-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey     string        `env:"STREAM_KEY" envDefault:"report.work"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"report-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"report.done"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Schedule configuration
	ScheduleFile string        `env:"SCHEDULE_FILE"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`
	StateBackend string        `env:"STATE_BACKEND" envDefault:"file"`
	StateFile    string        `env:"STATE_FILE" envDefault:".report_state.json"`
	StateKey     string        `env:"STATE_KEY" envDefault:"report:state"`
	StateDB      string        `env:"STATE_DB" envDefault:".report_state.db"`

	// Templates and audit rule configs
	TemplatesDir string `env:"TEMPLATES_DIR" envDefault:"templates"`
	ConfigsDir   string `env:"CONFIGS_DIR" envDefault:"configs"`
	ScriptsDir   string `env:"SCRIPTS_DIR" envDefault:"scripts"`

	// Document publishing
	DocBatchSize  int           `env:"DOC_BATCH_SIZE" envDefault:"50"`
	DocBatchPause time.Duration `env:"DOC_BATCH_PAUSE" envDefault:"300ms"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.FeishuBaseURL == "" {
		return fmt.Errorf("FEISHU_BASE_URL is required")
	}

	// FEISHU_APP_ID / FEISHU_APP_SECRET are optional - local rendering and
	// demo audits work without them. The client reports missing credentials
	// when an API call is attempted.

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	if c.StreamKey == "" {
		return fmt.Errorf("STREAM_KEY is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.ResultStream == "" {
		return fmt.Errorf("RESULT_STREAM is required")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}

	switch c.StateBackend {
	case StateBackendFile:
		if c.StateFile == "" {
			return fmt.Errorf("STATE_FILE is required for the file state backend")
		}
	case StateBackendRedis:
		if c.StateKey == "" {
			return fmt.Errorf("STATE_KEY is required for the redis state backend")
		}
	case StateBackendSQLite:
		if c.StateDB == "" {
			return fmt.Errorf("STATE_DB is required for the sqlite state backend")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be one of: file, redis, sqlite")
	}

	if c.DocBatchSize <= 0 {
		return fmt.Errorf("DOC_BATCH_SIZE must be positive")
	}

	if c.DocBatchPause < 0 {
		return fmt.Errorf("DOC_BATCH_PAUSE must be non-negative")
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// HasFeishuCredentials reports whether API credentials are configured
func (c *Config) HasFeishuCredentials() bool {
	return c.FeishuAppID != "" && c.FeishuAppSecret != ""
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, FeishuBaseURL=%s, FeishuAppID=%s, RedisAddr=%s, RedisDB=%d, StreamKey=%s, "+
			"ConsumerGroup=%s, ScheduleFile=%s, StateBackend=%s, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.FeishuBaseURL,
		c.FeishuAppID,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.ScheduleFile,
		c.StateBackend,
		c.HealthPort,
		c.LogLevel,
	)
}
