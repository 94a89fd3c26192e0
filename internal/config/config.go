package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`

	// AppsFile is an optional YAML file holding the app-code table.
	// When empty the built-in table is used.
	AppsFile string `mapstructure:"apps_file" validate:"omitempty,file"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel    string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Debug       bool     `mapstructure:"debug"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// QueueConfig controls admission capacity, the worker pool and job retention.
type QueueConfig struct {
	MaxSize        int           `mapstructure:"max_size" validate:"required,gt=0"`
	Workers        int           `mapstructure:"workers" validate:"required,gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"required,gte=1"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" validate:"gte=0"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" validate:"gte=0"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"required,gt=0"`
	// ProcessingDeadline is how long a job may stay in processing before the
	// sweeper expires it. It must exceed RequestTimeout; zero means
	// RequestTimeout plus 30 seconds.
	ProcessingDeadline     time.Duration `mapstructure:"processing_deadline" validate:"gtfield=RequestTimeout"`
	Retention              time.Duration `mapstructure:"retention" validate:"required,gt=0"`
	EstimatedSecondsPerJob int           `mapstructure:"estimated_seconds_per_job" validate:"gte=0"`
	MaxPayloadChars        int           `mapstructure:"max_payload_chars" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=gemini together"`
	APIKey   string `mapstructure:"api_key" validate:"required"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
}

// RateLimitConfig selects where per-app quota counters live.
type RateLimitConfig struct {
	Backend  string `mapstructure:"backend" validate:"required,oneof=memory redis"`
	RedisURL string `mapstructure:"redis_url" validate:"required_if=Backend redis"`
}

// DatabaseConfig configures the optional archive of finished requests.
// An empty URL disables the archive.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}
