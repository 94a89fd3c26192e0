package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. AIQ_SERVER_PORT or AIQ_LLM_API_KEY.
const EnvPrefix = "AIQ"

// ConfigFileEnv names the environment variable holding an explicit config file path.
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Server.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if cfg.Queue.ProcessingDeadline == 0 {
		cfg.Queue.ProcessingDeadline = cfg.Queue.RequestTimeout + 30*time.Second
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("queue.max_size", 100)
	v.SetDefault("queue.workers", 3)
	v.SetDefault("queue.request_timeout", 5*time.Minute)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base", time.Second)
	v.SetDefault("queue.backoff_max", 30*time.Second)
	v.SetDefault("queue.sweep_interval", 30*time.Second)
	v.SetDefault("queue.processing_deadline", time.Duration(0))
	v.SetDefault("queue.retention", time.Hour)
	v.SetDefault("queue.estimated_seconds_per_job", 30)
	v.SetDefault("queue.max_payload_chars", 20000)

	v.SetDefault("llm.provider", "together")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.redis_url", "")

	v.SetDefault("database.url", "")
	v.SetDefault("apps_file", "")
}
