// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// HTTP
	Port string

	// Storage
	CheckpointDBPath string
	ProgressDBPath   string

	// Generator endpoint (OpenAI-compatible chat completions API)
	GeneratorURL     string
	GeneratorModel   string
	GeneratorAPIKey  string
	GeneratorTimeout time.Duration

	// Generator retry policy
	GeneratorMaxAttempts int
	GeneratorBaseDelay   time.Duration

	// Observability
	ServiceName     string
	OTLPEndpoint    string
	TracingEnabled  bool
	MetricsEnabled  bool
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		CheckpointDBPath:     getEnv("CHECKPOINT_DB_PATH", "./data/checkpoints.db"),
		ProgressDBPath:       getEnv("PROGRESS_DB_PATH", "./data/progress.db"),
		GeneratorURL:         getEnv("GENERATOR_URL", "http://localhost:11434/v1/chat/completions"),
		GeneratorModel:       getEnv("GENERATOR_MODEL", "llama3.1"),
		GeneratorAPIKey:      getEnv("GENERATOR_API_KEY", ""),
		GeneratorTimeout:     getEnvDuration("GENERATOR_TIMEOUT", 2*time.Minute),
		GeneratorMaxAttempts: getEnvInt("GENERATOR_MAX_ATTEMPTS", 3),
		GeneratorBaseDelay:   getEnvDuration("GENERATOR_BASE_DELAY", 500*time.Millisecond),
		ServiceName:          getEnv("SERVICE_NAME", "challengecore"),
		OTLPEndpoint:         getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled:       getEnvBool("TRACING_ENABLED", false),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.CheckpointDBPath == "" {
		return fmt.Errorf("CHECKPOINT_DB_PATH cannot be empty")
	}
	if c.ProgressDBPath == "" {
		return fmt.Errorf("PROGRESS_DB_PATH cannot be empty")
	}
	if c.GeneratorURL == "" {
		return fmt.Errorf("GENERATOR_URL cannot be empty")
	}
	if c.GeneratorModel == "" {
		return fmt.Errorf("GENERATOR_MODEL cannot be empty")
	}
	if c.GeneratorMaxAttempts < 1 {
		return fmt.Errorf("GENERATOR_MAX_ATTEMPTS must be >= 1")
	}
	if c.GeneratorBaseDelay <= 0 {
		return fmt.Errorf("GENERATOR_BASE_DELAY must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
