package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	ServiceName    string

	// WorkerBaseURL is where jobs are dispatched; WorkerToken authenticates
	// outgoing calls and incoming event posts.
	WorkerBaseURL string
	WorkerToken   string

	// EvaluatorInterval is how often the cron evaluator wakes up.
	EvaluatorInterval time.Duration

	// ReconcilerInterval is how often stale executions are swept.
	// StaleThreshold marks an execution as stale; AbandonThreshold is the
	// point past which an unresolvable execution is abandoned.
	ReconcilerInterval time.Duration
	StaleThreshold     time.Duration
	AbandonThreshold   time.Duration

	// DefaultTimezone applies to jobs whose definition omits one.
	DefaultTimezone string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		HTTPListenAddr:     getEnv("HTTP_LISTEN_ADDR", ":8090"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServiceName:        getEnv("SERVICE_NAME", "scheduler-api"),
		WorkerBaseURL:      getEnv("WORKER_BASE_URL", "http://localhost:8091"),
		WorkerToken:        getEnv("WORKER_TOKEN", ""),
		EvaluatorInterval:  getDuration("EVALUATOR_INTERVAL", time.Minute),
		ReconcilerInterval: getDuration("RECONCILER_INTERVAL", 5*time.Minute),
		StaleThreshold:     getDuration("STALE_THRESHOLD", 30*time.Minute),
		AbandonThreshold:   getDuration("ABANDON_THRESHOLD", 2*time.Hour),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "UTC"),
	}

	return cfg, nil
}

// Validate checks the invariants main relies on.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EvaluatorInterval <= 0 {
		return fmt.Errorf("EVALUATOR_INTERVAL must be positive")
	}
	if c.ReconcilerInterval <= 0 {
		return fmt.Errorf("RECONCILER_INTERVAL must be positive")
	}
	if c.AbandonThreshold < c.StaleThreshold {
		return fmt.Errorf("ABANDON_THRESHOLD must not be below STALE_THRESHOLD")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
