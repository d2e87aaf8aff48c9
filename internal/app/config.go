package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GraphPath  string   // .hcl / .yaml file or directory
	ParamsPath string   // optional document holding params blocks
	Params     []string // node.field=value

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	Timeout         time.Duration
	Retention       int
	// JournalPath is a SQLite database receiving every execution record.
	JournalPath string
	// TraceOutput is "", "stdout", "stderr" or a file path.
	TraceOutput string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" {
		return nil, errors.New("GraphPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.Retention < 1 {
		return nil, fmt.Errorf("retention must be at least 1, got %d", cfg.Retention)
	}
	return &cfg, nil
}
