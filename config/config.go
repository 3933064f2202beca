package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"automl-engine/core/executor"
	"automl-engine/core/selector"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Database. Empty keeps jobs in memory.
	DatabaseURL string `yaml:"database_url"`

	// Server
	ServerPort      string        `yaml:"server_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Pipeline
	TrialLatency   time.Duration `yaml:"trial_latency"`
	CVFolds        int           `yaml:"cv_folds"`
	SelectionTopK  int           `yaml:"selection_top_k"`
	EnsembleMethod string        `yaml:"ensemble_method"`
	MonitorPeriod  time.Duration `yaml:"monitor_period"`
}

func defaults() *Config {
	return &Config{
		ServerPort:      "8080",
		ShutdownTimeout: 30 * time.Second,
		CVFolds:         5,
		SelectionTopK:   3,
		EnsembleMethod:  selector.EnsembleWeightedAverage,
		MonitorPeriod:   time.Minute,
	}
}

// Load loads configuration from the YAML file named by AUTOML_CONFIG, if
// any, then from environment variables, which take precedence
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("AUTOML_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	var err error
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.EnsembleMethod = getEnv("ENSEMBLE_METHOD", cfg.EnsembleMethod)
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.TrialLatency, err = getEnvDuration("TRIAL_LATENCY", cfg.TrialLatency); err != nil {
		return nil, err
	}
	if cfg.MonitorPeriod, err = getEnvDuration("MONITOR_PERIOD", cfg.MonitorPeriod); err != nil {
		return nil, err
	}
	if cfg.CVFolds, err = getEnvInt("CV_FOLDS", cfg.CVFolds); err != nil {
		return nil, err
	}
	if cfg.SelectionTopK, err = getEnvInt("SELECTION_TOP_K", cfg.SelectionTopK); err != nil {
		return nil, err
	}
	if cfg.CVFolds <= 0 {
		return nil, fmt.Errorf("invalid CV_FOLDS: %d", cfg.CVFolds)
	}
	if _, err := selector.New(cfg.Pipeline().Selection); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Pipeline returns the executor settings
func (c *Config) Pipeline() executor.Config {
	return executor.Config{
		CVFolds: c.CVFolds,
		Selection: selector.Config{
			EnsembleMethod: c.EnsembleMethod,
			TopK:           c.SelectionTopK,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
