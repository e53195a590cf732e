// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir string // Base directory for distributions and the run archive (always absolute)

	LogLevel string
	Pretty   bool // Human-readable console output instead of JSON

	// Solver selection and budgets.
	Solver       string // "exact", "annealing", or "annealer"
	Seed         int64
	SweepCount   int
	ReadCount    int
	ChainCount   int
	ExactMaxVars int

	// Encoding defaults.
	BitsPerBin  int
	RegForm     string
	RegStrength float64

	// Bootstrap uncertainty estimation.
	Resamples   int
	Parallelism int

	// Remote annealer service, optional.
	AnnealerURL     string
	AnnealerToken   string
	AnnealerTimeout time.Duration
}

// Load reads configuration from environment variables, consulting a
// .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QUNFOLD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pretty:   getEnvAsBool("LOG_PRETTY", false),

		Solver:       getEnv("QUNFOLD_SOLVER", "annealing"),
		Seed:         int64(getEnvAsInt("QUNFOLD_SEED", 0)),
		SweepCount:   getEnvAsInt("QUNFOLD_SWEEPS", 1000),
		ReadCount:    getEnvAsInt("QUNFOLD_READS", 8),
		ChainCount:   getEnvAsInt("QUNFOLD_CHAINS", 8),
		ExactMaxVars: getEnvAsInt("QUNFOLD_EXACT_MAX_VARS", 0),

		BitsPerBin:  getEnvAsInt("QUNFOLD_BITS_PER_BIN", 4),
		RegForm:     getEnv("QUNFOLD_REG_FORM", "none"),
		RegStrength: getEnvAsFloat("QUNFOLD_REG_STRENGTH", 0),

		Resamples:   getEnvAsInt("QUNFOLD_RESAMPLES", 0),
		Parallelism: getEnvAsInt("QUNFOLD_PARALLELISM", 4),

		AnnealerURL:     getEnv("ANNEALER_URL", ""),
		AnnealerToken:   getEnv("ANNEALER_TOKEN", ""),
		AnnealerTimeout: time.Duration(getEnvAsInt("ANNEALER_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Solver {
	case "exact", "annealing", "annealer":
	default:
		return fmt.Errorf("unknown solver %q (want exact, annealing, or annealer)", c.Solver)
	}
	if c.Solver == "annealer" && c.AnnealerURL == "" {
		return fmt.Errorf("ANNEALER_URL required when QUNFOLD_SOLVER=annealer")
	}
	if c.BitsPerBin < 1 {
		return fmt.Errorf("bits per bin must be >= 1, got %d", c.BitsPerBin)
	}
	if c.RegStrength < 0 {
		return fmt.Errorf("regularization strength must be >= 0, got %v", c.RegStrength)
	}
	return nil
}

// DistributionsDir returns the directory holding distribution files.
func (c *Config) DistributionsDir() string {
	return filepath.Join(c.DataDir, "distributions")
}

// RunsDBPath returns the path of the run archive database.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
