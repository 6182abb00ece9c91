// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Model artifact
	ModelPath string // JSON export of the trained pipeline

	// Enrichment snapshot sources. Redis wins when RedisAddr is set;
	// otherwise the CSV files are read. Either may be absent, in which
	// case the affected features degrade to defaults.
	AvgAmtStatsPath   string
	MerchantStatsPath string
	RedisAddr         string

	// Background scoring. Zero disables the drain timer; scoring then
	// happens only on explicit /predict-latest requests.
	ScoreInterval time.Duration

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string
}

// Defaults match the artifact names of the original deployment.
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultModelPath         = "fraud_pipeline.json"
	DefaultAvgAmtStatsPath   = "avg_amt_stats.csv"
	DefaultMerchantStatsPath = "merchant_stats.csv"
	DefaultRateLimitRPM      = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ModelPath:         getEnv("MODEL_PATH", DefaultModelPath),
		AvgAmtStatsPath:   getEnv("AVG_AMT_STATS_PATH", DefaultAvgAmtStatsPath),
		MerchantStatsPath: getEnv("MERCHANT_STATS_PATH", DefaultMerchantStatsPath),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		ScoreInterval:     getEnvDuration("SCORE_INTERVAL", 0),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH must not be empty")
	}
	if c.ScoreInterval < 0 {
		return fmt.Errorf("SCORE_INTERVAL must not be negative")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
