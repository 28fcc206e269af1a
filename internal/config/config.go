// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/splitledger/pkg/duration"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds server configuration.
type Config struct {
	Port int

	StoreDriver   string
	DBPath        string
	MongoURI      string
	MongoDatabase string
	StoreTimeout  time.Duration

	JWTSecret     string
	TokenDuration time.Duration

	RolloverInterval    time.Duration
	RolloverConcurrency int
	RolloverBatchSize   int
	RolloverMaxCatchUp  int

	LogLevel  string
	LogFormat string

	// problems collects unparsable values for Validate.
	problems []error
}

// Load reads the environment after loading an optional .env file.
// Unparsable values fall back to their default and are reported by Validate.
func Load() Config {
	_ = godotenv.Load()

	c := Config{}
	c.Port = c.getenvInt("PORT", 8080)
	c.StoreDriver = strings.ToLower(getenv("STORE_DRIVER", DriverSQLite))
	c.DBPath = getenv("DB_PATH", "./data/splitledger.db")
	c.MongoURI = os.Getenv("MONGO_URI")
	c.MongoDatabase = getenv("MONGO_DATABASE", "splitledger")
	c.StoreTimeout = c.getenvDuration("STORE_TIMEOUT", 5*time.Second)
	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.TokenDuration = c.getenvDuration("TOKEN_DURATION", 24*time.Hour)
	c.RolloverInterval = c.getenvDuration("ROLLOVER_INTERVAL", time.Minute)
	c.RolloverConcurrency = c.getenvInt("ROLLOVER_CONCURRENCY", 4)
	c.RolloverBatchSize = c.getenvInt("ROLLOVER_BATCH_SIZE", 100)
	c.RolloverMaxCatchUp = c.getenvInt("ROLLOVER_MAX_CATCH_UP", 52)
	c.LogLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))
	c.LogFormat = strings.ToLower(getenv("LOG_FORMAT", "text"))
	return c
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	errs := append([]error(nil), c.problems...)

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_DATABASE is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, c.StoreDriver))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	for name, d := range map[string]time.Duration{
		"STORE_TIMEOUT":     c.StoreTimeout,
		"TOKEN_DURATION":    c.TokenDuration,
		"ROLLOVER_INTERVAL": c.RolloverInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	for name, n := range map[string]int{
		"ROLLOVER_CONCURRENCY":  c.RolloverConcurrency,
		"ROLLOVER_BATCH_SIZE":   c.RolloverBatchSize,
		"ROLLOVER_MAX_CATCH_UP": c.RolloverMaxCatchUp,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %q is not an integer", key, value))
		return def
	}
	return parsed
}

// getenvDuration accepts "30s" style and "2 weeks" style values.
func (c *Config) getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := duration.Parse(value)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return parsed
}
