// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
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
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Log         LogConfig
	Mastery     MasteryConfig
	Quiz        QuizConfig
	Roadmap     RoadmapConfig
	CatalogPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps
// learner state in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Migrate  bool
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL
// disables roadmap caching.
type CacheConfig struct {
	URL string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// MasteryConfig holds the knowledge tracing parameters given to new
// learner/topic pairs.
type MasteryConfig struct {
	PLearn float64
	PGuess float64
	PSlip  float64
}

// QuizConfig holds quiz generation settings.
type QuizConfig struct {
	DefaultSize int
	Seed        uint64 // 0 picks a random seed
}

// RoadmapConfig holds roadmap settings.
type RoadmapConfig struct {
	CacheTTL time.Duration
	MaxWeeks int // longest plan; further goal dates are rejected
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LEARN_SERVER_PORT", 8080),
			Host: envStr("LEARN_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 5),
			Migrate:  envBool("LEARN_DATABASE_MIGRATE", true),
		},
		Cache: CacheConfig{
			URL: envStr("LEARN_CACHE_URL", ""),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
		Mastery: MasteryConfig{
			PLearn: envFloat("LEARN_MASTERY_P_LEARN", 0.3),
			PGuess: envFloat("LEARN_MASTERY_P_GUESS", 0.25),
			PSlip:  envFloat("LEARN_MASTERY_P_SLIP", 0.1),
		},
		Quiz: QuizConfig{
			DefaultSize: envInt("LEARN_QUIZ_DEFAULT_SIZE", 10),
			Seed:        uint64(envInt("LEARN_QUIZ_SEED", 0)),
		},
		Roadmap: RoadmapConfig{
			CacheTTL: envDuration("LEARN_ROADMAP_CACHE_TTL", 24*time.Hour),
			MaxWeeks: envInt("LEARN_ROADMAP_MAX_WEEKS", 156),
		},
		CatalogPath: envStr("LEARN_CATALOG_PATH", "./catalog"),
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("LEARN_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.MinConns < 0 || c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("LEARN_DATABASE_MAX_CONNS (%d) must be at least LEARN_DATABASE_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LEARN_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	for name, v := range map[string]float64{
		"LEARN_MASTERY_P_LEARN": c.Mastery.PLearn,
		"LEARN_MASTERY_P_GUESS": c.Mastery.PGuess,
		"LEARN_MASTERY_P_SLIP":  c.Mastery.PSlip,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}

	if c.Quiz.DefaultSize <= 0 {
		return fmt.Errorf("LEARN_QUIZ_DEFAULT_SIZE must be positive, got %d", c.Quiz.DefaultSize)
	}

	if c.Roadmap.CacheTTL < 0 {
		return fmt.Errorf("LEARN_ROADMAP_CACHE_TTL must not be negative, got %s", c.Roadmap.CacheTTL)
	}
	if c.Roadmap.MaxWeeks <= 0 {
		return fmt.Errorf("LEARN_ROADMAP_MAX_WEEKS must be positive, got %d", c.Roadmap.MaxWeeks)
	}

	if c.CatalogPath == "" {
		return fmt.Errorf("LEARN_CATALOG_PATH is required")
	}

	return nil
}

// HasDatabase reports whether learner state is stored in PostgreSQL.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasCache reports whether roadmaps are cached in Redis.
func (c *Config) HasCache() bool {
	return c.Cache.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
