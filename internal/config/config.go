package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from environment variables, with sensible
// defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	LogLevel string

	// RetentionDays is the report time-to-live. Reports are excluded from
	// every read once createdAt + RetentionDays has passed.
	RetentionDays int

	SweepInterval   time.Duration
	PatternInterval time.Duration

	// PatternWindowDays bounds how far back the pattern job looks.
	PatternWindowDays int
	// PatternThreshold is the minimum number of reports in one coarse
	// geohash cell for that cell to become a pattern.
	PatternThreshold int
	// PatternFullConfidence is the report count at which a pattern's
	// confidence reaches 1.0.
	PatternFullConfidence int

	StoreTimeout     time.Duration
	StoreReadRetries int

	// ClassifierAPIKey enables the model-backed classifier. If empty, the
	// keyword fallback handles every request.
	ClassifierAPIKey  string
	ClassifierModel   string
	ClassifierBaseURL string
	ClassifierTimeout time.Duration
	ClassifierRPS     float64
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	return &Config{
		AdminUser:             getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:         getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:           os.Getenv("APP_DATABASE_URL"),
		ListenAddr:            getenv("APP_LISTEN_ADDR", ":8080"),
		LogLevel:              getenv("APP_LOG_LEVEL", "info"),
		RetentionDays:         getint("APP_RETENTION_DAYS", 30),
		SweepInterval:         getduration("APP_SWEEP_INTERVAL", 24*time.Hour),
		PatternInterval:       getduration("APP_PATTERN_INTERVAL", time.Hour),
		PatternWindowDays:     getint("APP_PATTERN_WINDOW_DAYS", 7),
		PatternThreshold:      getint("APP_PATTERN_THRESHOLD", 3),
		PatternFullConfidence: getint("APP_PATTERN_FULL_CONFIDENCE", 10),
		StoreTimeout:          getduration("APP_STORE_TIMEOUT", 5*time.Second),
		StoreReadRetries:      getint("APP_STORE_READ_RETRIES", 2),
		ClassifierAPIKey:      getenv("APP_CLASSIFIER_API_KEY", ""),
		ClassifierModel:       getenv("APP_CLASSIFIER_MODEL", "gpt-4o-mini"),
		ClassifierBaseURL:     getenv("APP_CLASSIFIER_BASE_URL", ""),
		ClassifierTimeout:     getduration("APP_CLASSIFIER_TIMEOUT", 8*time.Second),
		ClassifierRPS:         getfloat("APP_CLASSIFIER_RPS", 2),
	}
}

// Retention returns the report TTL as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// PatternWindow returns the pattern job's look-back window as a duration.
func (c *Config) PatternWindow() time.Duration {
	return time.Duration(c.PatternWindowDays) * 24 * time.Hour
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.RetentionDays <= 0:
		return errors.New("APP_RETENTION_DAYS must be positive")
	case c.PatternWindowDays <= 0:
		return errors.New("APP_PATTERN_WINDOW_DAYS must be positive")
	case c.PatternThreshold <= 0:
		return errors.New("APP_PATTERN_THRESHOLD must be positive")
	case c.PatternFullConfidence <= 0:
		return errors.New("APP_PATTERN_FULL_CONFIDENCE must be positive")
	case c.AdminPassword == "":
		return errors.New("APP_ADMIN_PASSWORD must not be empty")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getint accepts only non-negative values; anything else keeps the default.
func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
