package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by SELFGRAPH_ENV (or .env by default),
// then its .secret sidecar if one exists. Everything else is read through
// the accessors below.
func Load() error {
	envFile := os.Getenv("SELFGRAPH_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// a missing file is not an error
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intEnv("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RedisURL is a redis:// URL for the side store. Empty keeps the side store
// in process memory.
func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

// APIKey guards the HTTP surface. Empty disables the check.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// TrustProxy makes the server take the client address from X-Forwarded-For
// or X-Real-IP. Only turn it on behind a proxy that overwrites those headers.
func TrustProxy() bool {
	v, _ := strconv.ParseBool(os.Getenv("TRUST_PROXY"))
	return v
}

// ReconcileBatchSize is how many fragments one committed batch holds.
func ReconcileBatchSize() int {
	return intEnv("RECONCILE_BATCH_SIZE", 50)
}

// SuggestionDailyLimit caps merge suggestions surfaced per rolling 24 hours.
func SuggestionDailyLimit() int {
	return intEnv("SUGGESTION_DAILY_LIMIT", 2)
}

// VisibilityThreshold is the minimum belief score an item needs to be shown.
func VisibilityThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("VISIBILITY_THRESHOLD"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.45
	}
	return v
}

// PersonasConfig is an optional YAML file overriding the built-in personas.
func PersonasConfig() string {
	return os.Getenv("PERSONAS_CONFIG")
}

// CitationAuthorityConfig is an optional YAML file overriding the built-in
// domain authority table.
func CitationAuthorityConfig() string {
	return os.Getenv("CITATION_AUTHORITY_CONFIG")
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
