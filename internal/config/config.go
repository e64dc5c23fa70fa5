package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SIGIL_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SIGIL_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// APIKey returns the static bearer key required on /v1 routes.
// Auth is disabled when unset.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// AutoLinkThreshold returns the fused confidence above which resolution
// links without review. Defaults to 0.8.
func AutoLinkThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("AUTO_LINK_THRESHOLD"), 64)
	if err != nil || v <= 0 || v > 1 {
		return 0.8
	}
	return v
}

// ReviewThreshold returns the floor of the flagged auto-link band.
// Defaults to 0.5.
func ReviewThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("REVIEW_THRESHOLD"), 64)
	if err != nil || v <= 0 || v > 1 {
		return 0.5
	}
	return v
}

// MaxPropagationDepth returns the derivation depth cap. Defaults to 5.
func MaxPropagationDepth() int {
	d, err := strconv.Atoi(os.Getenv("MAX_PROPAGATION_DEPTH"))
	if err != nil || d <= 0 {
		return 5
	}
	return d
}

// ReviewSweepInterval returns how often the review sweeper re-resolves
// recent subjects. Defaults to 1h.
func ReviewSweepInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("REVIEW_SWEEP_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
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
