package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; nothing is required — without a
// DATABASE_URL the service runs with an in-memory destination registry.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database (optional)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Outbound delivery
	DeliveryTimeout time.Duration
	MaxAttempts     int
	// Flat retry delays by failure class: a reachable non-2xx response
	// retries after HTTPRetryDelay, a network-level failure after
	// NetRetryDelay.
	HTTPRetryDelay time.Duration
	NetRetryDelay  time.Duration

	// Progress notifications
	ProgressInterval time.Duration // clamped to [1s, 60s] by the notifier

	// Enqueue endpoint protection: sustained requests per second and burst.
	EnqueueRateLimit float64
	EnqueueBurst     int
}

func Load() (*Config, error) {
	// Best effort: a missing .env file is the normal production case.
	_ = godotenv.Load()

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		DeliveryTimeout: getDuration("DELIVERY_TIMEOUT", 10*time.Second),
		MaxAttempts:     getInt("DELIVERY_MAX_ATTEMPTS", 3),
		HTTPRetryDelay:  getDuration("DELIVERY_HTTP_RETRY_DELAY", time.Second),
		NetRetryDelay:   getDuration("DELIVERY_NET_RETRY_DELAY", 2*time.Second),

		ProgressInterval: getDuration("PROGRESS_INTERVAL", 5*time.Second),

		EnqueueRateLimit: getFloat("ENQUEUE_RATE_LIMIT", 50),
		EnqueueBurst:     getInt("ENQUEUE_BURST", 100),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
