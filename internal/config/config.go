// Package config loads service settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPPort        string
	Env             string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	StoreDriver    string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string
	LockTimeout    time.Duration
	RetryAttempts  uint64

	RedisAddr          string
	RedisPassword      string
	CacheTTL           time.Duration
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration

	KafkaBrokers     []string
	OrderEventsTopic string
	OutboxInterval   time.Duration

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	OtelEndpoint   string
	OtelInsecure   bool
	ServiceName    string
	ServiceVersion string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 10*time.Second, &errs),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),

		StoreDriver:    getEnv("STORE_DRIVER", DriverPostgres),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getInt("DB_PORT", 5432, &errs),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "ecommerce"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		LockTimeout:    getDuration("DB_LOCK_TIMEOUT", 5*time.Second, &errs),
		RetryAttempts:  uint64(getInt("TX_RETRY_ATTEMPTS", 3, &errs)),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CacheTTL:           getDuration("CART_CACHE_TTL", 15*time.Minute, &errs),
		BreakerFailures:    uint32(getInt("CACHE_BREAKER_FAILURES", 5, &errs)),
		BreakerOpenTimeout: getDuration("CACHE_BREAKER_OPEN_TIMEOUT", 30*time.Second, &errs),

		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		OutboxInterval:   getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second, &errs),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 20, &errs),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 40, &errs),

		OtelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelInsecure:   getEnv("OTEL_EXPORTER_OTLP_INSECURE", "true") == "true",
		ServiceName:    getEnv("OTEL_SERVICE_NAME", "store"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.RetryAttempts > 10 {
		errs = append(errs, errors.New("TX_RETRY_ATTEMPTS must be at most 10"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, raw))
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, raw))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, raw))
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
