// Package config читает настройки сервиса из окружения (и необязательного .env).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ServiceName    = "flowershop"
	ServiceVersion = "0.1.0"
)

const (
	TracesPath    = "/otlp/v1/traces"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

type Config struct {
	HTTPAddr        string
	Env             string
	DBDriver        string
	DatabaseDSN     string
	DBDebug         bool
	KafkaBroker     string
	OrderTopic      string
	OtelEndpoint    string
	OtelAuthHeader  string
	ShutdownTimeout time.Duration
	ImportMaxBytes  int64
}

// Development true для локального окружения (консольный логгер, gin debug)
func (c *Config) Development() bool { return c.Env == "development" }

// Load читает .env, если он есть, затем переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv собирает Config через getenv; удобно подменять в тестах
func FromEnv(getenv func(string) string) (*Config, error) {
	str := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		HTTPAddr:       str("HTTP_ADDR", ":9091"),
		Env:            str("APP_ENV", "development"),
		DBDriver:       str("DB_DRIVER", "sqlite"),
		DatabaseDSN:    getenv("DATABASE_DSN"),
		KafkaBroker:    getenv("KAFKA_BROKER"),
		OrderTopic:     str("KAFKA_ORDER_TOPIC", "orders.created"),
		OtelEndpoint:   getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: getenv("OTEL_AUTH_HEADER"),
	}

	var err error
	if cfg.DBDebug, err = strconv.ParseBool(str("DB_DEBUG", "false")); err != nil {
		return nil, fmt.Errorf("DB_DEBUG: %w", err)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(str("SHUTDOWN_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.ImportMaxBytes, err = strconv.ParseInt(str("IMPORT_MAX_BYTES", strconv.Itoa(10<<20)), 10, 64); err != nil {
		return nil, fmt.Errorf("IMPORT_MAX_BYTES: %w", err)
	}
	if cfg.ImportMaxBytes <= 0 {
		return nil, fmt.Errorf("IMPORT_MAX_BYTES must be positive")
	}

	switch cfg.DBDriver {
	case "memory":
	case "sqlite":
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = "file:flowershop.db?_foreign_keys=on"
		}
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN environment variable is required for postgres")
		}
	default:
		return nil, fmt.Errorf("DB_DRIVER: unsupported driver %q (memory, sqlite, postgres)", cfg.DBDriver)
	}
	return cfg, nil
}
