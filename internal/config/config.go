package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/bike-tracker/internal/ingest"
	"github.com/i474232898/bike-tracker/internal/tracking"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

type AppConfig struct {
	// Feed endpoint; the token is sent as a query parameter.
	FeedURL         string        `yaml:"feed_url" validate:"required,url"`
	FeedToken       string        `yaml:"feed_token"`
	FeedChannel     string        `yaml:"feed_channel" validate:"required"`
	FeedDialTimeout time.Duration `yaml:"feed_dial_timeout" validate:"gt=0"`

	StoreBackend        string        `yaml:"store_backend" validate:"oneof=memory redis badger"`
	RedisURL            string        `yaml:"redis_url" validate:"required_if=StoreBackend redis"`
	BadgerPath          string        `yaml:"badger_path" validate:"required_if=StoreBackend badger"`
	StoreBreakerTimeout time.Duration `yaml:"store_breaker_timeout" validate:"gt=0"`

	HistoryCap int `yaml:"history_cap" validate:"gte=1"`

	// Ingestion retry policy: fixed delay, bounded consecutive retries per
	// supervised task, and how often the supervisor relaunches a failed task.
	RetryDelay         time.Duration `yaml:"retry_delay" validate:"gt=0"`
	MaxRetries         int           `yaml:"max_retries" validate:"gte=0"`
	SupervisorInterval time.Duration `yaml:"supervisor_interval" validate:"gt=0"`

	Port     string `yaml:"port" validate:"required,numeric"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() *AppConfig {
	return &AppConfig{
		FeedChannel:         "gps_data",
		FeedDialTimeout:     10 * time.Second,
		StoreBackend:        BackendMemory,
		RedisURL:            "redis://localhost:6379/0",
		BadgerPath:          "./data",
		StoreBreakerTimeout: 30 * time.Second,
		HistoryCap:          tracking.DefaultHistoryCap,
		RetryDelay:          5 * time.Second,
		MaxRetries:          ingest.DefaultMaxRetries,
		SupervisorInterval:  30 * time.Second,
		Port:                "8080",
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by TRACKER_CONFIG, and environment variables, in increasing precedence.
// Callers load .env files beforehand.
func Load() (*AppConfig, error) {
	cfg := Defaults()

	if path := os.Getenv("TRACKER_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.FeedURL = getenvDefault("FEED_URL", cfg.FeedURL)
	cfg.FeedToken = getenvDefault("FEED_TOKEN", cfg.FeedToken)
	cfg.FeedChannel = getenvDefault("FEED_CHANNEL", cfg.FeedChannel)
	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", cfg.StoreBackend))
	cfg.RedisURL = getenvDefault("REDIS_URL", cfg.RedisURL)
	cfg.BadgerPath = getenvDefault("BADGER_PATH", cfg.BadgerPath)
	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))

	var err error
	if cfg.FeedDialTimeout, err = getenvDuration("FEED_DIAL_TIMEOUT", cfg.FeedDialTimeout); err != nil {
		return nil, err
	}
	if cfg.StoreBreakerTimeout, err = getenvDuration("STORE_BREAKER_TIMEOUT", cfg.StoreBreakerTimeout); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = getenvDuration("RETRY_DELAY", cfg.RetryDelay); err != nil {
		return nil, err
	}
	if cfg.SupervisorInterval, err = getenvDuration("SUPERVISOR_INTERVAL", cfg.SupervisorInterval); err != nil {
		return nil, err
	}
	if cfg.HistoryCap, err = getenvInt("HISTORY_CAP", cfg.HistoryCap); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getenvInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
