package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type AppConfig struct {
	// JMABaseURL is the root of the bosai feed.
	JMABaseURL  string
	HTTPTimeout time.Duration

	StoreDriver string
	DBPath      string

	// ResetOnStart clears the forecast store when the server boots.
	ResetOnStart bool

	// SyncInterval controls how often the configured offices are synced.
	SyncInterval    time.Duration
	SyncOffices     []string
	SyncConcurrency int

	Port            string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env is normal; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		JMABaseURL:  getenvDefault("JMA_BASE_URL", "https://www.jma.go.jp/bosai"),
		StoreDriver: strings.ToLower(getenvDefault("STORE_DRIVER", DriverSQLite)),
		DBPath:      getenvDefault("DB_PATH", "forecast.db"),
		SyncOffices: splitList(getenvDefault("SYNC_OFFICES", "130000")),
		Port:        getenvDefault("PORT", "8080"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		LogFormat:   getenvDefault("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getenvDuration("SYNC_INTERVAL", "30m"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ResetOnStart, err = getenvBool("RESET_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency, err = getenvInt("SYNC_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency < 1 {
		return nil, fmt.Errorf("invalid SYNC_CONCURRENCY: must be at least 1, got %d", cfg.SyncConcurrency)
	}

	switch cfg.StoreDriver {
	case DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %q or %q", cfg.StoreDriver, DriverSQLite, DriverMemory)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
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

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
