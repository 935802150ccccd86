package api

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	ServerDBPath    string
	FamilyDataDir   string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	MaxPushBatch int // actions accepted per push (default: 100)

	RateLimitRegister int // /sync/register-device and /sync/is-device-removed per IP per minute (default: 10)
	RateLimitPush     int // /sync/push-actions per device per minute (default: 60)
	RateLimitPull     int // /sync/pull-status per device per minute (default: 120)
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		ServerDBPath:    "./data/server.db",
		FamilyDataDir:   "./data/families",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",

		MaxPushBatch: 100,

		RateLimitRegister: 10,
		RateLimitPush:     60,
		RateLimitPull:     120,
	}

	if v := os.Getenv("TLSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TLSYNC_SERVER_DB_PATH"); v != "" {
		cfg.ServerDBPath = v
	}
	if v := os.Getenv("TLSYNC_FAMILY_DATA_DIR"); v != "" {
		cfg.FamilyDataDir = v
	}
	if v := os.Getenv("TLSYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("TLSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TLSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.MaxPushBatch = envInt("TLSYNC_MAX_PUSH_BATCH", cfg.MaxPushBatch)
	cfg.RateLimitRegister = envInt("TLSYNC_RATE_LIMIT_REGISTER", cfg.RateLimitRegister)
	cfg.RateLimitPush = envInt("TLSYNC_RATE_LIMIT_PUSH", cfg.RateLimitPush)
	cfg.RateLimitPull = envInt("TLSYNC_RATE_LIMIT_PULL", cfg.RateLimitPull)

	return cfg
}

// envInt returns the positive integer in the named variable, or def.
func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
