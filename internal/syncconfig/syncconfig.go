// Package syncconfig loads client settings and the stored device credential.
// Settings are layered env (TLSYNC_*) > ~/.config/tlsync/config.toml > defaults.
package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix        = "TLSYNC"
	configFileName   = "config.toml"
	authFileName     = "auth.json"
	defaultServerURL = "http://localhost:8080"
)

// SyncSettings tunes the sync engine.
type SyncSettings struct {
	BatchSize               int
	SuccessCooldownMin      time.Duration
	SuccessCooldownMax      time.Duration
	FailureCooldownMin      time.Duration
	FailureCooldownMax      time.Duration
	VeryUnimportantInterval time.Duration
	TimestampTolerance      time.Duration
	HTTPTimeout             time.Duration
	WebSocket               bool
}

// LogSettings selects the slog handler and optional file rotation.
type LogSettings struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config is the resolved client configuration.
type Config struct {
	ServerURL   string
	DataDir     string
	MetricsAddr string
	Sync        SyncSettings
	Log         LogSettings
}

// AuthCredentials is the stored device credential. Its absence disables sync.
type AuthCredentials struct {
	DeviceAuthToken string `json:"device_auth_token"`
	DeviceID        string `json:"device_id"`
	ServerURL       string `json:"server_url"`
}

// ConfigDir returns the config directory, creating it if necessary.
// TLSYNC_CONFIG_DIR overrides ~/.config/tlsync.
func ConfigDir() (string, error) {
	dir := os.Getenv(envPrefix + "_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "tlsync")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("server.url", defaultServerURL)
	v.SetDefault("data.dir", filepath.Join(home, ".local", "share", "tlsync"))
	v.SetDefault("metrics.addr", "")

	v.SetDefault("sync.batch_size", 25)
	v.SetDefault("sync.success_cooldown_min", "2s")
	v.SetDefault("sync.success_cooldown_max", "3s")
	v.SetDefault("sync.failure_cooldown_min", "10s")
	v.SetDefault("sync.failure_cooldown_max", "15s")
	v.SetDefault("sync.very_unimportant_interval", "10m")
	v.SetDefault("sync.timestamp_tolerance", "2s")
	v.SetDefault("sync.http_timeout", "30s")
	v.SetDefault("sync.websocket", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load resolves the configuration. An empty path means the default
// config file; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, configFileName)
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		ServerURL:   strings.TrimRight(v.GetString("server.url"), "/"),
		DataDir:     v.GetString("data.dir"),
		MetricsAddr: v.GetString("metrics.addr"),
		Sync: SyncSettings{
			BatchSize:               v.GetInt("sync.batch_size"),
			SuccessCooldownMin:      v.GetDuration("sync.success_cooldown_min"),
			SuccessCooldownMax:      v.GetDuration("sync.success_cooldown_max"),
			FailureCooldownMin:      v.GetDuration("sync.failure_cooldown_min"),
			FailureCooldownMax:      v.GetDuration("sync.failure_cooldown_max"),
			VeryUnimportantInterval: v.GetDuration("sync.very_unimportant_interval"),
			TimestampTolerance:      v.GetDuration("sync.timestamp_tolerance"),
			HTTPTimeout:             v.GetDuration("sync.http_timeout"),
			WebSocket:               v.GetBool("sync.websocket"),
		},
		Log: LogSettings{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.SuccessCooldownMax < c.Sync.SuccessCooldownMin {
		return fmt.Errorf("sync.success_cooldown_max is below sync.success_cooldown_min")
	}
	if c.Sync.FailureCooldownMax < c.Sync.FailureCooldownMin {
		return fmt.Errorf("sync.failure_cooldown_max is below sync.failure_cooldown_min")
	}
	return nil
}

// AuthPath returns the path of the credential file.
func AuthPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, authFileName), nil
}

// LoadAuth reads the stored credential. It returns nil, nil when none is stored.
func LoadAuth() (*AuthCredentials, error) {
	path, err := AuthPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", authFileName, err)
	}
	if creds.DeviceAuthToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// SaveAuth writes the credential with 0600 permissions.
func SaveAuth(creds *AuthCredentials) error {
	path, err := AuthPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ClearAuth removes the credential file.
func ClearAuth() error {
	path, err := AuthPath()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsAuthenticated reports whether a credential is stored.
func IsAuthenticated() bool {
	creds, err := LoadAuth()
	return err == nil && creds != nil
}
