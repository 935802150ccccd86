package api

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"TLSYNC_LISTEN_ADDR", "TLSYNC_MAX_PUSH_BATCH", "TLSYNC_RATE_LIMIT_PUSH", "TLSYNC_SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr: %s", cfg.ListenAddr)
	}
	if cfg.MaxPushBatch != 100 || cfg.RateLimitPush != 60 {
		t.Errorf("limits: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout: %s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TLSYNC_LISTEN_ADDR", ":9999")
	t.Setenv("TLSYNC_FAMILY_DATA_DIR", "/srv/families")
	t.Setenv("TLSYNC_MAX_PUSH_BATCH", "7")
	t.Setenv("TLSYNC_RATE_LIMIT_PULL", "-3")
	t.Setenv("TLSYNC_SHUTDOWN_TIMEOUT", "5s")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9999" || cfg.FamilyDataDir != "/srv/families" {
		t.Errorf("paths: %+v", cfg)
	}
	if cfg.MaxPushBatch != 7 {
		t.Errorf("max push batch: %d", cfg.MaxPushBatch)
	}
	if cfg.RateLimitPull != 120 {
		t.Errorf("negative limit should keep default, got %d", cfg.RateLimitPull)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout: %s", cfg.ShutdownTimeout)
	}
}
