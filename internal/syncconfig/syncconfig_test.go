package syncconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TLSYNC_CONFIG_DIR", dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != defaultServerURL {
		t.Errorf("server url: got %q", cfg.ServerURL)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("batch size: got %d, want 25", cfg.Sync.BatchSize)
	}
	if cfg.Sync.SuccessCooldownMin != 2*time.Second || cfg.Sync.SuccessCooldownMax != 3*time.Second {
		t.Errorf("success cooldown: %v-%v", cfg.Sync.SuccessCooldownMin, cfg.Sync.SuccessCooldownMax)
	}
	if cfg.Sync.FailureCooldownMin != 10*time.Second || cfg.Sync.FailureCooldownMax != 15*time.Second {
		t.Errorf("failure cooldown: %v-%v", cfg.Sync.FailureCooldownMin, cfg.Sync.FailureCooldownMax)
	}
	if cfg.Sync.VeryUnimportantInterval != 10*time.Minute {
		t.Errorf("very unimportant interval: %v", cfg.Sync.VeryUnimportantInterval)
	}
	if cfg.Sync.TimestampTolerance != 2*time.Second {
		t.Errorf("timestamp tolerance: %v", cfg.Sync.TimestampTolerance)
	}
	if !cfg.Sync.WebSocket {
		t.Error("websocket should default to on")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolate(t)
	content := `
[server]
url = "https://sync.example.com/"

[sync]
batch_size = 10
failure_cooldown_min = "1m"
failure_cooldown_max = "2m"

[log]
format = "json"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://sync.example.com" {
		t.Errorf("server url: got %q", cfg.ServerURL)
	}
	if cfg.Sync.BatchSize != 10 {
		t.Errorf("batch size: got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.FailureCooldownMin != time.Minute {
		t.Errorf("failure cooldown min: %v", cfg.Sync.FailureCooldownMin)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format: %q", cfg.Log.Format)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[sync]\nbatch_size = 10\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TLSYNC_SYNC_BATCH_SIZE", "5")
	t.Setenv("TLSYNC_SERVER_URL", "http://env:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.BatchSize != 5 {
		t.Errorf("batch size: got %d, want 5", cfg.Sync.BatchSize)
	}
	if cfg.ServerURL != "http://env:9000" {
		t.Errorf("server url: got %q", cfg.ServerURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("TLSYNC_SYNC_BATCH_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

func TestAuthRoundTrip(t *testing.T) {
	dir := isolate(t)

	if IsAuthenticated() {
		t.Fatal("no credential stored yet")
	}
	creds := &AuthCredentials{DeviceAuthToken: "tok", DeviceID: "dev-1", ServerURL: "http://x"}
	if err := SaveAuth(creds); err != nil {
		t.Fatalf("SaveAuth: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions: %v", info.Mode().Perm())
	}

	got, err := LoadAuth()
	if err != nil || got == nil {
		t.Fatalf("LoadAuth: %v %v", got, err)
	}
	if *got != *creds {
		t.Errorf("got %+v", got)
	}
	if err := ClearAuth(); err != nil {
		t.Fatalf("ClearAuth: %v", err)
	}
	if IsAuthenticated() {
		t.Error("credential should be cleared")
	}
	if err := ClearAuth(); err != nil {
		t.Errorf("clearing twice: %v", err)
	}
}

func TestAuthWatcher(t *testing.T) {
	isolate(t)

	w, err := NewAuthWatcher()
	if err != nil {
		t.Fatalf("NewAuthWatcher: %v", err)
	}
	defer w.Close()

	if err := SaveAuth(&AuthCredentials{DeviceAuthToken: "tok", DeviceID: "d"}); err != nil {
		t.Fatalf("SaveAuth: %v", err)
	}
	waitFor(t, w, true)

	if err := ClearAuth(); err != nil {
		t.Fatalf("ClearAuth: %v", err)
	}
	waitFor(t, w, false)
}

func waitFor(t *testing.T, w *AuthWatcher, want bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-w.Changes():
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for credential state %v", want)
		}
	}
}
