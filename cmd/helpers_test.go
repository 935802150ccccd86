package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncconfig"
	"github.com/spf13/cobra"
)

func TestParseMinute(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"1439", 1439, false},
		{"08:30", 510, false},
		{" 23:59 ", 1439, false},
		{"00:00", 0, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"1440", 0, true},
		{"-1", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMinute(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMinute(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseMinute(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSlot(t *testing.T) {
	slot, err := parseSlot("16:00-18:00")
	if err != nil {
		t.Fatalf("parseSlot: %v", err)
	}
	if slot.Start != 960 || slot.End != 1080 {
		t.Errorf("slot = %+v, want 960-1080", slot)
	}

	for _, bad := range []string{"16:00", "18:00-16:00", "a-b"} {
		if _, err := parseSlot(bad); err == nil {
			t.Errorf("parseSlot(%q) should fail", bad)
		}
	}
}

func TestDayOfEpoch(t *testing.T) {
	if got := dayOfEpoch(time.Date(1970, 1, 1, 23, 0, 0, 0, time.UTC)); got != 0 {
		t.Errorf("epoch day = %d, want 0", got)
	}
	// The calendar day of the given zone counts, not the UTC one.
	zone := time.FixedZone("east", 10*3600)
	if got := dayOfEpoch(time.Date(2024, 1, 2, 5, 0, 0, 0, zone)); got != 19724 {
		t.Errorf("day = %d, want 19724", got)
	}
}

func TestParseDays(t *testing.T) {
	tests := map[string]int{
		"":         0x7f,
		"all":      0x7f,
		"weekdays": 0x1f,
		"Weekend":  0x60,
		"mo":       0x01,
		"mo,we,fr": 0x15,
		"sunday":   0x40,
	}
	for in, want := range tests {
		got, err := parseDays(in)
		if err != nil {
			t.Errorf("parseDays(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseDays(%q) = %#x, want %#x", in, got, want)
		}
	}
	if _, err := parseDays("mo,xx"); err == nil {
		t.Error("unknown day should fail")
	}
}

func TestApplyRuleFlags(t *testing.T) {
	newFlags := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "test"}
		addRuleFlags(c)
		if err := c.Flags().Parse(args); err != nil {
			t.Fatalf("parse flags: %v", err)
		}
		return c
	}

	t.Run("all fields for a new rule", func(t *testing.T) {
		var r models.TimeLimitRule
		c := newFlags("--max", "1h", "--days", "weekend")
		if err := applyRuleFlags(c.Flags(), &r, true); err != nil {
			t.Fatalf("applyRuleFlags: %v", err)
		}
		if r.MaximumTimeInMillis != 3_600_000 || r.DayMask != 0x60 {
			t.Errorf("rule = %+v", r)
		}
		if r.StartMinuteOfDay != 0 || r.EndMinuteOfDay != 1439 {
			t.Errorf("window = %d-%d, want defaults 0-1439", r.StartMinuteOfDay, r.EndMinuteOfDay)
		}
	})

	t.Run("only changed fields on update", func(t *testing.T) {
		r := models.TimeLimitRule{
			DayMask: 0x01, MaximumTimeInMillis: 1000,
			StartMinuteOfDay: 60, EndMinuteOfDay: 120, PerDay: true,
		}
		c := newFlags("--to", "03:00", "--session", "30m")
		if err := applyRuleFlags(c.Flags(), &r, false); err != nil {
			t.Fatalf("applyRuleFlags: %v", err)
		}
		if r.EndMinuteOfDay != 180 || r.SessionDurationMillis != 1_800_000 {
			t.Errorf("changed fields not applied: %+v", r)
		}
		if r.DayMask != 0x01 || r.MaximumTimeInMillis != 1000 || r.StartMinuteOfDay != 60 || !r.PerDay {
			t.Errorf("unchanged fields overwritten: %+v", r)
		}
	})

	t.Run("invalid time", func(t *testing.T) {
		var r models.TimeLimitRule
		c := newFlags("--from", "25:00")
		if err := applyRuleFlags(c.Flags(), &r, false); err == nil {
			t.Error("expected error for invalid --from")
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tlsync.log")
	l, closer := newLogger(syncconfig.LogSettings{
		Level: "debug", Format: "json", File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1,
	}, os.Stderr)
	if closer == nil {
		t.Fatal("expected a closer for a log file")
	}
	l.Debug("pass finished", "uploaded", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"pass finished"`) || !strings.Contains(string(data), `"uploaded":3`) {
		t.Errorf("unexpected log content: %s", data)
	}
}

func TestNewLoggerFallback(t *testing.T) {
	var sb strings.Builder
	l, closer := newLogger(syncconfig.LogSettings{Level: "warn", Format: "text"}, &sb)
	if closer != nil {
		t.Error("no closer expected without a log file")
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(sb.String(), "hidden") || !strings.Contains(sb.String(), "shown") {
		t.Errorf("level filter not applied: %q", sb.String())
	}
}
