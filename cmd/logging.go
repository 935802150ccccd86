package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/mmguero-android/timelimit-android-sub001/internal/syncconfig"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger. With log.file set, records go to a
// rotating file instead of fallback. The returned closer is nil otherwise.
func newLogger(s syncconfig.LogSettings, fallback io.Writer) (*slog.Logger, io.Closer) {
	var (
		w      = fallback
		closer io.Closer
	)
	if s.File != "" {
		lj := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAgeDays,
			Compress:   true,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(s.Level)}
	var handler slog.Handler
	if strings.EqualFold(s.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
