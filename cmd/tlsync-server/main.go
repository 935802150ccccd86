// Command tlsync-server runs the reference family sync server.
//
// Configuration comes from TLSYNC_* environment variables. Families
// are set up with the admin subcommands, e.g. "tlsync-server admin seed".
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mmguero-android/timelimit-android-sub001/internal/api"
	"github.com/mmguero-android/timelimit-android-sub001/internal/serverdb"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(os.Args[2:])
		return
	}

	cfg := api.LoadConfig()
	slog.SetDefault(newLogger(cfg.LogFormat, cfg.LogLevel))

	if err := serve(cfg); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// serve runs the server until SIGINT or SIGTERM, then drains connections
// within the configured shutdown timeout.
func serve(cfg api.Config) error {
	store, err := serverdb.Open(cfg.ServerDBPath)
	if err != nil {
		return fmt.Errorf("open server db: %w", err)
	}
	defer store.Close()

	srv, err := api.NewServer(cfg, store)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("server started", "addr", cfg.ListenAddr, "families", cfg.FamilyDataDir)

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
