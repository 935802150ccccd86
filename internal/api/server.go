// Package api is the reference family sync server: devices push their
// action logs, pull the families they are behind on, and listen for
// change notifications.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/serverdb"
)

// Server is the HTTP API server for tlsync-server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	stores      *FamilyStorePool
	metrics     *Metrics
	rateLimiter *RateLimiter
	hub         *Hub
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if cfg.MaxPushBatch <= 0 {
		return nil, fmt.Errorf("max push batch must be positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMetrics()
	s := &Server{
		config:      cfg,
		store:       store,
		stores:      NewFamilyStorePool(cfg.FamilyDataDir),
		metrics:     m,
		rateLimiter: NewRateLimiter(),
		hub:         NewHub(m),
		ctx:         ctx,
		cancel:      cancel,
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Stores returns the family store pool.
func (s *Server) Stores() *FamilyStorePool {
	return s.stores
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("rate limiter cleanup panic", "panic", r)
			}
		}()
		s.rateLimiter.Run(s.ctx)
	}()

	return nil
}

// Shutdown gracefully stops the server, disconnects listeners and closes all family stores.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.hub.CloseAll()
	err := s.http.Shutdown(ctx)
	s.stores.CloseAll()
	return err
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Device credentials (public)
	mux.HandleFunc("POST /sync/register-device", s.withIPRateLimit(s.handleRegisterDevice, s.config.RateLimitRegister))
	mux.HandleFunc("POST /sync/is-device-removed", s.withIPRateLimit(s.handleIsDeviceRemoved, s.config.RateLimitRegister))

	// Sync
	mux.HandleFunc("POST /sync/push-actions", s.requireDevice(s.withRateLimit(s.handlePushActions, s.config.RateLimitPush)))
	mux.HandleFunc("POST /sync/pull-status", s.requireDevice(s.withRateLimit(s.handlePullStatus, s.config.RateLimitPull)))
	mux.HandleFunc("GET /sync/listen", s.requireDevice(s.handleListen))

	return chain(mux, recoverPanics, traceRequest, observe(s.metrics), limitBody)
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
