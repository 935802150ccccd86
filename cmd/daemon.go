package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	tlsync "github.com/mmguero-android/timelimit-android-sub001/internal/sync"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncclient"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	listenBackoffMin = time.Second
	listenBackoffMax = time.Minute
	healthInterval   = 30 * time.Second
)

// daemon owns the engine of the current credential. The credential may
// appear, change or vanish while the daemon runs.
type daemon struct {
	db        *db.DB
	scheduler *tlsync.Scheduler

	mu           gosync.Mutex
	creds        *syncconfig.AuthCredentials
	engine       *tlsync.Engine
	cancelListen context.CancelFunc
}

func (d *daemon) current() (*tlsync.Engine, *syncconfig.AuthCredentials) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine, d.creds
}

// setCredential swaps the engine and interrupts a listener holding the old token.
func (d *daemon) setCredential(creds *syncconfig.AuthCredentials) {
	d.mu.Lock()
	d.creds = creds
	d.engine = nil
	if creds != nil {
		d.engine = newEngine(d.db, creds)
	}
	cancel := d.cancelListen
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *daemon) pass(ctx context.Context) error {
	engine, _ := d.current()
	if engine == nil {
		return tlsync.ErrSyncDisabled
	}
	_, err := engine.RunPass(ctx)
	return err
}

// listen keeps the server push channel open. While connected the server
// counts as reachable; between attempts a health check decides.
func (d *daemon) listen(ctx context.Context, useWebSocket bool) {
	backoff := listenBackoffMin
	for ctx.Err() == nil {
		_, creds := d.current()
		client := newTransport(creds)

		if useWebSocket && creds != nil {
			listenCtx, cancel := context.WithCancel(ctx)
			d.mu.Lock()
			d.cancelListen = cancel
			d.mu.Unlock()

			err := client.Listen(listenCtx,
				func() {
					backoff = listenBackoffMin
					d.scheduler.SetConnected(true)
					d.scheduler.RequestSync(tlsync.Important)
					logger.Info("listening for server events")
				},
				func(ev syncclient.Event) {
					if ev.Type == syncclient.EventSyncNeeded {
						d.scheduler.RequestSync(tlsync.Important)
					}
				})
			cancel()
			if ctx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Debug("listen ended", "err", err)
			}
		}

		wait := healthInterval
		if useWebSocket && creds != nil {
			wait = backoff
			backoff = min(backoff*2, listenBackoffMax)
		}
		d.checkHealth(ctx, client)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (d *daemon) checkHealth(ctx context.Context, client *syncclient.Client) {
	_, err := client.HealthCheck(ctx)
	d.scheduler.SetConnected(err == nil)
	if err != nil {
		logger.Debug("server unreachable", "err", err)
	}
}

// watchCredential follows the credential file. A rewritten credential also
// signals a re-authentication done by 'tlsync login'.
func (d *daemon) watchCredential(ctx context.Context, w *syncconfig.AuthWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.Errors():
			logger.Warn("credential watcher", "err", err)
		case present := <-w.Changes():
			var creds *syncconfig.AuthCredentials
			if present {
				loaded, err := syncconfig.LoadAuth()
				if err != nil {
					logger.Warn("reload credential", "err", err)
					continue
				}
				creds = loaded
			}
			d.setCredential(creds)
			d.scheduler.SetSyncEnabled(creds != nil)
			logger.Info("credential changed", "sync_enabled", creds != nil)
			if creds == nil {
				continue
			}
			if !d.needsReauth(ctx) {
				d.scheduler.ClearReauth()
			}
		}
	}
}

// watchStore raises demand for commands other processes append to the log.
func (d *daemon) watchStore(ctx context.Context, w *db.StoreWatcher, f *tlsync.LogFollower) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.Errors():
			logger.Warn("store watcher", "err", err)
		case <-w.Changes():
			if err := f.Check(ctx); err != nil {
				logger.Warn("check action log", "err", err)
			}
		}
	}
}

func (d *daemon) needsReauth(ctx context.Context) bool {
	var v string
	err := d.db.Transaction(ctx, func(tx *db.Tx) error {
		var err error
		v, err = tx.GetConfig(db.KeyNeedsReauth)
		return err
	})
	return err == nil && v == "1"
}

func (d *daemon) lastSuccess(ctx context.Context) time.Time {
	var last int64
	err := d.db.Transaction(ctx, func(tx *db.Tx) error {
		var err error
		last, err = tx.GetConfigInt64(db.KeyLastSyncSuccess)
		return err
	})
	if err != nil || last == 0 {
		return time.Time{}
	}
	return time.Unix(last, 0)
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server", "err", err)
	}
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync in the background",
	Long: `Runs the sync scheduler until interrupted. Passes run when the server asks
for one over the push channel, soon after a command is queued by any tlsync
process, and periodically while idle.
Logging follows log.* in the config; set log.file to write a rotating log.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		database, err := db.Initialize(cfg.DataDir)
		if err != nil {
			return err
		}
		defer database.Close()

		creds, err := syncconfig.LoadAuth()
		if err != nil {
			return fmt.Errorf("load credential: %w", err)
		}

		d := &daemon{db: database}
		d.scheduler = tlsync.NewScheduler(d.pass, tlsync.SchedulerOptions{
			SuccessCooldownMin:      cfg.Sync.SuccessCooldownMin,
			SuccessCooldownMax:      cfg.Sync.SuccessCooldownMax,
			FailureCooldownMin:      cfg.Sync.FailureCooldownMin,
			FailureCooldownMax:      cfg.Sync.FailureCooldownMax,
			VeryUnimportantInterval: cfg.Sync.VeryUnimportantInterval,
			Logger:                  logger,
		})
		d.setCredential(creds)
		d.scheduler.SetSyncEnabled(creds != nil)
		d.scheduler.SetLastSuccess(d.lastSuccess(ctx))
		foreground, _ := cmd.Flags().GetBool("foreground")
		d.scheduler.SetForeground(foreground)
		d.scheduler.RequestSync(tlsync.Important)

		watcher, err := syncconfig.NewAuthWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		storeWatcher, err := db.NewStoreWatcher(cfg.DataDir)
		if err != nil {
			return err
		}
		defer storeWatcher.Close()
		follower := tlsync.NewLogFollower(database, d.scheduler)
		if err := follower.Prime(ctx); err != nil {
			return err
		}

		var wg gosync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			d.watchCredential(ctx, watcher)
		}()
		go func() {
			defer wg.Done()
			d.watchStore(ctx, storeWatcher, follower)
		}()
		go func() {
			defer wg.Done()
			d.listen(ctx, cfg.Sync.WebSocket)
		}()
		if cfg.MetricsAddr != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				serveMetrics(ctx, cfg.MetricsAddr)
			}()
		}

		idle := cfg.Sync.VeryUnimportantInterval
		if idle <= 0 {
			idle = tlsync.DefaultVeryUnimportantInterval
		}
		go func() {
			t := time.NewTicker(idle)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					d.scheduler.RequestSync(tlsync.VeryUnimportant)
				}
			}
		}()

		logger.Info("daemon started", "data_dir", cfg.DataDir, "sync_enabled", creds != nil)
		err = d.scheduler.Run(ctx)
		stop()
		wg.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("daemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.Flags().Bool("foreground", false, "treat the device as in use, so unimportant demand also syncs")
	rootCmd.AddCommand(daemonCmd)
}
