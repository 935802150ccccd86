package cmd

import (
	"context"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	tlsync "github.com/mmguero-android/timelimit-android-sub001/internal/sync"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncclient"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncconfig"
)

// openStore opens the local store of an initialized data dir.
func openStore() (*db.DB, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return database, nil
}

// loadCredential returns the stored device credential or tlsync.ErrSyncDisabled.
func loadCredential() (*syncconfig.AuthCredentials, error) {
	creds, err := syncconfig.LoadAuth()
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if creds == nil {
		return nil, tlsync.ErrSyncDisabled
	}
	return creds, nil
}

func serverURLOf(creds *syncconfig.AuthCredentials) string {
	if creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	return cfg.ServerURL
}

func newTransport(creds *syncconfig.AuthCredentials) *syncclient.Client {
	token := ""
	if creds != nil {
		token = creds.DeviceAuthToken
	}
	return syncclient.New(serverURLOf(creds), token, cfg.Sync.HTTPTimeout)
}

// newEngine wires an engine for the stored credential. A removed device
// loses its credential, which also disables sync for a running daemon.
func newEngine(database *db.DB, creds *syncconfig.AuthCredentials) *tlsync.Engine {
	return tlsync.NewEngine(database, newTransport(creds), tlsync.EngineOptions{
		BatchSize: cfg.Sync.BatchSize,
		Logger:    logger,
		OnDeviceRemoved: func() {
			if err := syncconfig.ClearAuth(); err != nil {
				logger.Error("clear credential", "err", err)
			}
		},
	})
}

// queue applies one command locally and reports the log entry holding it.
func queue(ctx context.Context, database *db.DB, p actions.Payload, auth tlsync.Auth) error {
	applier := tlsync.NewApplier(database, cfg.Sync.TimestampTolerance, nil, logger)
	seq, err := applier.Apply(ctx, actions.New(p), auth)
	if err != nil {
		if jsonOutput {
			output.JSONError(output.ErrCodeInvalidInput, err.Error())
		} else {
			output.Error("%v", err)
		}
		return err
	}
	if jsonOutput {
		return output.JSON(map[string]any{"type": p.ActionType(), "sequence_number": seq})
	}
	output.Success("Queued %s as #%d", p.ActionType(), seq)
	return nil
}
