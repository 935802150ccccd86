// Package sync keeps a client device and the family server converging. Local
// commands go through an Applier into the action log; an Engine pass
// uploads the log in frozen batches and then merges one server snapshot;
// the Scheduler decides when passes run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncclient"
)

// Transport is the server side of a pass. *syncclient.Client implements it.
type Transport interface {
	Push(ctx context.Context, batch []syncclient.ActionTuple) (*syncclient.PushResponse, error)
	Pull(ctx context.Context, status models.ClientDataStatus) (*models.ServerDataStatus, error)
	IsDeviceRemoved(ctx context.Context) (bool, error)
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	BatchSize int
	Logger    *slog.Logger
	// OnDeviceRemoved runs after the local store was wiped because the
	// server no longer knows this device. It should drop the credential.
	OnDeviceRemoved func()
	Now             func() time.Time
}

// Engine runs sync passes for one device.
type Engine struct {
	db        *db.DB
	transport Transport
	batchSize int
	log       *slog.Logger
	onRemoved func()
	now       func() time.Time

	mu gosync.Mutex
}

// NewEngine creates an engine.
func NewEngine(database *db.DB, transport Transport, opts EngineOptions) *Engine {
	e := &Engine{
		db:        database,
		transport: transport,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
		onRemoved: opts.OnDeviceRemoved,
		now:       opts.Now,
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// PassResult summarizes one pass.
type PassResult struct {
	Uploaded int
	Duration time.Duration
}

// RunPass uploads every pending entry and then pulls and merges one
// snapshot. Passes never overlap. A cancelled or failed pass leaves the log
// resumable: frozen entries are retried by the next pass.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.now()
	res := PassResult{}

	needsReauth, err := e.needsReauth(ctx)
	if err != nil {
		return res, err
	}
	if needsReauth {
		return res, ErrAttributionRejected
	}

	res.Uploaded, err = e.upload(ctx)
	if err == nil {
		err = e.pull(ctx)
	}
	res.Duration = e.now().Sub(start)
	passDuration.Observe(res.Duration.Seconds())
	e.updatePendingGauge(ctx)

	if err != nil {
		err = e.classify(ctx, err)
		passesTotal.WithLabelValues(resultOf(err)).Inc()
		return res, err
	}

	if err := e.db.Transaction(ctx, func(tx *db.Tx) error {
		return tx.SetConfigInt64(db.KeyLastSyncSuccess, e.now().Unix())
	}); err != nil {
		return res, fmt.Errorf("record sync success: %w", err)
	}
	passesTotal.WithLabelValues(resultSuccess).Inc()
	e.log.Info("sync pass done", "uploaded", res.Uploaded, "duration", res.Duration)
	return res, nil
}

func (e *Engine) pull(ctx context.Context) error {
	var (
		status   models.ClientDataStatus
		deviceID string
	)
	err := e.db.Transaction(ctx, func(tx *db.Tx) error {
		var err error
		if deviceID, err = tx.OwnDeviceID(); err != nil {
			return err
		}
		status, err = tx.ClientDataStatus()
		return err
	})
	if err != nil {
		return fmt.Errorf("read version tokens: %w", err)
	}
	if deviceID == "" {
		return ErrNotConfigured
	}

	snapshot, err := e.transport.Pull(ctx, status)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	return e.db.Transaction(ctx, func(tx *db.Tx) error {
		return reconcile(tx, deviceID, snapshot)
	})
}

// classify turns transport failures that need local handling into the
// package errors. Anything else is returned as is and retried later.
func (e *Engine) classify(ctx context.Context, err error) error {
	var apiErr *syncclient.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Code == syncclient.CodeAttributionMismatch:
		if serr := e.db.Transaction(ctx, func(tx *db.Tx) error {
			return tx.SetConfig(db.KeyNeedsReauth, "1")
		}); serr != nil {
			e.log.Error("record attribution rejection", "err", serr)
		}
		e.log.Warn("server rejected attribution, waiting for login", "err", err)
		return fmt.Errorf("%w: %v", ErrAttributionRejected, err)

	case errors.Is(err, syncclient.ErrUnauthorized):
		removed, perr := e.transport.IsDeviceRemoved(ctx)
		if perr != nil {
			e.log.Warn("device removed probe failed", "err", perr)
			return err
		}
		if !removed {
			return err
		}
		if werr := e.db.Transaction(ctx, func(tx *db.Tx) error { return tx.WipeAll() }); werr != nil {
			return fmt.Errorf("reset removed device: %w", werr)
		}
		if e.onRemoved != nil {
			e.onRemoved()
		}
		e.log.Warn("device was removed from the family, local state reset")
		return ErrDeviceRemoved
	}
	return err
}

func (e *Engine) needsReauth(ctx context.Context) (bool, error) {
	var v string
	err := e.db.Transaction(ctx, func(tx *db.Tx) error {
		var err error
		v, err = tx.GetConfig(db.KeyNeedsReauth)
		return err
	})
	return v == "1", err
}

// ClearReauth allows uploads again without touching the log. Entries the
// server rejected keep their attribution; use Reauthenticate to re-sign them.
func (e *Engine) ClearReauth(ctx context.Context) error {
	return e.db.Transaction(ctx, func(tx *db.Tx) error {
		return tx.DeleteConfig(db.KeyNeedsReauth)
	})
}

// Reauthenticate re-signs every password-attributed entry of auth.UserID,
// frozen ones included, with auth's second password hash and allows uploads
// again. It returns how many entries were re-signed.
func (e *Engine) Reauthenticate(ctx context.Context, auth Auth) (int, error) {
	if auth.Method != AuthParentPassword && auth.Method != AuthChildPassword {
		return 0, fmt.Errorf("%w: %s cannot re-sign entries", ErrWrongAuthentication, auth.Method)
	}
	if auth.SecondPasswordHash == "" {
		return 0, fmt.Errorf("%w: missing second password hash", ErrWrongAuthentication)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var n int
	err := e.db.Transaction(ctx, func(tx *db.Tx) error {
		deviceID, err := tx.OwnDeviceID()
		if err != nil {
			return err
		}
		if deviceID == "" {
			return ErrNotConfigured
		}
		entries, err := tx.ListPendingActions()
		if err != nil {
			return err
		}
		for _, p := range entries {
			if p.ActorID != auth.UserID || p.Attribution == DeviceAttribution {
				continue
			}
			token := crypto.Attribution(p.SequenceNumber, deviceID, auth.SecondPasswordHash, p.EncodedAction)
			if err := tx.SetAttribution(p.SequenceNumber, token); err != nil {
				return err
			}
			n++
		}
		return tx.DeleteConfig(db.KeyNeedsReauth)
	})
	if err != nil {
		return 0, fmt.Errorf("reauthenticate %s: %w", auth.UserID, err)
	}
	e.log.Info("re-signed pending actions", "user", auth.UserID, "count", n)
	return n, nil
}

// Refresh pulls and merges one snapshot without uploading. It works while
// uploads wait for re-authentication, so a password changed on another
// device reaches the local user records first.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.pull(ctx); err != nil {
		return e.classify(ctx, err)
	}
	return nil
}

func (e *Engine) updatePendingGauge(ctx context.Context) {
	var n int
	err := e.db.Transaction(ctx, func(tx *db.Tx) error {
		var err error
		n, err = tx.CountPendingActions()
		return err
	})
	if err == nil {
		pendingActions.Set(float64(n))
	}
}

func resultOf(err error) string {
	var ce *ConsistencyError
	switch {
	case errors.Is(err, ErrAttributionRejected):
		return resultReauth
	case errors.Is(err, ErrDeviceRemoved):
		return resultRemoved
	case errors.As(err, &ce):
		return resultInconsistent
	}
	return resultFailure
}
