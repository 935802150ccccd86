package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/dispatch"
)

// Demand receives sync requests from producers.
type Demand interface {
	RequestSync(p Priority)
}

// Applier is the single entry point for locally issued commands. It
// authenticates a command, applies it to the local collections and queues
// it for upload, all in one transaction.
type Applier struct {
	db        *db.DB
	tolerance time.Duration
	demand    Demand
	log       *slog.Logger
}

// NewApplier creates an applier. demand may be nil when no scheduler runs in
// this process; the next sync pass picks the entry up anyway.
func NewApplier(database *db.DB, tolerance time.Duration, demand Demand, logger *slog.Logger) *Applier {
	if tolerance <= 0 {
		tolerance = actions.DefaultTimestampTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{db: database, tolerance: tolerance, demand: demand, log: logger}
}

// Apply runs a under auth and returns the sequence number of the log entry
// holding it. When the command was folded into an unsent entry the number
// of that entry is returned.
func (a *Applier) Apply(ctx context.Context, action actions.Action, auth Auth) (int64, error) {
	kind := action.Kind()
	if kind == "" {
		return 0, fmt.Errorf("apply: %w: %s", actions.ErrUnknownType, action.Type())
	}
	if !auth.allows(kind) {
		return 0, fmt.Errorf("%w: %s cannot issue %s commands", ErrWrongAuthentication, auth.Method, kind)
	}
	// A merged entry is validated as a whole, which can hide an invalid part.
	if err := action.Payload.Validate(); err != nil {
		return 0, fmt.Errorf("apply %s: %w", action.Type(), err)
	}

	var (
		seq    int64
		merged bool
	)
	err := a.db.Transaction(ctx, func(tx *db.Tx) error {
		deviceID, err := tx.OwnDeviceID()
		if err != nil {
			return err
		}
		if deviceID == "" {
			return ErrNotConfigured
		}

		if auth.Method == AuthDevice {
			s, err := coalesce(tx, action, a.tolerance)
			if err != nil {
				return fmt.Errorf("coalesce %s: %w", action.Type(), err)
			}
			if s != 0 {
				seq, merged = s, true
				return dispatch.Apply(tx, action, dispatch.Context{DeviceID: deviceID})
			}
		}

		encoded, err := actions.Encode(action)
		if err != nil {
			return err
		}
		seq, err = tx.NextSequenceNumber()
		if err != nil {
			return err
		}
		attr, err := authenticate(tx, auth, kind, seq, deviceID, encoded)
		if err != nil {
			return err
		}
		if err := dispatch.Apply(tx, action, dispatch.Context{DeviceID: deviceID, ActorID: attr.actorID}); err != nil {
			return err
		}
		return tx.AppendAction(db.PendingAction{
			SequenceNumber: seq,
			EncodedAction:  encoded,
			Kind:           kind,
			Type:           action.Type(),
			Attribution:    attr.token,
			ActorID:        attr.actorID,
		})
	})
	if err != nil {
		return 0, err
	}

	a.log.Debug("action queued", "type", action.Type(), "seq", seq, "merged", merged)
	if a.demand != nil {
		a.demand.RequestSync(priorityOf(action.Type()))
	}
	return seq, nil
}

// priorityOf maps a command type to the sync demand it raises. Losing a few
// seconds of usage counting on a crash is acceptable, so usage waits.
func priorityOf(t actions.Type) Priority {
	if isUsageCounter(t) {
		return VeryUnimportant
	}
	return Important
}
