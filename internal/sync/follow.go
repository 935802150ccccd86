package sync

import (
	"context"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
)

// LogFollower raises demand for log entries appended by other processes,
// such as the CLI, which have no scheduler of their own.
type LogFollower struct {
	db      *db.DB
	demand  Demand
	lastSeq int64
}

// NewLogFollower creates a follower. Call Prime before the first Check to
// skip entries that already exist.
func NewLogFollower(database *db.DB, demand Demand) *LogFollower {
	return &LogFollower{db: database, demand: demand}
}

// Prime marks every current entry as seen.
func (f *LogFollower) Prime(ctx context.Context) error {
	return f.db.Transaction(ctx, func(tx *db.Tx) error {
		entries, err := tx.ListPendingActions()
		if err != nil {
			return err
		}
		if n := len(entries); n > 0 {
			f.lastSeq = entries[n-1].SequenceNumber
		}
		return nil
	})
}

// Check requests a sync at the most urgent priority among entries appended
// since the last call. Entries folded into an existing one are not noticed.
func (f *LogFollower) Check(ctx context.Context) error {
	var (
		found bool
		want  Priority
	)
	err := f.db.Transaction(ctx, func(tx *db.Tx) error {
		next, err := tx.GetConfigInt64(db.KeyNextSequenceNumber)
		if err != nil {
			return err
		}
		// the counter restarts after a wipe
		if next <= f.lastSeq {
			f.lastSeq = 0
		}
		entries, err := tx.PendingAfter(f.lastSeq)
		if err != nil {
			return err
		}
		for _, p := range entries {
			if pr := priorityOf(p.Type); !found || pr < want {
				want = pr
			}
			found = true
			f.lastSeq = p.SequenceNumber
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("follow action log: %w", err)
	}
	if found {
		f.demand.RequestSync(want)
	}
	return nil
}
