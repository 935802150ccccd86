package sync

import (
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
)

// isUsageCounter reports whether t is one of the high-frequency usage
// commands that are coalesced and only request a very unimportant sync.
func isUsageCounter(t actions.Type) bool {
	return t == actions.TypeAddUsedTime || t == actions.TypeAddUsedTimeV2
}

// coalesce folds a into the newest unfrozen log entry when that entry is an
// automatic command of the same type and the merge is safe. It reports
// the sequence number of the rewritten entry, or 0 when a new entry is needed.
func coalesce(tx *db.Tx, a actions.Action, tolerance time.Duration) (int64, error) {
	if !isUsageCounter(a.Type()) {
		return 0, nil
	}
	// Unfiltered on purpose: merging past a newer entry of another kind would
	// upload the later usage ahead of that entry.
	latest, err := tx.LatestUnfrozen()
	if err != nil || latest == nil {
		return 0, err
	}
	if latest.Kind != actions.KindDeviceAutomatic || latest.Type != a.Type() {
		return 0, nil
	}

	prev, err := actions.Decode(latest.EncodedAction)
	if err != nil {
		// An entry we cannot read is left alone and uploaded as is.
		return 0, nil
	}

	var merged actions.Payload
	switch next := a.Payload.(type) {
	case *actions.AddUsedTime:
		p, ok := prev.Payload.(*actions.AddUsedTime)
		if !ok {
			return 0, nil
		}
		m, ok := actions.MergeAddUsedTime(p, next)
		if !ok {
			return 0, nil
		}
		merged = m
	case *actions.AddUsedTimeV2:
		p, ok := prev.Payload.(*actions.AddUsedTimeV2)
		if !ok {
			return 0, nil
		}
		m, ok := actions.MergeAddUsedTimeV2(p, next, tolerance)
		if !ok {
			return 0, nil
		}
		merged = m
	default:
		return 0, nil
	}

	encoded, err := actions.Encode(actions.New(merged))
	if err != nil {
		return 0, err
	}
	if err := tx.UpdateUnfrozenAction(latest.SequenceNumber, encoded); err != nil {
		return 0, err
	}
	return latest.SequenceNumber, nil
}
