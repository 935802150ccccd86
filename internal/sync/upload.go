package sync

import (
	"context"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncclient"
)

// DefaultBatchSize is the number of log entries sent per push.
const DefaultBatchSize = 25

// upload drains the action log. Batch membership is fixed by freezing, so
// entries appended while a push is in flight wait for the next batch. A
// failed push leaves the batch frozen and it is resent unchanged.
func (e *Engine) upload(ctx context.Context) (int, error) {
	uploaded := 0
	for {
		var batch []db.PendingAction
		err := e.db.Transaction(ctx, func(tx *db.Tx) error {
			frozen, err := tx.CountFrozen()
			if err != nil {
				return err
			}
			if frozen < e.batchSize {
				next, err := tx.NextUnfrozenBatch(e.batchSize - frozen)
				if err != nil {
					return err
				}
				if err := tx.FreezeActions(sequenceNumbers(next)); err != nil {
					return err
				}
			}
			batch, err = tx.FrozenBatch(e.batchSize)
			return err
		})
		if err != nil {
			return uploaded, fmt.Errorf("prepare batch: %w", err)
		}
		if len(batch) == 0 {
			return uploaded, nil
		}

		resp, err := e.transport.Push(ctx, tuples(batch))
		if err != nil {
			return uploaded, fmt.Errorf("push %d actions: %w", len(batch), err)
		}

		err = e.db.Transaction(ctx, func(tx *db.Tx) error {
			if resp.FullResyncRequired {
				if err := tx.WipeVersionTokens(); err != nil {
					return err
				}
			}
			return tx.RemoveBatch(sequenceNumbers(batch))
		})
		if err != nil {
			return uploaded, fmt.Errorf("confirm batch: %w", err)
		}
		if resp.FullResyncRequired {
			e.log.Info("server requested full resync")
		}
		uploaded += len(batch)
		actionsUploaded.Add(float64(len(batch)))
		e.log.Debug("batch uploaded", "count", len(batch),
			"first", batch[0].SequenceNumber, "last", batch[len(batch)-1].SequenceNumber)
	}
}

func sequenceNumbers(batch []db.PendingAction) []int64 {
	seqs := make([]int64, len(batch))
	for i, a := range batch {
		seqs[i] = a.SequenceNumber
	}
	return seqs
}

func tuples(batch []db.PendingAction) []syncclient.ActionTuple {
	out := make([]syncclient.ActionTuple, len(batch))
	for i, a := range batch {
		out[i] = syncclient.ActionTuple{
			SequenceNumber: a.SequenceNumber,
			EncodedAction:  a.EncodedAction,
			Attribution:    a.Attribution,
			Kind:           a.Kind,
			ActorID:        a.ActorID,
		}
	}
	return out
}
