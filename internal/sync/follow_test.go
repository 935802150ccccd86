package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
)

func TestLogFollower_ParentCommandFromOtherProcessIsImportant(t *testing.T) {
	ctx := context.Background()
	database := newFamilyDB(t)
	queueRenames(t, database, 1)

	demand := &recordedDemand{}
	f := NewLogFollower(database, demand)
	require.NoError(t, f.Prime(ctx))
	require.NoError(t, f.Check(ctx))
	assert.Empty(t, demand.got, "entries present at start are not new")

	// a second applier without demand stands in for the CLI
	other := NewApplier(database, 0, nil, nil)
	_, err := other.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 1, TimeToAdd: 5}), DeviceAuth())
	require.NoError(t, err)
	_, err = other.Apply(ctx, actions.New(&actions.UpdateCategoryTitle{CategoryID: "C1", Title: "Fun"}), ParentPassword("parent", "h"))
	require.NoError(t, err)

	require.NoError(t, f.Check(ctx))
	assert.Equal(t, []Priority{Important}, demand.got)

	require.NoError(t, f.Check(ctx))
	assert.Len(t, demand.got, 1, "nothing new since the last check")
}

func TestLogFollower_UsageOnlyIsVeryUnimportant(t *testing.T) {
	ctx := context.Background()
	database := newFamilyDB(t)
	demand := &recordedDemand{}
	f := NewLogFollower(database, demand)
	require.NoError(t, f.Prime(ctx))

	_, err := NewApplier(database, 0, nil, nil).Apply(ctx,
		actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 1, TimeToAdd: 5}), DeviceAuth())
	require.NoError(t, err)

	require.NoError(t, f.Check(ctx))
	assert.Equal(t, []Priority{VeryUnimportant}, demand.got)
}

func TestLogFollower_UploadedEntriesAreNotNewDemand(t *testing.T) {
	ctx := context.Background()
	database := newFamilyDB(t)
	demand := &recordedDemand{}
	f := NewLogFollower(database, demand)
	require.NoError(t, f.Prime(ctx))

	queueRenames(t, database, 2)
	require.NoError(t, f.Check(ctx))
	_, err := NewEngine(database, newFakeServer(), EngineOptions{}).RunPass(ctx)
	require.NoError(t, err)
	require.NoError(t, f.Check(ctx))
	assert.Equal(t, []Priority{Important}, demand.got)
}

func TestLogFollower_CounterResetAfterWipe(t *testing.T) {
	ctx := context.Background()
	database := newFamilyDB(t)
	queueRenames(t, database, 3)
	demand := &recordedDemand{}
	f := NewLogFollower(database, demand)
	require.NoError(t, f.Prime(ctx))

	inTx(t, database, func(tx *db.Tx) error {
		entries, err := tx.ListPendingActions()
		if err != nil {
			return err
		}
		seqs := make([]int64, len(entries))
		for i, e := range entries {
			seqs[i] = e.SequenceNumber
		}
		if err := tx.FreezeActions(seqs); err != nil {
			return err
		}
		if err := tx.RemoveBatch(seqs); err != nil {
			return err
		}
		return tx.DeleteConfig(db.KeyNextSequenceNumber)
	})
	queueRenames(t, database, 1)

	require.NoError(t, f.Check(ctx))
	assert.Equal(t, []Priority{Important}, demand.got)
}
