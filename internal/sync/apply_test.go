package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

type recordedDemand struct{ got []Priority }

func (r *recordedDemand) RequestSync(p Priority) { r.got = append(r.got, p) }

func TestApply_CoalescedSumForAnyCount(t *testing.T) {
	ctx := context.Background()
	for n := 1; n <= 6; n++ {
		database := newFamilyDB(t)
		applier := NewApplier(database, 0, nil, nil)

		var want int64
		for i := 1; i <= n; i++ {
			want += int64(i * 7)
			_, err := applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: int64(i * 7)}), DeviceAuth())
			require.NoError(t, err)
		}

		entries := pending(t, database)
		require.Len(t, entries, 1, "n=%d", n)
		p := decodeAt(t, entries[0]).(*actions.AddUsedTime)
		assert.Equal(t, want, p.TimeToAdd, "n=%d", n)
		assert.Equal(t, DeviceAttribution, entries[0].Attribution)
	}
}

func TestApply_EndToEndScenarioLog(t *testing.T) {
	database := newFamilyDB(t)
	demand := &recordedDemand{}
	applier := NewApplier(database, 0, demand, nil)

	var seqs []int64
	for _, ms := range []int64{10, 20, 5} {
		seq, err := applier.Apply(context.Background(), actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: ms}), DeviceAuth())
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	assert.Equal(t, []int64{seqs[0], seqs[0], seqs[0]}, seqs, "merged entries keep their sequence number")

	entries := pending(t, database)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(35), decodeAt(t, entries[0]).(*actions.AddUsedTime).TimeToAdd)
	assert.Equal(t, []Priority{VeryUnimportant, VeryUnimportant, VeryUnimportant}, demand.got)

	// the local counter saw every increment
	inTx(t, database, func(tx *db.Tx) error {
		items, err := tx.ListUsedTimes("C1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(35), items[0].UsedMillis)
		return nil
	})
}

func TestApply_DoesNotMergeAcrossCategoryOrDay(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error {
		return tx.InsertCategory(models.Category{ID: "C2", ChildID: "kid", Title: "Video", ExtraTimeDay: -1})
	})
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	for _, p := range []*actions.AddUsedTime{
		{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: 1},
		{CategoryID: "C2", DayOfEpoch: 100, TimeToAdd: 1},
		{CategoryID: "C2", DayOfEpoch: 101, TimeToAdd: 1},
	} {
		_, err := applier.Apply(ctx, actions.New(p), DeviceAuth())
		require.NoError(t, err)
	}
	assert.Len(t, pending(t, database), 3)
}

func TestApply_MultiItemDifferentSlotsNeverMerge(t *testing.T) {
	database := newFamilyDB(t)
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	first := &actions.AddUsedTimeV2{DayOfEpoch: 100, Items: []actions.AddUsedTimeItem{{
		CategoryID: "C1", TimeToAdd: 1000,
		AdditionalCountingSlots: []actions.CountingSlot{{Start: 600, End: 720}},
	}}}
	second := &actions.AddUsedTimeV2{DayOfEpoch: 100, Items: []actions.AddUsedTimeItem{{
		CategoryID: "C1", TimeToAdd: 1000,
		AdditionalCountingSlots: []actions.CountingSlot{{Start: 900, End: 960}},
	}}}

	_, err := applier.Apply(ctx, actions.New(first), DeviceAuth())
	require.NoError(t, err)
	_, err = applier.Apply(ctx, actions.New(second), DeviceAuth())
	require.NoError(t, err)

	entries := pending(t, database)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1000), decodeAt(t, entries[0]).(*actions.AddUsedTimeV2).Items[0].TimeToAdd)
	assert.Equal(t, int64(1000), decodeAt(t, entries[1]).(*actions.AddUsedTimeV2).Items[0].TimeToAdd)
}

func TestApply_MultiItemConsistentTimestampsMerge(t *testing.T) {
	database := newFamilyDB(t)
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	for _, ts := range []int64{100_000, 105_000} {
		_, err := applier.Apply(ctx, actions.New(&actions.AddUsedTimeV2{DayOfEpoch: 100, TrustedTimestamp: ts, Items: []actions.AddUsedTimeItem{{
			CategoryID: "C1", TimeToAdd: 5000,
		}}}), DeviceAuth())
		require.NoError(t, err)
	}
	entries := pending(t, database)
	require.Len(t, entries, 1)
	merged := decodeAt(t, entries[0]).(*actions.AddUsedTimeV2)
	assert.Equal(t, int64(10_000), merged.Items[0].TimeToAdd)
	assert.Equal(t, int64(105_000), merged.TrustedTimestamp)
}

func TestApply_NeverMergesIntoFrozenEntry(t *testing.T) {
	database := newFamilyDB(t)
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	first, err := applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: 10}), DeviceAuth())
	require.NoError(t, err)
	inTx(t, database, func(tx *db.Tx) error { return tx.FreezeActions([]int64{first}) })

	second, err := applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: 20}), DeviceAuth())
	require.NoError(t, err)
	assert.Greater(t, second, first)

	entries := pending(t, database)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10), decodeAt(t, entries[0]).(*actions.AddUsedTime).TimeToAdd)
}

func TestApply_NeverMergesAcrossNewerEntry(t *testing.T) {
	database := newFamilyDB(t)
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	_, err := applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: 10}), DeviceAuth())
	require.NoError(t, err)
	_, err = applier.Apply(ctx, actions.New(&actions.UpdateCategoryTitle{CategoryID: "C1", Title: "Fun"}), ParentPassword("parent", "h"))
	require.NoError(t, err)
	_, err = applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: 20}), DeviceAuth())
	require.NoError(t, err)

	entries := pending(t, database)
	require.Len(t, entries, 3, "usage after the rename keeps its place in upload order")
	assert.Equal(t, int64(10), decodeAt(t, entries[0]).(*actions.AddUsedTime).TimeToAdd)
	assert.Equal(t, actions.TypeUpdateCategoryTitle, entries[1].Type)
	assert.Equal(t, int64(20), decodeAt(t, entries[2]).(*actions.AddUsedTime).TimeToAdd)
}

func TestApply_InvalidUsageNeverMerged(t *testing.T) {
	database := newFamilyDB(t)
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	_, err := applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: 100}), DeviceAuth())
	require.NoError(t, err)
	_, err = applier.Apply(ctx, actions.New(&actions.AddUsedTime{CategoryID: "C1", DayOfEpoch: 100, TimeToAdd: -50}), DeviceAuth())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")

	entries := pending(t, database)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), decodeAt(t, entries[0]).(*actions.AddUsedTime).TimeToAdd)
}

func TestApply_DuplicateItemsNeverMerged(t *testing.T) {
	database := newFamilyDB(t)
	applier := NewApplier(database, 0, nil, nil)
	ctx := context.Background()

	_, err := applier.Apply(ctx, actions.New(&actions.AddUsedTimeV2{
		DayOfEpoch: 100,
		Items:      []actions.AddUsedTimeItem{{CategoryID: "C1", TimeToAdd: 10}},
	}), DeviceAuth())
	require.NoError(t, err)
	_, err = applier.Apply(ctx, actions.New(&actions.AddUsedTimeV2{
		DayOfEpoch: 100,
		Items:      []actions.AddUsedTimeItem{{CategoryID: "C1", TimeToAdd: 5}, {CategoryID: "C1", TimeToAdd: 5}},
	}), DeviceAuth())
	require.Error(t, err)

	entries := pending(t, database)
	require.Len(t, entries, 1)
	p := decodeAt(t, entries[0]).(*actions.AddUsedTimeV2)
	require.Len(t, p.Items, 1)
	assert.Equal(t, int64(10), p.Items[0].TimeToAdd)
}

func TestApply_ParentPasswordAttribution(t *testing.T) {
	database := newFamilyDB(t)
	demand := &recordedDemand{}
	applier := NewApplier(database, 0, demand, nil)

	hash, err := crypto.SecondPasswordHash("secret", "00ff")
	require.NoError(t, err)

	seq, err := applier.Apply(context.Background(),
		actions.New(&actions.UpdateCategoryTitle{CategoryID: "C1", Title: "Play"}),
		ParentPassword("parent", hash))
	require.NoError(t, err)

	entries := pending(t, database)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, seq, e.SequenceNumber)
	assert.Equal(t, actions.KindParentAuthorized, e.Kind)
	assert.Equal(t, "parent", e.ActorID)
	assert.Equal(t, crypto.Attribution(seq, testDeviceID, hash, e.EncodedAction), e.Attribution)
	assert.Equal(t, []Priority{Important}, demand.got)

	inTx(t, database, func(tx *db.Tx) error {
		c, err := tx.GetCategory("C1")
		require.NoError(t, err)
		assert.Equal(t, "Play", c.Title)
		return nil
	})
}

func TestApply_RejectedBeforeLogging(t *testing.T) {
	ctx := context.Background()
	rename := actions.New(&actions.UpdateCategoryTitle{CategoryID: "C1", Title: "x"})

	tests := []struct {
		name  string
		setup func(tx *db.Tx) error
		auth  Auth
		want  error
	}{
		{
			name: "device context for parent command",
			auth: DeviceAuth(),
			want: ErrWrongAuthentication,
		},
		{
			name: "child password for parent command",
			auth: ChildPassword("kid", "h"),
			want: ErrWrongAuthentication,
		},
		{
			name: "parent password names a child",
			auth: ParentPassword("kid", "h"),
			want: ErrWrongAuthentication,
		},
		{
			name: "signed in parent without keep signed in",
			setup: func(tx *db.Tx) error {
				d, _ := tx.GetDevice(testDeviceID)
				d.CurrentUserID = "parent"
				return tx.UpdateDevice(*d)
			},
			auth: ParentDevice(),
			want: ErrNotKeptSignedIn,
		},
		{
			name:  "own device record missing",
			setup: func(tx *db.Tx) error { return tx.DeleteDevice(testDeviceID) },
			auth:  ParentDevice(),
			want:  ErrDeviceNotFound,
		},
		{
			name:  "not logged in",
			setup: func(tx *db.Tx) error { return tx.DeleteConfig(db.KeyOwnDeviceID) },
			auth:  ParentPassword("parent", "h"),
			want:  ErrNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := newFamilyDB(t)
			if tt.setup != nil {
				inTx(t, database, tt.setup)
			}
			_, err := NewApplier(database, 0, nil, nil).Apply(ctx, rename, tt.auth)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, pending(t, database))

			// the sequence number reserved inside the failed transaction is not lost
			inTx(t, database, func(tx *db.Tx) error {
				seq, err := tx.NextSequenceNumber()
				assert.Equal(t, int64(1), seq)
				return err
			})
		})
	}
}

func TestApply_ParentDeviceKeptSignedIn(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error {
		d, _ := tx.GetDevice(testDeviceID)
		d.CurrentUserID = "parent"
		d.KeepSignedIn = true
		return tx.UpdateDevice(*d)
	})

	_, err := NewApplier(database, 0, nil, nil).Apply(context.Background(),
		actions.New(&actions.DeleteCategory{CategoryID: "C1"}), ParentDevice())
	require.NoError(t, err)

	entries := pending(t, database)
	require.Len(t, entries, 1)
	assert.Equal(t, DeviceAttribution, entries[0].Attribution)
	assert.Equal(t, "parent", entries[0].ActorID)
}

func TestApply_ChildSignIn(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error { return tx.UnassignUserFromDevices("kid") })

	_, err := NewApplier(database, 0, nil, nil).Apply(context.Background(),
		actions.New(&actions.ChildSignIn{}), ChildPassword("kid", "hash"))
	require.NoError(t, err)

	inTx(t, database, func(tx *db.Tx) error {
		d, err := tx.GetDevice(testDeviceID)
		require.NoError(t, err)
		assert.Equal(t, "kid", d.CurrentUserID)
		return nil
	})
	entries := pending(t, database)
	require.Len(t, entries, 1)
	assert.Equal(t, actions.KindChildAuthorized, entries[0].Kind)
}

func TestApply_DispatchFailureLogsNothing(t *testing.T) {
	database := newFamilyDB(t)
	_, err := NewApplier(database, 0, nil, nil).Apply(context.Background(),
		actions.New(&actions.UpdateCategoryTitle{CategoryID: "missing", Title: "x"}),
		ParentPassword("parent", "h"))
	require.Error(t, err)
	assert.Empty(t, pending(t, database))
}
