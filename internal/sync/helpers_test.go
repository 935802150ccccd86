package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncclient"
)

const testDeviceID = "dev-1"

// newFamilyDB returns a configured store holding a parent, a child with
// category C1, and this device.
func newFamilyDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	inTx(t, database, func(tx *db.Tx) error {
		if err := tx.SetConfig(db.KeyOwnDeviceID, testDeviceID); err != nil {
			return err
		}
		for _, u := range []models.User{
			{ID: "parent", Name: "Pat", Type: models.UserTypeParent, SecondPasswordSalt: "00ff"},
			{ID: "kid", Name: "Kim", Type: models.UserTypeChild},
		} {
			if err := tx.InsertUser(u); err != nil {
				return err
			}
		}
		if err := tx.InsertDevice(models.Device{ID: testDeviceID, Name: "tablet", CurrentUserID: "kid", DefaultUserID: "kid"}); err != nil {
			return err
		}
		return tx.InsertCategory(models.Category{ID: "C1", ChildID: "kid", Title: "Games", ExtraTimeDay: -1})
	})
	return database
}

func inTx(t *testing.T, database *db.DB, fn func(tx *db.Tx) error) {
	t.Helper()
	require.NoError(t, database.Transaction(context.Background(), fn))
}

func pending(t *testing.T, database *db.DB) []db.PendingAction {
	t.Helper()
	var out []db.PendingAction
	inTx(t, database, func(tx *db.Tx) error {
		var err error
		out, err = tx.ListPendingActions()
		return err
	})
	return out
}

func decodeAt(t *testing.T, a db.PendingAction) actions.Payload {
	t.Helper()
	decoded, err := actions.Decode(a.EncodedAction)
	require.NoError(t, err)
	return decoded.Payload
}

// fakeServer stands in for the sync server. It applies every sequence
// number at most once, like the real one.
type fakeServer struct {
	mu gosync.Mutex

	seen     map[int64]bool
	received []syncclient.ActionTuple
	pushes   [][]syncclient.ActionTuple

	// loseNextConfirmation accepts the next push and then fails it.
	loseNextConfirmation bool
	pushErr              error
	fullResync           bool

	snapshot   *models.ServerDataStatus
	pullErr    error
	pullStatus []models.ClientDataStatus

	removed     bool
	probeCalled bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{seen: map[int64]bool{}}
}

func (f *fakeServer) Push(_ context.Context, batch []syncclient.ActionTuple) (*syncclient.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushes = append(f.pushes, batch)
	for _, a := range batch {
		if f.seen[a.SequenceNumber] {
			continue
		}
		f.seen[a.SequenceNumber] = true
		f.received = append(f.received, a)
	}
	if f.loseNextConfirmation {
		f.loseNextConfirmation = false
		return nil, errors.New("connection reset")
	}
	return &syncclient.PushResponse{FullResyncRequired: f.fullResync}, nil
}

func (f *fakeServer) Pull(_ context.Context, status models.ClientDataStatus) (*models.ServerDataStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullStatus = append(f.pullStatus, status)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.snapshot != nil {
		s := f.snapshot
		f.snapshot = nil
		return s, nil
	}
	return &models.ServerDataStatus{}, nil
}

func (f *fakeServer) IsDeviceRemoved(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalled = true
	return f.removed, nil
}
