package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/dispatch"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// deviceAttribution marks commands authorized by the device itself or by a
// parent kept signed in on it.
const deviceAttribution = "device"

// ActionTuple is one uploaded log entry.
type ActionTuple struct {
	SequenceNumber int64        `json:"sequence_number"`
	EncodedAction  string       `json:"encoded_action"`
	Attribution    string       `json:"attribution"`
	Kind           actions.Kind `json:"kind"`
	ActorID        string       `json:"actor_id,omitempty"`
}

// PushRequest is the body of POST /sync/push-actions.
type PushRequest struct {
	Actions []ActionTuple `json:"actions"`
}

// PushResponse is the reply to a push.
type PushResponse struct {
	FullResyncRequired bool `json:"full_resync_required"`
}

// pushError aborts a push with the given reply. The whole batch is rolled back.
type pushError struct {
	status  int
	code    string
	message string
}

func (e *pushError) Error() string { return e.code + ": " + e.message }

var errAttribution = errors.New("attribution does not match")

// handlePushActions applies a batch of log entries of the calling device in
// order. An entry is applied at most once per device and sequence number, so
// a batch resent after a lost confirmation changes nothing.
func (s *Server) handlePushActions(w http.ResponseWriter, r *http.Request) {
	device := deviceFrom(r.Context())

	var req PushRequest
	if !readJSON(w, r, &req) {
		return
	}
	if len(req.Actions) > s.config.MaxPushBatch {
		writeError(w, http.StatusBadRequest, ErrCodeBatchTooLarge,
			fmt.Sprintf("at most %d actions per push", s.config.MaxPushBatch))
		return
	}

	store, err := s.stores.Get(device.FamilyID)
	if err != nil {
		logFor(r.Context()).Error("open family store", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "family store unavailable")
		return
	}
	hashes, err := s.store.SecondPasswordHashes(device.FamilyID)
	if err != nil {
		logFor(r.Context()).Error("load credentials", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load credentials")
		return
	}

	var applied, duplicated int
	err = store.Transaction(r.Context(), func(tx *db.Tx) error {
		applied, duplicated = 0, 0
		for _, t := range req.Actions {
			a, err := actions.Decode(t.EncodedAction)
			if err != nil {
				return &pushError{http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("action %d: %v", t.SequenceNumber, err)}
			}
			if a.Kind() != t.Kind {
				return &pushError{http.StatusBadRequest, ErrCodeBadRequest,
					fmt.Sprintf("action %d: %s is a %s command, not %s", t.SequenceNumber, a.Type(), a.Kind(), t.Kind)}
			}

			fresh, err := tx.MarkApplied(device.ID, t.SequenceNumber, a.Type())
			if err != nil {
				return err
			}
			if !fresh {
				duplicated++
				continue
			}

			if err := verifyAttribution(tx, device.ID, t, hashes); err != nil {
				return &pushError{http.StatusForbidden, ErrCodeAttributionMismatch, fmt.Sprintf("action %d: %v", t.SequenceNumber, err)}
			}

			// Commands are validated against the server state. One that no
			// longer fits is dropped but stays marked so it is not retried.
			ctx := dispatch.Context{DeviceID: device.ID, ActorID: t.ActorID}
			if err := tx.Savepoint(func() error { return dispatch.Apply(tx, a, ctx) }); err != nil {
				logFor(r.Context()).Warn("skip action", "seq", t.SequenceNumber, "type", a.Type(), "err", err)
				continue
			}
			applied++
		}
		return nil
	})

	var pe *pushError
	if errors.As(err, &pe) {
		logFor(r.Context()).Warn("push rejected", "code", pe.code, "msg", pe.message)
		writeError(w, pe.status, pe.code, pe.message)
		return
	}
	if err != nil {
		logFor(r.Context()).Error("apply push", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to apply actions")
		return
	}

	s.metrics.RecordPush(applied, duplicated)
	if applied > 0 {
		s.hub.Notify(device.FamilyID, device.ID)
	}

	fullResync, err := s.store.TakeFullResync(device.ID)
	if err != nil {
		logFor(r.Context()).Error("take full resync", "err", err)
	}
	logFor(r.Context()).Debug("push", "applied", applied, "duplicated", duplicated, "full_resync", fullResync)
	writeJSON(w, http.StatusOK, PushResponse{FullResyncRequired: fullResync})
}

// verifyAttribution checks that the entry was authorized the way its kind requires.
func verifyAttribution(tx *db.Tx, deviceID string, t ActionTuple, hashes map[string]string) error {
	var want models.UserType
	switch t.Kind {
	case actions.KindDeviceAutomatic:
		if t.Attribution != deviceAttribution {
			return fmt.Errorf("%w: device command carries a user attribution", errAttribution)
		}
		return nil
	case actions.KindParentAuthorized:
		want = models.UserTypeParent
	case actions.KindChildAuthorized:
		want = models.UserTypeChild
	default:
		return fmt.Errorf("%w: unknown kind %q", errAttribution, t.Kind)
	}

	user, err := tx.GetUser(t.ActorID)
	if err != nil {
		return err
	}
	if user == nil || user.Type != want {
		return fmt.Errorf("%w: %q is not a %s", errAttribution, t.ActorID, want)
	}

	if t.Attribution == deviceAttribution {
		if want != models.UserTypeParent {
			return fmt.Errorf("%w: only parents can act through the device", errAttribution)
		}
		d, err := tx.GetDevice(deviceID)
		if err != nil {
			return err
		}
		if d == nil || !d.KeepSignedIn || d.CurrentUserID != t.ActorID {
			return fmt.Errorf("%w: %s is not kept signed in on this device", errAttribution, t.ActorID)
		}
		return nil
	}

	hash, ok := hashes[t.ActorID]
	if !ok {
		return fmt.Errorf("%w: no credential for %s", errAttribution, t.ActorID)
	}
	expected := crypto.Attribution(t.SequenceNumber, deviceID, hash, t.EncodedAction)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(t.Attribution)) != 1 {
		return errAttribution
	}
	return nil
}

// handlePullStatus returns every family the client is behind on.
func (s *Server) handlePullStatus(w http.ResponseWriter, r *http.Request) {
	device := deviceFrom(r.Context())

	var req models.ClientDataStatus
	if !readJSON(w, r, &req) {
		return
	}

	store, err := s.stores.Get(device.FamilyID)
	if err != nil {
		logFor(r.Context()).Error("open family store", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "family store unavailable")
		return
	}

	var out *models.ServerDataStatus
	err = store.Transaction(r.Context(), func(tx *db.Tx) error {
		var err error
		out, err = buildSnapshot(tx, req)
		return err
	})
	if err != nil {
		logFor(r.Context()).Error("build snapshot", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to build snapshot")
		return
	}

	family, err := s.store.GetFamily(device.FamilyID)
	if err != nil {
		logFor(r.Context()).Error("get family", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load family")
		return
	}
	if family != nil {
		out.FullVersionUntil = family.FullVersionUntil
		out.Message = family.Message
	}

	s.metrics.RecordPullRequest()
	writeJSON(w, http.StatusOK, out)
}
