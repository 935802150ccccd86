package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// RegisterRequest is the body of POST /sync/register-device.
type RegisterRequest struct {
	ParentID    string `json:"parent_id"`
	Password    string `json:"password"`
	DeviceName  string `json:"device_name"`
	DeviceModel string `json:"device_model"`
}

// RegisterResponse carries the credential of a newly registered device.
type RegisterResponse struct {
	DeviceID        string `json:"device_id"`
	DeviceAuthToken string `json:"device_auth_token"`
}

// DeviceRemovedRequest is the body of POST /sync/is-device-removed.
type DeviceRemovedRequest struct {
	DeviceAuthToken string `json:"device_auth_token"`
}

// DeviceRemovedResponse is the reply to POST /sync/is-device-removed.
type DeviceRemovedResponse struct {
	IsDeviceRemoved bool `json:"is_device_removed"`
}

var errNotParent = errors.New("not a parent")

// handleRegisterDevice adds a device to the family of the authenticating parent.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.ParentID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "parent_id and password are required")
		return
	}

	cred, err := s.store.GetCredential(req.ParentID)
	if err != nil {
		logFor(r.Context()).Error("get credential", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load credential")
		return
	}
	if cred == nil {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
		return
	}
	if ok, err := crypto.VerifyPassword(req.Password, cred.PasswordHash); err != nil || !ok {
		if err != nil {
			logFor(r.Context()).Warn("verify password", "uid", req.ParentID, "err", err)
		}
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
		return
	}

	store, err := s.stores.Get(cred.FamilyID)
	if err != nil {
		logFor(r.Context()).Error("open family store", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "family store unavailable")
		return
	}

	deviceID := uuid.NewString()
	token, _, err := s.store.RegisterDevice(cred.FamilyID, deviceID, req.DeviceName)
	if err != nil {
		logFor(r.Context()).Error("register device", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to register device")
		return
	}

	err = store.Transaction(r.Context(), func(tx *db.Tx) error {
		parent, err := tx.GetUser(req.ParentID)
		if err != nil {
			return err
		}
		if parent == nil || parent.Type != models.UserTypeParent {
			return errNotParent
		}
		return tx.InsertDevice(models.Device{ID: deviceID, Name: req.DeviceName, Model: req.DeviceModel})
	})
	if err != nil {
		if rmErr := s.store.RemoveDevice(deviceID); rmErr != nil {
			logFor(r.Context()).Error("roll back device registration", "err", rmErr)
		}
		if errors.Is(err, errNotParent) {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
			return
		}
		logFor(r.Context()).Error("insert device", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to register device")
		return
	}

	logFor(r.Context()).Info("device registered", "fid", cred.FamilyID, "did", deviceID)
	s.hub.Notify(cred.FamilyID, deviceID)
	writeJSON(w, http.StatusCreated, RegisterResponse{DeviceID: deviceID, DeviceAuthToken: token})
}

// handleIsDeviceRemoved tells a device whose token stopped working whether
// it was removed from its family. Tokens never issued count as removed.
func (s *Server) handleIsDeviceRemoved(w http.ResponseWriter, r *http.Request) {
	var req DeviceRemovedRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.DeviceAuthToken == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_auth_token is required")
		return
	}

	d, err := s.store.LookupDeviceToken(req.DeviceAuthToken)
	if err != nil {
		logFor(r.Context()).Error("lookup device token", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to look up device")
		return
	}
	writeJSON(w, http.StatusOK, DeviceRemovedResponse{IsDeviceRemoved: d == nil || d.Removed()})
}
