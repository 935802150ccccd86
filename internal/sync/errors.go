package sync

import (
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

var (
	// ErrSyncDisabled is returned when no device credential is stored.
	ErrSyncDisabled = errors.New("sync disabled: no stored credential")
	// ErrNotConfigured is returned when a command is issued before login.
	ErrNotConfigured = errors.New("device not configured: run 'tlsync login' first")

	// ErrDeviceNotFound is returned when this device has no record yet.
	ErrDeviceNotFound = errors.New("device record not found")
	// ErrNotKeptSignedIn is returned when a parent command relies on the signed-in
	// parent but the device is not kept signed in.
	ErrNotKeptSignedIn = errors.New("device is not kept signed in")
	// ErrWrongAuthentication is returned when the authentication does not fit the command kind.
	ErrWrongAuthentication = errors.New("authentication does not match command")

	// ErrAttributionRejected is returned when the server refused the attribution of
	// an uploaded command. Nothing is resent until the user authenticates again.
	ErrAttributionRejected = errors.New("server rejected command attribution")
	// ErrDeviceRemoved is returned after the local state was reset because the
	// device was removed from the family.
	ErrDeviceRemoved = errors.New("device was removed")
)

// ConsistencyError reports an incoming entity whose parent does not exist locally.
type ConsistencyError struct {
	Family        models.Family
	EntityID      string
	MissingParent string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation in %s: %s references missing %s", e.Family, e.EntityID, e.MissingParent)
}
