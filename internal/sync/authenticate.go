package sync

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// DeviceAttribution marks commands trusted because this device issued them itself.
const DeviceAttribution = "device"

// AuthMethod is how the issuer of a command proved who they are.
type AuthMethod int

const (
	// AuthDevice is the device's own automatic logic.
	AuthDevice AuthMethod = iota
	// AuthParentPassword is a parent who entered their password.
	AuthParentPassword
	// AuthParentDevice is the parent signed in at this device.
	AuthParentDevice
	// AuthChildPassword is a child who entered their password.
	AuthChildPassword
)

func (m AuthMethod) String() string {
	switch m {
	case AuthDevice:
		return "device"
	case AuthParentPassword:
		return "parent_password"
	case AuthParentDevice:
		return "parent_device"
	case AuthChildPassword:
		return "child_password"
	}
	return "unknown"
}

// Auth is the authentication context a command is issued under.
type Auth struct {
	Method             AuthMethod
	UserID             string
	SecondPasswordHash string
}

// DeviceAuth authenticates automatic device commands.
func DeviceAuth() Auth { return Auth{Method: AuthDevice} }

// ParentPassword authenticates a parent by their second password hash.
func ParentPassword(userID, secondPasswordHash string) Auth {
	return Auth{Method: AuthParentPassword, UserID: userID, SecondPasswordHash: secondPasswordHash}
}

// ParentDevice authenticates the parent currently signed in at this device.
func ParentDevice() Auth { return Auth{Method: AuthParentDevice} }

// ChildPassword authenticates a child by their second password hash.
func ChildPassword(userID, secondPasswordHash string) Auth {
	return Auth{Method: AuthChildPassword, UserID: userID, SecondPasswordHash: secondPasswordHash}
}

// allows reports whether the method may issue commands of kind k.
func (a Auth) allows(k actions.Kind) bool {
	switch k {
	case actions.KindDeviceAutomatic:
		return a.Method == AuthDevice
	case actions.KindParentAuthorized:
		return a.Method == AuthParentPassword || a.Method == AuthParentDevice
	case actions.KindChildAuthorized:
		return a.Method == AuthChildPassword
	}
	return false
}

// attribution is the outcome of authenticating one command.
type attribution struct {
	token   string
	actorID string
}

// authenticate checks the context against local state and computes the
// attribution for the entry with sequence number seq. Nothing is logged when
// it fails.
func authenticate(tx *db.Tx, auth Auth, kind actions.Kind, seq int64, deviceID, encoded string) (attribution, error) {
	if !auth.allows(kind) {
		return attribution{}, fmt.Errorf("%w: %s cannot issue %s commands", ErrWrongAuthentication, auth.Method, kind)
	}

	switch auth.Method {
	case AuthDevice:
		return attribution{token: DeviceAttribution}, nil

	case AuthParentDevice:
		device, err := tx.GetDevice(deviceID)
		if err != nil {
			return attribution{}, err
		}
		if device == nil {
			return attribution{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		if !device.KeepSignedIn {
			return attribution{}, ErrNotKeptSignedIn
		}
		if err := requireUser(tx, device.CurrentUserID, models.UserTypeParent); err != nil {
			return attribution{}, err
		}
		return attribution{token: DeviceAttribution, actorID: device.CurrentUserID}, nil

	case AuthParentPassword, AuthChildPassword:
		want := models.UserTypeParent
		if auth.Method == AuthChildPassword {
			want = models.UserTypeChild
		}
		if err := requireUser(tx, auth.UserID, want); err != nil {
			return attribution{}, err
		}
		if auth.SecondPasswordHash == "" {
			return attribution{}, fmt.Errorf("%w: missing second password hash", ErrWrongAuthentication)
		}
		return attribution{
			token:   crypto.Attribution(seq, deviceID, auth.SecondPasswordHash, encoded),
			actorID: auth.UserID,
		}, nil
	}
	return attribution{}, fmt.Errorf("%w: unknown method %d", ErrWrongAuthentication, auth.Method)
}

func requireUser(tx *db.Tx, id string, want models.UserType) error {
	if id == "" {
		return fmt.Errorf("%w: no %s signed in", ErrWrongAuthentication, want)
	}
	user, err := tx.GetUser(id)
	if err != nil {
		return err
	}
	if user == nil || user.Type != want {
		return fmt.Errorf("%w: %s is not a known %s", ErrWrongAuthentication, id, want)
	}
	return nil
}
