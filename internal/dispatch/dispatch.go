// Package dispatch applies commands to the local entity collections. Locally
// issued commands and deletes coming from server snapshots both go through
// Apply, so dependent cleanup is identical for either source.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
)

// ErrMissingEntity is returned when a command references an entity the local store does not have.
var ErrMissingEntity = errors.New("referenced entity does not exist")

// Context describes where a command is applied.
type Context struct {
	// DeviceID is this device.
	DeviceID string
	// ActorID is the authorizing user, empty for device commands and snapshot deletes.
	ActorID string
}

type handler func(tx *db.Tx, p actions.Payload, c Context) error

// on adapts a typed handler to the table signature.
func on[P actions.Payload](fn func(*db.Tx, P, Context) error) handler {
	return func(tx *db.Tx, p actions.Payload, c Context) error {
		typed, ok := p.(P)
		if !ok {
			return fmt.Errorf("payload %T does not match handler", p)
		}
		return fn(tx, typed, c)
	}
}

var table = map[actions.Type]handler{
	actions.TypeAddUsedTime:        on(addUsedTime),
	actions.TypeAddUsedTimeV2:      on(addUsedTimeV2),
	actions.TypeUpdateDeviceStatus: on(updateDeviceStatus),

	actions.TypeCreateCategory:             on(createCategory),
	actions.TypeDeleteCategory:             on(deleteCategory),
	actions.TypeUpdateCategoryTitle:        on(updateCategoryTitle),
	actions.TypeAddCategoryApps:            on(addCategoryApps),
	actions.TypeRemoveCategoryApps:         on(removeCategoryApps),
	actions.TypeCreateTimeLimitRule:        on(createRule),
	actions.TypeUpdateTimeLimitRule:        on(updateRule),
	actions.TypeDeleteTimeLimitRule:        on(deleteRule),
	actions.TypeIncrementCategoryExtraTime: on(incrementExtraTime),
	actions.TypeSetUserLimitLoginCategory:  on(setUserLimitLoginCategory),
	actions.TypeRemoveUser:                 on(removeUser),
	actions.TypeSetKeepSignedIn:            on(setKeepSignedIn),

	actions.TypeChildSignIn: on(childSignIn),
}

// Apply dispatches a to its handler inside tx.
func Apply(tx *db.Tx, a actions.Action, c Context) error {
	h, ok := table[a.Type()]
	if !ok {
		return fmt.Errorf("dispatch: %w: %s", actions.ErrUnknownType, a.Type())
	}
	if err := h(tx, a.Payload, c); err != nil {
		return fmt.Errorf("dispatch %s: %w", a.Type(), err)
	}
	return nil
}

func missing(what, id string) error {
	return fmt.Errorf("%w: %s %s", ErrMissingEntity, what, id)
}
