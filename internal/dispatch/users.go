package dispatch

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

func setUserLimitLoginCategory(tx *db.Tx, p *actions.SetUserLimitLoginCategory, _ Context) error {
	user, err := tx.GetUser(p.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return missing("user", p.UserID)
	}
	if user.Type != models.UserTypeParent {
		return fmt.Errorf("login category can only limit parents, %s is a %s", user.ID, user.Type)
	}
	if p.CategoryID != "" {
		if _, err := requireCategory(tx, p.CategoryID); err != nil {
			return err
		}
	}
	return tx.SetUserLimitLoginCategory(p.UserID, p.CategoryID)
}

// removeUser deletes the categories the user owns through the category
// delete path, signs the user out of every device and drops the user.
func removeUser(tx *db.Tx, p *actions.RemoveUser, c Context) error {
	user, err := tx.GetUser(p.UserID)
	if err != nil || user == nil {
		return err
	}
	owned, err := tx.ListCategoriesOfChild(user.ID)
	if err != nil {
		return err
	}
	for _, cat := range owned {
		if err := deleteCategory(tx, &actions.DeleteCategory{CategoryID: cat.ID}, c); err != nil {
			return err
		}
	}
	if err := tx.UnassignUserFromDevices(user.ID); err != nil {
		return err
	}
	return tx.DeleteUser(user.ID)
}

func setKeepSignedIn(tx *db.Tx, p *actions.SetKeepSignedIn, _ Context) error {
	device, err := tx.GetDevice(p.DeviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return missing("device", p.DeviceID)
	}
	device.KeepSignedIn = p.KeepSignedIn
	return tx.UpdateDevice(*device)
}

// childSignIn makes the authorizing child the current user of this device.
func childSignIn(tx *db.Tx, _ *actions.ChildSignIn, c Context) error {
	child, err := tx.GetUser(c.ActorID)
	if err != nil {
		return err
	}
	if child == nil || child.Type != models.UserTypeChild {
		return missing("child", c.ActorID)
	}
	device, err := tx.GetDevice(c.DeviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return missing("device", c.DeviceID)
	}
	device.CurrentUserID = child.ID
	return tx.UpdateDevice(*device)
}
