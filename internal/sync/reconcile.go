package sync

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/dispatch"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// reconciler merges one server snapshot into the local collections. The
// caller runs it inside a single transaction so either every included
// family and its token is integrated or none is.
type reconciler struct {
	tx       *db.Tx
	deviceID string
}

// reconcile applies s. Families omitted from s are left untouched.
func reconcile(tx *db.Tx, deviceID string, s *models.ServerDataStatus) error {
	r := &reconciler{tx: tx, deviceID: deviceID}
	steps := []func(*models.ServerDataStatus) error{
		r.users,
		r.devices,
		r.installedApps,
		r.removedCategories,
		r.categoryBase,
		r.categoryApps,
		r.rules,
		r.usedTimes,
		r.loginCategories,
		r.extras,
	}
	for _, step := range steps {
		if err := step(s); err != nil {
			return err
		}
	}
	return nil
}

// remove routes a delete through the local dispatch table inside a
// savepoint, so a failed cascade leaves nothing half removed.
func (r *reconciler) remove(p actions.Payload) error {
	return r.tx.Savepoint(func() error {
		return dispatch.Apply(r.tx, actions.New(p), dispatch.Context{DeviceID: r.deviceID})
	})
}

func (r *reconciler) users(s *models.ServerDataStatus) error {
	if s.UserList == nil {
		return nil
	}
	local, err := r.tx.ListUsers()
	if err != nil {
		return err
	}
	byID := make(map[string]models.User, len(local))
	for _, u := range local {
		byID[u.ID] = u
	}

	seen := make(map[string]bool, len(s.UserList.Data))
	for _, incoming := range s.UserList.Data {
		u := incoming.User
		seen[u.ID] = true
		existing, ok := byID[u.ID]
		switch {
		case !ok:
			err = r.tx.InsertUser(u)
		case existing != u:
			err = r.tx.UpdateUser(u)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("merge user %s: %w", u.ID, err)
		}
	}
	for _, u := range local {
		if seen[u.ID] {
			continue
		}
		if err := r.remove(&actions.RemoveUser{UserID: u.ID}); err != nil {
			return fmt.Errorf("remove user %s: %w", u.ID, err)
		}
	}
	return r.tx.SetVersionToken(models.FamilyUsers, "", s.UserList.Version)
}

func (r *reconciler) devices(s *models.ServerDataStatus) error {
	if s.DeviceList == nil {
		return nil
	}
	local, err := r.tx.ListDevices()
	if err != nil {
		return err
	}
	byID := make(map[string]models.Device, len(local))
	for _, d := range local {
		byID[d.ID] = d
	}

	seen := make(map[string]bool, len(s.DeviceList.Data))
	for _, d := range s.DeviceList.Data {
		seen[d.ID] = true
		for _, userID := range []string{d.CurrentUserID, d.DefaultUserID} {
			if err := r.requireUser(models.FamilyDevices, d.ID, userID); err != nil {
				return err
			}
		}

		existing, ok := byID[d.ID]
		switch {
		case !ok:
			err = r.tx.InsertDevice(d)
		case existing != d:
			err = r.tx.UpdateDevice(d)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("merge device %s: %w", d.ID, err)
		}

		// A new user at this device ends any suspension of enforcement.
		if d.ID == r.deviceID && ok && existing.CurrentUserID != d.CurrentUserID {
			if err := r.tx.DeleteConfig(db.KeyEnforcementSuspendedUntil); err != nil {
				return err
			}
		}
	}
	for _, d := range local {
		if seen[d.ID] {
			continue
		}
		if err := r.tx.DeleteDevice(d.ID); err != nil {
			return err
		}
		if err := r.tx.DeleteVersionTokens(d.ID, models.FamilyInstalledApps); err != nil {
			return err
		}
	}
	return r.tx.SetVersionToken(models.FamilyDevices, "", s.DeviceList.Version)
}

// installedApps replaces the app list of each listed device wholesale.
func (r *reconciler) installedApps(s *models.ServerDataStatus) error {
	for _, item := range s.InstalledApps {
		device, err := r.tx.GetDevice(item.DeviceID)
		if err != nil {
			return err
		}
		if device == nil {
			return &ConsistencyError{Family: models.FamilyInstalledApps, EntityID: item.DeviceID, MissingParent: "device " + item.DeviceID}
		}
		if err := r.tx.ReplaceInstalledApps(item.DeviceID, item.Apps, item.Activities); err != nil {
			return err
		}
		if err := r.tx.SetVersionToken(models.FamilyInstalledApps, item.DeviceID, item.Version); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) removedCategories(s *models.ServerDataStatus) error {
	for _, id := range s.RemovedCategories {
		if err := r.remove(&actions.DeleteCategory{CategoryID: id}); err != nil {
			return fmt.Errorf("remove category %s: %w", id, err)
		}
	}
	return nil
}

func (r *reconciler) categoryBase(s *models.ServerDataStatus) error {
	for _, item := range s.CategoryBase {
		c := item.Category
		if err := r.requireUser(models.FamilyCategoryBase, c.ID, c.ChildID); err != nil {
			return err
		}
		existing, err := r.tx.GetCategory(c.ID)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			err = r.tx.InsertCategory(c)
		case *existing != c:
			err = r.tx.UpdateCategory(c)
		}
		if err != nil {
			return fmt.Errorf("merge category %s: %w", c.ID, err)
		}
		if err := r.tx.SetVersionToken(models.FamilyCategoryBase, c.ID, item.Version); err != nil {
			return err
		}
	}

	// Parents may be listed after their subcategories, so check once all are in.
	for _, item := range s.CategoryBase {
		parent := item.Category.ParentCategoryID
		if parent == "" {
			continue
		}
		if err := r.requireCategory(models.FamilyCategoryBase, item.Category.ID, parent); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) categoryApps(s *models.ServerDataStatus) error {
	for _, item := range s.CategoryAssignedApps {
		if err := r.requireCategory(models.FamilyCategoryApps, item.CategoryID, item.CategoryID); err != nil {
			return err
		}
		if err := r.tx.ReplaceCategoryApps(item.CategoryID, item.PackageNames); err != nil {
			return err
		}
		if err := r.tx.SetVersionToken(models.FamilyCategoryApps, item.CategoryID, item.Version); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) rules(s *models.ServerDataStatus) error {
	for _, item := range s.CategoryTimeLimitRules {
		if err := r.requireCategory(models.FamilyCategoryRules, item.CategoryID, item.CategoryID); err != nil {
			return err
		}
		local, err := r.tx.ListRules(item.CategoryID)
		if err != nil {
			return err
		}
		byID := make(map[string]models.TimeLimitRule, len(local))
		for _, rule := range local {
			byID[rule.ID] = rule
		}

		seen := make(map[string]bool, len(item.Rules))
		for _, rule := range item.Rules {
			rule.CategoryID = item.CategoryID
			seen[rule.ID] = true
			existing, ok := byID[rule.ID]
			switch {
			case !ok:
				err = r.tx.InsertRule(rule)
			case existing != rule:
				err = r.tx.UpdateRule(rule)
			}
			if err != nil {
				return fmt.Errorf("merge rule %s: %w", rule.ID, err)
			}
		}
		for _, rule := range local {
			if !seen[rule.ID] {
				if err := r.tx.DeleteRule(rule.ID); err != nil {
					return err
				}
			}
		}
		if err := r.tx.SetVersionToken(models.FamilyCategoryRules, item.CategoryID, item.Version); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) usedTimes(s *models.ServerDataStatus) error {
	for _, item := range s.CategoryUsedTimes {
		if err := r.requireCategory(models.FamilyCategoryUsedTime, item.CategoryID, item.CategoryID); err != nil {
			return err
		}
		if err := r.tx.ReplaceUsedTimes(item.CategoryID, item.UsedTimes, item.SessionDurations); err != nil {
			return err
		}
		if err := r.tx.SetVersionToken(models.FamilyCategoryUsedTime, item.CategoryID, item.Version); err != nil {
			return err
		}
	}
	return nil
}

// loginCategories re-derives the per-user login-limiting category once
// users and categories are both merged.
func (r *reconciler) loginCategories(s *models.ServerDataStatus) error {
	if s.UserList == nil {
		return nil
	}
	for _, u := range s.UserList.Data {
		if u.LimitLoginCategory != "" {
			if err := r.requireCategory(models.FamilyUsers, u.ID, u.LimitLoginCategory); err != nil {
				return err
			}
		}
		if err := r.tx.SetUserLimitLoginCategory(u.ID, u.LimitLoginCategory); err != nil {
			return err
		}
	}
	return nil
}

// extras are applied on every pull regardless of version tokens.
func (r *reconciler) extras(s *models.ServerDataStatus) error {
	if err := r.tx.SetConfigInt64(db.KeyFullVersionUntil, s.FullVersionUntil); err != nil {
		return err
	}
	if s.Message == "" {
		return r.tx.DeleteConfig(db.KeyServerMessage)
	}
	return r.tx.SetConfig(db.KeyServerMessage, s.Message)
}

func (r *reconciler) requireUser(family models.Family, entityID, userID string) error {
	if userID == "" {
		return nil
	}
	u, err := r.tx.GetUser(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return &ConsistencyError{Family: family, EntityID: entityID, MissingParent: "user " + userID}
	}
	return nil
}

func (r *reconciler) requireCategory(family models.Family, entityID, categoryID string) error {
	c, err := r.tx.GetCategory(categoryID)
	if err != nil {
		return err
	}
	if c == nil {
		return &ConsistencyError{Family: family, EntityID: entityID, MissingParent: "category " + categoryID}
	}
	return nil
}
