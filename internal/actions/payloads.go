package actions

import (
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// AddUsedTime counts usage of one category on one day.
type AddUsedTime struct {
	CategoryID          string `json:"category_id"`
	DayOfEpoch          int    `json:"day_of_epoch"`
	TimeToAdd           int64  `json:"time_to_add"`
	ExtraTimeToSubtract int64  `json:"extra_time_to_subtract"`
}

func (*AddUsedTime) ActionType() Type { return TypeAddUsedTime }

func (a *AddUsedTime) Validate() error {
	if a.CategoryID == "" {
		return errors.New("category id is required")
	}
	if a.DayOfEpoch < 0 {
		return errors.New("day of epoch must not be negative")
	}
	if a.TimeToAdd < 0 || a.ExtraTimeToSubtract < 0 {
		return errors.New("time values must not be negative")
	}
	return nil
}

// CountingSlot is an additional window of the day whose usage is counted separately.
type CountingSlot struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SessionDurationLimit is the session-limit configuration the usage was counted under.
type SessionDurationLimit struct {
	StartMinuteOfDay     int   `json:"start_minute_of_day"`
	EndMinuteOfDay       int   `json:"end_minute_of_day"`
	MaxSessionDuration   int64 `json:"max_session_duration"`
	SessionPauseDuration int64 `json:"session_pause_duration"`
}

// AddUsedTimeItem is the per-category part of AddUsedTimeV2.
type AddUsedTimeItem struct {
	CategoryID              string                 `json:"category_id"`
	TimeToAdd               int64                  `json:"time_to_add"`
	ExtraTimeToSubtract     int64                  `json:"extra_time_to_subtract"`
	AdditionalCountingSlots []CountingSlot         `json:"additional_counting_slots,omitempty"`
	SessionDurationLimits   []SessionDurationLimit `json:"session_duration_limits,omitempty"`
}

// AddUsedTimeV2 counts usage of several categories on one day.
// TrustedTimestamp is zero when the device had no trusted clock.
type AddUsedTimeV2 struct {
	DayOfEpoch       int               `json:"day_of_epoch"`
	Items            []AddUsedTimeItem `json:"items"`
	TrustedTimestamp int64             `json:"trusted_timestamp"`
}

func (*AddUsedTimeV2) ActionType() Type { return TypeAddUsedTimeV2 }

func (a *AddUsedTimeV2) Validate() error {
	if a.DayOfEpoch < 0 {
		return errors.New("day of epoch must not be negative")
	}
	if len(a.Items) == 0 {
		return errors.New("at least one item is required")
	}
	if a.TrustedTimestamp < 0 {
		return errors.New("trusted timestamp must not be negative")
	}
	seen := make(map[string]bool, len(a.Items))
	for _, item := range a.Items {
		if item.CategoryID == "" {
			return errors.New("item category id is required")
		}
		if seen[item.CategoryID] {
			return fmt.Errorf("duplicate item for category %s", item.CategoryID)
		}
		seen[item.CategoryID] = true
		if item.TimeToAdd < 0 || item.ExtraTimeToSubtract < 0 {
			return errors.New("time values must not be negative")
		}
	}
	return nil
}

// UpdateDeviceStatus reports status changes of this device.
type UpdateDeviceStatus struct {
	AppVersion int  `json:"app_version"`
	DidReboot  bool `json:"did_reboot"`
}

func (*UpdateDeviceStatus) ActionType() Type { return TypeUpdateDeviceStatus }

func (a *UpdateDeviceStatus) Validate() error {
	if a.AppVersion < 0 {
		return errors.New("app version must not be negative")
	}
	return nil
}

// CreateCategory adds a category to a child.
type CreateCategory struct {
	CategoryID string `json:"category_id"`
	ChildID    string `json:"child_id"`
	Title      string `json:"title"`
}

func (*CreateCategory) ActionType() Type { return TypeCreateCategory }

func (a *CreateCategory) Validate() error {
	if a.CategoryID == "" || a.ChildID == "" {
		return errors.New("category id and child id are required")
	}
	if a.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// DeleteCategory removes a category and everything it owns.
type DeleteCategory struct {
	CategoryID string `json:"category_id"`
}

func (*DeleteCategory) ActionType() Type { return TypeDeleteCategory }

func (a *DeleteCategory) Validate() error {
	if a.CategoryID == "" {
		return errors.New("category id is required")
	}
	return nil
}

// UpdateCategoryTitle renames a category.
type UpdateCategoryTitle struct {
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
}

func (*UpdateCategoryTitle) ActionType() Type { return TypeUpdateCategoryTitle }

func (a *UpdateCategoryTitle) Validate() error {
	if a.CategoryID == "" || a.Title == "" {
		return errors.New("category id and title are required")
	}
	return nil
}

// AddCategoryApps assigns packages to a category.
type AddCategoryApps struct {
	CategoryID   string   `json:"category_id"`
	PackageNames []string `json:"package_names"`
}

func (*AddCategoryApps) ActionType() Type { return TypeAddCategoryApps }

func (a *AddCategoryApps) Validate() error {
	if a.CategoryID == "" || len(a.PackageNames) == 0 {
		return errors.New("category id and package names are required")
	}
	return nil
}

// RemoveCategoryApps unassigns packages from a category.
type RemoveCategoryApps struct {
	CategoryID   string   `json:"category_id"`
	PackageNames []string `json:"package_names"`
}

func (*RemoveCategoryApps) ActionType() Type { return TypeRemoveCategoryApps }

func (a *RemoveCategoryApps) Validate() error {
	if a.CategoryID == "" || len(a.PackageNames) == 0 {
		return errors.New("category id and package names are required")
	}
	return nil
}

// CreateTimeLimitRule adds a rule to a category.
type CreateTimeLimitRule struct {
	Rule models.TimeLimitRule `json:"rule"`
}

func (*CreateTimeLimitRule) ActionType() Type { return TypeCreateTimeLimitRule }

func (a *CreateTimeLimitRule) Validate() error { return validateRule(a.Rule) }

// UpdateTimeLimitRule replaces a rule.
type UpdateTimeLimitRule struct {
	Rule models.TimeLimitRule `json:"rule"`
}

func (*UpdateTimeLimitRule) ActionType() Type { return TypeUpdateTimeLimitRule }

func (a *UpdateTimeLimitRule) Validate() error { return validateRule(a.Rule) }

func validateRule(r models.TimeLimitRule) error {
	if r.ID == "" || r.CategoryID == "" {
		return errors.New("rule id and category id are required")
	}
	if r.DayMask < 0 || r.DayMask > 127 {
		return fmt.Errorf("invalid day mask %d", r.DayMask)
	}
	if r.StartMinuteOfDay < 0 || r.EndMinuteOfDay > 24*60-1 || r.StartMinuteOfDay > r.EndMinuteOfDay {
		return fmt.Errorf("invalid window %d-%d", r.StartMinuteOfDay, r.EndMinuteOfDay)
	}
	if r.MaximumTimeInMillis < 0 || r.SessionDurationMillis < 0 || r.SessionPauseMillis < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// DeleteTimeLimitRule removes a rule.
type DeleteTimeLimitRule struct {
	RuleID string `json:"rule_id"`
}

func (*DeleteTimeLimitRule) ActionType() Type { return TypeDeleteTimeLimitRule }

func (a *DeleteTimeLimitRule) Validate() error {
	if a.RuleID == "" {
		return errors.New("rule id is required")
	}
	return nil
}

// IncrementCategoryExtraTime grants extra time to a category.
// ExtraTimeDay of -1 means the extra time is not bound to a day.
type IncrementCategoryExtraTime struct {
	CategoryID     string `json:"category_id"`
	AddedExtraTime int64  `json:"added_extra_time"`
	ExtraTimeDay   int    `json:"extra_time_day"`
}

func (*IncrementCategoryExtraTime) ActionType() Type { return TypeIncrementCategoryExtraTime }

func (a *IncrementCategoryExtraTime) Validate() error {
	if a.CategoryID == "" {
		return errors.New("category id is required")
	}
	if a.AddedExtraTime <= 0 {
		return errors.New("added extra time must be positive")
	}
	if a.ExtraTimeDay < -1 {
		return fmt.Errorf("invalid extra time day %d", a.ExtraTimeDay)
	}
	return nil
}

// SetUserLimitLoginCategory sets or clears (empty CategoryID) the login-limiting category of a user.
type SetUserLimitLoginCategory struct {
	UserID     string `json:"user_id"`
	CategoryID string `json:"category_id"`
}

func (*SetUserLimitLoginCategory) ActionType() Type { return TypeSetUserLimitLoginCategory }

func (a *SetUserLimitLoginCategory) Validate() error {
	if a.UserID == "" {
		return errors.New("user id is required")
	}
	return nil
}

// RemoveUser deletes a user together with the categories it owns.
type RemoveUser struct {
	UserID string `json:"user_id"`
}

func (*RemoveUser) ActionType() Type { return TypeRemoveUser }

func (a *RemoveUser) Validate() error {
	if a.UserID == "" {
		return errors.New("user id is required")
	}
	return nil
}

// SetKeepSignedIn toggles whether the current user of a device stays signed in.
type SetKeepSignedIn struct {
	DeviceID     string `json:"device_id"`
	KeepSignedIn bool   `json:"keep_signed_in"`
}

func (*SetKeepSignedIn) ActionType() Type { return TypeSetKeepSignedIn }

func (a *SetKeepSignedIn) Validate() error {
	if a.DeviceID == "" {
		return errors.New("device id is required")
	}
	return nil
}

// ChildSignIn makes the authenticated child the current user of this device.
type ChildSignIn struct{}

func (*ChildSignIn) ActionType() Type { return TypeChildSignIn }

func (*ChildSignIn) Validate() error { return nil }
