package models

// UserType distinguishes parents (who authorize changes) from children (who are limited).
type UserType string

const (
	UserTypeParent UserType = "parent"
	UserTypeChild  UserType = "child"
)

// User is a family member known to this device.
type User struct {
	ID                         string   `json:"id"`
	Name                       string   `json:"name"`
	Type                       UserType `json:"type"`
	PasswordHash               string   `json:"password_hash"`
	SecondPasswordSalt         string   `json:"second_password_salt"`
	Timezone                   string   `json:"timezone"`
	DisableLimitsUntil         int64    `json:"disable_limits_until"`
	CategoryForNotAssignedApps string   `json:"category_for_not_assigned_apps"`
}

// Device is a device registered in the family.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Model         string `json:"model"`
	CurrentUserID string `json:"current_user_id"`
	DefaultUserID string `json:"default_user_id"`
	KeepSignedIn  bool   `json:"keep_signed_in"`
	AppVersion    int    `json:"app_version"`
	DidReboot     bool   `json:"did_reboot"`
}

// Category groups apps of one child and carries the limits applied to them.
type Category struct {
	ID                        string `json:"id"`
	ChildID                   string `json:"child_id"`
	Title                     string `json:"title"`
	BlockedMinutesInWeek      string `json:"blocked_minutes_in_week"`
	ExtraTimeInMillis         int64  `json:"extra_time_in_millis"`
	ExtraTimeDay              int    `json:"extra_time_day"`
	TemporarilyBlocked        bool   `json:"temporarily_blocked"`
	TemporarilyBlockedEndTime int64  `json:"temporarily_blocked_end_time"`
	ParentCategoryID          string `json:"parent_category_id"`
	Sort                      int    `json:"sort"`
}

// CategoryApp assigns an app package to a category.
type CategoryApp struct {
	CategoryID  string `json:"category_id"`
	PackageName string `json:"package_name"`
}

// TimeLimitRule limits the usage of a category within a window of the day.
type TimeLimitRule struct {
	ID                    string `json:"id"`
	CategoryID            string `json:"category_id"`
	ApplyToExtraTimeUsage bool   `json:"apply_to_extra_time_usage"`
	DayMask               int    `json:"day_mask"`
	MaximumTimeInMillis   int64  `json:"maximum_time_in_millis"`
	StartMinuteOfDay      int    `json:"start_minute_of_day"`
	EndMinuteOfDay        int    `json:"end_minute_of_day"`
	SessionDurationMillis int64  `json:"session_duration_millis"`
	SessionPauseMillis    int64  `json:"session_pause_millis"`
	PerDay                bool   `json:"per_day"`
}

// UsedTimeItem is the time counted for a category on one day within one slot.
type UsedTimeItem struct {
	CategoryID       string `json:"category_id"`
	DayOfEpoch       int    `json:"day_of_epoch"`
	UsedMillis       int64  `json:"used_millis"`
	StartMinuteOfDay int    `json:"start_minute_of_day"`
	EndMinuteOfDay   int    `json:"end_minute_of_day"`
}

// SessionDuration tracks the running session of a category for one session-limit slot.
type SessionDuration struct {
	CategoryID           string `json:"category_id"`
	MaxSessionDuration   int64  `json:"max_session_duration"`
	SessionPauseDuration int64  `json:"session_pause_duration"`
	StartMinuteOfDay     int    `json:"start_minute_of_day"`
	EndMinuteOfDay       int    `json:"end_minute_of_day"`
	LastUsage            int64  `json:"last_usage"`
	LastSessionDuration  int64  `json:"last_session_duration"`
}

// UserLimitLoginCategory is the per-user login-limiting category association.
type UserLimitLoginCategory struct {
	UserID     string `json:"user_id"`
	CategoryID string `json:"category_id"`
}

// InstalledApp is an app installed on a device.
type InstalledApp struct {
	DeviceID       string `json:"device_id"`
	PackageName    string `json:"package_name"`
	Title          string `json:"title"`
	IsLaunchable   bool   `json:"is_launchable"`
	Recommendation string `json:"recommendation"`
}

// AppActivity is an activity of an installed app.
type AppActivity struct {
	DeviceID      string `json:"device_id"`
	PackageName   string `json:"package_name"`
	ActivityClass string `json:"activity_class"`
	Title         string `json:"title"`
}

// DayOfEpoch counts days since 1970-01-01 in the device's local calendar.
type DayOfEpoch = int
