package models

// Family names one independently versioned group of entities.
type Family string

const (
	FamilyUsers            Family = "users"
	FamilyDevices          Family = "devices"
	FamilyInstalledApps    Family = "installed_apps"     // scoped by device id
	FamilyCategoryBase     Family = "category_base"      // scoped by category id
	FamilyCategoryApps     Family = "category_apps"      // scoped by category id
	FamilyCategoryRules    Family = "category_rules"     // scoped by category id
	FamilyCategoryUsedTime Family = "category_used_time" // scoped by category id
)

// VersionToken is the last server state integrated for one family and scope.
type VersionToken struct {
	Family Family `json:"family"`
	Scope  string `json:"scope"`
	Token  string `json:"token"`
}

// CategoryDataStatus carries the per-category tokens known to the client.
// An empty token means "never synced".
type CategoryDataStatus struct {
	Base         string `json:"base"`
	AssignedApps string `json:"assigned_apps"`
	Rules        string `json:"rules"`
	UsedTime     string `json:"used_time"`
}

// ClientDataStatus is the body of a pull request.
type ClientDataStatus struct {
	Devices     string                        `json:"devices"`
	Users       string                        `json:"users"`
	Apps        map[string]string             `json:"apps"`
	Categories  map[string]CategoryDataStatus `json:"categories"`
	ClientLevel int                           `json:"client_level"`
}

// ServerUser is a user as delivered by the server, including the login-limiting category.
type ServerUser struct {
	User
	LimitLoginCategory string `json:"limit_login_category,omitempty"`
}

// ServerUserList is the full user family.
type ServerUserList struct {
	Version string       `json:"version"`
	Data    []ServerUser `json:"data"`
}

// ServerDeviceList is the full device family.
type ServerDeviceList struct {
	Version string   `json:"version"`
	Data    []Device `json:"data"`
}

// ServerInstalledAppsData replaces the installed apps of one device.
type ServerInstalledAppsData struct {
	DeviceID   string         `json:"device_id"`
	Version    string         `json:"version"`
	Apps       []InstalledApp `json:"apps"`
	Activities []AppActivity  `json:"activities"`
}

// ServerCategoryBaseData is the base record of one category.
type ServerCategoryBaseData struct {
	Version  string   `json:"version"`
	Category Category `json:"category"`
}

// ServerCategoryAssignedApps is the full app list of one category.
type ServerCategoryAssignedApps struct {
	CategoryID   string   `json:"category_id"`
	Version      string   `json:"version"`
	PackageNames []string `json:"package_names"`
}

// ServerTimeLimitRules is the full rule list of one category.
type ServerTimeLimitRules struct {
	CategoryID string          `json:"category_id"`
	Version    string          `json:"version"`
	Rules      []TimeLimitRule `json:"rules"`
}

// ServerUsedTimeData is the full used time state of one category.
type ServerUsedTimeData struct {
	CategoryID       string            `json:"category_id"`
	Version          string            `json:"version"`
	UsedTimes        []UsedTimeItem    `json:"used_times"`
	SessionDurations []SessionDuration `json:"session_durations"`
}

// ServerDataStatus is the body of a pull response. Omitted families are unchanged.
type ServerDataStatus struct {
	DeviceList             *ServerDeviceList            `json:"device_list,omitempty"`
	InstalledApps          []ServerInstalledAppsData    `json:"installed_apps,omitempty"`
	RemovedCategories      []string                     `json:"removed_categories,omitempty"`
	CategoryBase           []ServerCategoryBaseData     `json:"category_base,omitempty"`
	CategoryAssignedApps   []ServerCategoryAssignedApps `json:"category_assigned_apps,omitempty"`
	CategoryTimeLimitRules []ServerTimeLimitRules       `json:"category_time_limit_rules,omitempty"`
	CategoryUsedTimes      []ServerUsedTimeData         `json:"category_used_times,omitempty"`
	UserList               *ServerUserList              `json:"user_list,omitempty"`
	FullVersionUntil       int64                        `json:"full_version_until"`
	Message                string                       `json:"message,omitempty"`
}
