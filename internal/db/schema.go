package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

const schema = `
-- Key/value device configuration (device id, sequence counter, sync bookkeeping)
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Commands waiting for confirmed upload, ordered by sequence number
CREATE TABLE IF NOT EXISTS pending_sync_actions (
    sequence_number INTEGER PRIMARY KEY,
    encoded_action TEXT NOT NULL,
    kind TEXT NOT NULL,
    action_type TEXT NOT NULL,
    attribution TEXT NOT NULL DEFAULT '',
    actor_id TEXT NOT NULL DEFAULT '',
    frozen_for_upload INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_pending_frozen ON pending_sync_actions(frozen_for_upload, sequence_number);

-- Last integrated server state per resource family and scope
CREATE TABLE IF NOT EXISTS version_tokens (
    family TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL,
    PRIMARY KEY (family, scope)
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    password_hash TEXT NOT NULL DEFAULT '',
    second_password_salt TEXT NOT NULL DEFAULT '',
    timezone TEXT NOT NULL DEFAULT '',
    disable_limits_until INTEGER NOT NULL DEFAULT 0,
    category_for_not_assigned_apps TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user_limit_login_category (
    user_id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    current_user_id TEXT NOT NULL DEFAULT '',
    default_user_id TEXT NOT NULL DEFAULT '',
    keep_signed_in INTEGER NOT NULL DEFAULT 0,
    app_version INTEGER NOT NULL DEFAULT 0,
    did_reboot INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    child_id TEXT NOT NULL,
    title TEXT NOT NULL,
    blocked_minutes_in_week TEXT NOT NULL DEFAULT '',
    extra_time_in_millis INTEGER NOT NULL DEFAULT 0,
    extra_time_day INTEGER NOT NULL DEFAULT -1,
    temporarily_blocked INTEGER NOT NULL DEFAULT 0,
    temporarily_blocked_end_time INTEGER NOT NULL DEFAULT 0,
    parent_category_id TEXT NOT NULL DEFAULT '',
    sort INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_categories_child ON categories(child_id);
CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_category_id);

CREATE TABLE IF NOT EXISTS category_apps (
    category_id TEXT NOT NULL,
    package_name TEXT NOT NULL,
    PRIMARY KEY (category_id, package_name)
);

CREATE TABLE IF NOT EXISTS time_limit_rules (
    id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL,
    apply_to_extra_time_usage INTEGER NOT NULL DEFAULT 0,
    day_mask INTEGER NOT NULL,
    maximum_time_in_millis INTEGER NOT NULL,
    start_minute_of_day INTEGER NOT NULL DEFAULT 0,
    end_minute_of_day INTEGER NOT NULL DEFAULT 1439,
    session_duration_millis INTEGER NOT NULL DEFAULT 0,
    session_pause_millis INTEGER NOT NULL DEFAULT 0,
    per_day INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_rules_category ON time_limit_rules(category_id);

CREATE TABLE IF NOT EXISTS used_times (
    category_id TEXT NOT NULL,
    day_of_epoch INTEGER NOT NULL,
    start_minute_of_day INTEGER NOT NULL DEFAULT 0,
    end_minute_of_day INTEGER NOT NULL DEFAULT 1439,
    used_millis INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (category_id, day_of_epoch, start_minute_of_day, end_minute_of_day)
);

CREATE TABLE IF NOT EXISTS session_durations (
    category_id TEXT NOT NULL,
    max_session_duration INTEGER NOT NULL,
    session_pause_duration INTEGER NOT NULL,
    start_minute_of_day INTEGER NOT NULL,
    end_minute_of_day INTEGER NOT NULL,
    last_usage INTEGER NOT NULL DEFAULT 0,
    last_session_duration INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (category_id, max_session_duration, session_pause_duration, start_minute_of_day, end_minute_of_day)
);

CREATE TABLE IF NOT EXISTS installed_apps (
    device_id TEXT NOT NULL,
    package_name TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    is_launchable INTEGER NOT NULL DEFAULT 0,
    recommendation TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (device_id, package_name)
);

CREATE TABLE IF NOT EXISTS app_activities (
    device_id TEXT NOT NULL,
    package_name TEXT NOT NULL,
    activity_class TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (device_id, package_name, activity_class)
);

-- Sequence numbers already applied, per uploading device. Only filled when
-- the store backs a family on the sync server.
CREATE TABLE IF NOT EXISTS applied_actions (
    device_id TEXT NOT NULL,
    sequence_number INTEGER NOT NULL,
    action_type TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (device_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration is a forward-only schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations lists changes applied on top of databases created by older releases.
var Migrations = []Migration{
	{
		Version:     2,
		Description: "add created_at to pending_sync_actions",
		SQL:         `ALTER TABLE pending_sync_actions ADD COLUMN created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`,
	},
	{
		Version:     3,
		Description: "add applied_actions",
		SQL: `CREATE TABLE IF NOT EXISTS applied_actions (
    device_id TEXT NOT NULL,
    sequence_number INTEGER NOT NULL,
    action_type TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (device_id, sequence_number)
)`,
	},
}

// resetTables lists every table cleared by a full local reset.
var resetTables = []string{
	"config",
	"pending_sync_actions",
	"version_tokens",
	"users",
	"user_limit_login_category",
	"devices",
	"categories",
	"category_apps",
	"time_limit_rules",
	"used_times",
	"session_durations",
	"installed_apps",
	"app_activities",
	"applied_actions",
}
