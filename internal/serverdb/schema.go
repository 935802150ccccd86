package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 2

const serverSchema = `
-- Families: the unit of sharing. Entity data lives in a per-family store.
CREATE TABLE IF NOT EXISTS families (
    id TEXT PRIMARY KEY,
    full_version_until INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Password material of family members
CREATE TABLE IF NOT EXISTS credentials (
    user_id TEXT PRIMARY KEY,
    family_id TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    second_password_hash TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (family_id) REFERENCES families(id) ON DELETE CASCADE
);

-- Registered devices and their auth tokens
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    family_id TEXT NOT NULL,
    token_hash TEXT UNIQUE NOT NULL,
    token_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    full_resync INTEGER NOT NULL DEFAULT 0,
    removed_at DATETIME,
    last_seen_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (family_id) REFERENCES families(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_devices_family ON devices(family_id);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all server database migrations.
var Migrations = []Migration{
	{
		Version:     2,
		Description: "index devices by family",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_devices_family ON devices(family_id);`,
	},
}
