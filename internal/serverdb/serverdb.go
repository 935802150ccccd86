// Package serverdb is the account database of the reference sync server:
// families, member password material and registered devices. Entity data of
// a family is kept in a separate store opened per family.
package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ServerDB is the server's account database.
type ServerDB struct {
	conn *sql.DB
	path string
}

// pragmas favour one writer with concurrent readers; the server funnels all
// writes through a single connection.
var pragmas = []struct {
	stmt     string
	required bool
}{
	{"PRAGMA journal_mode=WAL", true},
	{"PRAGMA busy_timeout=5000", true},
	{"PRAGMA synchronous=NORMAL", false},
	{"PRAGMA foreign_keys=ON", true},
}

// Open opens or creates the database at dbPath and brings its schema up to date.
func Open(dbPath string) (*ServerDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &ServerDB{conn: conn, path: dbPath}
	if err := db.setup(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *ServerDB) setup() error {
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p.stmt); err != nil && p.required {
			return fmt.Errorf("%s: %w", p.stmt, err)
		}
	}
	if _, err := db.conn.Exec(serverSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close folds the WAL back into the main file and closes the database.
func (db *ServerDB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// RunMigrations applies each migration newer than the stored schema version
// in its own transaction and returns how many ran.
func (db *ServerDB) RunMigrations() (int, error) {
	current := db.getSchemaVersion()
	ran := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		err := db.withTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.SQL); err != nil {
				return err
			}
			return setSchemaVersion(tx, m.Version)
		})
		if err != nil {
			return ran, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		ran++
	}
	if current < ServerSchemaVersion {
		if err := setSchemaVersion(db.conn, ServerSchemaVersion); err != nil {
			return ran, err
		}
	}
	return ran, nil
}

func (db *ServerDB) getSchemaVersion() int {
	var v int
	if err := db.conn.QueryRow("SELECT CAST(value AS INTEGER) FROM schema_info WHERE key = 'version'").Scan(&v); err != nil {
		return 0
	}
	return v
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func setSchemaVersion(e execer, version int) error {
	_, err := e.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`, strconv.Itoa(version))
	return err
}

func (db *ServerDB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
