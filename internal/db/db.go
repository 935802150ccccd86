// Package db is the local store of a sync client: the entity collections the
// reconciler maintains, the pending action log, version tokens, and device
// configuration. All writes go through Transaction, which serializes writers
// across processes sharing one data directory.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

const dbFile = "tlsync.db"

// ErrNotInitialized is returned by Open when the data directory has no database.
var ErrNotInitialized = errors.New("database not found: run 'tlsync init' first")

// DB wraps the database connection
type DB struct {
	conn    *sql.DB
	dataDir string
}

// Tx is a write transaction. Every query method of the store lives on Tx so
// that callers compose reads and writes atomically.
type Tx struct {
	tx        *sql.Tx
	savepoint int
}

// Open opens an existing database and runs any pending migrations
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, dbFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, ErrNotInitialized
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, dataDir: dataDir}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Initialize creates the database if needed and runs migrations
func Initialize(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := openConn(filepath.Join(dataDir, dbFile))
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &DB{conn: conn, dataDir: dataDir}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: transactions must not interleave inside a process.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=2000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	return conn, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// DataDir returns the directory holding the database
func (db *DB) DataDir() string {
	return db.dataDir
}

// withWriteLock runs fn while holding the lock shared with other processes
// using the same data dir.
func (db *DB) withWriteLock(ctx context.Context, fn func() error) error {
	lock := newStoreLock(db.dataDir)
	if err := lock.acquire(ctx, lockWait); err != nil {
		return err
	}
	defer lock.release()
	return fn()
}

// Transaction runs fn inside a single write transaction. If fn returns an
// error or panics nothing it wrote is kept.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return db.withWriteLock(ctx, func() error {
		sqlTx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				sqlTx.Rollback()
			}
		}()

		if err := fn(&Tx{tx: sqlTx}); err != nil {
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		committed = true
		return nil
	})
}

// Savepoint runs fn inside a nested savepoint. An error from fn rolls back
// only the work done inside fn and is returned to the caller.
func (tx *Tx) Savepoint(fn func() error) error {
	tx.savepoint++
	name := "sp" + strconv.Itoa(tx.savepoint)
	if _, err := tx.tx.Exec("SAVEPOINT " + name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		tx.tx.Exec("ROLLBACK TO " + name)
		tx.tx.Exec("RELEASE " + name)
		return err
	}
	if _, err := tx.tx.Exec("RELEASE " + name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// WipeAll clears every table. Used when the server reports this device was removed.
func (tx *Tx) WipeAll() error {
	for _, table := range resetTables {
		if _, err := tx.tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
