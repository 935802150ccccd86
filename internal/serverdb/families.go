package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Family is a group of users and devices sharing one data set.
type Family struct {
	ID               string
	FullVersionUntil int64
	Message          string
	CreatedAt        time.Time
}

// CreateFamily inserts a family, or updates the extras of an existing one.
func (db *ServerDB) CreateFamily(id string, fullVersionUntil int64, message string) error {
	if id == "" {
		return fmt.Errorf("family id is required")
	}
	_, err := db.conn.Exec(`
		INSERT INTO families (id, full_version_until, message, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_version_until = excluded.full_version_until, message = excluded.message`,
		id, fullVersionUntil, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert family: %w", err)
	}
	return nil
}

// GetFamily returns the family, or nil if not found.
func (db *ServerDB) GetFamily(id string) (*Family, error) {
	f := &Family{}
	err := db.conn.QueryRow(`SELECT id, full_version_until, message, created_at FROM families WHERE id = ?`, id).
		Scan(&f.ID, &f.FullVersionUntil, &f.Message, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

// SetFamilyMessage sets the operator message delivered with every pull.
func (db *ServerDB) SetFamilyMessage(id, message string) error {
	res, err := db.conn.Exec(`UPDATE families SET message = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("set family message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("family %s: %w", id, ErrNotFound)
	}
	return nil
}
