package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Config keys stored in the config table
const (
	KeyOwnDeviceID               = "own_device_id"
	KeyNextSequenceNumber        = "next_sequence_number"
	KeyLastSyncSuccess           = "last_sync_success"
	KeyFullVersionUntil          = "full_version_until"
	KeyServerMessage             = "server_message"
	KeyEnforcementSuspendedUntil = "enforcement_suspended_until"
	KeyNeedsReauth               = "needs_reauth"
)

// GetConfig returns the value stored under key, or "" when unset.
func (tx *Tx) GetConfig(key string) (string, error) {
	var value string
	err := tx.tx.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores value under key.
func (tx *Tx) SetConfig(key, value string) error {
	_, err := tx.tx.Exec(`INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// DeleteConfig removes key.
func (tx *Tx) DeleteConfig(key string) error {
	if _, err := tx.tx.Exec(`DELETE FROM config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete config %s: %w", key, err)
	}
	return nil
}

// GetConfigInt64 returns the integer stored under key, or 0 when unset.
func (tx *Tx) GetConfigInt64(key string) (int64, error) {
	value, err := tx.GetConfig(key)
	if err != nil || value == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse config %s: %w", key, err)
	}
	return n, nil
}

// SetConfigInt64 stores n under key.
func (tx *Tx) SetConfigInt64(key string, n int64) error {
	return tx.SetConfig(key, strconv.FormatInt(n, 10))
}

// OwnDeviceID returns the id of this device, or "" before login.
func (tx *Tx) OwnDeviceID() (string, error) {
	return tx.GetConfig(KeyOwnDeviceID)
}

// NextSequenceNumber reserves and returns the next action sequence number.
// The counter survives log truncation, so numbers are never reused.
func (tx *Tx) NextSequenceNumber() (int64, error) {
	next, err := tx.GetConfigInt64(KeyNextSequenceNumber)
	if err != nil {
		return 0, err
	}
	if next == 0 {
		// Fresh store, or the counter was lost: continue after anything still queued.
		var maxSeq sql.NullInt64
		if err := tx.tx.QueryRow(`SELECT MAX(sequence_number) FROM pending_sync_actions`).Scan(&maxSeq); err != nil {
			return 0, fmt.Errorf("read max sequence number: %w", err)
		}
		next = maxSeq.Int64 + 1
	}
	if err := tx.SetConfigInt64(KeyNextSequenceNumber, next+1); err != nil {
		return 0, err
	}
	return next, nil
}
