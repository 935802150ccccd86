package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	deviceTokenPrefix = "tl_dev_"
	tokenLength       = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// Device is a registered device (without the plaintext token).
type Device struct {
	ID          string
	FamilyID    string
	TokenPrefix string
	Name        string
	FullResync  bool
	RemovedAt   *time.Time
	LastSeenAt  *time.Time
	CreatedAt   time.Time
}

// Removed reports whether the device was removed from its family.
func (d *Device) Removed() bool {
	return d.RemovedAt != nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RegisterDevice stores a new device of the family under id.
// Returns the plaintext auth token (shown once) and the stored record.
func (db *ServerDB) RegisterDevice(familyID, id, name string) (string, *Device, error) {
	f, err := db.GetFamily(familyID)
	if err != nil {
		return "", nil, err
	}
	if f == nil {
		return "", nil, fmt.Errorf("family %s: %w", familyID, ErrNotFound)
	}

	secret := make([]byte, tokenLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate device token: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := deviceTokenPrefix + string(secret)
	prefix := string(secret[:8])

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO devices (id, family_id, token_hash, token_prefix, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, familyID, hashToken(plaintext), prefix, name, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert device: %w", err)
	}

	return plaintext, &Device{
		ID:          id,
		FamilyID:    familyID,
		TokenPrefix: prefix,
		Name:        name,
		CreatedAt:   now,
	}, nil
}

const deviceColumns = `id, family_id, token_prefix, name, full_resync, removed_at, last_seen_at, created_at`

func scanDevice(scan func(...any) error) (*Device, error) {
	d := &Device{}
	var fullResync int
	var removedAt, lastSeenAt sql.NullTime
	if err := scan(&d.ID, &d.FamilyID, &d.TokenPrefix, &d.Name, &fullResync, &removedAt, &lastSeenAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.FullResync = fullResync != 0
	if removedAt.Valid {
		d.RemovedAt = &removedAt.Time
	}
	if lastSeenAt.Valid {
		d.LastSeenAt = &lastSeenAt.Time
	}
	return d, nil
}

// LookupDeviceToken returns the device holding token, removed or not.
// Returns nil, nil if no device ever held it.
func (db *ServerDB) LookupDeviceToken(token string) (*Device, error) {
	d, err := scanDevice(db.conn.QueryRow(
		`SELECT `+deviceColumns+` FROM devices WHERE token_hash = ?`, hashToken(token)).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup device token: %w", err)
	}
	return d, nil
}

// VerifyDeviceToken returns the active device holding token and records
// the time it was last seen. Returns nil, nil for unknown or removed devices.
func (db *ServerDB) VerifyDeviceToken(token string) (*Device, error) {
	d, err := db.LookupDeviceToken(token)
	if err != nil || d == nil {
		return nil, err
	}
	if d.Removed() {
		return nil, nil
	}
	now := time.Now().UTC()
	if _, err := db.conn.Exec(`UPDATE devices SET last_seen_at = ? WHERE id = ?`, now, d.ID); err != nil {
		return nil, fmt.Errorf("touch device: %w", err)
	}
	d.LastSeenAt = &now
	return d, nil
}

// GetDevice returns the device, or nil if not found.
func (db *ServerDB) GetDevice(id string) (*Device, error) {
	d, err := scanDevice(db.conn.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// ListDevices returns every device of a family, oldest first.
func (db *ServerDB) ListDevices(familyID string) ([]*Device, error) {
	rows, err := db.conn.Query(`SELECT `+deviceColumns+` FROM devices WHERE family_id = ? ORDER BY created_at, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: iterate: %w", err)
	}
	return out, nil
}

// RemoveDevice marks a device removed. Its token stops authenticating.
func (db *ServerDB) RemoveDevice(id string) error {
	res, err := db.conn.Exec(`UPDATE devices SET removed_at = ? WHERE id = ? AND removed_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFullResync asks the device to drop its version tokens on its next push.
func (db *ServerDB) MarkFullResync(id string) error {
	res, err := db.conn.Exec(`UPDATE devices SET full_resync = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark full resync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFamilyFullResync flags every device of a family, e.g. after a re-seed.
func (db *ServerDB) MarkFamilyFullResync(familyID string) error {
	if _, err := db.conn.Exec(`UPDATE devices SET full_resync = 1 WHERE family_id = ? AND removed_at IS NULL`, familyID); err != nil {
		return fmt.Errorf("mark family full resync: %w", err)
	}
	return nil
}

// TakeFullResync reports and clears the full resync flag of a device.
func (db *ServerDB) TakeFullResync(id string) (bool, error) {
	res, err := db.conn.Exec(`UPDATE devices SET full_resync = 0 WHERE id = ? AND full_resync = 1`, id)
	if err != nil {
		return false, fmt.Errorf("take full resync: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
