package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

const deviceColumns = `id, name, model, current_user_id, default_user_id, keep_signed_in, app_version, did_reboot`

func scanDevice(scan func(...any) error) (models.Device, error) {
	var (
		d                 models.Device
		keep, didRebooted int
	)
	err := scan(&d.ID, &d.Name, &d.Model, &d.CurrentUserID, &d.DefaultUserID, &keep, &d.AppVersion, &didRebooted)
	d.KeepSignedIn = keep != 0
	d.DidReboot = didRebooted != 0
	return d, err
}

// GetDevice returns the device with id, or nil when it does not exist.
func (tx *Tx) GetDevice(id string) (*models.Device, error) {
	row := tx.tx.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", id, err)
	}
	return &d, nil
}

// ListDevices returns all devices ordered by id.
func (tx *Tx) ListDevices() ([]models.Device, error) {
	rows, err := tx.tx.Query(`SELECT ` + deviceColumns + ` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	var out []models.Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertDevice adds a device.
func (tx *Tx) InsertDevice(d models.Device) error {
	_, err := tx.tx.Exec(`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Model, d.CurrentUserID, d.DefaultUserID, boolToInt(d.KeepSignedIn), d.AppVersion, boolToInt(d.DidReboot))
	if err != nil {
		return fmt.Errorf("insert device %s: %w", d.ID, err)
	}
	return nil
}

// UpdateDevice overwrites a device.
func (tx *Tx) UpdateDevice(d models.Device) error {
	_, err := tx.tx.Exec(`UPDATE devices SET name = ?, model = ?, current_user_id = ?, default_user_id = ?,
		keep_signed_in = ?, app_version = ?, did_reboot = ? WHERE id = ?`,
		d.Name, d.Model, d.CurrentUserID, d.DefaultUserID, boolToInt(d.KeepSignedIn), d.AppVersion, boolToInt(d.DidReboot), d.ID)
	if err != nil {
		return fmt.Errorf("update device %s: %w", d.ID, err)
	}
	return nil
}

// DeleteDevice removes a device and its installed apps.
func (tx *Tx) DeleteDevice(id string) error {
	if err := tx.DeleteInstalledApps(id); err != nil {
		return err
	}
	if _, err := tx.tx.Exec(`DELETE FROM devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete device %s: %w", id, err)
	}
	return nil
}

// UnassignUserFromDevices clears current and default user references to userID.
func (tx *Tx) UnassignUserFromDevices(userID string) error {
	if _, err := tx.tx.Exec(`UPDATE devices SET current_user_id = '' WHERE current_user_id = ?`, userID); err != nil {
		return fmt.Errorf("unassign current user %s: %w", userID, err)
	}
	if _, err := tx.tx.Exec(`UPDATE devices SET default_user_id = '' WHERE default_user_id = ?`, userID); err != nil {
		return fmt.Errorf("unassign default user %s: %w", userID, err)
	}
	return nil
}
