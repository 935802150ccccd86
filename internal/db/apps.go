package db

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// ListInstalledApps returns the apps installed on a device.
func (tx *Tx) ListInstalledApps(deviceID string) ([]models.InstalledApp, error) {
	rows, err := tx.tx.Query(`SELECT device_id, package_name, title, is_launchable, recommendation
		FROM installed_apps WHERE device_id = ? ORDER BY package_name`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list installed apps of %s: %w", deviceID, err)
	}
	defer rows.Close()
	var out []models.InstalledApp
	for rows.Next() {
		var (
			a          models.InstalledApp
			launchable int
		)
		if err := rows.Scan(&a.DeviceID, &a.PackageName, &a.Title, &launchable, &a.Recommendation); err != nil {
			return nil, err
		}
		a.IsLaunchable = launchable != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAppActivities returns the app activities known for a device.
func (tx *Tx) ListAppActivities(deviceID string) ([]models.AppActivity, error) {
	rows, err := tx.tx.Query(`SELECT device_id, package_name, activity_class, title
		FROM app_activities WHERE device_id = ? ORDER BY package_name, activity_class`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list activities of %s: %w", deviceID, err)
	}
	defer rows.Close()
	var out []models.AppActivity
	for rows.Next() {
		var a models.AppActivity
		if err := rows.Scan(&a.DeviceID, &a.PackageName, &a.ActivityClass, &a.Title); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteInstalledApps removes the installed apps and activities of a device.
func (tx *Tx) DeleteInstalledApps(deviceID string) error {
	if _, err := tx.tx.Exec(`DELETE FROM installed_apps WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete installed apps of %s: %w", deviceID, err)
	}
	if _, err := tx.tx.Exec(`DELETE FROM app_activities WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete activities of %s: %w", deviceID, err)
	}
	return nil
}

// ReplaceInstalledApps deletes everything stored for a device and inserts the given lists.
func (tx *Tx) ReplaceInstalledApps(deviceID string, apps []models.InstalledApp, activities []models.AppActivity) error {
	if err := tx.DeleteInstalledApps(deviceID); err != nil {
		return err
	}
	for _, a := range apps {
		_, err := tx.tx.Exec(`INSERT OR REPLACE INTO installed_apps (device_id, package_name, title, is_launchable, recommendation)
			VALUES (?, ?, ?, ?, ?)`, deviceID, a.PackageName, a.Title, boolToInt(a.IsLaunchable), a.Recommendation)
		if err != nil {
			return fmt.Errorf("insert installed app %s: %w", a.PackageName, err)
		}
	}
	for _, a := range activities {
		_, err := tx.tx.Exec(`INSERT OR REPLACE INTO app_activities (device_id, package_name, activity_class, title)
			VALUES (?, ?, ?, ?)`, deviceID, a.PackageName, a.ActivityClass, a.Title)
		if err != nil {
			return fmt.Errorf("insert activity %s/%s: %w", a.PackageName, a.ActivityClass, err)
		}
	}
	return nil
}
