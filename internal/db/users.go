package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

const userColumns = `id, name, type, password_hash, second_password_salt, timezone, disable_limits_until, category_for_not_assigned_apps`

func scanUser(scan func(...any) error) (models.User, error) {
	var u models.User
	err := scan(&u.ID, &u.Name, &u.Type, &u.PasswordHash, &u.SecondPasswordSalt, &u.Timezone, &u.DisableLimitsUntil, &u.CategoryForNotAssignedApps)
	return u, err
}

// GetUser returns the user with id, or nil when it does not exist.
func (tx *Tx) GetUser(id string) (*models.User, error) {
	row := tx.tx.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (tx *Tx) ListUsers() ([]models.User, error) {
	rows, err := tx.tx.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// InsertUser adds a user.
func (tx *Tx) InsertUser(u models.User) error {
	_, err := tx.tx.Exec(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Type, u.PasswordHash, u.SecondPasswordSalt, u.Timezone, u.DisableLimitsUntil, u.CategoryForNotAssignedApps)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateUser overwrites a user.
func (tx *Tx) UpdateUser(u models.User) error {
	_, err := tx.tx.Exec(`UPDATE users SET name = ?, type = ?, password_hash = ?, second_password_salt = ?,
		timezone = ?, disable_limits_until = ?, category_for_not_assigned_apps = ? WHERE id = ?`,
		u.Name, u.Type, u.PasswordHash, u.SecondPasswordSalt, u.Timezone, u.DisableLimitsUntil, u.CategoryForNotAssignedApps, u.ID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return nil
}

// DeleteUser removes a user and its login-limit association.
func (tx *Tx) DeleteUser(id string) error {
	if _, err := tx.tx.Exec(`DELETE FROM user_limit_login_category WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete login category of %s: %w", id, err)
	}
	if _, err := tx.tx.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

// ClearCategoryForNotAssignedApps unsets the fallback category wherever it points at categoryID.
func (tx *Tx) ClearCategoryForNotAssignedApps(categoryID string) error {
	_, err := tx.tx.Exec(`UPDATE users SET category_for_not_assigned_apps = '' WHERE category_for_not_assigned_apps = ?`, categoryID)
	if err != nil {
		return fmt.Errorf("clear fallback category %s: %w", categoryID, err)
	}
	return nil
}

// GetUserLimitLoginCategory returns the login-limiting category of a user, or "".
func (tx *Tx) GetUserLimitLoginCategory(userID string) (string, error) {
	var id string
	err := tx.tx.QueryRow(`SELECT category_id FROM user_limit_login_category WHERE user_id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get login category of %s: %w", userID, err)
	}
	return id, nil
}

// SetUserLimitLoginCategory sets the login-limiting category; "" clears it.
func (tx *Tx) SetUserLimitLoginCategory(userID, categoryID string) error {
	var err error
	if categoryID == "" {
		_, err = tx.tx.Exec(`DELETE FROM user_limit_login_category WHERE user_id = ?`, userID)
	} else {
		_, err = tx.tx.Exec(`INSERT OR REPLACE INTO user_limit_login_category (user_id, category_id) VALUES (?, ?)`, userID, categoryID)
	}
	if err != nil {
		return fmt.Errorf("set login category of %s: %w", userID, err)
	}
	return nil
}

// ListUserLimitLoginCategories returns every login-limit association.
func (tx *Tx) ListUserLimitLoginCategories() ([]models.UserLimitLoginCategory, error) {
	rows, err := tx.tx.Query(`SELECT user_id, category_id FROM user_limit_login_category ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list login categories: %w", err)
	}
	defer rows.Close()
	var out []models.UserLimitLoginCategory
	for rows.Next() {
		var l models.UserLimitLoginCategory
		if err := rows.Scan(&l.UserID, &l.CategoryID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLoginCategoryReferences drops associations pointing at categoryID.
func (tx *Tx) DeleteLoginCategoryReferences(categoryID string) error {
	if _, err := tx.tx.Exec(`DELETE FROM user_limit_login_category WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("delete login category references %s: %w", categoryID, err)
	}
	return nil
}
