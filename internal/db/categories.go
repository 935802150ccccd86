package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

const categoryColumns = `id, child_id, title, blocked_minutes_in_week, extra_time_in_millis, extra_time_day,
	temporarily_blocked, temporarily_blocked_end_time, parent_category_id, sort`

func scanCategory(scan func(...any) error) (models.Category, error) {
	var (
		c       models.Category
		blocked int
	)
	err := scan(&c.ID, &c.ChildID, &c.Title, &c.BlockedMinutesInWeek, &c.ExtraTimeInMillis, &c.ExtraTimeDay,
		&blocked, &c.TemporarilyBlockedEndTime, &c.ParentCategoryID, &c.Sort)
	c.TemporarilyBlocked = blocked != 0
	return c, err
}

func (tx *Tx) queryCategories(where string, args ...any) ([]models.Category, error) {
	rows, err := tx.tx.Query(`SELECT `+categoryColumns+` FROM categories `+where+` ORDER BY sort, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	var out []models.Category
	for rows.Next() {
		c, err := scanCategory(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory returns the category with id, or nil when it does not exist.
func (tx *Tx) GetCategory(id string) (*models.Category, error) {
	row := tx.tx.QueryRow(`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &c, nil
}

// ListCategories returns all categories.
func (tx *Tx) ListCategories() ([]models.Category, error) {
	return tx.queryCategories("")
}

// ListCategoriesOfChild returns the categories owned by a child.
func (tx *Tx) ListCategoriesOfChild(childID string) ([]models.Category, error) {
	return tx.queryCategories("WHERE child_id = ?", childID)
}

// ListSubcategories returns the categories whose parent is parentID.
func (tx *Tx) ListSubcategories(parentID string) ([]models.Category, error) {
	return tx.queryCategories("WHERE parent_category_id = ?", parentID)
}

// InsertCategory adds a category.
func (tx *Tx) InsertCategory(c models.Category) error {
	_, err := tx.tx.Exec(`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ChildID, c.Title, c.BlockedMinutesInWeek, c.ExtraTimeInMillis, c.ExtraTimeDay,
		boolToInt(c.TemporarilyBlocked), c.TemporarilyBlockedEndTime, c.ParentCategoryID, c.Sort)
	if err != nil {
		return fmt.Errorf("insert category %s: %w", c.ID, err)
	}
	return nil
}

// UpdateCategory overwrites a category.
func (tx *Tx) UpdateCategory(c models.Category) error {
	_, err := tx.tx.Exec(`UPDATE categories SET child_id = ?, title = ?, blocked_minutes_in_week = ?,
		extra_time_in_millis = ?, extra_time_day = ?, temporarily_blocked = ?, temporarily_blocked_end_time = ?,
		parent_category_id = ?, sort = ? WHERE id = ?`,
		c.ChildID, c.Title, c.BlockedMinutesInWeek, c.ExtraTimeInMillis, c.ExtraTimeDay,
		boolToInt(c.TemporarilyBlocked), c.TemporarilyBlockedEndTime, c.ParentCategoryID, c.Sort, c.ID)
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCategoryRecord removes only the category row. Owned data is left to the caller.
func (tx *Tx) DeleteCategoryRecord(id string) error {
	if _, err := tx.tx.Exec(`DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}

// ListCategoryApps returns the packages assigned to a category.
func (tx *Tx) ListCategoryApps(categoryID string) ([]string, error) {
	rows, err := tx.tx.Query(`SELECT package_name FROM category_apps WHERE category_id = ? ORDER BY package_name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list apps of %s: %w", categoryID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AddCategoryApps assigns packages to a category, ignoring ones already assigned.
func (tx *Tx) AddCategoryApps(categoryID string, packageNames []string) error {
	for _, name := range packageNames {
		if _, err := tx.tx.Exec(`INSERT OR IGNORE INTO category_apps (category_id, package_name) VALUES (?, ?)`, categoryID, name); err != nil {
			return fmt.Errorf("add app %s to %s: %w", name, categoryID, err)
		}
	}
	return nil
}

// RemoveCategoryApps unassigns packages from a category.
func (tx *Tx) RemoveCategoryApps(categoryID string, packageNames []string) error {
	if len(packageNames) == 0 {
		return nil
	}
	args := append([]any{categoryID}, stringArgs(packageNames)...)
	_, err := tx.tx.Exec(`DELETE FROM category_apps WHERE category_id = ? AND package_name IN (`+placeholders(len(packageNames))+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove apps from %s: %w", categoryID, err)
	}
	return nil
}

// DeleteCategoryApps unassigns every package of a category.
func (tx *Tx) DeleteCategoryApps(categoryID string) error {
	if _, err := tx.tx.Exec(`DELETE FROM category_apps WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("delete apps of %s: %w", categoryID, err)
	}
	return nil
}

// ReplaceCategoryApps sets the full package list of a category.
func (tx *Tx) ReplaceCategoryApps(categoryID string, packageNames []string) error {
	if err := tx.DeleteCategoryApps(categoryID); err != nil {
		return err
	}
	return tx.AddCategoryApps(categoryID, packageNames)
}
