package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

const ruleColumns = `id, category_id, apply_to_extra_time_usage, day_mask, maximum_time_in_millis,
	start_minute_of_day, end_minute_of_day, session_duration_millis, session_pause_millis, per_day`

func scanRule(scan func(...any) error) (models.TimeLimitRule, error) {
	var (
		r             models.TimeLimitRule
		extra, perDay int
	)
	err := scan(&r.ID, &r.CategoryID, &extra, &r.DayMask, &r.MaximumTimeInMillis,
		&r.StartMinuteOfDay, &r.EndMinuteOfDay, &r.SessionDurationMillis, &r.SessionPauseMillis, &perDay)
	r.ApplyToExtraTimeUsage = extra != 0
	r.PerDay = perDay != 0
	return r, err
}

// GetRule returns the rule with id, or nil when it does not exist.
func (tx *Tx) GetRule(id string) (*models.TimeLimitRule, error) {
	row := tx.tx.QueryRow(`SELECT `+ruleColumns+` FROM time_limit_rules WHERE id = ?`, id)
	r, err := scanRule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return &r, nil
}

// ListRules returns the rules of a category ordered by id.
func (tx *Tx) ListRules(categoryID string) ([]models.TimeLimitRule, error) {
	rows, err := tx.tx.Query(`SELECT `+ruleColumns+` FROM time_limit_rules WHERE category_id = ? ORDER BY id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list rules of %s: %w", categoryID, err)
	}
	defer rows.Close()
	var out []models.TimeLimitRule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRule adds a rule.
func (tx *Tx) InsertRule(r models.TimeLimitRule) error {
	_, err := tx.tx.Exec(`INSERT INTO time_limit_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CategoryID, boolToInt(r.ApplyToExtraTimeUsage), r.DayMask, r.MaximumTimeInMillis,
		r.StartMinuteOfDay, r.EndMinuteOfDay, r.SessionDurationMillis, r.SessionPauseMillis, boolToInt(r.PerDay))
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRule overwrites a rule.
func (tx *Tx) UpdateRule(r models.TimeLimitRule) error {
	_, err := tx.tx.Exec(`UPDATE time_limit_rules SET category_id = ?, apply_to_extra_time_usage = ?, day_mask = ?,
		maximum_time_in_millis = ?, start_minute_of_day = ?, end_minute_of_day = ?, session_duration_millis = ?,
		session_pause_millis = ?, per_day = ? WHERE id = ?`,
		r.CategoryID, boolToInt(r.ApplyToExtraTimeUsage), r.DayMask, r.MaximumTimeInMillis,
		r.StartMinuteOfDay, r.EndMinuteOfDay, r.SessionDurationMillis, r.SessionPauseMillis, boolToInt(r.PerDay), r.ID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule.
func (tx *Tx) DeleteRule(id string) error {
	if _, err := tx.tx.Exec(`DELETE FROM time_limit_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

// DeleteRulesOfCategory removes every rule of a category.
func (tx *Tx) DeleteRulesOfCategory(categoryID string) error {
	if _, err := tx.tx.Exec(`DELETE FROM time_limit_rules WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("delete rules of %s: %w", categoryID, err)
	}
	return nil
}
