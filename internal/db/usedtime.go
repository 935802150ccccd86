package db

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// Whole-day counting slot
const (
	MinuteOfDayStart = 0
	MinuteOfDayEnd   = 24*60 - 1
)

// ListUsedTimes returns the used time items of a category.
func (tx *Tx) ListUsedTimes(categoryID string) ([]models.UsedTimeItem, error) {
	rows, err := tx.tx.Query(`SELECT category_id, day_of_epoch, used_millis, start_minute_of_day, end_minute_of_day
		FROM used_times WHERE category_id = ? ORDER BY day_of_epoch, start_minute_of_day, end_minute_of_day`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list used times of %s: %w", categoryID, err)
	}
	defer rows.Close()
	var out []models.UsedTimeItem
	for rows.Next() {
		var u models.UsedTimeItem
		if err := rows.Scan(&u.CategoryID, &u.DayOfEpoch, &u.UsedMillis, &u.StartMinuteOfDay, &u.EndMinuteOfDay); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// AddUsedTime adds millis to the counter of one category, day and slot.
func (tx *Tx) AddUsedTime(categoryID string, day models.DayOfEpoch, start, end int, millis int64) error {
	_, err := tx.tx.Exec(`INSERT INTO used_times (category_id, day_of_epoch, start_minute_of_day, end_minute_of_day, used_millis)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (category_id, day_of_epoch, start_minute_of_day, end_minute_of_day)
		DO UPDATE SET used_millis = used_millis + excluded.used_millis`,
		categoryID, day, start, end, millis)
	if err != nil {
		return fmt.Errorf("add used time to %s: %w", categoryID, err)
	}
	return nil
}

// ReplaceUsedTimes sets the full used time state of a category.
func (tx *Tx) ReplaceUsedTimes(categoryID string, items []models.UsedTimeItem, sessions []models.SessionDuration) error {
	if err := tx.DeleteUsedTimesOfCategory(categoryID); err != nil {
		return err
	}
	for _, u := range items {
		_, err := tx.tx.Exec(`INSERT OR REPLACE INTO used_times (category_id, day_of_epoch, start_minute_of_day, end_minute_of_day, used_millis)
			VALUES (?, ?, ?, ?, ?)`, categoryID, u.DayOfEpoch, u.StartMinuteOfDay, u.EndMinuteOfDay, u.UsedMillis)
		if err != nil {
			return fmt.Errorf("insert used time of %s: %w", categoryID, err)
		}
	}
	for _, s := range sessions {
		s.CategoryID = categoryID
		if err := tx.UpsertSessionDuration(s); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUsedTimesOfCategory removes used time items and session durations of a category.
func (tx *Tx) DeleteUsedTimesOfCategory(categoryID string) error {
	if _, err := tx.tx.Exec(`DELETE FROM used_times WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("delete used times of %s: %w", categoryID, err)
	}
	if _, err := tx.tx.Exec(`DELETE FROM session_durations WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("delete session durations of %s: %w", categoryID, err)
	}
	return nil
}

// ListSessionDurations returns the session durations of a category.
func (tx *Tx) ListSessionDurations(categoryID string) ([]models.SessionDuration, error) {
	rows, err := tx.tx.Query(`SELECT category_id, max_session_duration, session_pause_duration, start_minute_of_day,
		end_minute_of_day, last_usage, last_session_duration FROM session_durations WHERE category_id = ?
		ORDER BY start_minute_of_day, end_minute_of_day, max_session_duration, session_pause_duration`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list session durations of %s: %w", categoryID, err)
	}
	defer rows.Close()
	var out []models.SessionDuration
	for rows.Next() {
		var s models.SessionDuration
		if err := rows.Scan(&s.CategoryID, &s.MaxSessionDuration, &s.SessionPauseDuration, &s.StartMinuteOfDay,
			&s.EndMinuteOfDay, &s.LastUsage, &s.LastSessionDuration); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSessionDuration stores a session duration keyed by category and limit configuration.
func (tx *Tx) UpsertSessionDuration(s models.SessionDuration) error {
	_, err := tx.tx.Exec(`INSERT OR REPLACE INTO session_durations (category_id, max_session_duration, session_pause_duration,
		start_minute_of_day, end_minute_of_day, last_usage, last_session_duration) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.CategoryID, s.MaxSessionDuration, s.SessionPauseDuration, s.StartMinuteOfDay, s.EndMinuteOfDay, s.LastUsage, s.LastSessionDuration)
	if err != nil {
		return fmt.Errorf("store session duration of %s: %w", s.CategoryID, err)
	}
	return nil
}

// GetSessionDuration returns the session duration for one limit configuration, or nil.
func (tx *Tx) GetSessionDuration(categoryID string, max, pause int64, start, end int) (*models.SessionDuration, error) {
	list, err := tx.ListSessionDurations(categoryID)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		if s.MaxSessionDuration == max && s.SessionPauseDuration == pause && s.StartMinuteOfDay == start && s.EndMinuteOfDay == end {
			return &s, nil
		}
	}
	return nil, nil
}
