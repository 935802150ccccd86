package dispatch

import (
	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// Usage of a category deleted in the meantime is dropped silently: the
// counter commands are produced continuously and may race a delete.

func addUsedTime(tx *db.Tx, p *actions.AddUsedTime, _ Context) error {
	cat, err := tx.GetCategory(p.CategoryID)
	if err != nil || cat == nil {
		return err
	}
	if err := tx.AddUsedTime(p.CategoryID, p.DayOfEpoch, db.MinuteOfDayStart, db.MinuteOfDayEnd, p.TimeToAdd); err != nil {
		return err
	}
	return subtractExtraTime(tx, cat, p.ExtraTimeToSubtract)
}

func addUsedTimeV2(tx *db.Tx, p *actions.AddUsedTimeV2, _ Context) error {
	for _, item := range p.Items {
		cat, err := tx.GetCategory(item.CategoryID)
		if err != nil {
			return err
		}
		if cat == nil {
			continue
		}
		if err := tx.AddUsedTime(item.CategoryID, p.DayOfEpoch, db.MinuteOfDayStart, db.MinuteOfDayEnd, item.TimeToAdd); err != nil {
			return err
		}
		for _, slot := range item.AdditionalCountingSlots {
			if err := tx.AddUsedTime(item.CategoryID, p.DayOfEpoch, slot.Start, slot.End, item.TimeToAdd); err != nil {
				return err
			}
		}
		for _, limit := range item.SessionDurationLimits {
			if err := addSessionDuration(tx, item.CategoryID, limit, item.TimeToAdd, p.TrustedTimestamp); err != nil {
				return err
			}
		}
		if err := subtractExtraTime(tx, cat, item.ExtraTimeToSubtract); err != nil {
			return err
		}
	}
	return nil
}

// addSessionDuration extends the running session, or starts a new one when
// the pause since the last usage reached the configured pause duration.
func addSessionDuration(tx *db.Tx, categoryID string, limit actions.SessionDurationLimit, used, timestamp int64) error {
	existing, err := tx.GetSessionDuration(categoryID, limit.MaxSessionDuration, limit.SessionPauseDuration,
		limit.StartMinuteOfDay, limit.EndMinuteOfDay)
	if err != nil {
		return err
	}
	s := models.SessionDuration{
		CategoryID:           categoryID,
		MaxSessionDuration:   limit.MaxSessionDuration,
		SessionPauseDuration: limit.SessionPauseDuration,
		StartMinuteOfDay:     limit.StartMinuteOfDay,
		EndMinuteOfDay:       limit.EndMinuteOfDay,
		LastUsage:            timestamp,
		LastSessionDuration:  used,
	}
	if existing != nil {
		paused := timestamp != 0 && existing.LastUsage != 0 &&
			timestamp-used-existing.LastUsage >= limit.SessionPauseDuration
		if !paused {
			s.LastSessionDuration = existing.LastSessionDuration + used
		}
		if timestamp == 0 {
			s.LastUsage = existing.LastUsage
		}
	}
	return tx.UpsertSessionDuration(s)
}

func subtractExtraTime(tx *db.Tx, cat *models.Category, amount int64) error {
	if amount <= 0 || cat.ExtraTimeInMillis == 0 {
		return nil
	}
	cat.ExtraTimeInMillis = max(0, cat.ExtraTimeInMillis-amount)
	return tx.UpdateCategory(*cat)
}

func updateDeviceStatus(tx *db.Tx, p *actions.UpdateDeviceStatus, c Context) error {
	device, err := tx.GetDevice(c.DeviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return missing("device", c.DeviceID)
	}
	device.AppVersion = p.AppVersion
	device.DidReboot = p.DidReboot
	return tx.UpdateDevice(*device)
}
