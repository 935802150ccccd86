package actions

import (
	"slices"
	"time"
)

// DefaultTimestampTolerance bounds how far the start of a new usage span may
// drift from the trusted timestamp of the entry it is merged into.
const DefaultTimestampTolerance = 2 * time.Second

// MergeAddUsedTime folds next into prev. It returns false when the two
// commands count different categories or days.
func MergeAddUsedTime(prev, next *AddUsedTime) (*AddUsedTime, bool) {
	if prev.CategoryID != next.CategoryID || prev.DayOfEpoch != next.DayOfEpoch {
		return nil, false
	}
	return &AddUsedTime{
		CategoryID:          prev.CategoryID,
		DayOfEpoch:          prev.DayOfEpoch,
		TimeToAdd:           prev.TimeToAdd + next.TimeToAdd,
		ExtraTimeToSubtract: prev.ExtraTimeToSubtract + next.ExtraTimeToSubtract,
	}, true
}

// MergeAddUsedTimeV2 folds next into prev item by item. Either every item
// merges or none does: a single item with a different counting-slot or
// session-limit configuration, or a usage span that does not line up with the
// previous trusted timestamp, rejects the whole merge.
func MergeAddUsedTimeV2(prev, next *AddUsedTimeV2, tolerance time.Duration) (*AddUsedTimeV2, bool) {
	if prev.DayOfEpoch != next.DayOfEpoch {
		return nil, false
	}

	merged := &AddUsedTimeV2{
		DayOfEpoch:       prev.DayOfEpoch,
		Items:            make([]AddUsedTimeItem, len(prev.Items)),
		TrustedTimestamp: next.TrustedTimestamp,
	}
	copy(merged.Items, prev.Items)

	index := make(map[string]int, len(merged.Items))
	for i, item := range merged.Items {
		index[item.CategoryID] = i
	}

	checkTimestamps := prev.TrustedTimestamp != 0 && next.TrustedTimestamp != 0

	for _, item := range next.Items {
		i, ok := index[item.CategoryID]
		if !ok {
			merged.Items = append(merged.Items, item)
			index[item.CategoryID] = len(merged.Items) - 1
			continue
		}

		old := merged.Items[i]
		if !sameCountingSlots(old.AdditionalCountingSlots, item.AdditionalCountingSlots) {
			return nil, false
		}
		if !sameSessionLimits(old.SessionDurationLimits, item.SessionDurationLimits) {
			return nil, false
		}
		if checkTimestamps {
			spanStart := next.TrustedTimestamp - item.TimeToAdd
			drift := spanStart - prev.TrustedTimestamp
			if drift < 0 {
				drift = -drift
			}
			if drift > tolerance.Milliseconds() {
				return nil, false
			}
		}

		old.TimeToAdd += item.TimeToAdd
		old.ExtraTimeToSubtract += item.ExtraTimeToSubtract
		merged.Items[i] = old
	}

	return merged, true
}

// sameCountingSlots compares two slot lists as sets.
func sameCountingSlots(a, b []CountingSlot) bool {
	if len(a) != len(b) {
		return false
	}
	cmp := func(x, y CountingSlot) int {
		if x.Start != y.Start {
			return x.Start - y.Start
		}
		return x.End - y.End
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.SortFunc(as, cmp)
	slices.SortFunc(bs, cmp)
	return slices.Equal(as, bs)
}

// sameSessionLimits compares two session-limit lists as sets.
func sameSessionLimits(a, b []SessionDurationLimit) bool {
	if len(a) != len(b) {
		return false
	}
	cmp := func(x, y SessionDurationLimit) int {
		switch {
		case x.StartMinuteOfDay != y.StartMinuteOfDay:
			return x.StartMinuteOfDay - y.StartMinuteOfDay
		case x.EndMinuteOfDay != y.EndMinuteOfDay:
			return x.EndMinuteOfDay - y.EndMinuteOfDay
		case x.MaxSessionDuration != y.MaxSessionDuration:
			if x.MaxSessionDuration < y.MaxSessionDuration {
				return -1
			}
			return 1
		case x.SessionPauseDuration != y.SessionPauseDuration:
			if x.SessionPauseDuration < y.SessionPauseDuration {
				return -1
			}
			return 1
		}
		return 0
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.SortFunc(as, cmp)
	slices.SortFunc(bs, cmp)
	return slices.Equal(as, bs)
}
