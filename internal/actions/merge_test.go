package actions

import "testing"

func TestMergeAddUsedTime_SumsFields(t *testing.T) {
	prev := &AddUsedTime{CategoryID: "c1", DayOfEpoch: 100, TimeToAdd: 10, ExtraTimeToSubtract: 3}
	next := &AddUsedTime{CategoryID: "c1", DayOfEpoch: 100, TimeToAdd: 20, ExtraTimeToSubtract: 4}

	merged, ok := MergeAddUsedTime(prev, next)
	if !ok {
		t.Fatal("expected merge")
	}
	if merged.TimeToAdd != 30 || merged.ExtraTimeToSubtract != 7 {
		t.Fatalf("got %+v", merged)
	}
}

func TestMergeAddUsedTime_DifferentTarget(t *testing.T) {
	base := &AddUsedTime{CategoryID: "c1", DayOfEpoch: 100, TimeToAdd: 10}
	if _, ok := MergeAddUsedTime(base, &AddUsedTime{CategoryID: "c2", DayOfEpoch: 100, TimeToAdd: 1}); ok {
		t.Error("different category must not merge")
	}
	if _, ok := MergeAddUsedTime(base, &AddUsedTime{CategoryID: "c1", DayOfEpoch: 101, TimeToAdd: 1}); ok {
		t.Error("different day must not merge")
	}
}

func TestMergeAddUsedTimeV2_MergesPerCategory(t *testing.T) {
	prev := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{
		{CategoryID: "a", TimeToAdd: 1000},
		{CategoryID: "b", TimeToAdd: 500, ExtraTimeToSubtract: 500},
	}}
	next := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{
		{CategoryID: "b", TimeToAdd: 200, ExtraTimeToSubtract: 100},
		{CategoryID: "c", TimeToAdd: 50},
	}}

	merged, ok := MergeAddUsedTimeV2(prev, next, DefaultTimestampTolerance)
	if !ok {
		t.Fatal("expected merge")
	}
	if len(merged.Items) != 3 {
		t.Fatalf("items: got %d, want 3", len(merged.Items))
	}
	byID := map[string]AddUsedTimeItem{}
	for _, it := range merged.Items {
		byID[it.CategoryID] = it
	}
	if byID["a"].TimeToAdd != 1000 {
		t.Errorf("a: %+v", byID["a"])
	}
	if byID["b"].TimeToAdd != 700 || byID["b"].ExtraTimeToSubtract != 600 {
		t.Errorf("b: %+v", byID["b"])
	}
	if byID["c"].TimeToAdd != 50 {
		t.Errorf("c: %+v", byID["c"])
	}
	// prev must be untouched
	if prev.Items[1].TimeToAdd != 500 {
		t.Errorf("prev mutated: %+v", prev.Items[1])
	}
}

func TestMergeAddUsedTimeV2_DifferentSlotsAbortAll(t *testing.T) {
	prev := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{
		{CategoryID: "a", TimeToAdd: 1000},
		{CategoryID: "b", TimeToAdd: 1000, AdditionalCountingSlots: []CountingSlot{{Start: 0, End: 60}}},
	}}
	next := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{
		{CategoryID: "a", TimeToAdd: 1000},
		{CategoryID: "b", TimeToAdd: 1000, AdditionalCountingSlots: []CountingSlot{{Start: 0, End: 90}}},
	}}

	if _, ok := MergeAddUsedTimeV2(prev, next, DefaultTimestampTolerance); ok {
		t.Fatal("slot mismatch on one item must abort the whole merge")
	}
}

func TestMergeAddUsedTimeV2_SlotOrderIgnored(t *testing.T) {
	slotsA := []CountingSlot{{Start: 0, End: 60}, {Start: 120, End: 180}}
	slotsB := []CountingSlot{{Start: 120, End: 180}, {Start: 0, End: 60}}
	prev := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 1, AdditionalCountingSlots: slotsA}}}
	next := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 1, AdditionalCountingSlots: slotsB}}}

	if _, ok := MergeAddUsedTimeV2(prev, next, DefaultTimestampTolerance); !ok {
		t.Fatal("slot sets in different order should merge")
	}
}

func TestMergeAddUsedTimeV2_SessionLimitMismatch(t *testing.T) {
	prev := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 1,
		SessionDurationLimits: []SessionDurationLimit{{EndMinuteOfDay: 1439, MaxSessionDuration: 1000, SessionPauseDuration: 500}}}}}
	next := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 1,
		SessionDurationLimits: []SessionDurationLimit{{EndMinuteOfDay: 1439, MaxSessionDuration: 2000, SessionPauseDuration: 500}}}}}

	if _, ok := MergeAddUsedTimeV2(prev, next, DefaultTimestampTolerance); ok {
		t.Fatal("session limit mismatch must not merge")
	}
}

func TestMergeAddUsedTimeV2_TrustedTimestampTolerance(t *testing.T) {
	prev := &AddUsedTimeV2{DayOfEpoch: 5, TrustedTimestamp: 100_000, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 5000}}}

	// span starts at 105_000 - 5_000 = 100_000: exactly contiguous
	contiguous := &AddUsedTimeV2{DayOfEpoch: 5, TrustedTimestamp: 105_000, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 5000}}}
	merged, ok := MergeAddUsedTimeV2(prev, contiguous, DefaultTimestampTolerance)
	if !ok {
		t.Fatal("contiguous span should merge")
	}
	if merged.TrustedTimestamp != 105_000 || merged.Items[0].TimeToAdd != 10_000 {
		t.Fatalf("got %+v", merged)
	}

	// span starts at 2_000 ms after the previous timestamp: on the boundary
	edge := &AddUsedTimeV2{DayOfEpoch: 5, TrustedTimestamp: 107_000, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 5000}}}
	if _, ok := MergeAddUsedTimeV2(prev, edge, DefaultTimestampTolerance); !ok {
		t.Fatal("drift equal to the tolerance should merge")
	}

	gap := &AddUsedTimeV2{DayOfEpoch: 5, TrustedTimestamp: 107_001, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 5000}}}
	if _, ok := MergeAddUsedTimeV2(prev, gap, DefaultTimestampTolerance); ok {
		t.Fatal("drift beyond the tolerance must not merge")
	}

	untrusted := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 5000}}}
	if _, ok := MergeAddUsedTimeV2(prev, untrusted, DefaultTimestampTolerance); !ok {
		t.Fatal("missing trusted timestamp skips the drift check")
	}
}

func TestMergeAddUsedTimeV2_DifferentDay(t *testing.T) {
	prev := &AddUsedTimeV2{DayOfEpoch: 5, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 1}}}
	next := &AddUsedTimeV2{DayOfEpoch: 6, Items: []AddUsedTimeItem{{CategoryID: "a", TimeToAdd: 1}}}
	if _, ok := MergeAddUsedTimeV2(prev, next, DefaultTimestampTolerance); ok {
		t.Fatal("different days must not merge")
	}
}
