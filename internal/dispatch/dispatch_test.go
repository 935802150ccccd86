package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

const deviceID = "dev-1"

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func run(t *testing.T, database *db.DB, fn func(tx *db.Tx) error) {
	t.Helper()
	if err := database.Transaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

// seedFamily stores a parent, a child with two categories (one nested) and this device.
func seedFamily(t *testing.T, database *db.DB) {
	t.Helper()
	run(t, database, func(tx *db.Tx) error {
		for _, u := range []models.User{
			{ID: "parent", Name: "Pat", Type: models.UserTypeParent},
			{ID: "kid", Name: "Kim", Type: models.UserTypeChild},
		} {
			if err := tx.InsertUser(u); err != nil {
				return err
			}
		}
		if err := tx.InsertDevice(models.Device{ID: deviceID, CurrentUserID: "kid", DefaultUserID: "kid"}); err != nil {
			return err
		}
		if err := tx.InsertCategory(models.Category{ID: "games", ChildID: "kid", Title: "Games", ExtraTimeDay: -1}); err != nil {
			return err
		}
		return tx.InsertCategory(models.Category{ID: "shooters", ChildID: "kid", Title: "Shooters", ParentCategoryID: "games", ExtraTimeDay: -1})
	})
}

func apply(tx *db.Tx, p actions.Payload) error {
	return Apply(tx, actions.New(p), Context{DeviceID: deviceID, ActorID: "parent"})
}

func TestApply_AddUsedTime(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	run(t, database, func(tx *db.Tx) error {
		if err := apply(tx, &actions.AddUsedTime{CategoryID: "games", DayOfEpoch: 100, TimeToAdd: 35}); err != nil {
			return err
		}
		// unknown category is ignored
		if err := apply(tx, &actions.AddUsedTime{CategoryID: "nope", DayOfEpoch: 100, TimeToAdd: 1}); err != nil {
			t.Errorf("unknown category should be ignored: %v", err)
		}
		items, err := tx.ListUsedTimes("games")
		if err != nil {
			return err
		}
		if len(items) != 1 || items[0].UsedMillis != 35 {
			t.Errorf("used times: %+v", items)
		}
		return nil
	})
}

func TestApply_AddUsedTimeV2_SlotsAndSessions(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	limit := actions.SessionDurationLimit{StartMinuteOfDay: 0, EndMinuteOfDay: 1439, MaxSessionDuration: 60_000, SessionPauseDuration: 10_000}
	run(t, database, func(tx *db.Tx) error {
		for _, ts := range []int64{100_000, 105_000} {
			err := apply(tx, &actions.AddUsedTimeV2{DayOfEpoch: 7, TrustedTimestamp: ts, Items: []actions.AddUsedTimeItem{{
				CategoryID:              "games",
				TimeToAdd:               5000,
				AdditionalCountingSlots: []actions.CountingSlot{{Start: 600, End: 720}},
				SessionDurationLimits:   []actions.SessionDurationLimit{limit},
			}}})
			if err != nil {
				return err
			}
		}
		items, err := tx.ListUsedTimes("games")
		if err != nil {
			return err
		}
		if len(items) != 2 {
			t.Fatalf("expected whole-day and slot counters, got %+v", items)
		}
		for _, it := range items {
			if it.UsedMillis != 10_000 {
				t.Errorf("counter %+v", it)
			}
		}
		sessions, err := tx.ListSessionDurations("games")
		if err != nil {
			return err
		}
		if len(sessions) != 1 || sessions[0].LastSessionDuration != 10_000 || sessions[0].LastUsage != 105_000 {
			t.Errorf("sessions: %+v", sessions)
		}
		return nil
	})
}

func TestApply_DeleteCategoryCascades(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	run(t, database, func(tx *db.Tx) error {
		if err := apply(tx, &actions.CreateTimeLimitRule{Rule: models.TimeLimitRule{ID: "r1", CategoryID: "shooters", DayMask: 127, MaximumTimeInMillis: 1000, EndMinuteOfDay: 1439}}); err != nil {
			return err
		}
		if err := apply(tx, &actions.AddCategoryApps{CategoryID: "shooters", PackageNames: []string{"com.game"}}); err != nil {
			return err
		}
		if err := apply(tx, &actions.AddUsedTime{CategoryID: "shooters", DayOfEpoch: 1, TimeToAdd: 5}); err != nil {
			return err
		}
		if err := apply(tx, &actions.SetUserLimitLoginCategory{UserID: "parent", CategoryID: "games"}); err != nil {
			return err
		}
		if err := tx.SetVersionToken(models.FamilyCategoryRules, "shooters", "v1"); err != nil {
			return err
		}

		if err := apply(tx, &actions.DeleteCategory{CategoryID: "games"}); err != nil {
			return err
		}

		for _, id := range []string{"games", "shooters"} {
			if c, _ := tx.GetCategory(id); c != nil {
				t.Errorf("category %s still present", id)
			}
		}
		if r, _ := tx.GetRule("r1"); r != nil {
			t.Error("rule of subcategory still present")
		}
		if apps, _ := tx.ListCategoryApps("shooters"); len(apps) != 0 {
			t.Errorf("apps still present: %v", apps)
		}
		if used, _ := tx.ListUsedTimes("shooters"); len(used) != 0 {
			t.Errorf("used time still present: %v", used)
		}
		if login, _ := tx.GetUserLimitLoginCategory("parent"); login != "" {
			t.Errorf("login category reference still present: %q", login)
		}
		if tok, _ := tx.GetVersionToken(models.FamilyCategoryRules, "shooters"); tok != "" {
			t.Errorf("version token still present: %q", tok)
		}

		// deleting again is a no-op
		if err := apply(tx, &actions.DeleteCategory{CategoryID: "games"}); err != nil {
			t.Errorf("second delete: %v", err)
		}
		return nil
	})
}

func TestApply_RemoveUser(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	run(t, database, func(tx *db.Tx) error {
		if err := apply(tx, &actions.RemoveUser{UserID: "kid"}); err != nil {
			return err
		}
		if u, _ := tx.GetUser("kid"); u != nil {
			t.Error("user still present")
		}
		if cats, _ := tx.ListCategoriesOfChild("kid"); len(cats) != 0 {
			t.Errorf("categories still present: %+v", cats)
		}
		d, err := tx.GetDevice(deviceID)
		if err != nil {
			return err
		}
		if d.CurrentUserID != "" || d.DefaultUserID != "" {
			t.Errorf("device still assigned: %+v", d)
		}
		return nil
	})
}

func TestApply_AddCategoryAppsMovesBetweenSiblings(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	run(t, database, func(tx *db.Tx) error {
		if err := apply(tx, &actions.AddCategoryApps{CategoryID: "games", PackageNames: []string{"a", "b"}}); err != nil {
			return err
		}
		if err := apply(tx, &actions.AddCategoryApps{CategoryID: "shooters", PackageNames: []string{"b"}}); err != nil {
			return err
		}
		games, _ := tx.ListCategoryApps("games")
		shooters, _ := tx.ListCategoryApps("shooters")
		if len(games) != 1 || games[0] != "a" || len(shooters) != 1 || shooters[0] != "b" {
			t.Errorf("games=%v shooters=%v", games, shooters)
		}
		return nil
	})
}

func TestApply_IncrementExtraTimeResetsOtherDay(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	run(t, database, func(tx *db.Tx) error {
		if err := apply(tx, &actions.IncrementCategoryExtraTime{CategoryID: "games", AddedExtraTime: 1000, ExtraTimeDay: 5}); err != nil {
			return err
		}
		if err := apply(tx, &actions.IncrementCategoryExtraTime{CategoryID: "games", AddedExtraTime: 500, ExtraTimeDay: 5}); err != nil {
			return err
		}
		c, _ := tx.GetCategory("games")
		if c.ExtraTimeInMillis != 1500 {
			t.Errorf("same day: %d", c.ExtraTimeInMillis)
		}
		if err := apply(tx, &actions.IncrementCategoryExtraTime{CategoryID: "games", AddedExtraTime: 200, ExtraTimeDay: 6}); err != nil {
			return err
		}
		c, _ = tx.GetCategory("games")
		if c.ExtraTimeInMillis != 200 || c.ExtraTimeDay != 6 {
			t.Errorf("other day: %+v", c)
		}
		return nil
	})
}

func TestApply_MissingEntity(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	err := database.Transaction(context.Background(), func(tx *db.Tx) error {
		return apply(tx, &actions.UpdateCategoryTitle{CategoryID: "nope", Title: "x"})
	})
	if !errors.Is(err, ErrMissingEntity) {
		t.Fatalf("expected ErrMissingEntity, got %v", err)
	}

	err = database.Transaction(context.Background(), func(tx *db.Tx) error {
		return apply(tx, &actions.CreateCategory{CategoryID: "c", ChildID: "parent", Title: "x"})
	})
	if !errors.Is(err, ErrMissingEntity) {
		t.Fatalf("category for a parent should be rejected, got %v", err)
	}
}

func TestApply_ChildSignIn(t *testing.T) {
	database := newTestDB(t)
	seedFamily(t, database)

	run(t, database, func(tx *db.Tx) error {
		if err := tx.UnassignUserFromDevices("kid"); err != nil {
			return err
		}
		if err := Apply(tx, actions.New(&actions.ChildSignIn{}), Context{DeviceID: deviceID, ActorID: "kid"}); err != nil {
			return err
		}
		d, _ := tx.GetDevice(deviceID)
		if d.CurrentUserID != "kid" {
			t.Errorf("current user: %q", d.CurrentUserID)
		}
		return nil
	})
}
