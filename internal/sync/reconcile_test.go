package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

func reconcileOK(t *testing.T, database *db.DB, s *models.ServerDataStatus) {
	t.Helper()
	inTx(t, database, func(tx *db.Tx) error { return reconcile(tx, testDeviceID, s) })
}

func users(list ...models.ServerUser) *models.ServerUserList {
	return &models.ServerUserList{Version: "u2", Data: list}
}

var (
	parentUser = models.ServerUser{User: models.User{ID: "parent", Name: "Pat", Type: models.UserTypeParent, SecondPasswordSalt: "00ff"}}
	kidUser    = models.ServerUser{User: models.User{ID: "kid", Name: "Kim", Type: models.UserTypeChild}}
)

func TestReconcile_TokenEqualsResponseAndOmittedFamilyUntouched(t *testing.T) {
	database := newFamilyDB(t)
	server := newFakeServer()
	server.snapshot = &models.ServerDataStatus{
		UserList: users(parentUser, kidUser),
		CategoryTimeLimitRules: []models.ServerTimeLimitRules{{
			CategoryID: "C1", Version: "r5",
			Rules: []models.TimeLimitRule{{ID: "r1", DayMask: 127, MaximumTimeInMillis: 3600_000, EndMinuteOfDay: 1439}},
		}},
	}
	engine := NewEngine(database, server, EngineOptions{})

	_, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	inTx(t, database, func(tx *db.Tx) error {
		tok, err := tx.GetVersionToken(models.FamilyUsers, "")
		require.NoError(t, err)
		assert.Equal(t, "u2", tok)
		tok, err = tx.GetVersionToken(models.FamilyCategoryRules, "C1")
		require.NoError(t, err)
		assert.Equal(t, "r5", tok)
		rule, err := tx.GetRule("r1")
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, "C1", rule.CategoryID)
		return nil
	})

	// the next pull reports the stored tokens and an empty response keeps everything
	_, err = engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, server.pullStatus, 2)
	assert.Equal(t, "u2", server.pullStatus[1].Users)
	assert.Equal(t, "r5", server.pullStatus[1].Categories["C1"].Rules)
	inTx(t, database, func(tx *db.Tx) error {
		rules, err := tx.ListRules("C1")
		require.NoError(t, err)
		assert.Len(t, rules, 1)
		return nil
	})
}

func TestReconcile_RemovedUserCascadesThroughDispatch(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error {
		if err := tx.AddCategoryApps("C1", []string{"com.game"}); err != nil {
			return err
		}
		return tx.AddUsedTime("C1", 100, db.MinuteOfDayStart, db.MinuteOfDayEnd, 50)
	})

	reconcileOK(t, database, &models.ServerDataStatus{UserList: users(parentUser)})

	inTx(t, database, func(tx *db.Tx) error {
		u, err := tx.GetUser("kid")
		require.NoError(t, err)
		assert.Nil(t, u)
		c, err := tx.GetCategory("C1")
		require.NoError(t, err)
		assert.Nil(t, c)
		apps, err := tx.ListCategoryApps("C1")
		require.NoError(t, err)
		assert.Empty(t, apps)
		used, err := tx.ListUsedTimes("C1")
		require.NoError(t, err)
		assert.Empty(t, used)
		d, err := tx.GetDevice(testDeviceID)
		require.NoError(t, err)
		assert.Empty(t, d.CurrentUserID)
		return nil
	})
}

func TestReconcile_UserUpdateAndLoginCategory(t *testing.T) {
	database := newFamilyDB(t)
	renamed := parentUser
	renamed.Name = "Patricia"
	renamed.LimitLoginCategory = "C1"

	reconcileOK(t, database, &models.ServerDataStatus{UserList: users(renamed, kidUser)})
	inTx(t, database, func(tx *db.Tx) error {
		u, err := tx.GetUser("parent")
		require.NoError(t, err)
		assert.Equal(t, "Patricia", u.Name)
		cat, err := tx.GetUserLimitLoginCategory("parent")
		require.NoError(t, err)
		assert.Equal(t, "C1", cat)
		return nil
	})

	reconcileOK(t, database, &models.ServerDataStatus{UserList: users(parentUser, kidUser)})
	inTx(t, database, func(tx *db.Tx) error {
		cat, err := tx.GetUserLimitLoginCategory("parent")
		require.NoError(t, err)
		assert.Empty(t, cat)
		return nil
	})
}

func TestReconcile_DevicesAndSuspension(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error {
		if err := tx.InsertDevice(models.Device{ID: "old-phone"}); err != nil {
			return err
		}
		return tx.SetConfigInt64(db.KeyEnforcementSuspendedUntil, 12345)
	})

	reconcileOK(t, database, &models.ServerDataStatus{DeviceList: &models.ServerDeviceList{
		Version: "d3",
		Data: []models.Device{
			{ID: testDeviceID, Name: "tablet", CurrentUserID: "parent", DefaultUserID: "kid"},
			{ID: "laptop", Name: "laptop"},
		},
	}})

	inTx(t, database, func(tx *db.Tx) error {
		devices, err := tx.ListDevices()
		require.NoError(t, err)
		ids := []string{}
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
		assert.ElementsMatch(t, []string{testDeviceID, "laptop"}, ids)
		v, err := tx.GetConfig(db.KeyEnforcementSuspendedUntil)
		require.NoError(t, err)
		assert.Empty(t, v, "a new user at this device ends the suspension")
		tok, err := tx.GetVersionToken(models.FamilyDevices, "")
		require.NoError(t, err)
		assert.Equal(t, "d3", tok)
		return nil
	})
}

func TestReconcile_DeviceWithUnknownUser(t *testing.T) {
	database := newFamilyDB(t)
	err := database.Transaction(context.Background(), func(tx *db.Tx) error {
		return reconcile(tx, testDeviceID, &models.ServerDataStatus{DeviceList: &models.ServerDeviceList{
			Version: "d1",
			Data:    []models.Device{{ID: testDeviceID, CurrentUserID: "stranger"}},
		}})
	})
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, models.FamilyDevices, ce.Family)
}

func TestReconcile_InstalledAppsReplaced(t *testing.T) {
	database := newFamilyDB(t)
	for _, names := range [][]string{{"a", "b"}, {"c"}} {
		var apps []models.InstalledApp
		for _, n := range names {
			apps = append(apps, models.InstalledApp{DeviceID: testDeviceID, PackageName: n, Title: n})
		}
		reconcileOK(t, database, &models.ServerDataStatus{InstalledApps: []models.ServerInstalledAppsData{
			{DeviceID: testDeviceID, Version: "i-" + names[0], Apps: apps},
		}})
	}
	inTx(t, database, func(tx *db.Tx) error {
		apps, err := tx.ListInstalledApps(testDeviceID)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "c", apps[0].PackageName)
		tok, err := tx.GetVersionToken(models.FamilyInstalledApps, testDeviceID)
		require.NoError(t, err)
		assert.Equal(t, "i-c", tok)
		return nil
	})
}

func TestReconcile_CategoryFamilies(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error {
		if err := tx.InsertRule(models.TimeLimitRule{ID: "stale", CategoryID: "C1", DayMask: 1}); err != nil {
			return err
		}
		return tx.AddUsedTime("C1", 99, db.MinuteOfDayStart, db.MinuteOfDayEnd, 1)
	})

	reconcileOK(t, database, &models.ServerDataStatus{
		CategoryBase: []models.ServerCategoryBaseData{
			{Version: "b2", Category: models.Category{ID: "C2", ChildID: "kid", Title: "Sub", ParentCategoryID: "C1", ExtraTimeDay: -1}},
			{Version: "b1", Category: models.Category{ID: "C1", ChildID: "kid", Title: "Renamed", ExtraTimeDay: -1}},
		},
		CategoryAssignedApps: []models.ServerCategoryAssignedApps{{CategoryID: "C2", Version: "a1", PackageNames: []string{"x", "y"}}},
		CategoryTimeLimitRules: []models.ServerTimeLimitRules{{CategoryID: "C1", Version: "r1", Rules: []models.TimeLimitRule{
			{ID: "fresh", DayMask: 3, MaximumTimeInMillis: 100},
		}}},
		CategoryUsedTimes: []models.ServerUsedTimeData{{CategoryID: "C1", Version: "t1", UsedTimes: []models.UsedTimeItem{
			{CategoryID: "C1", DayOfEpoch: 100, UsedMillis: 77, StartMinuteOfDay: 0, EndMinuteOfDay: 1439},
		}}},
		FullVersionUntil: 999,
		Message:          "hello",
	})

	inTx(t, database, func(tx *db.Tx) error {
		c1, err := tx.GetCategory("C1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", c1.Title)
		apps, err := tx.ListCategoryApps("C2")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x", "y"}, apps)
		rules, err := tx.ListRules("C1")
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "fresh", rules[0].ID)
		used, err := tx.ListUsedTimes("C1")
		require.NoError(t, err)
		require.Len(t, used, 1)
		assert.Equal(t, int64(77), used[0].UsedMillis)
		until, err := tx.GetConfigInt64(db.KeyFullVersionUntil)
		require.NoError(t, err)
		assert.Equal(t, int64(999), until)
		msg, err := tx.GetConfig(db.KeyServerMessage)
		require.NoError(t, err)
		assert.Equal(t, "hello", msg)
		return nil
	})
}

func TestReconcile_RulesForUnknownCategory(t *testing.T) {
	database := newFamilyDB(t)
	err := database.Transaction(context.Background(), func(tx *db.Tx) error {
		return reconcile(tx, testDeviceID, &models.ServerDataStatus{
			CategoryTimeLimitRules: []models.ServerTimeLimitRules{{CategoryID: "nope", Version: "r1"}},
		})
	})
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, models.FamilyCategoryRules, ce.Family)
	assert.Contains(t, ce.Error(), "category nope")
}

func TestReconcile_RemovedCategoryDropsItsTokens(t *testing.T) {
	database := newFamilyDB(t)
	inTx(t, database, func(tx *db.Tx) error {
		return tx.SetVersionToken(models.FamilyCategoryBase, "C1", "b1")
	})
	reconcileOK(t, database, &models.ServerDataStatus{RemovedCategories: []string{"C1", "never-known"}})
	inTx(t, database, func(tx *db.Tx) error {
		tok, err := tx.GetVersionToken(models.FamilyCategoryBase, "C1")
		require.NoError(t, err)
		assert.Empty(t, tok)
		return nil
	})
}
