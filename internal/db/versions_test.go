package db

import (
	"testing"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

func TestClientDataStatus(t *testing.T) {
	database := newTestDB(t)

	mustTx(t, database, func(tx *Tx) error {
		if err := tx.InsertDevice(models.Device{ID: "d1"}); err != nil {
			return err
		}
		if err := tx.InsertDevice(models.Device{ID: "d2"}); err != nil {
			return err
		}
		if err := tx.InsertCategory(models.Category{ID: "c1", ChildID: "kid", Title: "Games", ExtraTimeDay: -1}); err != nil {
			return err
		}
		for _, v := range []models.VersionToken{
			{Family: models.FamilyUsers, Token: "u3"},
			{Family: models.FamilyDevices, Token: "d7"},
			{Family: models.FamilyInstalledApps, Scope: "d1", Token: "a1"},
			{Family: models.FamilyCategoryBase, Scope: "c1", Token: "b1"},
			{Family: models.FamilyCategoryRules, Scope: "c1", Token: "r1"},
			{Family: models.FamilyCategoryBase, Scope: "gone", Token: "x"},
		} {
			if err := tx.SetVersionToken(v.Family, v.Scope, v.Token); err != nil {
				return err
			}
		}

		status, err := tx.ClientDataStatus()
		if err != nil {
			return err
		}
		if status.Users != "u3" || status.Devices != "d7" {
			t.Errorf("top-level tokens: %+v", status)
		}
		if status.Apps["d1"] != "a1" {
			t.Errorf("apps d1: %q", status.Apps["d1"])
		}
		if tok, ok := status.Apps["d2"]; !ok || tok != "" {
			t.Errorf("apps d2 should be present and empty: %q %v", tok, ok)
		}
		cs := status.Categories["c1"]
		if cs.Base != "b1" || cs.Rules != "r1" || cs.AssignedApps != "" || cs.UsedTime != "" {
			t.Errorf("category c1: %+v", cs)
		}
		if _, ok := status.Categories["gone"]; ok {
			t.Error("tokens of unknown categories must not be reported")
		}
		if status.ClientLevel != ClientLevel {
			t.Errorf("client level: %d", status.ClientLevel)
		}
		return nil
	})
}

func TestWipeVersionTokens_KeepsData(t *testing.T) {
	database := newTestDB(t)

	mustTx(t, database, func(tx *Tx) error {
		if err := tx.InsertUser(models.User{ID: "u1", Name: "Ann", Type: models.UserTypeParent}); err != nil {
			return err
		}
		if err := tx.SetVersionToken(models.FamilyUsers, "", "v1"); err != nil {
			return err
		}
		if err := tx.WipeVersionTokens(); err != nil {
			return err
		}
		tok, err := tx.GetVersionToken(models.FamilyUsers, "")
		if err != nil {
			return err
		}
		if tok != "" {
			t.Errorf("token should be wiped, got %q", tok)
		}
		u, err := tx.GetUser("u1")
		if err != nil {
			return err
		}
		if u == nil {
			t.Error("entity data must survive a token wipe")
		}
		return nil
	})
}
