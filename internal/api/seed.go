package api

import (
	"context"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/serverdb"
)

// FamilySeed describes a family as an operator sets it up: its members with
// their passwords and the categories limiting the children.
type FamilySeed struct {
	FamilyID         string         `json:"family_id"`
	FullVersionUntil int64          `json:"full_version_until"`
	Message          string         `json:"message"`
	Users            []SeedUser     `json:"users"`
	Categories       []SeedCategory `json:"categories"`
}

// SeedUser is a family member. Children may go without a password.
type SeedUser struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     models.UserType `json:"type"`
	Password string          `json:"password"`
	Timezone string          `json:"timezone"`
}

// SeedCategory is a category of a child with its apps and rules.
type SeedCategory struct {
	ID               string                 `json:"id"`
	ChildID          string                 `json:"child_id"`
	Title            string                 `json:"title"`
	ParentCategoryID string                 `json:"parent_category_id"`
	Apps             []string               `json:"apps"`
	Rules            []models.TimeLimitRule `json:"rules"`
}

// SeedFamily creates or updates a family from seed. Existing devices of the
// family are told to drop their version tokens on their next push.
func SeedFamily(ctx context.Context, store *serverdb.ServerDB, stores *FamilyStorePool, seed FamilySeed) error {
	if seed.FamilyID == "" {
		return fmt.Errorf("seed: family_id is required")
	}
	if err := store.CreateFamily(seed.FamilyID, seed.FullVersionUntil, seed.Message); err != nil {
		return err
	}

	users := make([]models.User, 0, len(seed.Users))
	for _, su := range seed.Users {
		if su.ID == "" {
			return fmt.Errorf("seed: user without id")
		}
		if su.Type != models.UserTypeParent && su.Type != models.UserTypeChild {
			return fmt.Errorf("seed: user %s: invalid type %q", su.ID, su.Type)
		}
		u := models.User{ID: su.ID, Name: su.Name, Type: su.Type, Timezone: su.Timezone}
		if su.Password == "" {
			if su.Type == models.UserTypeParent {
				return fmt.Errorf("seed: parent %s needs a password", su.ID)
			}
			users = append(users, u)
			continue
		}

		salt, err := crypto.NewSalt()
		if err != nil {
			return err
		}
		hash, err := crypto.HashPassword(su.Password)
		if err != nil {
			return fmt.Errorf("seed: hash password of %s: %w", su.ID, err)
		}
		second, err := crypto.SecondPasswordHash(su.Password, salt)
		if err != nil {
			return fmt.Errorf("seed: second password of %s: %w", su.ID, err)
		}
		if err := store.SetCredential(serverdb.Credential{
			UserID:             su.ID,
			FamilyID:           seed.FamilyID,
			PasswordHash:       hash,
			SecondPasswordHash: second,
		}); err != nil {
			return err
		}
		u.PasswordHash = hash
		u.SecondPasswordSalt = salt
		users = append(users, u)
	}

	family, err := stores.Get(seed.FamilyID)
	if err != nil {
		return err
	}
	err = family.Transaction(ctx, func(tx *db.Tx) error {
		for _, u := range users {
			existing, err := tx.GetUser(u.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				err = tx.InsertUser(u)
			} else {
				err = tx.UpdateUser(u)
			}
			if err != nil {
				return err
			}
		}
		for i, sc := range seed.Categories {
			if err := seedCategory(tx, sc, i); err != nil {
				return fmt.Errorf("seed: category %s: %w", sc.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return store.MarkFamilyFullResync(seed.FamilyID)
}

func seedCategory(tx *db.Tx, sc SeedCategory, sort int) error {
	child, err := tx.GetUser(sc.ChildID)
	if err != nil {
		return err
	}
	if child == nil || child.Type != models.UserTypeChild {
		return fmt.Errorf("child %q not found", sc.ChildID)
	}

	c := models.Category{
		ID:               sc.ID,
		ChildID:          sc.ChildID,
		Title:            sc.Title,
		ParentCategoryID: sc.ParentCategoryID,
		ExtraTimeDay:     -1,
		Sort:             sort,
	}
	existing, err := tx.GetCategory(sc.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		err = tx.InsertCategory(c)
	} else {
		c.ExtraTimeInMillis = existing.ExtraTimeInMillis
		c.ExtraTimeDay = existing.ExtraTimeDay
		err = tx.UpdateCategory(c)
	}
	if err != nil {
		return err
	}

	if err := tx.ReplaceCategoryApps(sc.ID, sc.Apps); err != nil {
		return err
	}
	if err := tx.DeleteRulesOfCategory(sc.ID); err != nil {
		return err
	}
	for _, r := range sc.Rules {
		r.CategoryID = sc.ID
		if err := tx.InsertRule(r); err != nil {
			return err
		}
	}
	return nil
}
