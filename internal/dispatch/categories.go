package dispatch

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

func requireCategory(tx *db.Tx, id string) (*models.Category, error) {
	cat, err := tx.GetCategory(id)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, missing("category", id)
	}
	return cat, nil
}

func createCategory(tx *db.Tx, p *actions.CreateCategory, _ Context) error {
	child, err := tx.GetUser(p.ChildID)
	if err != nil {
		return err
	}
	if child == nil || child.Type != models.UserTypeChild {
		return missing("child", p.ChildID)
	}
	existing, err := tx.GetCategory(p.CategoryID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("category %s already exists", p.CategoryID)
	}
	siblings, err := tx.ListCategoriesOfChild(p.ChildID)
	if err != nil {
		return err
	}
	return tx.InsertCategory(models.Category{
		ID:           p.CategoryID,
		ChildID:      p.ChildID,
		Title:        p.Title,
		ExtraTimeDay: -1,
		Sort:         len(siblings),
	})
}

// deleteCategory removes a category with its subcategories, rules, apps,
// used time and every reference to it. Deleting an unknown category is a no-op.
func deleteCategory(tx *db.Tx, p *actions.DeleteCategory, c Context) error {
	cat, err := tx.GetCategory(p.CategoryID)
	if err != nil || cat == nil {
		return err
	}

	subs, err := tx.ListSubcategories(cat.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := deleteCategory(tx, &actions.DeleteCategory{CategoryID: sub.ID}, c); err != nil {
			return err
		}
	}

	if err := tx.DeleteRulesOfCategory(cat.ID); err != nil {
		return err
	}
	if err := tx.DeleteCategoryApps(cat.ID); err != nil {
		return err
	}
	if err := tx.DeleteUsedTimesOfCategory(cat.ID); err != nil {
		return err
	}
	if err := tx.DeleteLoginCategoryReferences(cat.ID); err != nil {
		return err
	}
	if err := tx.ClearCategoryForNotAssignedApps(cat.ID); err != nil {
		return err
	}
	if err := tx.DeleteVersionTokens(cat.ID,
		models.FamilyCategoryBase, models.FamilyCategoryApps, models.FamilyCategoryRules, models.FamilyCategoryUsedTime); err != nil {
		return err
	}
	return tx.DeleteCategoryRecord(cat.ID)
}

func updateCategoryTitle(tx *db.Tx, p *actions.UpdateCategoryTitle, _ Context) error {
	cat, err := requireCategory(tx, p.CategoryID)
	if err != nil {
		return err
	}
	cat.Title = p.Title
	return tx.UpdateCategory(*cat)
}

// addCategoryApps assigns packages, moving them out of any other category of the same child.
func addCategoryApps(tx *db.Tx, p *actions.AddCategoryApps, _ Context) error {
	cat, err := requireCategory(tx, p.CategoryID)
	if err != nil {
		return err
	}
	siblings, err := tx.ListCategoriesOfChild(cat.ChildID)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID == cat.ID {
			continue
		}
		if err := tx.RemoveCategoryApps(s.ID, p.PackageNames); err != nil {
			return err
		}
	}
	return tx.AddCategoryApps(cat.ID, p.PackageNames)
}

func removeCategoryApps(tx *db.Tx, p *actions.RemoveCategoryApps, _ Context) error {
	if _, err := requireCategory(tx, p.CategoryID); err != nil {
		return err
	}
	return tx.RemoveCategoryApps(p.CategoryID, p.PackageNames)
}

// incrementExtraTime grants extra time. Extra time bound to another day is discarded first.
func incrementExtraTime(tx *db.Tx, p *actions.IncrementCategoryExtraTime, _ Context) error {
	cat, err := requireCategory(tx, p.CategoryID)
	if err != nil {
		return err
	}
	if cat.ExtraTimeDay != p.ExtraTimeDay {
		cat.ExtraTimeInMillis = 0
		cat.ExtraTimeDay = p.ExtraTimeDay
	}
	cat.ExtraTimeInMillis += p.AddedExtraTime
	return tx.UpdateCategory(*cat)
}

func createRule(tx *db.Tx, p *actions.CreateTimeLimitRule, _ Context) error {
	if _, err := requireCategory(tx, p.Rule.CategoryID); err != nil {
		return err
	}
	existing, err := tx.GetRule(p.Rule.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("rule %s already exists", p.Rule.ID)
	}
	return tx.InsertRule(p.Rule)
}

func updateRule(tx *db.Tx, p *actions.UpdateTimeLimitRule, _ Context) error {
	existing, err := tx.GetRule(p.Rule.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return missing("rule", p.Rule.ID)
	}
	if existing.CategoryID != p.Rule.CategoryID {
		return fmt.Errorf("rule %s cannot move to another category", p.Rule.ID)
	}
	return tx.UpdateRule(p.Rule)
}

func deleteRule(tx *db.Tx, p *actions.DeleteTimeLimitRule, _ Context) error {
	existing, err := tx.GetRule(p.RuleID)
	if err != nil {
		return err
	}
	if existing == nil {
		return missing("rule", p.RuleID)
	}
	return tx.DeleteRule(p.RuleID)
}
