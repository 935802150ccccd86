package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// ClientLevel is reported in every pull request.
const ClientLevel = 5

// GetVersionToken returns the stored token, or "" when the family was never synced.
func (tx *Tx) GetVersionToken(family models.Family, scope string) (string, error) {
	var token string
	err := tx.tx.QueryRow(`SELECT token FROM version_tokens WHERE family = ? AND scope = ?`, family, scope).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get version %s/%s: %w", family, scope, err)
	}
	return token, nil
}

// SetVersionToken records the server state integrated for a family.
func (tx *Tx) SetVersionToken(family models.Family, scope, token string) error {
	_, err := tx.tx.Exec(`INSERT OR REPLACE INTO version_tokens (family, scope, token) VALUES (?, ?, ?)`,
		family, scope, token)
	if err != nil {
		return fmt.Errorf("set version %s/%s: %w", family, scope, err)
	}
	return nil
}

// DeleteVersionTokens removes all tokens of a scope across the given families.
func (tx *Tx) DeleteVersionTokens(scope string, families ...models.Family) error {
	for _, f := range families {
		if _, err := tx.tx.Exec(`DELETE FROM version_tokens WHERE family = ? AND scope = ?`, f, scope); err != nil {
			return fmt.Errorf("delete version %s/%s: %w", f, scope, err)
		}
	}
	return nil
}

// WipeVersionTokens forgets every token so the next pull is a full resync.
// Entity data is left in place.
func (tx *Tx) WipeVersionTokens() error {
	if _, err := tx.tx.Exec(`DELETE FROM version_tokens`); err != nil {
		return fmt.Errorf("wipe version tokens: %w", err)
	}
	return nil
}

// ListVersionTokens returns every stored token.
func (tx *Tx) ListVersionTokens() ([]models.VersionToken, error) {
	rows, err := tx.tx.Query(`SELECT family, scope, token FROM version_tokens ORDER BY family, scope`)
	if err != nil {
		return nil, fmt.Errorf("list version tokens: %w", err)
	}
	defer rows.Close()
	var out []models.VersionToken
	for rows.Next() {
		var v models.VersionToken
		if err := rows.Scan(&v.Family, &v.Scope, &v.Token); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ClientDataStatus builds the pull request body from the stored tokens.
// Every known device and category is listed, with "" for families never synced.
func (tx *Tx) ClientDataStatus() (models.ClientDataStatus, error) {
	status := models.ClientDataStatus{
		Apps:        map[string]string{},
		Categories:  map[string]models.CategoryDataStatus{},
		ClientLevel: ClientLevel,
	}

	devices, err := tx.ListDevices()
	if err != nil {
		return status, err
	}
	for _, d := range devices {
		status.Apps[d.ID] = ""
	}
	categories, err := tx.ListCategories()
	if err != nil {
		return status, err
	}
	for _, c := range categories {
		status.Categories[c.ID] = models.CategoryDataStatus{}
	}

	tokens, err := tx.ListVersionTokens()
	if err != nil {
		return status, err
	}
	for _, v := range tokens {
		switch v.Family {
		case models.FamilyUsers:
			status.Users = v.Token
		case models.FamilyDevices:
			status.Devices = v.Token
		case models.FamilyInstalledApps:
			status.Apps[v.Scope] = v.Token
		case models.FamilyCategoryBase, models.FamilyCategoryApps, models.FamilyCategoryRules, models.FamilyCategoryUsedTime:
			cs, ok := status.Categories[v.Scope]
			if !ok {
				// token for a category no longer stored locally
				continue
			}
			switch v.Family {
			case models.FamilyCategoryBase:
				cs.Base = v.Token
			case models.FamilyCategoryApps:
				cs.AssignedApps = v.Token
			case models.FamilyCategoryRules:
				cs.Rules = v.Token
			case models.FamilyCategoryUsedTime:
				cs.UsedTime = v.Token
			}
			status.Categories[v.Scope] = cs
		}
	}
	return status, nil
}
