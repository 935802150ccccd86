package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential is the password material of one family member. The second
// password hash is what attributions of that member are checked against.
type Credential struct {
	UserID             string
	FamilyID           string
	PasswordHash       string
	SecondPasswordHash string
}

// SetCredential stores or replaces the credential of a user.
func (db *ServerDB) SetCredential(c Credential) error {
	_, err := db.conn.Exec(`
		INSERT INTO credentials (user_id, family_id, password_hash, second_password_hash, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET family_id = excluded.family_id, password_hash = excluded.password_hash,
			second_password_hash = excluded.second_password_hash, updated_at = excluded.updated_at`,
		c.UserID, c.FamilyID, c.PasswordHash, c.SecondPasswordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// GetCredential returns the credential of a user, or nil if not found.
func (db *ServerDB) GetCredential(userID string) (*Credential, error) {
	c := &Credential{}
	err := db.conn.QueryRow(`SELECT user_id, family_id, password_hash, second_password_hash FROM credentials WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.FamilyID, &c.PasswordHash, &c.SecondPasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

// SecondPasswordHashes maps user id to second password hash for a family.
func (db *ServerDB) SecondPasswordHashes(familyID string) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT user_id, second_password_hash FROM credentials WHERE family_id = ?`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out[id] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: iterate: %w", err)
	}
	return out, nil
}
