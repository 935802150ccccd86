package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
)

// ErrNotFrozen is returned by RemoveBatch when a listed entry is missing or
// was never frozen for upload.
var ErrNotFrozen = errors.New("action not frozen for upload")

// PendingAction is one entry of the local action log.
type PendingAction struct {
	SequenceNumber  int64
	EncodedAction   string
	Kind            actions.Kind
	Type            actions.Type
	Attribution     string
	ActorID         string
	FrozenForUpload bool
}

const pendingColumns = `sequence_number, encoded_action, kind, action_type, attribution, actor_id, frozen_for_upload`

func scanPending(rows *sql.Rows) ([]PendingAction, error) {
	defer rows.Close()
	var out []PendingAction
	for rows.Next() {
		var (
			a      PendingAction
			frozen int
		)
		if err := rows.Scan(&a.SequenceNumber, &a.EncodedAction, &a.Kind, &a.Type, &a.Attribution, &a.ActorID, &frozen); err != nil {
			return nil, err
		}
		a.FrozenForUpload = frozen != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendAction adds a new unfrozen entry to the log.
func (tx *Tx) AppendAction(a PendingAction) error {
	_, err := tx.tx.Exec(`INSERT INTO pending_sync_actions
		(sequence_number, encoded_action, kind, action_type, attribution, actor_id, frozen_for_upload)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		a.SequenceNumber, a.EncodedAction, a.Kind, a.Type, a.Attribution, a.ActorID)
	if err != nil {
		return fmt.Errorf("append action %d: %w", a.SequenceNumber, err)
	}
	return nil
}

// LatestUnfrozen returns the unfrozen entry with the highest sequence number,
// restricted to the given kinds when any are passed. It returns nil when
// there is none.
func (tx *Tx) LatestUnfrozen(kinds ...actions.Kind) (*PendingAction, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_sync_actions WHERE frozen_for_upload = 0`
	args := make([]any, 0, len(kinds))
	if len(kinds) > 0 {
		query += ` AND kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += ` ORDER BY sequence_number DESC LIMIT 1`

	rows, err := tx.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest unfrozen: %w", err)
	}
	list, err := scanPending(rows)
	if err != nil {
		return nil, fmt.Errorf("scan latest unfrozen: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// UpdateUnfrozenAction replaces the encoding of an unfrozen entry in place.
// A frozen entry is never rewritten.
func (tx *Tx) UpdateUnfrozenAction(seq int64, encoded string) error {
	res, err := tx.tx.Exec(`UPDATE pending_sync_actions SET encoded_action = ?
		WHERE sequence_number = ? AND frozen_for_upload = 0`, encoded, seq)
	if err != nil {
		return fmt.Errorf("update action %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("update action %d: not an unfrozen entry", seq)
	}
	return nil
}

// SetAttribution replaces the attribution of an entry, frozen or not. It is
// the one change allowed on a frozen entry: the encoding and sequence number
// the server saw stay as they are.
func (tx *Tx) SetAttribution(seq int64, attribution string) error {
	res, err := tx.tx.Exec(`UPDATE pending_sync_actions SET attribution = ? WHERE sequence_number = ?`, attribution, seq)
	if err != nil {
		return fmt.Errorf("set attribution of action %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("set attribution of action %d: no such entry", seq)
	}
	return nil
}

// NextUnfrozenBatch returns up to limit unfrozen entries in sequence order.
func (tx *Tx) NextUnfrozenBatch(limit int) ([]PendingAction, error) {
	rows, err := tx.tx.Query(`SELECT `+pendingColumns+` FROM pending_sync_actions
		WHERE frozen_for_upload = 0 ORDER BY sequence_number ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unfrozen batch: %w", err)
	}
	return scanPending(rows)
}

// FrozenBatch returns up to limit frozen entries in sequence order.
func (tx *Tx) FrozenBatch(limit int) ([]PendingAction, error) {
	rows, err := tx.tx.Query(`SELECT `+pendingColumns+` FROM pending_sync_actions
		WHERE frozen_for_upload = 1 ORDER BY sequence_number ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query frozen batch: %w", err)
	}
	return scanPending(rows)
}

// FreezeActions marks entries as being uploaded. Frozen entries are immutable.
func (tx *Tx) FreezeActions(seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := tx.tx.Exec(`UPDATE pending_sync_actions SET frozen_for_upload = 1
		WHERE sequence_number IN (`+placeholders(len(seqs))+`)`, int64Args(seqs)...)
	if err != nil {
		return fmt.Errorf("freeze actions: %w", err)
	}
	return nil
}

// RemoveBatch deletes confirmed entries. Every listed entry must exist and be frozen.
func (tx *Tx) RemoveBatch(seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	var frozen int
	err := tx.tx.QueryRow(`SELECT COUNT(*) FROM pending_sync_actions
		WHERE frozen_for_upload = 1 AND sequence_number IN (`+placeholders(len(seqs))+`)`, int64Args(seqs)...).Scan(&frozen)
	if err != nil {
		return fmt.Errorf("check frozen: %w", err)
	}
	if frozen != len(seqs) {
		return fmt.Errorf("remove batch: %w (%d of %d frozen)", ErrNotFrozen, frozen, len(seqs))
	}
	_, err = tx.tx.Exec(`DELETE FROM pending_sync_actions
		WHERE sequence_number IN (`+placeholders(len(seqs))+`)`, int64Args(seqs)...)
	if err != nil {
		return fmt.Errorf("remove batch: %w", err)
	}
	return nil
}

// CountPendingActions returns the number of entries in the log.
func (tx *Tx) CountPendingActions() (int, error) {
	var n int
	if err := tx.tx.QueryRow(`SELECT COUNT(*) FROM pending_sync_actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return n, nil
}

// CountFrozen returns the number of entries frozen for upload.
func (tx *Tx) CountFrozen() (int, error) {
	var n int
	if err := tx.tx.QueryRow(`SELECT COUNT(*) FROM pending_sync_actions WHERE frozen_for_upload = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count frozen actions: %w", err)
	}
	return n, nil
}

// PendingAfter returns the entries with a sequence number above seq, in
// sequence order.
func (tx *Tx) PendingAfter(seq int64) ([]PendingAction, error) {
	rows, err := tx.tx.Query(`SELECT `+pendingColumns+` FROM pending_sync_actions
		WHERE sequence_number > ? ORDER BY sequence_number ASC`, seq)
	if err != nil {
		return nil, fmt.Errorf("query actions after %d: %w", seq, err)
	}
	return scanPending(rows)
}

// ListPendingActions returns the whole log in sequence order.
func (tx *Tx) ListPendingActions() ([]PendingAction, error) {
	rows, err := tx.tx.Query(`SELECT ` + pendingColumns + ` FROM pending_sync_actions ORDER BY sequence_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	return scanPending(rows)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(v []int64) []any {
	args := make([]any, len(v))
	for i, x := range v {
		args[i] = x
	}
	return args
}

func stringArgs(v []string) []any {
	args := make([]any, len(v))
	for i, x := range v {
		args[i] = x
	}
	return args
}

// MarkApplied records that seq from deviceID was applied. It returns false
// when the pair was recorded before, so a resent batch is applied once.
func (tx *Tx) MarkApplied(deviceID string, seq int64, t actions.Type) (bool, error) {
	res, err := tx.tx.Exec(`INSERT OR IGNORE INTO applied_actions (device_id, sequence_number, action_type) VALUES (?, ?, ?)`,
		deviceID, seq, t)
	if err != nil {
		return false, fmt.Errorf("mark applied %s/%d: %w", deviceID, seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark applied %s/%d: %w", deviceID, seq, err)
	}
	return n == 1, nil
}

// LastApplied returns the highest sequence number applied for deviceID.
func (tx *Tx) LastApplied(deviceID string) (int64, error) {
	var seq sql.NullInt64
	if err := tx.tx.QueryRow(`SELECT MAX(sequence_number) FROM applied_actions WHERE device_id = ?`, deviceID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last applied %s: %w", deviceID, err)
	}
	return seq.Int64, nil
}
