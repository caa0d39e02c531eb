package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/offsync/internal/offline"
)

// RecordPass stores the summary of a completed pass.
func (db *DB) RecordPass(userID string, startedAt, finishedAt time.Time, res offline.Result) error {
	errs := make([]PassError, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, PassError{
			EntryID:   e.EntryID,
			Type:      string(e.Type),
			Message:   e.Message,
			Permanent: e.Permanent,
			Dropped:   e.Dropped,
		})
	}
	raw, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode pass errors: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO sync_passes (user_id, started_at, finished_at, synced, failed, dropped, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, startedAt.UnixMilli(), finishedAt.UnixMilli(), res.Synced, res.Failed, res.Dropped, string(raw))
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

// ListPasses returns up to limit passes of userID, most recent first.
func (db *DB) ListPasses(userID string, limit int) ([]Pass, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, user_id, started_at, finished_at, synced, failed, dropped, errors
		FROM sync_passes WHERE user_id = ?
		ORDER BY finished_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var passes []Pass
	for rows.Next() {
		var (
			p                 Pass
			started, finished int64
			raw               string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &started, &finished, &p.Synced, &p.Failed, &p.Dropped, &raw); err != nil {
			return nil, err
		}
		p.StartedAt = time.UnixMilli(started)
		p.FinishedAt = time.UnixMilli(finished)
		if err := json.Unmarshal([]byte(raw), &p.Errors); err != nil {
			return nil, fmt.Errorf("decode pass %d errors: %w", p.ID, err)
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// PrunePasses keeps the newest keep passes of userID and deletes the rest.
func (db *DB) PrunePasses(userID string, keep int) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM sync_passes WHERE user_id = ? AND id NOT IN (
			SELECT id FROM sync_passes WHERE user_id = ? ORDER BY finished_at DESC, id DESC LIMIT ?
		)`, userID, userID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
