package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/offsync/internal/offline"
)

// ErrCorrupt is returned by Load when a stored queue cannot be decoded.
var ErrCorrupt = errors.New("corrupt queue record")

// Load reads the queue of userID. A user with no stored queue gets an
// empty one.
func (db *DB) Load(userID string) (*offline.Queue, error) {
	q := offline.NewQueue(userID)

	var lastSync sql.NullInt64
	var syncing bool
	err := db.QueryRow(`SELECT last_sync_at, is_syncing FROM sync_queues WHERE user_id = ?`, userID).
		Scan(&lastSync, &syncing)
	if errors.Is(err, sql.ErrNoRows) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	q.IsSyncing = syncing
	if lastSync.Valid {
		t := time.UnixMilli(lastSync.Int64)
		q.LastSyncAt = &t
	}

	rows, err := db.Query(`
		SELECT entry_id, entry_type, payload, created_at, sync_status, retry_count, last_error
		FROM queue_entries WHERE user_id = ? ORDER BY position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			e         offline.Entry
			typ       string
			status    string
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &typ, &payload, &createdAt, &status, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Type = offline.EntryType(typ)
		e.SyncStatus = offline.Status(status)
		if !validStatus(e.SyncStatus) {
			return nil, fmt.Errorf("%w: entry %s has status %q", ErrCorrupt, e.ID, status)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		if e.Payload, err = offline.DecodeRecord(e.Type, payload); err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", ErrCorrupt, e.ID, err)
		}
		q.Entries = append(q.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return q, nil
}

// Save replaces the stored queue of q.UserID in a single transaction.
func (db *DB) Save(q *offline.Queue) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastSync sql.NullInt64
	if q.LastSyncAt != nil {
		lastSync = sql.NullInt64{Int64: q.LastSyncAt.UnixMilli(), Valid: true}
	}
	if _, err := tx.Exec(`
		INSERT INTO sync_queues (user_id, last_sync_at, is_syncing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			is_syncing = excluded.is_syncing,
			updated_at = excluded.updated_at`,
		q.UserID, lastSync, q.IsSyncing, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert queue: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM queue_entries WHERE user_id = ?`, q.UserID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO queue_entries (user_id, entry_id, position, entry_type, payload, created_at, sync_status, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range q.Entries {
		payload, err := offline.EncodeRecord(e.Payload)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
		if _, err := stmt.Exec(q.UserID, e.ID, i, string(e.Type), string(payload),
			e.CreatedAt.UnixMilli(), string(e.SyncStatus), e.RetryCount, e.LastError); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit queue: %w", err)
	}
	return nil
}

func validStatus(s offline.Status) bool {
	switch s {
	case offline.StatusPending, offline.StatusSyncing, offline.StatusSynced, offline.StatusFailed:
		return true
	}
	return false
}
