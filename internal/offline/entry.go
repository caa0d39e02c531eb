package offline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a queued entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// MaxRetries is the give-up ceiling: an entry whose retry count reaches it
// is removed from the queue.
const MaxRetries = 5

// PlaceholderPrefix marks ids minted on the device.
const PlaceholderPrefix = "offline_"

// Entry is one locally created mutation awaiting delivery.
type Entry struct {
	ID         string
	Type       EntryType
	Payload    Record
	CreatedAt  time.Time
	SyncStatus Status
	RetryCount int
	LastError  string
}

// NeedsAttempt reports whether the entry is waiting for another sync attempt.
func (e *Entry) NeedsAttempt() bool {
	return e.SyncStatus == StatusPending || e.SyncStatus == StatusFailed
}

// Queue is the per-user aggregate persisted by a QueueStore.
// Entries are kept in enqueue order.
type Queue struct {
	UserID     string
	Entries    []Entry
	LastSyncAt *time.Time
	IsSyncing  bool
}

// NewQueue returns an empty queue for userID.
func NewQueue(userID string) *Queue {
	return &Queue{UserID: userID}
}

// Clone returns a copy that shares no mutable state with q except the
// payload records. Those are private copies made at enqueue and never
// modified afterwards.
func (q *Queue) Clone() *Queue {
	c := &Queue{
		UserID:    q.UserID,
		IsSyncing: q.IsSyncing,
		Entries:   make([]Entry, len(q.Entries)),
	}
	copy(c.Entries, q.Entries)
	if q.LastSyncAt != nil {
		t := *q.LastSyncAt
		c.LastSyncAt = &t
	}
	return c
}

func (q *Queue) index(id string) int {
	for i := range q.Entries {
		if q.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) remove(id string) bool {
	i := q.index(id)
	if i < 0 {
		return false
	}
	q.Entries = append(q.Entries[:i], q.Entries[i+1:]...)
	return true
}

// recover resets state left behind by a process that died mid-pass.
// It reports whether anything changed.
func (q *Queue) recover() bool {
	changed := q.IsSyncing
	q.IsSyncing = false
	for i := range q.Entries {
		if q.Entries[i].SyncStatus == StatusSyncing {
			q.Entries[i].SyncStatus = StatusFailed
			q.Entries[i].LastError = ErrInterrupted.Error()
			changed = true
		}
	}
	return changed
}

func newEntryID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", PlaceholderPrefix, now.UnixMilli(), suffix)
}
