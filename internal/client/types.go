package client

import "encoding/json"

// EntryError is one failed attempt reported by a pass.
type EntryError struct {
	EntryID   string `json:"entry_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Permanent bool   `json:"permanent"`
	Dropped   bool   `json:"dropped"`
}

// SyncResult mirrors offline.Result.
type SyncResult struct {
	Outcome string       `json:"outcome"`
	Success bool         `json:"success"`
	Synced  int          `json:"synced"`
	Failed  int          `json:"failed"`
	Dropped int          `json:"dropped"`
	Errors  []EntryError `json:"errors"`
}

// Entry is a queued mutation as reported by Status.
type Entry struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error"`
	CreatedAt  string `json:"created_at"`
}

// Status is the daemon's view of the queue.
type Status struct {
	UserID       string  `json:"user_id"`
	Pending      int     `json:"pending"`
	HasPending   bool    `json:"has_pending"`
	IsSyncing    bool    `json:"is_syncing"`
	LastSyncAt   string  `json:"last_sync_at"`
	Online       bool    `json:"online"`
	Connectivity string  `json:"connectivity"`
	Forced       bool    `json:"forced"`
	Entries      []Entry `json:"entries"`
}

// ProbeResult is the connectivity state after a probe.
type ProbeResult struct {
	Connectivity string `json:"connectivity"`
	Online       bool   `json:"online"`
}

// Pass is a stored sync pass summary.
type Pass struct {
	StartedAt  string       `json:"started_at"`
	FinishedAt string       `json:"finished_at"`
	Synced     int          `json:"synced"`
	Failed     int          `json:"failed"`
	Dropped    int          `json:"dropped"`
	Errors     []EntryError `json:"errors"`
}

// Event is one envelope from WatchEvents.
type Event struct {
	EventID    string          `json:"event_id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}
