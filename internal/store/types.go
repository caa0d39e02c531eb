package store

import "time"

// Pass is a stored summary of one completed sync pass.
type Pass struct {
	ID         int64
	UserID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Synced     int
	Failed     int
	Dropped    int
	Errors     []PassError
}

// PassError is one failed attempt within a pass.
type PassError struct {
	EntryID   string `json:"entry_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Permanent bool   `json:"permanent,omitempty"`
	Dropped   bool   `json:"dropped,omitempty"`
}
