package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Outcome says whether a pass ran.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeAlreadySyncing Outcome = "already_syncing"
	OutcomeOffline        Outcome = "offline"
	// OutcomeAborted means the queue could not be saved mid-pass and the
	// remaining entries were left for the next pass.
	OutcomeAborted Outcome = "aborted"
)

// EntryError describes one failed attempt in a pass.
type EntryError struct {
	EntryID   string
	Type      EntryType
	Message   string
	Permanent bool
	Dropped   bool
}

func (e EntryError) String() string {
	return fmt.Sprintf("%s (%s): %s", e.EntryID, e.Type, e.Message)
}

// Result summarizes a pass. Success is true only for a completed pass with
// no failed entries.
type Result struct {
	Outcome Outcome
	Success bool
	Synced  int
	Failed  int
	Dropped int
	Errors  []EntryError
}

// PassRecorder keeps a log of completed passes.
type PassRecorder interface {
	RecordPass(userID string, startedAt, finishedAt time.Time, res Result) error
}

// Sync drains every pending or failed entry against the remote store, one
// entry at a time in queue order. It returns immediately without touching
// the queue when a pass is already running or the device is offline.
//
// Per-entry failures are reported in the Result. The returned error is
// non-nil only when the queue could not be persisted; the pass stops at the
// first such failure so no entry is sent without its state on disk.
func (s *Session) Sync(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.queue.IsSyncing {
		s.mu.Unlock()
		s.logger.Debug("sync skipped, pass in flight")
		return Result{Outcome: OutcomeAlreadySyncing}, nil
	}
	if !s.online.IsOnline() {
		s.mu.Unlock()
		s.logger.Debug("sync skipped, offline")
		return Result{Outcome: OutcomeOffline}, nil
	}

	s.queue.IsSyncing = true
	if err := s.persistLocked(); err != nil {
		s.queue.IsSyncing = false
		s.mu.Unlock()
		return Result{Outcome: OutcomeAborted}, fmt.Errorf("persist queue: %w", err)
	}
	var ids []string
	for i := range s.queue.Entries {
		if s.queue.Entries[i].NeedsAttempt() {
			ids = append(ids, s.queue.Entries[i].ID)
		}
	}
	s.mu.Unlock()

	start := s.now()
	s.logger.Info("sync pass started", zap.Int("entries", len(ids)))
	s.publish(EventSyncStarted, map[string]any{"entries": len(ids)})

	res := Result{Outcome: OutcomeCompleted}
	var storeErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if storeErr = s.attempt(ctx, id, &res); storeErr != nil {
			res.Outcome = OutcomeAborted
			break
		}
	}

	s.mu.Lock()
	kept := make([]Entry, 0, len(s.queue.Entries))
	for _, e := range s.queue.Entries {
		if e.SyncStatus != StatusSynced {
			kept = append(kept, e)
		}
	}
	s.queue.Entries = kept
	now := s.now()
	s.queue.LastSyncAt = &now
	s.queue.IsSyncing = false
	err := errors.Join(storeErr, s.persistLocked())
	s.mu.Unlock()

	res.Success = res.Failed == 0 && res.Outcome == OutcomeCompleted
	s.logger.Info("sync pass completed",
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int("dropped", res.Dropped),
		zap.Duration("took", now.Sub(start)),
	)
	if s.history != nil {
		if herr := s.history.RecordPass(s.userID, start, now, res); herr != nil {
			s.logger.Warn("failed to record sync pass", zap.Error(herr))
		}
	}
	s.publish(EventSyncCompleted, res)
	if err != nil {
		return res, fmt.Errorf("persist queue: %w", err)
	}
	return res, nil
}

// attempt runs one entry through the pass and records its outcome. It
// returns an error only when the queue could not be saved.
func (s *Session) attempt(ctx context.Context, id string, res *Result) error {
	s.mu.Lock()
	i := s.queue.index(id)
	if i < 0 || !s.queue.Entries[i].NeedsAttempt() {
		s.mu.Unlock()
		return nil
	}
	prev := s.queue.Entries[i].SyncStatus
	s.queue.Entries[i].SyncStatus = StatusSyncing
	entry := s.queue.Entries[i]
	if err := s.persistLocked(); err != nil {
		s.queue.Entries[i].SyncStatus = prev
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	ack, err := s.deliver(ctx, &entry)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry
	if i = s.queue.index(id); i >= 0 {
		e = &s.queue.Entries[i]
	}

	if err == nil {
		e.SyncStatus = StatusSynced
		e.LastError = ""
		res.Synced++
		s.logger.Debug("entry synced", zap.String("entry_id", id), zap.String("remote_id", ack.ID))
		s.publish(EventEntrySynced, map[string]any{"entry_id": id, "type": string(e.Type), "remote_id": ack.ID})
		return s.persistLocked()
	}

	e.SyncStatus = StatusFailed
	ee := EntryError{EntryID: id, Type: e.Type, Message: err.Error()}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Shutdown mid-request: no answer was observed, so the attempt is
		// not charged against the ceiling.
		e.LastError = fmt.Sprintf("%s: %v", ErrInterrupted, err)
	} else {
		e.RetryCount++
		e.LastError = err.Error()
		ee.Permanent = IsPermanent(err)
		if ee.Permanent || e.RetryCount >= MaxRetries {
			ee.Dropped = true
		}
	}
	res.Failed++
	res.Errors = append(res.Errors, ee)

	fields := []zap.Field{
		zap.String("entry_id", id),
		zap.String("type", string(e.Type)),
		zap.Int("retry_count", e.RetryCount),
		zap.Error(err),
	}
	if ee.Dropped {
		s.queue.remove(id)
		res.Dropped++
		s.logger.Warn("entry dropped", append(fields, zap.Bool("permanent", ee.Permanent))...)
		s.publish(EventEntryDropped, map[string]any{"entry_id": id, "error": ee.Message, "permanent": ee.Permanent})
	} else {
		s.logger.Warn("entry failed", fields...)
		s.publish(EventEntryFailed, map[string]any{"entry_id": id, "error": ee.Message, "retry_count": e.RetryCount})
	}
	return s.persistLocked()
}

// deliver routes, strips, conflict-checks and upserts one entry.
func (s *Session) deliver(ctx context.Context, e *Entry) (UpsertResult, error) {
	collection, err := Collection(e.Type)
	if err != nil {
		return UpsertResult{}, err
	}
	doc, err := remotePayload(e.Payload)
	if err != nil {
		return UpsertResult{}, err
	}
	if err := s.resolver.Check(ctx, collection, e); err != nil {
		return UpsertResult{}, err
	}
	ack, err := s.remote.Upsert(ctx, collection, doc)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert %s: %w", collection, err)
	}
	return ack, nil
}
