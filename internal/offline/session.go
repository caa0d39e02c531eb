// Package offline implements the per-user offline mutation queue and the
// sync pass that reconciles it with the remote store.
package offline

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/offsync/internal/bus"
	"go.uber.org/zap"
)

// Bus event kinds published by a Session.
const (
	EventEnqueued      = "queue.enqueued"
	EventRemoved       = "queue.removed"
	EventCleared       = "queue.cleared"
	EventSyncStarted   = "sync.started"
	EventEntrySynced   = "sync.entry_synced"
	EventEntryFailed   = "sync.entry_failed"
	EventEntryDropped  = "sync.entry_dropped"
	EventSyncCompleted = "sync.completed"
)

// Session owns the queue of one user on this device. All queue access goes
// through it; it is safe for concurrent use.
type Session struct {
	userID   string
	store    QueueStore
	remote   RemoteStore
	online   Connectivity
	resolver *Resolver
	history  PassRecorder
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	queue *Queue
}

// Option configures a Session.
type Option func(*Session)

// WithBus publishes queue and sync events on b.
func WithBus(b *bus.Bus) Option {
	return func(s *Session) { s.bus = b }
}

// WithHistory records a summary of every completed pass in h.
func WithHistory(h PassRecorder) Option {
	return func(s *Session) { s.history = h }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession loads the persisted queue of userID and recovers entries left
// in flight by a previous process. A queue that cannot be read is replaced by
// an empty one.
func NewSession(userID string, store QueueStore, remote RemoteStore, online Connectivity, opts ...Option) (*Session, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	s := &Session{
		userID:   userID,
		store:    store,
		remote:   remote,
		online:   online,
		resolver: NewResolver(remote),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("user_id", userID))

	q, err := store.Load(userID)
	if err != nil || q == nil {
		s.logger.Warn("queue unreadable, starting empty", zap.Error(err))
		q = NewQueue(userID)
	}
	q.UserID = userID
	s.queue = q

	if q.recover() {
		s.logger.Info("recovered interrupted sync pass", zap.Int("entries", len(q.Entries)))
		_ = s.persistLocked()
	}
	return s, nil
}

// UserID returns the owner of the queue.
func (s *Session) UserID() string {
	return s.userID
}

// AddToQueue appends a copy of r to the queue and persists it. It never
// touches the network. The queued copy is stamped with the session user and
// a placeholder id when it has none; r itself is left untouched.
func (s *Session) AddToQueue(r Record) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil record", ErrInvalidPayload)
	}
	t := r.Type()
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	r, err := cloneRecord(r)
	if err != nil {
		return "", err
	}
	meta := r.base()
	switch meta.UserID {
	case "":
		meta.UserID = s.userID
	case s.userID:
	default:
		return "", fmt.Errorf("%w: record belongs to user %q", ErrInvalidPayload, meta.UserID)
	}

	now := s.now().Truncate(time.Millisecond)
	id := newEntryID(now)
	meta.OfflineID = id
	meta.CreatedOffline = true
	if meta.ID == "" {
		meta.ID = id
	}

	s.mu.Lock()
	s.queue.Entries = append(s.queue.Entries, Entry{
		ID:         id,
		Type:       t,
		Payload:    r,
		CreatedAt:  now,
		SyncStatus: StatusPending,
	})
	if err := s.persistLocked(); err != nil {
		s.queue.remove(id)
		s.mu.Unlock()
		return "", fmt.Errorf("persist queue: %w", err)
	}
	pending := s.pendingLocked()
	s.mu.Unlock()

	s.logger.Debug("entry queued", zap.String("entry_id", id), zap.String("type", string(t)))
	s.publish(EventEnqueued, map[string]any{"entry_id": id, "type": string(t), "pending": pending})
	return id, nil
}

// AddRaw decodes a JSON payload of type t and queues it.
func (s *Session) AddRaw(t EntryType, payload []byte) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	r, err := DecodeRecord(t, payload)
	if err != nil {
		return "", err
	}
	return s.AddToQueue(r)
}

// RemoveFromQueue deletes the entry with the given id. Removing an absent
// id is a no-op.
func (s *Session) RemoveFromQueue(id string) error {
	s.mu.Lock()
	if !s.queue.remove(id) {
		s.mu.Unlock()
		return nil
	}
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	s.publish(EventRemoved, map[string]any{"entry_id": id})
	return nil
}

// ClearQueue drops every entry.
func (s *Session) ClearQueue() error {
	s.mu.Lock()
	n := len(s.queue.Entries)
	s.queue.Entries = nil
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	s.logger.Info("queue cleared", zap.Int("entries", n))
	s.publish(EventCleared, map[string]any{"entries": n})
	return nil
}

// HasPendingEntries reports whether any entry still needs an attempt.
func (s *Session) HasPendingEntries() bool {
	return s.PendingCount() > 0
}

// PendingCount returns the number of pending or failed entries.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// LastSyncAt returns when the last pass completed. ok is false if no pass
// has completed yet.
func (s *Session) LastSyncAt() (t time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.LastSyncAt == nil {
		return time.Time{}, false
	}
	return *s.queue.LastSyncAt, true
}

// IsSyncing reports whether a pass is in flight.
func (s *Session) IsSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.IsSyncing
}

// Entries returns a snapshot of the queue in order. Payloads are copies.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.queue.Entries))
	copy(out, s.queue.Entries)
	for i := range out {
		if p, err := cloneRecord(out[i].Payload); err == nil {
			out[i].Payload = p
		}
	}
	return out
}

func (s *Session) pendingLocked() int {
	n := 0
	for i := range s.queue.Entries {
		if s.queue.Entries[i].NeedsAttempt() {
			n++
		}
	}
	return n
}

// persistLocked writes the whole queue. Callers hold s.mu.
func (s *Session) persistLocked() error {
	if err := s.store.Save(s.queue.Clone()); err != nil {
		s.logger.Error("failed to persist queue", zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: s.now(),
		Payload:   payload,
	})
}
