package offline

import "sync"

// QueueStore persists one queue per user. Save replaces the stored queue as
// a whole; readers never observe a partial write.
type QueueStore interface {
	Load(userID string) (*Queue, error)
	Save(q *Queue) error
}

// MemoryStore is a process-local QueueStore.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string]*Queue
	saves  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queues: make(map[string]*Queue)}
}

// Load returns a copy of the stored queue, or an empty queue.
func (m *MemoryStore) Load(userID string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[userID]
	if !ok {
		return NewQueue(userID), nil
	}
	return q.Clone(), nil
}

// Save stores a copy of q.
func (m *MemoryStore) Save(q *Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[q.UserID] = q.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
