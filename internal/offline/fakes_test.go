package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type upsertCall struct {
	Collection string
	Record     map[string]any
}

// fakeRemote records upserts and serves configured remote versions.
type fakeRemote struct {
	mu       sync.Mutex
	upserts  []upsertCall
	lookups  int
	versions map[string]time.Time // collection/id -> updated_at
	failWith map[string]error     // collection -> error returned by Upsert
	block    chan struct{}        // when set, Upsert waits on it
	started  chan struct{}        // closed on first Upsert when block is set
	onUpsert func()
	nextID   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		versions: make(map[string]time.Time),
		failWith: make(map[string]error),
	}
}

func (f *fakeRemote) Upsert(ctx context.Context, collection string, record map[string]any) (UpsertResult, error) {
	if f.block != nil {
		f.mu.Lock()
		if f.started != nil {
			close(f.started)
			f.started = nil
		}
		f.mu.Unlock()
		select {
		case <-f.block:
		case <-ctx.Done():
			return UpsertResult{}, ctx.Err()
		}
	}
	if f.onUpsert != nil {
		f.onUpsert()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{Collection: collection, Record: record})
	if err := f.failWith[collection]; err != nil {
		return UpsertResult{}, err
	}
	f.nextID++
	return UpsertResult{ID: fmt.Sprintf("srv-%d", f.nextID), UpdatedAt: time.Now()}, nil
}

func (f *fakeRemote) GetUpdatedAt(_ context.Context, collection, id string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	t, ok := f.versions[collection+"/"+id]
	return t, ok, nil
}

func (f *fakeRemote) calls() []upsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]upsertCall, len(f.upserts))
	copy(out, f.upserts)
	return out
}

type fakeConnectivity struct {
	mu     sync.Mutex
	online bool
}

func (c *fakeConnectivity) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConnectivity) set(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

// transientErr is a remote failure that may succeed later.
type transientErr struct{ msg string }

func (e transientErr) Error() string { return e.msg }

// rejectErr is a remote failure that declares itself permanent.
type rejectErr struct{ msg string }

func (e rejectErr) Error() string   { return e.msg }
func (e rejectErr) Permanent() bool { return true }

type fixture struct {
	store  *MemoryStore
	remote *fakeRemote
	conn   *fakeConnectivity
	sess   *Session
	clock  time.Time
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryStore(),
		remote: newFakeRemote(),
		conn:   &fakeConnectivity{online: online},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.sess = f.open(t)
	return f
}

// open creates a new session over the fixture's store, like a restart.
func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession("user-1", f.store, f.remote, f.conn, WithClock(func() time.Time { return f.clock }))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (f *fixture) add(t *testing.T, r Record) string {
	t.Helper()
	id, err := f.sess.AddToQueue(r)
	if err != nil {
		t.Fatalf("AddToQueue() error = %v", err)
	}
	return id
}

func (f *fixture) entry(t *testing.T, id string) Entry {
	t.Helper()
	for _, e := range f.sess.Entries() {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("entry %s not in queue", id)
	return Entry{}
}

// failingStore starts failing Save once allow reaches zero. A negative
// allow never fails.
type failingStore struct {
	*MemoryStore
	mu    sync.Mutex
	allow int
}

func (s *failingStore) Save(q *Queue) error {
	s.mu.Lock()
	if s.allow == 0 {
		s.mu.Unlock()
		return errors.New("disk full")
	}
	if s.allow > 0 {
		s.allow--
	}
	s.mu.Unlock()
	return s.MemoryStore.Save(q)
}

func (s *failingStore) setAllow(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow = n
}
