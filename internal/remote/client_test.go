package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/offsync/internal/offline"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "key-123", time.Second, nil)
}

func TestUpsert(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/journal_entries" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("on_conflict") != "id" {
			t.Errorf("on_conflict = %q", r.URL.Query().Get("on_conflict"))
		}
		if r.Header.Get("apikey") != "key-123" || r.Header.Get("Authorization") != "Bearer key-123" {
			t.Errorf("auth headers = %v", r.Header)
		}
		if r.Header.Get("Prefer") != "resolution=merge-duplicates,return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"srv-1","updated_at":"2026-03-01T12:00:00.5+00:00"}]`))
	})

	res, err := c.Upsert(t.Context(), "journal_entries", map[string]any{"user_id": "u", "content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "srv-1" {
		t.Errorf("ID = %q, want srv-1", res.ID)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	if !res.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", res.UpdatedAt, want)
	}
	if got["content"] != "hi" || got["user_id"] != "u" {
		t.Errorf("body = %v", got)
	}
}

func TestUpsertNumericID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":42}]`))
	})
	res, err := c.Upsert(t.Context(), "chat_messages", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "42" {
		t.Errorf("ID = %q, want 42", res.ID)
	}
}

func TestUpsertStatusErrors(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusRequestEntityTooLarge, true},
		{http.StatusUnsupportedMediaType, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, false},
		{http.StatusConflict, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"message":"nope"}`, tt.code)
			})
			_, err := c.Upsert(t.Context(), "safety_plans", map[string]any{"x": 1})
			var se *StatusError
			if !errors.As(err, &se) || se.Code != tt.code {
				t.Fatalf("error = %v, want StatusError %d", err, tt.code)
			}
			if offline.IsPermanent(err) != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v", offline.IsPermanent(err), tt.permanent)
			}
		})
	}
}

func TestUpsertEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	if _, err := c.Upsert(t.Context(), "chat_messages", map[string]any{}); err == nil {
		t.Error("expected error for empty representation")
	}
}

func TestGetUpdatedAt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("select") != "updated_at" {
			t.Errorf("select = %q", q.Get("select"))
		}
		switch q.Get("id") {
		case "eq.p1":
			_, _ = w.Write([]byte(`[{"updated_at":"2026-03-01T13:00:00Z"}]`))
		case "eq.bare":
			_, _ = w.Write([]byte(`[{"updated_at":"2026-03-01T13:00:00.123456"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})

	at, found, err := c.GetUpdatedAt(t.Context(), "safety_plans", "p1")
	if err != nil || !found {
		t.Fatalf("GetUpdatedAt(p1) = %v, %v, %v", at, found, err)
	}
	if !at.Equal(time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("updated_at = %v", at)
	}

	if _, found, err := c.GetUpdatedAt(t.Context(), "safety_plans", "bare"); err != nil || !found {
		t.Errorf("GetUpdatedAt(bare) found=%v err=%v", found, err)
	}

	_, found, err = c.GetUpdatedAt(t.Context(), "safety_plans", "missing")
	if err != nil || found {
		t.Errorf("GetUpdatedAt(missing) = found %v, err %v, want not found", found, err)
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	c := NewClient(srv.URL, "", time.Second, nil)

	_, err := c.Upsert(t.Context(), "journal_entries", map[string]any{})
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if offline.IsPermanent(err) {
		t.Error("transport error reported permanent")
	}
	if err := c.Ping(t.Context()); err == nil {
		t.Error("Ping() on closed server = nil")
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if err := c.Ping(t.Context()); err != nil {
		t.Errorf("Ping() = %v, want nil for any HTTP answer", err)
	}
}

func TestClientSatisfiesRemoteStore(t *testing.T) {
	var _ offline.RemoteStore = (*Client)(nil)
}

type alwaysOnline struct{}

func (alwaysOnline) IsOnline() bool { return true }

func newSession(t *testing.T, c *Client) *offline.Session {
	t.Helper()
	s, err := offline.NewSession("u1", offline.NewMemoryStore(), c, alwaysOnline{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionKeepsEntryOnExpiredKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
	})
	s := newSession(t, c)
	id, err := s.AddToQueue(&offline.JournalEntry{Content: "keep me"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Sync(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Dropped != 0 || res.Errors[0].Permanent {
		t.Errorf("result = %+v, want one transient failure", res)
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("entries = %+v, want %s kept", entries, id)
	}
	if entries[0].SyncStatus != offline.StatusFailed || entries[0].RetryCount != 1 {
		t.Errorf("entry = %s/%d, want failed/1", entries[0].SyncStatus, entries[0].RetryCount)
	}
	if !s.HasPendingEntries() {
		t.Error("HasPendingEntries() = false after auth failure")
	}
}

func TestSessionDropsByStatusCode(t *testing.T) {
	tests := []struct {
		code      int
		dropFirst bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusRequestEntityTooLarge, true},
		{http.StatusUnsupportedMediaType, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusConflict, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"message":"rejected"}`, tt.code)
			})
			s := newSession(t, c)
			if _, err := s.AddToQueue(&offline.ChatMessage{Content: "hi"}); err != nil {
				t.Fatal(err)
			}

			passes := 0
			for s.HasPendingEntries() {
				passes++
				if passes > offline.MaxRetries {
					t.Fatalf("entry still queued after %d passes", offline.MaxRetries)
				}
				res, err := s.Sync(t.Context())
				if err != nil {
					t.Fatal(err)
				}
				if res.Failed != 1 {
					t.Fatalf("pass %d: Failed = %d, want 1", passes, res.Failed)
				}
			}

			want := offline.MaxRetries
			if tt.dropFirst {
				want = 1
			}
			if passes != want {
				t.Errorf("entry dropped after %d passes, want %d", passes, want)
			}
		})
	}
}
