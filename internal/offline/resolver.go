package offline

import (
	"context"
	"fmt"
	"time"
)

// UpsertResult is the remote acknowledgement of a write.
type UpsertResult struct {
	ID        string
	UpdatedAt time.Time
}

// RemoteStore is the hosted data store entries are delivered to.
type RemoteStore interface {
	Upsert(ctx context.Context, collection string, record map[string]any) (UpsertResult, error)
	// GetUpdatedAt returns the last-modified time of a remote record.
	// found is false when no record with that id exists.
	GetUpdatedAt(ctx context.Context, collection, id string) (updatedAt time.Time, found bool, err error)
}

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	IsOnline() bool
}

// Resolver decides whether writing an entry would overwrite newer remote
// state. It does not merge; a conflicting entry is rejected and retried on a
// later pass.
type Resolver struct {
	remote RemoteStore
}

// NewResolver creates a resolver backed by remote.
func NewResolver(remote RemoteStore) *Resolver {
	return &Resolver{remote: remote}
}

// Check returns nil when e may be applied to collection. Entries whose
// payload id is empty or a placeholder are pure inserts and skip the remote
// lookup.
func (r *Resolver) Check(ctx context.Context, collection string, e *Entry) error {
	id := e.Payload.base().ID
	if id == "" || IsPlaceholderID(id) {
		return nil
	}
	updatedAt, found, err := r.remote.GetUpdatedAt(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("fetch remote version: %w", err)
	}
	if !found {
		return nil
	}
	if updatedAt.After(e.CreatedAt) {
		return ErrConflict
	}
	return nil
}
