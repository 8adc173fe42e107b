package library

import (
	"context"

	"github.com/mrlokans/storynest/internal/wire"
)

// Query selects one partition of an owner's books. Active books come back
// newest-created first, trashed books newest-deleted first.
type Query struct {
	Owner   string
	Trashed bool
}

// RemoteStore is the authoritative book store the synchronizer mirrors.
type RemoteStore interface {
	Query(ctx context.Context, q Query) ([]wire.Record, error)
	// Get returns a single record; implementations return an error wrapping
	// ErrRemoteNotFound when the record no longer exists.
	Get(ctx context.Context, owner, id string) (wire.Record, error)
	// Insert stores a new record and returns it with the server-assigned id and created_at.
	Insert(ctx context.Context, owner string, r wire.Record) (wire.Record, error)
	Update(ctx context.Context, owner, id string, patch wire.Record) error
	// Delete permanently removes every listed record in one call.
	Delete(ctx context.Context, owner string, ids ...string) error
	// DeleteTrashed removes the listed records that are still trashed when
	// the call lands and returns the ids it removed.
	DeleteTrashed(ctx context.Context, owner string, ids ...string) ([]string, error)
	Subscribe(ctx context.Context, owner string) (Subscription, error)
}

// Subscription is a live change feed for one owner.
type Subscription interface {
	Events() <-chan wire.ChangeEvent
	Close() error
}
