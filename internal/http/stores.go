package http

import (
	"context"
	"net/http"

	dbaudit "github.com/mrlokans/storynest/internal/database/audit"
	"github.com/mrlokans/storynest/internal/entities"
	"github.com/mrlokans/storynest/internal/wire"
)

// Each controller depends on the narrow interface it uses. The books and
// audit repositories satisfy them in production; tests use fakes.

// BookStore is the catalog as seen by the books and covers controllers.
type BookStore interface {
	ListForUser(ctx context.Context, userID uint, trashed bool) ([]entities.Book, error)
	GetForUser(ctx context.Context, userID uint, id string) (*entities.Book, error)
	Create(ctx context.Context, userID uint, rec wire.Record) (*entities.Book, error)
	Update(ctx context.Context, userID uint, id string, patch wire.Record) (*entities.Book, error)
	Delete(ctx context.Context, userID uint, ids ...string) ([]string, error)
	DeleteTrashed(ctx context.Context, userID uint, ids ...string) ([]string, error)
}

// BookAuditor records trash moves, restores and permanent deletions.
type BookAuditor interface {
	LogTrash(userID uint, bookID, title string)
	LogRestore(userID uint, bookID, title string)
	LogDelete(userID uint, bookIDs []string)
}

// AuditReader lists a user's audit trail.
type AuditReader interface {
	GetEvents(f dbaudit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error)
}

// ChangeStreamer serves the realtime change feed of one owner.
type ChangeStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, owner string)
}

// SubscriberCounter reports how many change feeds are open.
type SubscriberCounter interface {
	Count() int
}
