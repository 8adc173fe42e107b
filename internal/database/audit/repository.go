// Package audit stores the audit trail of destructive and security-relevant
// actions.
package audit

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/storynest/internal/entities"
)

const defaultPageSize = 50

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	UserID uint
	Kind   entities.AuditKind
	Action string
	BookID string
}

func (f Filter) scope(q *gorm.DB) *gorm.DB {
	conds := map[string]any{}
	if f.UserID > 0 {
		conds["user_id"] = f.UserID
	}
	if f.Kind != "" {
		conds["kind"] = f.Kind
	}
	if f.Action != "" {
		conds["action"] = f.Action
	}
	if f.BookID != "" {
		conds["book_id"] = f.BookID
	}
	if len(conds) == 0 {
		return q
	}
	return q.Where(conds)
}

// LogEvent stores event, stamping it with the current time if unset.
func (r *Repository) LogEvent(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.db.Create(event).Error
}

// List returns one page of matching events, most recent first, and the total
// number of matches.
func (r *Repository) List(f Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset = max(offset, 0)

	var total int64
	if err := r.db.Model(&entities.AuditEvent{}).Scopes(f.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	var events []entities.AuditEvent
	err := r.db.Scopes(f.scope).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, total, err
}

// DeleteOldEvents removes events created before olderThan and returns how
// many there were.
func (r *Repository) DeleteOldEvents(olderThan time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", olderThan).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}
