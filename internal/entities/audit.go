package entities

import "time"

// AuditKind groups audit events for filtering.
type AuditKind string

const (
	AuditKindBook  AuditKind = "book"
	AuditKindPurge AuditKind = "purge"
	AuditKindAuth  AuditKind = "auth"
)

// Book and trash actions. Auth events use the handler's own action names
// ("login", "login_failed", "register", "logout").
const (
	AuditActionTrash   = "book_trash"
	AuditActionRestore = "book_restore"
	AuditActionDelete  = "book_delete"
	AuditActionPurge   = "trash_purge"
)

// AuditEvent is one entry of a user's audit trail. Book events name the book
// in BookID; purges list every removed book in BookIDs.
type AuditEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Kind      AuditKind `gorm:"index;size:16" json:"kind"`
	Action    string    `gorm:"index;size:64" json:"action"`
	BookID    string    `gorm:"index;size:36" json:"book_id,omitempty"`
	BookTitle string    `gorm:"size:500" json:"book_title,omitempty"`
	BookIDs   []string  `gorm:"type:text;serializer:json" json:"book_ids,omitempty"`
	IPAddress string    `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent string    `gorm:"size:500" json:"user_agent,omitempty"`
	Failed    bool      `json:"failed"`
	Error     string    `gorm:"size:500" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
