package entities

import "time"

type BookStatus string

const (
	BookStatusUnread    BookStatus = "unread"
	BookStatusReading   BookStatus = "reading"
	BookStatusCompleted BookStatus = "completed"
)

// Book is one catalog entry. DeletedAt is a plain nullable column rather than
// gorm.DeletedAt: trashed rows must stay visible to queries so they can be
// listed and restored.
type Book struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	Title       string     `gorm:"size:512;not null" json:"title"`
	Author      string     `gorm:"index;size:256" json:"author"`
	CoverURL    string     `gorm:"size:2048" json:"cover_url"`
	Status      BookStatus `gorm:"size:20;default:'unread'" json:"status"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Rating      int        `gorm:"default:0" json:"rating"`
	Note        string     `gorm:"type:text" json:"note"`
	Category    string     `gorm:"size:100" json:"category"`
	IsFavorite  bool       `gorm:"default:false" json:"is_favorite"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at"`
}

func (Book) TableName() string {
	return "books"
}

// Trashed reports whether the book sits in its owner's trash.
func (b Book) Trashed() bool {
	return b.DeletedAt != nil
}
