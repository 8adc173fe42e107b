package library

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Status is the reading state of a book.
type Status string

const (
	StatusUnread    Status = "unread"
	StatusReading   Status = "reading"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusUnread, StatusReading, StatusCompleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusReading, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

const (
	// DefaultAuthor is stored when a book is added without an author.
	DefaultAuthor = "Unknown"

	MaxRating = 5

	placeholderCoverBase = "https://placehold.co/150x200/374151/ffffff?text="
)

// Book is a single catalog entry in the active set.
type Book struct {
	ID          string
	Title       string
	Author      string
	CoverURL    string
	Status      Status
	StartedAt   *time.Time
	CompletedAt *time.Time
	Rating      int
	Note        string
	Category    string
	IsFavorite  bool
	CreatedAt   time.Time
}

// DeletedBook is a book in the trash.
type DeletedBook struct {
	Book
	DeletedAt time.Time
}

// Draft is the user input for a new book.
type Draft struct {
	Title       string     `validate:"required,max=500"`
	Author      string     `validate:"max=300"`
	CoverURL    string     `validate:"omitempty,url"`
	Status      Status     `validate:"omitempty,oneof=unread reading completed"`
	StartedAt   *time.Time `validate:"-"`
	CompletedAt *time.Time `validate:"-"`
	Rating      int        `validate:"gte=0,lte=5"`
	Note        string
	Category    string `validate:"max=100"`
	IsFavorite  bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate trims the draft and checks it against its field rules.
func (d *Draft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	d.Author = strings.TrimSpace(d.Author)
	d.CoverURL = strings.TrimSpace(d.CoverURL)
	d.Category = strings.TrimSpace(d.Category)

	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidDraft, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}

// applyDefaults fills the author, status and cover a new book needs.
func (d *Draft) applyDefaults() {
	if d.Author == "" {
		d.Author = DefaultAuthor
	}
	if d.Status == "" {
		d.Status = StatusUnread
	}
	if d.CoverURL == "" {
		d.CoverURL = PlaceholderCover(d.Title)
	}
}

// PlaceholderCover returns a generated cover showing the title's first letter.
func PlaceholderCover(title string) string {
	title = strings.TrimSpace(title)
	letter := "?"
	if r, _ := utf8.DecodeRuneInString(title); r != utf8.RuneError {
		letter = string(unicode.ToUpper(r))
	}
	return placeholderCoverBase + strings.ReplaceAll(url.QueryEscape(letter), "+", "%20")
}
