package library

import (
	"fmt"
	"strings"
	"time"
)

// OptionalTime is a patchable timestamp. Set with a nil Value clears the field.
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

// SetTime returns an OptionalTime that sets the field to t.
func SetTime(t time.Time) OptionalTime {
	return OptionalTime{Set: true, Value: &t}
}

// ClearTime returns an OptionalTime that clears the field.
func ClearTime() OptionalTime {
	return OptionalTime{Set: true}
}

// Patch is a partial update of a book. Nil pointers and unset timestamps are
// left untouched.
type Patch struct {
	Title       *string
	Author      *string
	CoverURL    *string
	Status      *Status
	StartedAt   OptionalTime
	CompletedAt OptionalTime
	Rating      *int
	Note        *string
	Category    *string
	IsFavorite  *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.CoverURL == nil && p.Status == nil &&
		!p.StartedAt.Set && !p.CompletedAt.Set && p.Rating == nil && p.Note == nil &&
		p.Category == nil && p.IsFavorite == nil
}

// Validate rejects values a stored book cannot hold.
func (p Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidDraft)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDraft, *p.Status)
	}
	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > MaxRating) {
		return fmt.Errorf("%w: rating must be between 0 and %d", ErrInvalidDraft, MaxRating)
	}
	return nil
}

// ApplyTo returns b with the patch applied.
func (p Patch) ApplyTo(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.CoverURL != nil {
		b.CoverURL = *p.CoverURL
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.StartedAt.Set {
		b.StartedAt = copyTime(p.StartedAt.Value)
	}
	if p.CompletedAt.Set {
		b.CompletedAt = copyTime(p.CompletedAt.Value)
	}
	if p.Rating != nil {
		b.Rating = *p.Rating
	}
	if p.Note != nil {
		b.Note = *p.Note
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.IsFavorite != nil {
		b.IsFavorite = *p.IsFavorite
	}
	return b
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
