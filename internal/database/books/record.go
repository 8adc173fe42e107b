package books

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mrlokans/storynest/internal/entities"
	"github.com/mrlokans/storynest/internal/wire"
)

// ToRecord renders a stored book as a wire record.
func ToRecord(b entities.Book) wire.Record {
	return wire.Record{
		wire.FieldID:          b.ID,
		wire.FieldUserID:      wire.OwnerID(b.UserID),
		wire.FieldTitle:       b.Title,
		wire.FieldAuthor:      b.Author,
		wire.FieldCoverURL:    b.CoverURL,
		wire.FieldStatus:      string(b.Status),
		wire.FieldStartedAt:   wire.TimeValue(b.StartedAt),
		wire.FieldCompletedAt: wire.TimeValue(b.CompletedAt),
		wire.FieldRating:      b.Rating,
		wire.FieldNote:        b.Note,
		wire.FieldCategory:    b.Category,
		wire.FieldIsFavorite:  b.IsFavorite,
		wire.FieldCreatedAt:   wire.FormatTime(b.CreatedAt),
		wire.FieldDeletedAt:   wire.TimeValue(b.DeletedAt),
	}
}

// ToRecords renders a slice of stored books.
func ToRecords(books []entities.Book) []wire.Record {
	out := make([]wire.Record, 0, len(books))
	for _, b := range books {
		out = append(out, ToRecord(b))
	}
	return out
}

// applyRecord copies every writable field present in r onto b. Server-owned
// columns are rejected with ErrImmutableField.
func applyRecord(b *entities.Book, r wire.Record) error {
	for field, value := range r {
		if err := applyField(b, field, value); err != nil {
			return err
		}
	}
	return nil
}

func applyField(b *entities.Book, field string, value any) error {
	var err error
	switch field {
	case wire.FieldID, wire.FieldUserID, wire.FieldCreatedAt:
		return fmt.Errorf("%w: %s", ErrImmutableField, field)
	case wire.FieldTitle:
		var title string
		title, err = stringValue(field, value)
		title = strings.TrimSpace(title)
		if err == nil && title == "" {
			err = fmt.Errorf("%w: title must not be empty", ErrInvalidValue)
		}
		b.Title = title
	case wire.FieldAuthor:
		b.Author, err = stringValue(field, value)
	case wire.FieldCoverURL:
		b.CoverURL, err = stringValue(field, value)
	case wire.FieldStatus:
		b.Status, err = statusValue(value)
	case wire.FieldStartedAt:
		b.StartedAt, err = timeValue(field, value)
	case wire.FieldCompletedAt:
		b.CompletedAt, err = timeValue(field, value)
	case wire.FieldDeletedAt:
		b.DeletedAt, err = timeValue(field, value)
	case wire.FieldRating:
		b.Rating, err = ratingValue(value)
	case wire.FieldNote:
		b.Note, err = stringValue(field, value)
	case wire.FieldCategory:
		b.Category, err = stringValue(field, value)
	case wire.FieldIsFavorite:
		v, ok := value.(bool)
		if !ok {
			err = fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, field)
		}
		b.IsFavorite = v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return err
}

func stringValue(field string, v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	}
	return "", fmt.Errorf("%w: %s must be a string", ErrInvalidValue, field)
}

func statusValue(v any) (entities.BookStatus, error) {
	s, _ := v.(string)
	switch status := entities.BookStatus(s); status {
	case entities.BookStatusUnread, entities.BookStatusReading, entities.BookStatusCompleted:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown status %v", ErrInvalidValue, v)
}

func timeValue(field string, v any) (*time.Time, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		if s == "" {
			return nil, nil
		}
		t, err := wire.ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
		}
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("%w: %s must be a timestamp string", ErrInvalidValue, field)
}

func ratingValue(v any) (int, error) {
	var n float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		n = x
	case int:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: rating: %v", ErrInvalidValue, err)
		}
		n = f
	default:
		return 0, fmt.Errorf("%w: rating must be a number", ErrInvalidValue)
	}
	if n != math.Trunc(n) || n < 0 || n > 5 {
		return 0, fmt.Errorf("%w: rating must be an integer between 0 and 5", ErrInvalidValue)
	}
	return int(n), nil
}
