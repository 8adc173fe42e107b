package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mrlokans/storynest/internal/wire"
)

var (
	errMissing   = errors.New("missing")
	errBlank     = errors.New("blank")
	errWrongType = errors.New("wrong type")
)

// FromWire decodes a complete record into a Book. Missing optional fields get
// their defaults: rating 0, empty note and cover, unread status and the
// default author. Deletion and ownership columns are ignored; see deletionFromWire.
func FromWire(r wire.Record) (Book, error) {
	id, ok := r[wire.FieldID].(string)
	if !ok || id == "" {
		return Book{}, &MappingError{Field: wire.FieldID, Value: r[wire.FieldID], Err: errMissing}
	}
	if _, ok := r[wire.FieldTitle]; !ok {
		return Book{}, &MappingError{Field: wire.FieldTitle, Err: errMissing}
	}
	return mergeWire(Book{Author: DefaultAuthor, Status: StatusUnread}, r)
}

// mergeWire applies every known field present in r onto b.
func mergeWire(b Book, r wire.Record) (Book, error) {
	for field, value := range r {
		var err error
		switch field {
		case wire.FieldID:
			b.ID, err = requiredString(field, value)
		case wire.FieldTitle:
			b.Title, err = requiredString(field, value)
			if err == nil && strings.TrimSpace(b.Title) == "" {
				err = &MappingError{Field: field, Value: value, Err: errBlank}
			}
		case wire.FieldAuthor:
			b.Author, err = optionalString(field, value)
			if err == nil && value == nil {
				b.Author = DefaultAuthor
			}
		case wire.FieldCoverURL:
			b.CoverURL, err = optionalString(field, value)
		case wire.FieldStatus:
			b.Status, err = statusValue(value)
		case wire.FieldStartedAt:
			b.StartedAt, err = optionalTime(field, value)
		case wire.FieldCompletedAt:
			b.CompletedAt, err = optionalTime(field, value)
		case wire.FieldRating:
			b.Rating, err = ratingValue(value)
		case wire.FieldNote:
			b.Note, err = optionalString(field, value)
		case wire.FieldCategory:
			b.Category, err = optionalString(field, value)
		case wire.FieldIsFavorite:
			b.IsFavorite, err = boolValue(field, value)
		case wire.FieldCreatedAt:
			var t *time.Time
			t, err = optionalTime(field, value)
			if err == nil {
				b.CreatedAt = time.Time{}
				if t != nil {
					b.CreatedAt = *t
				}
			}
		}
		if err != nil {
			return Book{}, err
		}
	}
	return b, nil
}

// deletionFromWire reports whether r carries the deletion column and its value.
func deletionFromWire(r wire.Record) (present bool, deletedAt *time.Time, err error) {
	value, ok := r[wire.FieldDeletedAt]
	if !ok {
		return false, nil, nil
	}
	deletedAt, err = optionalTime(wire.FieldDeletedAt, value)
	return true, deletedAt, err
}

// ToWire encodes every user-visible field of b.
func ToWire(b Book) wire.Record {
	r := wire.Record{
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
	}
	if b.ID != "" {
		r[wire.FieldID] = b.ID
	}
	if !b.CreatedAt.IsZero() {
		r[wire.FieldCreatedAt] = wire.FormatTime(b.CreatedAt)
	}
	return r
}

// ToWirePatch encodes only the fields set in p. Call WithTransition first so
// a status change carries its derived timestamps.
func ToWirePatch(p Patch) wire.Record {
	r := wire.Record{}
	if p.Title != nil {
		r[wire.FieldTitle] = *p.Title
	}
	if p.Author != nil {
		r[wire.FieldAuthor] = *p.Author
	}
	if p.CoverURL != nil {
		r[wire.FieldCoverURL] = *p.CoverURL
	}
	if p.Status != nil {
		r[wire.FieldStatus] = string(*p.Status)
	}
	if p.StartedAt.Set {
		r[wire.FieldStartedAt] = wire.TimeValue(p.StartedAt.Value)
	}
	if p.CompletedAt.Set {
		r[wire.FieldCompletedAt] = wire.TimeValue(p.CompletedAt.Value)
	}
	if p.Rating != nil {
		r[wire.FieldRating] = *p.Rating
	}
	if p.Note != nil {
		r[wire.FieldNote] = *p.Note
	}
	if p.Category != nil {
		r[wire.FieldCategory] = *p.Category
	}
	if p.IsFavorite != nil {
		r[wire.FieldIsFavorite] = *p.IsFavorite
	}
	return r
}

// draftToWire builds the insert record for a validated, defaulted draft.
func draftToWire(d Draft, now time.Time) wire.Record {
	startedAt, completedAt := draftTimestamps(d, now)
	return wire.Record{
		wire.FieldTitle:       d.Title,
		wire.FieldAuthor:      d.Author,
		wire.FieldCoverURL:    d.CoverURL,
		wire.FieldStatus:      string(d.Status),
		wire.FieldStartedAt:   wire.TimeValue(startedAt),
		wire.FieldCompletedAt: wire.TimeValue(completedAt),
		wire.FieldRating:      d.Rating,
		wire.FieldNote:        d.Note,
		wire.FieldCategory:    d.Category,
		wire.FieldIsFavorite:  d.IsFavorite,
	}
}

func requiredString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &MappingError{Field: field, Value: v, Err: errWrongType}
	}
	return s, nil
}

func optionalString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	return requiredString(field, v)
}

func optionalTime(field string, v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &MappingError{Field: field, Value: v, Err: errWrongType}
	}
	if s == "" {
		return nil, nil
	}
	t, err := wire.ParseTime(s)
	if err != nil {
		return nil, &MappingError{Field: field, Value: v, Err: err}
	}
	return &t, nil
}

func boolValue(field string, v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &MappingError{Field: field, Value: v, Err: errWrongType}
	}
	return b, nil
}

func statusValue(v any) (Status, error) {
	if v == nil {
		return StatusUnread, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &MappingError{Field: wire.FieldStatus, Value: v, Err: errWrongType}
	}
	status := Status(s)
	if !status.Valid() {
		return "", &MappingError{Field: wire.FieldStatus, Value: v, Err: fmt.Errorf("unknown status")}
	}
	return status, nil
}

func ratingValue(v any) (int, error) {
	var n float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, &MappingError{Field: wire.FieldRating, Value: v, Err: err}
		}
		n = f
	default:
		return 0, &MappingError{Field: wire.FieldRating, Value: v, Err: errWrongType}
	}
	if n != math.Trunc(n) || n < 0 || n > MaxRating {
		return 0, &MappingError{Field: wire.FieldRating, Value: v, Err: fmt.Errorf("must be an integer between 0 and %d", MaxRating)}
	}
	return int(n), nil
}
