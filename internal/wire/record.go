// Package wire defines the flat record format exchanged between the books API,
// its change feed and the client-side collection synchronizer.
//
// A Record is a JSON object keyed by snake_case column names. Timestamps travel
// as RFC 3339 strings and absent values as JSON null, so a Record decoded from
// the network carries string, float64, bool and nil values only.
package wire

import (
	"time"
)

// Column names of a book record.
const (
	FieldID          = "id"
	FieldUserID      = "user_id"
	FieldTitle       = "title"
	FieldAuthor      = "author"
	FieldCoverURL    = "cover_url"
	FieldStatus      = "status"
	FieldStartedAt   = "started_at"
	FieldCompletedAt = "completed_at"
	FieldRating      = "rating"
	FieldNote        = "note"
	FieldCategory    = "category"
	FieldIsFavorite  = "is_favorite"
	FieldCreatedAt   = "created_at"
	FieldDeletedAt   = "deleted_at"
)

// Fields lists every known column in a stable order.
var Fields = []string{
	FieldID,
	FieldUserID,
	FieldTitle,
	FieldAuthor,
	FieldCoverURL,
	FieldStatus,
	FieldStartedAt,
	FieldCompletedAt,
	FieldRating,
	FieldNote,
	FieldCategory,
	FieldIsFavorite,
	FieldCreatedAt,
	FieldDeletedAt,
}

// Record is a single book row on the wire.
type Record map[string]any

// ID returns the record id, or "" when it is missing or not a string.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Has reports whether the field is present, including an explicit null.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FormatTime renders a timestamp the way records carry it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// TimeValue converts an optional timestamp into a record value.
func TimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime parses a record timestamp. Both RFC 3339 and the space separated
// form some SQL drivers emit are accepted.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05.999999999-07:00", s)
}
