package wire

import (
	"strconv"
	"time"
)

// EventType is the kind of change a ChangeEvent describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Valid reports whether t is one of the three change kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventInsert, EventUpdate, EventDelete:
		return true
	}
	return false
}

// ChangeEvent is a single committed change to one book record.
// Inserts and updates carry the row in New; deletes carry at least the id in Old.
type ChangeEvent struct {
	Type            EventType `json:"type"`
	Owner           string    `json:"owner"`
	New             Record    `json:"new,omitempty"`
	Old             Record    `json:"old,omitempty"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// RecordID returns the id of the affected record, preferring the new row.
func (e ChangeEvent) RecordID() string {
	if id := e.New.ID(); id != "" {
		return id
	}
	return e.Old.ID()
}

// OwnerID renders a numeric user id as the owner key used on the wire.
func OwnerID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
