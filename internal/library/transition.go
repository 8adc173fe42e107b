package library

import "time"

// WithTransition returns p with the timestamps implied by its status change
// filled in, relative to the current state of the book.
//
//	-> unread     clears startedAt and completedAt
//	-> reading    clears completedAt; sets startedAt to now unless already reading with a start date
//	-> completed  sets completedAt to now; startedAt is left alone
//
// Explicit timestamps in p win over "set to now" but never over a clear.
func (p Patch) WithTransition(current Book, now time.Time) Patch {
	if p.Status == nil {
		return p
	}

	switch *p.Status {
	case StatusUnread:
		p.StartedAt = ClearTime()
		p.CompletedAt = ClearTime()

	case StatusReading:
		p.CompletedAt = ClearTime()
		explicit := p.StartedAt.Set && p.StartedAt.Value != nil
		enteringFresh := current.Status != StatusReading || current.StartedAt == nil
		if !explicit && (enteringFresh || p.StartedAt.Set) {
			p.StartedAt = SetTime(now)
		}

	case StatusCompleted:
		if !p.CompletedAt.Set || p.CompletedAt.Value == nil {
			p.CompletedAt = SetTime(now)
		}
	}
	return p
}

// draftTimestamps derives the timestamps for a newly added book.
func draftTimestamps(d Draft, now time.Time) (startedAt, completedAt *time.Time) {
	switch d.Status {
	case StatusReading:
		startedAt = copyTime(d.StartedAt)
		if startedAt == nil {
			startedAt = &now
		}
	case StatusCompleted:
		startedAt = copyTime(d.StartedAt)
		completedAt = copyTime(d.CompletedAt)
		if completedAt == nil {
			completedAt = &now
		}
	}
	return startedAt, completedAt
}
