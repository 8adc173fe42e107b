package library

import (
	"math"
	"sort"
	"strings"
)

// Active returns a snapshot of the active set in display order.
func (s *Synchronizer) Active() []Book {
	return s.filter(func(Book) bool { return true })
}

// Trash returns a snapshot of the trash, most recently deleted first.
func (s *Synchronizer) Trash() []DeletedBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeletedBook, len(s.trash))
	copy(out, s.trash)
	return out
}

func (s *Synchronizer) filter(keep func(Book) bool) []Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Book, 0, len(s.active))
	for _, b := range s.active {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// FilteredBySearch matches query against titles, ignoring case. A blank
// query returns the whole active set.
func (s *Synchronizer) FilteredBySearch(query string) []Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.Active()
	}
	return s.filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Title), q)
	})
}

// SearchTitleOrAuthor is FilteredBySearch extended to authors.
func (s *Synchronizer) SearchTitleOrAuthor(query string) []Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.Active()
	}
	return s.filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q)
	})
}

func (s *Synchronizer) ByStatus(status Status) []Book {
	return s.filter(func(b Book) bool { return b.Status == status })
}

func (s *Synchronizer) ByAuthor(author string) []Book {
	return s.filter(func(b Book) bool { return b.Author == author })
}

func (s *Synchronizer) Favorites() []Book {
	return s.filter(func(b Book) bool { return b.IsFavorite })
}

// Authors returns the distinct authors of the active set, sorted.
func (s *Synchronizer) Authors() []string {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.active))
	for _, b := range s.active {
		seen[b.Author] = struct{}{}
	}
	s.mu.RUnlock()

	authors := make([]string, 0, len(seen))
	for a := range seen {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	return authors
}

// Statistics summarizes the active set.
type Statistics struct {
	Total     int `json:"total"`
	Unread    int `json:"unread"`
	Reading   int `json:"reading"`
	Completed int `json:"completed"`
	Favorites int `json:"favorites"`

	// Progress weighs completed books fully and books in progress by half.
	Progress int `json:"progress"`

	UnreadPercent    int `json:"unread_percent"`
	ReadingPercent   int `json:"reading_percent"`
	CompletedPercent int `json:"completed_percent"`
}

func (s *Synchronizer) Statistics() Statistics {
	s.mu.RLock()
	var st Statistics
	for _, b := range s.active {
		switch b.Status {
		case StatusUnread:
			st.Unread++
		case StatusReading:
			st.Reading++
		case StatusCompleted:
			st.Completed++
		}
		if b.IsFavorite {
			st.Favorites++
		}
	}
	st.Total = len(s.active)
	s.mu.RUnlock()

	st.Progress = ratio(100*st.Completed+50*st.Reading, st.Total)
	st.UnreadPercent = percent(st.Unread, st.Total)
	st.ReadingPercent = percent(st.Reading, st.Total)
	st.CompletedPercent = percent(st.Completed, st.Total)
	return st
}

// percent is round(n/total*100), evaluated in that order: 29 of 200 gives 14.
func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func ratio(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total)))
}
