package library

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/storynest/internal/wire"
)

func TestStatistics(t *testing.T) {
	remote := newFakeRemote()
	add := func(id, status string, favorite bool) {
		remote.seed("u1", wire.Record{wire.FieldID: id, wire.FieldTitle: id, wire.FieldStatus: status, wire.FieldIsFavorite: favorite})
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		add(id, "completed", id == "c1")
	}
	add("r1", "reading", false)
	add("r2", "reading", true)
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5"} {
		add(id, "unread", false)
	}
	add("gone", "completed", false)
	remote.rows["gone"][wire.FieldDeletedAt] = wire.FormatTime(testNow)

	s := loadedSynchronizer(t, remote)

	assert.Equal(t, Statistics{
		Total:            10,
		Unread:           5,
		Reading:          2,
		Completed:        3,
		Favorites:        2,
		Progress:         40,
		UnreadPercent:    50,
		ReadingPercent:   20,
		CompletedPercent: 30,
	}, s.Statistics())
}

func TestStatistics_Empty(t *testing.T) {
	s := loadedSynchronizer(t, newFakeRemote())

	assert.Equal(t, Statistics{}, s.Statistics())
}

func TestStatistics_Rounding(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "a", wire.FieldStatus: "reading"})
	remote.seed("u1", wire.Record{wire.FieldID: "b", wire.FieldTitle: "b"})
	remote.seed("u1", wire.Record{wire.FieldID: "c", wire.FieldTitle: "c"})
	s := loadedSynchronizer(t, remote)

	st := s.Statistics()
	assert.Equal(t, 17, st.Progress)
	assert.Equal(t, 33, st.ReadingPercent)
	assert.Equal(t, 67, st.UnreadPercent)
}

func TestStatistics_PercentOfFraction(t *testing.T) {
	remote := newFakeRemote()
	for i := 0; i < 200; i++ {
		status := "unread"
		if i < 29 {
			status = "completed"
		}
		id := fmt.Sprintf("b%03d", i)
		remote.seed("u1", wire.Record{wire.FieldID: id, wire.FieldTitle: id, wire.FieldStatus: status})
	}
	s := loadedSynchronizer(t, remote)

	st := s.Statistics()
	assert.Equal(t, 14, st.CompletedPercent)
	assert.Equal(t, 86, st.UnreadPercent)
	assert.Equal(t, 15, st.Progress, "progress divides the weighted sum")
}

func viewFixture(t *testing.T) *Synchronizer {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "1", wire.FieldTitle: "abcdef", wire.FieldAuthor: "b"})
	remote.seed("u1", wire.Record{wire.FieldID: "2", wire.FieldTitle: "Dune", wire.FieldAuthor: "Frank Herbert", wire.FieldStatus: "reading", wire.FieldIsFavorite: true})
	remote.seed("u1", wire.Record{wire.FieldID: "3", wire.FieldTitle: "Emma", wire.FieldAuthor: "a"})
	remote.seed("u1", wire.Record{wire.FieldID: "4", wire.FieldTitle: "Persuasion", wire.FieldAuthor: "A"})
	remote.seed("u1", wire.Record{wire.FieldID: "5", wire.FieldTitle: "abc trashed", wire.FieldDeletedAt: wire.FormatTime(testNow)})
	return loadedSynchronizer(t, remote)
}

func TestFilteredBySearch(t *testing.T) {
	s := viewFixture(t)

	assert.Equal(t, ids(s.Active()), ids(s.FilteredBySearch("")))
	assert.Equal(t, ids(s.Active()), ids(s.FilteredBySearch("   ")))
	assert.Equal(t, []string{"1"}, ids(s.FilteredBySearch("ABC")))
	assert.Empty(t, s.FilteredBySearch("herbert"), "authors are not searched")
}

func TestSearchTitleOrAuthor(t *testing.T) {
	s := viewFixture(t)

	assert.Equal(t, []string{"2"}, ids(s.SearchTitleOrAuthor("HERBERT")))
	assert.Equal(t, []string{"1"}, ids(s.SearchTitleOrAuthor("cde")))
}

func TestFilters(t *testing.T) {
	s := viewFixture(t)

	assert.Equal(t, []string{"2"}, ids(s.ByStatus(StatusReading)))
	assert.Equal(t, []string{"4", "3", "1"}, ids(s.ByStatus(StatusUnread)))
	assert.Empty(t, s.ByStatus(StatusCompleted))
	assert.Equal(t, []string{"2"}, ids(s.Favorites()))
	assert.Equal(t, []string{"4"}, ids(s.ByAuthor("A")))
}

func TestAuthors(t *testing.T) {
	s := viewFixture(t)

	assert.Equal(t, []string{"A", "Frank Herbert", "a", "b"}, s.Authors())
}
