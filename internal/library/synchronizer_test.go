package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/storynest/internal/wire"
)

var errBackendDown = errors.New("backend down")

func TestSynchronizer_Load(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	remote.seed("u1", wire.Record{wire.FieldID: "b", wire.FieldTitle: "Emma"})
	remote.seed("u1", wire.Record{wire.FieldID: "c", wire.FieldTitle: "Ulysses", wire.FieldDeletedAt: wire.FormatTime(testNow)})
	remote.seed("u2", wire.Record{wire.FieldID: "d", wire.FieldTitle: "Not mine"})

	s := loadedSynchronizer(t, remote)

	assert.True(t, s.Ready())
	assert.Equal(t, "u1", s.Owner())
	assert.Equal(t, []string{"b", "a"}, ids(s.Active()))
	require.Len(t, s.Trash(), 1)
	assert.Equal(t, "c", s.Trash()[0].ID)
	assert.True(t, testNow.Equal(s.Trash()[0].DeletedAt))
	requirePartitioned(t, s)
}

func TestSynchronizer_LoadFailureKeepsState(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := loadedSynchronizer(t, remote)

	remote.queryErr = errBackendDown
	err := s.Load(context.Background(), "u1")

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "u1", loadErr.Owner)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, []string{"a"}, ids(s.Active()))
	assert.True(t, s.Ready())
}

func TestSynchronizer_LoadSkipsMalformedRows(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	remote.seed("u1", wire.Record{wire.FieldID: "bad", wire.FieldTitle: "Broken", wire.FieldStatus: "abandoned"})

	s := loadedSynchronizer(t, remote)

	assert.Equal(t, []string{"a"}, ids(s.Active()))
}

func TestSynchronizer_RequiresIdentity(t *testing.T) {
	s := NewSynchronizer(newFakeRemote(), Options{})

	_, err := s.Add(context.Background(), Draft{Title: "Dune"})
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.ErrorIs(t, s.Load(context.Background(), ""), ErrNoIdentity)
	assert.False(t, s.Ready())
}

func TestSynchronizer_Add(t *testing.T) {
	t.Run("applies defaults and prepends", func(t *testing.T) {
		remote := newFakeRemote()
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Emma"})
		s := loadedSynchronizer(t, remote)

		book, err := s.Add(context.Background(), Draft{Title: "  dune "})
		require.NoError(t, err)

		assert.NotEmpty(t, book.ID)
		assert.Equal(t, "dune", book.Title)
		assert.Equal(t, DefaultAuthor, book.Author)
		assert.Equal(t, StatusUnread, book.Status)
		assert.Equal(t, "https://placehold.co/150x200/374151/ffffff?text=D", book.CoverURL)
		assert.Nil(t, book.StartedAt)
		assert.Equal(t, []string{book.ID, "a"}, ids(s.Active()))
	})

	t.Run("reading draft starts now", func(t *testing.T) {
		s := loadedSynchronizer(t, newFakeRemote())

		book, err := s.Add(context.Background(), Draft{Title: "Dune", Status: StatusReading})
		require.NoError(t, err)
		require.NotNil(t, book.StartedAt)
		assert.True(t, testNow.Equal(*book.StartedAt))
		assert.Nil(t, book.CompletedAt)
	})

	t.Run("invalid draft never reaches the server", func(t *testing.T) {
		remote := newFakeRemote()
		s := loadedSynchronizer(t, remote)

		_, err := s.Add(context.Background(), Draft{Title: "   "})
		assert.ErrorIs(t, err, ErrInvalidDraft)

		_, err = s.Add(context.Background(), Draft{Title: "Dune", Rating: 6})
		assert.ErrorIs(t, err, ErrInvalidDraft)

		assert.Empty(t, s.Active())
		assert.Zero(t, remote.nextID)
	})

	t.Run("rejected insert leaves the set untouched", func(t *testing.T) {
		remote := newFakeRemote()
		s := loadedSynchronizer(t, remote)
		remote.insertErr = errBackendDown

		_, err := s.Add(context.Background(), Draft{Title: "Dune"})

		var mutErr *MutationError
		require.ErrorAs(t, err, &mutErr)
		assert.Equal(t, "add", mutErr.Op)
		assert.Empty(t, s.Active())
	})

	t.Run("added book survives a reload", func(t *testing.T) {
		remote := newFakeRemote()
		s := loadedSynchronizer(t, remote)

		book, err := s.Add(context.Background(), Draft{Title: "Dune", Author: "Frank Herbert", Rating: 4})
		require.NoError(t, err)
		require.NoError(t, s.Load(context.Background(), "u1"))

		active := s.Active()
		require.Len(t, active, 1)
		assert.Equal(t, book.ID, active[0].ID)
		assert.Equal(t, "Frank Herbert", active[0].Author)
		assert.Equal(t, 4, active[0].Rating)
	})
}

func TestSynchronizer_UpdateStatusTransitions(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := loadedSynchronizer(t, remote)
	ctx := context.Background()

	find := func() Book {
		t.Helper()
		active := s.Active()
		require.Len(t, active, 1)
		return active[0]
	}

	require.NoError(t, s.Update(ctx, "a", Patch{Status: Ptr(StatusReading)}))
	b := find()
	require.NotNil(t, b.StartedAt)
	assert.True(t, testNow.Equal(*b.StartedAt))
	assert.Nil(t, b.CompletedAt)
	assert.Equal(t, wire.FormatTime(testNow), remote.row("a")[wire.FieldStartedAt])

	require.NoError(t, s.Update(ctx, "a", Patch{Status: Ptr(StatusCompleted)}))
	b = find()
	assert.Equal(t, StatusCompleted, b.Status)
	require.NotNil(t, b.CompletedAt)
	require.NotNil(t, b.StartedAt, "completing keeps the start date")

	require.NoError(t, s.Update(ctx, "a", Patch{Status: Ptr(StatusReading)}))
	b = find()
	assert.Nil(t, b.CompletedAt)
	assert.Nil(t, remote.row("a")[wire.FieldCompletedAt])

	require.NoError(t, s.Update(ctx, "a", Patch{Status: Ptr(StatusUnread)}))
	b = find()
	assert.Nil(t, b.StartedAt)
	assert.Nil(t, b.CompletedAt)
	assert.Equal(t, "unread", remote.row("a")[wire.FieldStatus])
}

func TestSynchronizer_UpdateRejectsInvalidPatch(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := loadedSynchronizer(t, remote)

	err := s.Update(context.Background(), "a", Patch{Rating: Ptr(9)})

	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Zero(t, remote.updateCount())
}

func TestSynchronizer_UpdateRollback(t *testing.T) {
	t.Run("restores every patched field", func(t *testing.T) {
		remote := newFakeRemote()
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldRating: 2})
		s := loadedSynchronizer(t, remote)
		remote.updateErr = errBackendDown

		err := s.Update(context.Background(), "a", Patch{Rating: Ptr(4), Note: Ptr("great")})

		var mutErr *MutationError
		require.ErrorAs(t, err, &mutErr)
		assert.Equal(t, "a", mutErr.ID)
		b := s.Active()[0]
		assert.Equal(t, 2, b.Rating)
		assert.Equal(t, "", b.Note)
	})

	t.Run("keeps fields a notification changed meanwhile", func(t *testing.T) {
		remote := newFakeRemote()
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldRating: 2})
		s := loadedSynchronizer(t, remote)
		remote.updateErr = errBackendDown
		remote.onUpdate = func() {
			err := s.Apply(context.Background(), wire.ChangeEvent{
				Type:  wire.EventUpdate,
				Owner: "u1",
				New:   wire.Record{wire.FieldID: "a", wire.FieldRating: 5.0},
			})
			require.NoError(t, err)
		}

		err := s.Update(context.Background(), "a", Patch{Rating: Ptr(4), Note: Ptr("great")})
		require.Error(t, err)

		b := s.Active()[0]
		assert.Equal(t, 5, b.Rating)
		assert.Equal(t, "", b.Note)
	})

	t.Run("status rollback restores derived timestamps", func(t *testing.T) {
		remote := newFakeRemote()
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
		s := loadedSynchronizer(t, remote)
		remote.updateErr = errBackendDown

		require.Error(t, s.Update(context.Background(), "a", Patch{Status: Ptr(StatusReading)}))

		b := s.Active()[0]
		assert.Equal(t, StatusUnread, b.Status)
		assert.Nil(t, b.StartedAt)
	})
}

func TestSynchronizer_SoftDeleteAndRestore(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldRating: 3})
	remote.seed("u1", wire.Record{wire.FieldID: "b", wire.FieldTitle: "Emma"})
	s := loadedSynchronizer(t, remote)
	ctx := context.Background()
	original := s.Active()[1]

	require.NoError(t, s.SoftDelete(ctx, "a"))

	assert.Equal(t, []string{"b"}, ids(s.Active()))
	trash := s.Trash()
	require.Len(t, trash, 1)
	assert.Equal(t, "a", trash[0].ID)
	assert.True(t, testNow.Equal(trash[0].DeletedAt))
	assert.Equal(t, wire.FormatTime(testNow), remote.row("a")[wire.FieldDeletedAt])
	requirePartitioned(t, s)

	require.NoError(t, s.Restore(ctx, "a"))

	assert.Empty(t, s.Trash())
	assert.Equal(t, []string{"a", "b"}, ids(s.Active()))
	assert.Equal(t, original, s.Active()[0])
	assert.Nil(t, remote.row("a")[wire.FieldDeletedAt])
	requirePartitioned(t, s)
}

func TestSynchronizer_SoftDeleteFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := loadedSynchronizer(t, remote)
	remote.updateErr = errBackendDown

	err := s.SoftDelete(context.Background(), "a")

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, "delete", mutErr.Op)
	assert.Equal(t, []string{"a"}, ids(s.Active()))
	assert.Empty(t, s.Trash())
}

func TestSynchronizer_SoftDeleteUnknownStillCallsRemote(t *testing.T) {
	remote := newFakeRemote()
	s := loadedSynchronizer(t, remote)
	remote.seed("u1", wire.Record{wire.FieldID: "late", wire.FieldTitle: "Arrived later"})

	require.NoError(t, s.SoftDelete(context.Background(), "late"))

	assert.Equal(t, 1, remote.updateCount())
	assert.Empty(t, s.Trash())
}

func TestSynchronizer_PermanentlyDelete(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldDeletedAt: wire.FormatTime(testNow)})
	s := loadedSynchronizer(t, remote)

	require.NoError(t, s.PermanentlyDelete(context.Background(), "a"))

	assert.Empty(t, s.Trash())
	assert.Equal(t, [][]string{{"a"}}, remote.deletes)

	remote.deleteErr = errBackendDown
	remote.seed("u1", wire.Record{wire.FieldID: "b", wire.FieldTitle: "Emma", wire.FieldDeletedAt: wire.FormatTime(testNow)})
	require.NoError(t, s.Load(context.Background(), "u1"))
	err := s.PermanentlyDelete(context.Background(), "b")
	assert.Error(t, err)
	assert.Len(t, s.Trash(), 1)
}

func TestSynchronizer_ClearTrash(t *testing.T) {
	t.Run("empty trash makes no remote call", func(t *testing.T) {
		remote := newFakeRemote()
		s := loadedSynchronizer(t, remote)

		require.NoError(t, s.ClearTrash(context.Background()))
		assert.Empty(t, remote.deletes)
	})

	t.Run("deletes everything in one call", func(t *testing.T) {
		remote := newFakeRemote()
		deleted := wire.FormatTime(testNow)
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldDeletedAt: deleted})
		remote.seed("u1", wire.Record{wire.FieldID: "b", wire.FieldTitle: "Emma", wire.FieldDeletedAt: deleted})
		remote.seed("u1", wire.Record{wire.FieldID: "c", wire.FieldTitle: "Ulysses"})
		s := loadedSynchronizer(t, remote)

		require.NoError(t, s.ClearTrash(context.Background()))

		require.Len(t, remote.deletes, 1)
		assert.ElementsMatch(t, []string{"a", "b"}, remote.deletes[0])
		assert.Empty(t, s.Trash())
		assert.Equal(t, []string{"c"}, ids(s.Active()))
	})

	t.Run("book restored while the call is in flight survives", func(t *testing.T) {
		remote := newFakeRemote()
		deleted := wire.FormatTime(testNow)
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldDeletedAt: deleted})
		remote.seed("u1", wire.Record{wire.FieldID: "b", wire.FieldTitle: "Emma", wire.FieldDeletedAt: deleted})
		s := loadedSynchronizer(t, remote)
		remote.onDelete = func() {
			require.NoError(t, s.Restore(context.Background(), "b"))
		}

		require.NoError(t, s.ClearTrash(context.Background()))

		require.Len(t, remote.deletes, 1)
		assert.ElementsMatch(t, []string{"a", "b"}, remote.deletes[0])
		assert.Nil(t, remote.row("a"))
		assert.NotNil(t, remote.row("b"))
		assert.Empty(t, s.Trash())
		assert.Equal(t, []string{"b"}, ids(s.Active()))
	})

	t.Run("remote failure leaves the trash intact", func(t *testing.T) {
		remote := newFakeRemote()
		remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune", wire.FieldDeletedAt: wire.FormatTime(testNow)})
		s := loadedSynchronizer(t, remote)
		remote.deleteErr = errBackendDown

		err := s.ClearTrash(context.Background())

		var mutErr *MutationError
		require.ErrorAs(t, err, &mutErr)
		assert.Equal(t, "empty trash", mutErr.Op)
		assert.Equal(t, []string{"a"}, trashIDs(s.Trash()))
	})
}

func TestSynchronizer_ToggleFavorite(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := loadedSynchronizer(t, remote)
	ctx := context.Background()

	require.NoError(t, s.ToggleFavorite(ctx, "a"))
	assert.True(t, s.Active()[0].IsFavorite)
	assert.Equal(t, true, remote.row("a")[wire.FieldIsFavorite])

	require.NoError(t, s.ToggleFavorite(ctx, "a"))
	assert.False(t, s.Active()[0].IsFavorite)

	err := s.ToggleFavorite(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFoundLocally)
	assert.Equal(t, 2, remote.updateCount())
}

func TestSynchronizer_ResetDropsInFlightResults(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := loadedSynchronizer(t, remote)
	remote.onUpdate = func() { s.Reset("u2") }

	err := s.SoftDelete(context.Background(), "a")

	assert.ErrorIs(t, err, ErrStaleIdentity)
	assert.Empty(t, s.Active())
	assert.Empty(t, s.Trash())
	assert.Equal(t, "u2", s.Owner())
}

func TestSynchronizer_OperationTimeout(t *testing.T) {
	remote := newFakeRemote()
	remote.seed("u1", wire.Record{wire.FieldID: "a", wire.FieldTitle: "Dune"})
	s := NewSynchronizer(&slowRemote{fakeRemote: remote}, Options{OperationTimeout: 10 * time.Millisecond})
	require.NoError(t, s.Load(context.Background(), "u1"))

	err := s.Update(context.Background(), "a", Patch{Note: Ptr("x")})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "", s.Active()[0].Note)
}

// slowRemote blocks updates until the call context ends.
type slowRemote struct {
	*fakeRemote
}

func (r *slowRemote) Update(ctx context.Context, _, _ string, _ wire.Record) error {
	<-ctx.Done()
	return ctx.Err()
}
