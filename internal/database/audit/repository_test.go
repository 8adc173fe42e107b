package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storynest/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	return db
}

func TestRepository_LogEvent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	event := &entities.AuditEvent{
		UserID:  1,
		Kind:    entities.AuditKindPurge,
		Action:  entities.AuditActionPurge,
		BookIDs: []string{"0b6f3c9e-1f7a-4c55-9d3e-5b1c2a7e8f90", "5d1e2f80-3b4c-4a5d-8e6f-7a8b9c0d1e2f"},
	}

	require.NoError(t, repo.LogEvent(event))
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())

	events, _, err := repo.List(Filter{UserID: 1}, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.BookIDs, events[0].BookIDs)
}

func TestRepository_List(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	for i := 0; i < 12; i++ {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			UserID:    1,
			Kind:      entities.AuditKindBook,
			Action:    entities.AuditActionTrash,
			BookID:    "book-a",
			CreatedAt: time.Now().Add(time.Duration(-i) * time.Hour),
		}))
	}
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		UserID: 1,
		Kind:   entities.AuditKindBook,
		Action: entities.AuditActionRestore,
		BookID: "book-b",
	}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		UserID: 2,
		Kind:   entities.AuditKindAuth,
		Action: "login",
		Failed: true,
	}))

	t.Run("everything", func(t *testing.T) {
		events, total, err := repo.List(Filter{}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(14), total)
		assert.Len(t, events, 14)
	})

	t.Run("by user and action", func(t *testing.T) {
		events, total, err := repo.List(Filter{UserID: 1, Action: entities.AuditActionRestore}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "book-b", events[0].BookID)
	})

	t.Run("by kind", func(t *testing.T) {
		_, total, err := repo.List(Filter{Kind: entities.AuditKindBook}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(13), total)
	})

	t.Run("no matches", func(t *testing.T) {
		events, total, err := repo.List(Filter{UserID: 9}, 10, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, events)
	})

	t.Run("by entity with pagination", func(t *testing.T) {
		page1, total, err := repo.List(Filter{BookID: "book-a"}, 5, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(12), total)
		require.Len(t, page1, 5)

		page2, _, err := repo.List(Filter{BookID: "book-a"}, 5, 5)
		require.NoError(t, err)
		require.Len(t, page2, 5)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
		assert.True(t, !page1[4].CreatedAt.Before(page2[0].CreatedAt))
	})
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now()

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		UserID:    1,
		Kind:      entities.AuditKindPurge,
		Action:    entities.AuditActionPurge,
		CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		UserID:    1,
		Kind:      entities.AuditKindBook,
		Action:    entities.AuditActionTrash,
		CreatedAt: now.Add(-1 * time.Hour),
	}))

	deleted, err := repo.DeleteOldEvents(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := repo.List(Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, entities.AuditActionTrash, events[0].Action)
}
