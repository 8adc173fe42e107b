package audit

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	auditRepo "github.com/mrlokans/storynest/internal/database/audit"
	"github.com/mrlokans/storynest/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	return NewService(auditRepo.NewRepository(db)), db
}

// waitForAction polls until an event with the given action was written.
func waitForAction(t *testing.T, db *gorm.DB, action string) entities.AuditEvent {
	t.Helper()
	var event entities.AuditEvent
	require.Eventually(t, func() bool {
		return db.Where("action = ?", action).First(&event).Error == nil
	}, time.Second, 10*time.Millisecond)
	return event
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		UserID: 1,
		Kind:   entities.AuditKindAuth,
		Action: "register",
	}
	require.NoError(t, svc.Log(event))

	var saved entities.AuditEvent
	require.NoError(t, db.First(&saved, event.ID).Error)
	assert.Equal(t, "register", saved.Action)
}

func TestService_BookLifecycle(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogTrash(1, "book-1", "Dune")
	trash := waitForAction(t, db, entities.AuditActionTrash)
	assert.Equal(t, entities.AuditKindBook, trash.Kind)
	assert.Equal(t, "book-1", trash.BookID)
	assert.Equal(t, "Dune", trash.BookTitle)
	assert.False(t, trash.Failed)

	svc.LogRestore(1, "book-1", "Dune")
	restore := waitForAction(t, db, entities.AuditActionRestore)
	assert.Equal(t, "book-1", restore.BookID)

	svc.LogDelete(1, []string{"book-1"})
	deleted := waitForAction(t, db, entities.AuditActionDelete)
	assert.Equal(t, entities.AuditKindBook, deleted.Kind)
	assert.Empty(t, deleted.BookTitle)
}

func TestService_LogPurge(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogPurge([]entities.Book{{ID: "a", UserID: 3}, {ID: "b", UserID: 3}}, 720*time.Hour, nil)

	event := waitForAction(t, db, entities.AuditActionPurge)
	assert.Equal(t, uint(3), event.UserID)
	assert.Equal(t, entities.AuditKindPurge, event.Kind)
	assert.False(t, event.Failed)
	assert.ElementsMatch(t, []string{"a", "b"}, event.BookIDs)
}

func TestService_LogPurgeFailure(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogPurge(nil, time.Hour, errors.New("database is locked"))

	event := waitForAction(t, db, entities.AuditActionPurge)
	assert.True(t, event.Failed)
	assert.Contains(t, event.Error, "database is locked")
}

func TestService_LogAuth(t *testing.T) {
	svc, db := setupTestService(t)

	t.Run("successful login", func(t *testing.T) {
		svc.LogAuth(1, "login", "192.168.1.1", "Mozilla/5.0", true)

		event := waitForAction(t, db, "login")
		assert.False(t, event.Failed)
		assert.Equal(t, entities.AuditKindAuth, event.Kind)
		assert.Equal(t, "192.168.1.1", event.IPAddress)
	})

	t.Run("failed login", func(t *testing.T) {
		svc.LogAuth(0, "login_failed", "10.0.0.1", "curl/7.68.0", false)

		event := waitForAction(t, db, "login_failed")
		assert.True(t, event.Failed)
	})
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, _ := setupTestService(t)

	require.NoError(t, svc.Log(&entities.AuditEvent{
		Kind:      entities.AuditKindAuth,
		Action:    "login",
		CreatedAt: time.Now().Add(-100 * 24 * time.Hour),
	}))
	require.NoError(t, svc.Log(&entities.AuditEvent{
		Kind:   entities.AuditKindAuth,
		Action: "login",
	}))

	deleted, err := svc.DeleteOldEvents(90 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := svc.GetEvents(auditRepo.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
