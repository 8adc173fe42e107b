package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 15*time.Second, cfg.Sync.OperationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sync.HeartbeatInterval)
	assert.Equal(t, 720*time.Hour, cfg.Trash.Retention)
	assert.Equal(t, "0 3 * * *", cfg.Trash.PurgeSchedule)
	assert.Equal(t, DefaultCoverMaxWidth, cfg.Covers.MaxWidth)
	assert.Equal(t, DefaultCoverQuality, cfg.Covers.JPEGQuality)
	assert.Equal(t, "/avatars", cfg.Avatars.PublicURL)
	assert.Equal(t, DefaultAvatarMaxWidth, cfg.Avatars.MaxWidth)
	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
}

func TestNewConfig_Environment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SYNC_OPERATION_TIMEOUT", "3s")
	t.Setenv("TRASH_PURGE_ENABLED", "false")
	t.Setenv("COVERS_PUBLIC_URL", "https://cdn.example.com/covers")

	cfg := NewConfig()

	assert.Equal(t, int32(9000), cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Sync.OperationTimeout)
	assert.False(t, cfg.Trash.PurgeEnabled)
	assert.Equal(t, "https://cdn.example.com/covers", cfg.Covers.PublicURL)
}
