package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Database
		Auth
		Covers
		Avatars
		Sync
		Trash
		Tasks
		Global
		Audit
	}

	HTTP struct {
		Port int32
		Host string
	}
	Database struct {
		Path string
	}
	Auth struct {
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	Covers struct {
		Dir            string // Where uploaded covers are written
		PublicURL      string // URL prefix the files are served under
		CacheDir       string // Where fetched external covers are cached
		MaxWidth       int
		JPEGQuality    int
		MaxUploadBytes int64
	}
	Avatars struct {
		Dir       string // Where uploaded avatars are written
		PublicURL string // URL prefix the files are served under
		MaxWidth  int
	}
	Sync struct {
		OperationTimeout  time.Duration // Deadline for every remote call made by clients
		HeartbeatInterval time.Duration // Keep-alive interval of the change stream
	}
	Trash struct {
		PurgeEnabled  bool
		PurgeSchedule string        // Cron format: "0 3 * * *" = daily at 03:00
		Retention     time.Duration // Trashed books older than this are purged
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration // stuck tasks go back to the queue after this
		CleanupInterval time.Duration // how often finished tasks past retention are dropped
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Audit struct {
		Dir           string // Archive of permanently purged books
		RetentionDays int    // Days to keep audit events (default: 30)
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audit_dir", "./audit")
	v.SetDefault("audit_retention_days", 30)

	// Auth defaults
	v.SetDefault("auth_session_secret", "")       // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h")  // 24 hours
	v.SetDefault("auth_token_expiry", "720h")     // 30 days
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_max_login_attempts", 5)    // Max failed attempts
	v.SetDefault("auth_rate_limit_window", "15m") // Window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // Lockout duration

	// Cover storage defaults
	v.SetDefault("covers_dir", "./covers")
	v.SetDefault("covers_public_url", "/covers")
	v.SetDefault("covers_cache_dir", "./covers/cache")
	v.SetDefault("covers_max_width", DefaultCoverMaxWidth)
	v.SetDefault("covers_jpeg_quality", DefaultCoverQuality)
	v.SetDefault("covers_max_upload_bytes", 10<<20)

	// Avatar storage defaults. Uploads share the cover size limit and quality.
	v.SetDefault("avatars_dir", "./avatars")
	v.SetDefault("avatars_public_url", "/avatars")
	v.SetDefault("avatars_max_width", DefaultAvatarMaxWidth)

	// Sync defaults
	v.SetDefault("sync_operation_timeout", "15s")
	v.SetDefault("sync_heartbeat_interval", "30s")

	// Trash defaults
	v.SetDefault("trash_purge_enabled", true)
	v.SetDefault("trash_purge_schedule", "0 3 * * *") // Daily at 03:00
	v.SetDefault("trash_retention", "720h")           // 30 days

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Auth: Auth{
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Covers: Covers{
			Dir:            v.GetString("COVERS_DIR"),
			PublicURL:      v.GetString("COVERS_PUBLIC_URL"),
			CacheDir:       v.GetString("COVERS_CACHE_DIR"),
			MaxWidth:       v.GetInt("COVERS_MAX_WIDTH"),
			JPEGQuality:    v.GetInt("COVERS_JPEG_QUALITY"),
			MaxUploadBytes: v.GetInt64("COVERS_MAX_UPLOAD_BYTES"),
		},
		Avatars: Avatars{
			Dir:       v.GetString("AVATARS_DIR"),
			PublicURL: v.GetString("AVATARS_PUBLIC_URL"),
			MaxWidth:  v.GetInt("AVATARS_MAX_WIDTH"),
		},
		Sync: Sync{
			OperationTimeout:  v.GetDuration("SYNC_OPERATION_TIMEOUT"),
			HeartbeatInterval: v.GetDuration("SYNC_HEARTBEAT_INTERVAL"),
		},
		Trash: Trash{
			PurgeEnabled:  v.GetBool("TRASH_PURGE_ENABLED"),
			PurgeSchedule: v.GetString("TRASH_PURGE_SCHEDULE"),
			Retention:     v.GetDuration("TRASH_RETENTION"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Audit: Audit{
			Dir:           v.GetString("AUDIT_DIR"),
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
	}
}
