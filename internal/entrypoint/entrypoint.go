// Package entrypoint wires the StoryNest backend together and runs it until
// the process is signalled.
package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/audit"
	"github.com/mrlokans/storynest/internal/auth"
	"github.com/mrlokans/storynest/internal/config"
	"github.com/mrlokans/storynest/internal/covers"
	"github.com/mrlokans/storynest/internal/database"
	dbaudit "github.com/mrlokans/storynest/internal/database/audit"
	"github.com/mrlokans/storynest/internal/database/books"
	"github.com/mrlokans/storynest/internal/database/users"
	http_controllers "github.com/mrlokans/storynest/internal/http"
	"github.com/mrlokans/storynest/internal/realtime"
	"github.com/mrlokans/storynest/internal/scheduler"
	"github.com/mrlokans/storynest/internal/tasks"
)

// coverCleanupGrace keeps fresh uploads that nothing references yet.
const coverCleanupGrace = 24 * time.Hour

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs srv until SIGINT or SIGTERM, then shuts it down within the
// configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) sends SIGTERM, kill -2 is SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Change streams are long-lived requests: close them before asking the
	// server to wait for in-flight requests.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// Run builds every component from cfg and serves until shutdown.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting StoryNest v%s", version)

	if cfg.Trash.PurgeEnabled {
		if err := scheduler.ValidateSchedule(cfg.Trash.PurgeSchedule); err != nil {
			log.Fatalf("Invalid trash purge schedule: %v", err)
		}
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Realtime change feed. Every committed book write is published here.
	hub := realtime.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Start(hubCtx)

	bookRepo := books.NewRepository(db.DB, hub)
	auditService := audit.NewService(dbaudit.NewRepository(db.DB))
	archiver := audit.NewArchiver(cfg.Audit.Dir)

	coverStorage, err := covers.NewStorage(covers.StorageOptions{
		Dir:       cfg.Covers.Dir,
		PublicURL: cfg.Covers.PublicURL,
		MaxWidth:  cfg.Covers.MaxWidth,
		Quality:   cfg.Covers.JPEGQuality,
		MaxBytes:  cfg.Covers.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cover storage: %v", err)
	}
	log.Printf("Cover uploads stored in %s", coverStorage.Dir())

	avatarStorage, err := covers.NewStorage(covers.StorageOptions{
		Dir:       cfg.Avatars.Dir,
		PublicURL: cfg.Avatars.PublicURL,
		MaxWidth:  cfg.Avatars.MaxWidth,
		Quality:   cfg.Covers.JPEGQuality,
		MaxBytes:  cfg.Covers.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("Failed to initialize avatar storage: %v", err)
	}

	userRepo := users.NewRepository(db.DB)

	coverCache, err := covers.NewCache(cfg.Covers.CacheDir)
	if err != nil {
		log.Printf("WARNING: Failed to initialize cover cache: %v", err)
		coverCache = nil
	} else {
		log.Printf("Cover cache initialized at %s", coverCache.CacheDir())
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var purgeScheduler *scheduler.TrashPurgeScheduler
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		coverRemovers := []tasks.FileRemover{coverStorage}
		if coverCache != nil {
			coverRemovers = append(coverRemovers, coverCache)
		}
		taskClient.Register(
			tasks.NewPurgeTrashQueue(bookRepo, archiver, auditService),
			tasks.NewCleanupCoversQueue(bookRepo, coverRemovers...),
			tasks.NewCleanupAvatarsQueue(userRepo, avatarStorage),
			tasks.NewCleanupAuditEventsQueue(auditService),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		purgeScheduler = scheduler.NewTrashPurgeScheduler(taskClient, scheduler.TrashPurgeConfig{
			Enabled:            cfg.Trash.PurgeEnabled,
			Schedule:           cfg.Trash.PurgeSchedule,
			Retention:          cfg.Trash.Retention,
			CoverGrace:         coverCleanupGrace,
			AuditRetentionDays: cfg.Audit.RetentionDays,
		})
		if err := purgeScheduler.Start(taskCtx); err != nil {
			log.Fatalf("Failed to start trash purge scheduler: %v", err)
		}
	} else if cfg.Trash.PurgeEnabled {
		log.Printf("WARNING: task queue disabled, trashed books will not be purged")
	}

	authService := auth.NewService(userRepo, cfg.Auth)

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for sessions: %v", err)
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}
	authMiddleware := auth.NewMiddleware(authService, sessionManager)
	authController := auth.NewController(authService, sessionManager, auditService, cfg.Auth)
	defer authController.Close()

	csrfSecret, err := csrfSecretFrom(cfg.Auth.SessionSecret)
	if err != nil {
		log.Fatalf("Failed to generate CSRF secret: %v", err)
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Books:          bookRepo,
		Auditor:        auditService,
		Audit:          auditService,
		Changes:        realtime.NewStream(hub, cfg.Sync.HeartbeatInterval),
		Subscribers:    hub,
		CoverStorage:   coverStorage,
		CoverCache:     coverCache,
		AvatarStorage:  avatarStorage,
		AuthController: authController,
		AuthMiddleware: authMiddleware,
		AuthService:    authService,
		SessionManager: sessionManager,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Auth.SecureCookies,
		MaxUploadBytes: cfg.Covers.MaxUploadBytes,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		if err := hub.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down change feed: %v", err)
		}
		if purgeScheduler != nil {
			purgeScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}

// csrfSecretFrom decodes a hex session secret, falls back to the raw bytes,
// and generates a fresh one when none is configured.
func csrfSecretFrom(configured string) ([]byte, error) {
	if configured != "" {
		if secret, err := hex.DecodeString(configured); err == nil {
			return secret, nil
		}
		return []byte(configured), nil
	}

	secret, err := auth.NewSessionSecret()
	if err != nil {
		return nil, err
	}
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return secret, nil
}
