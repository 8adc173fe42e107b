package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if cfg.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	router.Use(auth.SecurityHeaders(cfg.SecureCookies))

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService))
	}
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}
	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.Handler())
	}

	var db Pinger
	if cfg.Database != nil {
		db = cfg.Database
	}
	health := NewHealthController(db, cfg.Subscribers, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	api := router.Group("/api")

	if cfg.AuthController != nil {
		cfg.AuthController.RegisterRoutes(api.Group("/auth"))
	}

	if cfg.Books != nil {
		booksController := NewBooksController(cfg.Books, cfg.Auditor)
		api.GET("/books", booksController.ListBooks)
		api.POST("/books", booksController.CreateBook)
		api.DELETE("/books", booksController.DeleteBooks)
		api.GET("/books/:id", booksController.GetBook)
		api.PATCH("/books/:id", booksController.UpdateBook)
		api.DELETE("/books/:id", booksController.DeleteBook)
	}

	if cfg.Changes != nil {
		changesController := NewChangesController(cfg.Changes)
		api.GET("/books/changes", changesController.Stream)
	}

	if cfg.CoverStorage != nil {
		coversController := NewCoversController(cfg.CoverStorage, cfg.CoverCache, cfg.Books)
		api.POST("/covers", coversController.Upload)
		router.GET("/covers/:name", coversController.Serve)
		if cfg.Books != nil {
			api.GET("/books/:id/cover", coversController.GetCover)
		}
	}

	if cfg.AvatarStorage != nil {
		avatarsController := NewAvatarsController(cfg.AvatarStorage)
		api.POST("/avatars", avatarsController.Upload)
		router.GET("/avatars/:name", avatarsController.Serve)
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		api.GET("/audit", auditController.ListEvents)
	}

	return router
}
