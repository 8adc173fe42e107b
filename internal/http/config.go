package http

import (
	"github.com/mrlokans/storynest/internal/auth"
	"github.com/mrlokans/storynest/internal/covers"
	"github.com/mrlokans/storynest/internal/database"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Books    BookStore
	Auditor  BookAuditor
	Audit    AuditReader

	// Realtime change feed
	Changes     ChangeStreamer
	Subscribers SubscriberCounter

	// Covers. CoverCache is optional.
	CoverStorage *covers.Storage
	CoverCache   *covers.Cache

	// Profile pictures
	AvatarStorage *covers.Storage

	// Authentication
	AuthController *auth.Controller
	AuthMiddleware *auth.Middleware
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	CSRFSecret     []byte
	SecureCookies  bool

	// MaxUploadBytes bounds multipart parsing of cover uploads.
	MaxUploadBytes int64

	// Application info
	Version string
}
