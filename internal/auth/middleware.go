package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/entities"
	"github.com/mrlokans/storynest/internal/identity"
)

// callerKey holds the *Caller of an authenticated request in the gin context.
const callerKey = "auth_caller"

// AuthType is how a caller proved who they are.
type AuthType string

const (
	AuthTypeNone    AuthType = "none"
	AuthTypeSession AuthType = "session"
	AuthTypeBearer  AuthType = "bearer"
)

// Caller is the authenticated user of a request.
type Caller struct {
	User *entities.User
	Via  AuthType
}

// publicPaths are served without authentication. Entries ending in "/" match
// by prefix.
var publicPaths = []string{
	"/health",
	"/ping",
	"/covers/",
	"/avatars/",
	"/api/auth/login",
	"/api/auth/register",
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

// Middleware resolves the caller of every non-public request. Bearer tokens
// are tried before the session cookie.
type Middleware struct {
	service  *Service
	sessions *SessionManager
}

// NewMiddleware creates the authentication middleware. Without sessions only
// bearer tokens are accepted.
func NewMiddleware(service *Service, sessions *SessionManager) *Middleware {
	return &Middleware{service: service, sessions: sessions}
}

func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		caller := m.fromBearer(c)
		if caller == nil {
			caller = m.fromSession(c)
		}
		if caller == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		SetCaller(c, caller)
		c.Next()
	}
}

func (m *Middleware) fromBearer(c *gin.Context) *Caller {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil
	}
	user, err := m.service.ValidateToken(token)
	if err != nil {
		return nil
	}
	return &Caller{User: user, Via: AuthTypeBearer}
}

func (m *Middleware) fromSession(c *gin.Context) *Caller {
	if m.sessions == nil {
		return nil
	}
	userID := m.sessions.GetUserID(c.Request)
	if userID == 0 {
		return nil
	}
	user, err := m.service.GetUserByID(userID)
	if err != nil || !m.sessions.Matches(c.Request, user) {
		return nil
	}
	return &Caller{User: user, Via: AuthTypeSession}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SetCaller stores the authenticated caller on the request.
func SetCaller(c *gin.Context, caller *Caller) {
	c.Set(callerKey, caller)
}

// GetCaller returns the authenticated caller, or nil on public paths.
func GetCaller(c *gin.Context) *Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(*Caller)
	return caller
}

// GetUserID returns the authenticated user's id, or 0.
func GetUserID(c *gin.Context) uint {
	if caller := GetCaller(c); caller != nil && caller.User != nil {
		return caller.User.ID
	}
	return 0
}

func GetAuthType(c *gin.Context) AuthType {
	if caller := GetCaller(c); caller != nil {
		return caller.Via
	}
	return AuthTypeNone
}

// CurrentIdentity returns the caller as a client identity, or nil.
func CurrentIdentity(c *gin.Context) *identity.Identity {
	caller := GetCaller(c)
	if caller == nil || caller.User == nil {
		return nil
	}
	id := IdentityOf(caller.User)
	return &id
}
