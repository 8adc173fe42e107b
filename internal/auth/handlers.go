package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/config"
	"github.com/mrlokans/storynest/internal/entities"
	"github.com/mrlokans/storynest/internal/identity"
)

// AuditLogger records authentication attempts.
type AuditLogger interface {
	LogAuth(userID uint, action string, ipAddr, userAgent string, success bool)
}

// Credentials is the body of a login request.
type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignInResponse is returned by login and register. The token is shown once.
type SignInResponse struct {
	Token string            `json:"token"`
	User  identity.Identity `json:"user"`
}

// Controller serves the /api/auth endpoints.
type Controller struct {
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	audit          AuditLogger
}

// NewController creates the auth endpoints. sessionManager and audit may be nil.
func NewController(service *Service, sessionManager *SessionManager, audit AuditLogger, cfg config.Auth) *Controller {
	return &Controller{
		service:        service,
		sessionManager: sessionManager,
		audit:          audit,
		rateLimiter: NewRateLimiter(RateLimitConfig{
			MaxAttempts:     cfg.MaxLoginAttempts,
			WindowDuration:  cfg.RateLimitWindow,
			LockoutDuration: cfg.LockoutDuration,
		}),
	}
}

// Close stops the rate limiter's cleanup loop.
func (ac *Controller) Close() {
	ac.rateLimiter.Stop()
}

// RegisterRoutes mounts the endpoints under group.
func (ac *Controller) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/register", ac.Register)
	group.POST("/login", ac.Login)
	group.POST("/logout", ac.Logout)
	group.GET("/me", ac.Me)
	group.PATCH("/me", ac.UpdateMe)
	group.POST("/password", ac.ChangePassword)
}

// Register creates an account and signs it in.
func (ac *Controller) Register(c *gin.Context) {
	var req Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := ac.service.Register(req)
	switch {
	case errors.Is(err, ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrEmailRequired), errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrPasswordRequired), errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrPasswordTooLong), errors.Is(err, ErrNameTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Printf("Failed to register user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	ac.logAuth(c, user.ID, "register", true)
	ac.signIn(c, http.StatusCreated, user)
}

// Login exchanges credentials for an API token and a browser session.
func (ac *Controller) Login(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	ip := c.ClientIP()
	if allowed, retryAfter := ac.rateLimiter.Allow(ip, req.Email); !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	user, err := ac.service.Authenticate(req.Email, req.Password)
	if err != nil {
		ac.rateLimiter.RecordFailure(ip, req.Email)
		ac.logAuth(c, 0, "login_failed", false)
		if errors.Is(err, ErrAccountLocked) {
			c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
			return
		}
		if !errors.Is(err, ErrUserNotFound) && !errors.Is(err, ErrInvalidPassword) {
			log.Printf("Login failed: %v", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	ac.rateLimiter.RecordSuccess(ip, req.Email)
	ac.logAuth(c, user.ID, "login", true)
	ac.signIn(c, http.StatusOK, user)
}

func (ac *Controller) signIn(c *gin.Context, status int, user *entities.User) {
	token, err := ac.service.GenerateToken(user.ID)
	if err != nil {
		log.Printf("Failed to issue token for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			log.Printf("Failed to create session for user %d: %v", user.ID, err)
		}
	}
	c.JSON(status, SignInResponse{Token: token, User: IdentityOf(user)})
}

// Logout ends the browser session. Bearer callers also lose their token.
func (ac *Controller) Logout(c *gin.Context) {
	userID := GetUserID(c)
	if GetAuthType(c) == AuthTypeBearer {
		if err := ac.service.RevokeToken(userID); err != nil {
			log.Printf("Failed to revoke token for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign out"})
			return
		}
	}
	if ac.sessionManager != nil {
		_ = ac.sessionManager.DestroySession(c.Request)
	}
	ac.logAuth(c, userID, "logout", true)
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

// Me returns the caller's identity.
func (ac *Controller) Me(c *gin.Context) {
	id := CurrentIdentity(c)
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, id)
}

// UpdateMe changes the caller's name, username or avatar.
func (ac *Controller) UpdateMe(c *gin.Context) {
	userID := GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := ac.service.UpdateProfile(userID, req)
	switch {
	case errors.Is(err, ErrNameTooLong), errors.Is(err, ErrUsernameInvalid), errors.Is(err, ErrAvatarURLInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	case err != nil:
		log.Printf("Failed to update profile of user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, IdentityOf(user))
}

// PasswordChange is the body of a password change.
type PasswordChange struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword replaces the caller's password after checking the current one.
func (ac *Controller) ChangePassword(c *gin.Context) {
	userID := GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_password and new_password are required"})
		return
	}

	err := ac.service.ChangePassword(userID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, ErrInvalidPassword):
		ac.logAuth(c, userID, "password_change", false)
		c.JSON(http.StatusForbidden, gin.H{"error": "current password is incorrect"})
		return
	case errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Printf("Failed to change password of user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}
	ac.logAuth(c, userID, "password_change", true)
	c.JSON(http.StatusOK, gin.H{"status": "password changed"})
}

func (ac *Controller) logAuth(c *gin.Context, userID uint, action string, success bool) {
	if ac.audit == nil {
		return
	}
	ac.audit.LogAuth(userID, action, c.ClientIP(), c.Request.UserAgent(), success)
}
