package auth

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mrlokans/storynest/internal/config"
	"github.com/mrlokans/storynest/internal/database/users"
	"github.com/mrlokans/storynest/internal/entities"
	"github.com/mrlokans/storynest/internal/identity"
	"github.com/mrlokans/storynest/internal/wire"
)

const defaultMaxLoginAttempts = 5

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrEmailRequired    = errors.New("email is required")
	ErrEmailInvalid     = errors.New("invalid email format")
	ErrNameTooLong      = errors.New("name must be at most 100 characters")
	ErrPasswordRequired = errors.New("password is required")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrUsernameInvalid  = errors.New("username must be at most 64 letters, digits, '.', '_' or '-'")
	ErrAvatarURLInvalid = errors.New("avatar_url must be an uploaded avatar path or an http(s) URL")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)

// Registration is the input of Register.
type Registration struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=100"`
}

var validate = validator.New()

// Service handles registration, login and API tokens.
type Service struct {
	users  *users.Repository
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo *users.Repository, cfg config.Auth) *Service {
	return &Service{users: repo, config: cfg, now: time.Now}
}

// Register creates an account with a password.
func (s *Service) Register(reg Registration) (*entities.User, error) {
	reg.Email = users.NormalizeEmail(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(reg.Email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := HashPassword(reg.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Email:        reg.Email,
		Name:         reg.Name,
		PasswordHash: hash,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func validateRegistration(reg Registration) error {
	err := validate.Struct(reg)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch fe := verrs[0]; {
		case fe.Field() == "Email" && fe.Tag() == "required":
			return ErrEmailRequired
		case fe.Field() == "Email":
			return ErrEmailInvalid
		case fe.Field() == "Password":
			return ErrPasswordRequired
		case fe.Field() == "Name":
			return ErrNameTooLong
		}
	}
	if err != nil {
		return err
	}
	return ValidatePassword(reg.Password)
}

// Authenticate validates credentials and returns the user. After
// MaxLoginAttempts consecutive failures the account is locked for
// LockoutDuration.
func (s *Service) Authenticate(email, password string) (*entities.User, error) {
	user, err := s.users.GetByEmail(email)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.recordFailedLogin(user)
		return nil, err
	}

	if err := s.users.Update(user.ID, map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	}); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return user, nil
}

func (s *Service) recordFailedLogin(user *entities.User) {
	user.FailedLoginCount++
	updates := map[string]any{"failed_login_count": user.FailedLoginCount}

	limit := s.config.MaxLoginAttempts
	if limit <= 0 {
		limit = defaultMaxLoginAttempts
	}
	if user.FailedLoginCount >= limit {
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = 30 * time.Minute
		}
		updates["locked_until"] = s.now().Add(lockout)
		updates["failed_login_count"] = 0
	}

	if err := s.users.Update(user.ID, updates); err != nil {
		log.Printf("[AUTH] Failed to record failed login for user %d: %v", user.ID, err)
	}
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(id uint) (*entities.User, error) {
	user, err := s.users.GetByID(id)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ValidateToken checks a plaintext token and returns its owner.
func (s *Service) ValidateToken(token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByTokenHash(HashToken(token))
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if s.config.TokenExpiry > 0 && user.TokenCreatedAt != nil &&
		s.now().Sub(*user.TokenCreatedAt) > s.config.TokenExpiry {
		return nil, ErrTokenExpired
	}
	return user, nil
}

// GenerateToken issues a new API token for a user, replacing any previous
// one. Only the hash is stored.
func (s *Service) GenerateToken(userID uint) (string, error) {
	plaintext, hash, err := NewAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	err = s.users.Update(userID, map[string]any{
		"token_hash":       hash,
		"token_created_at": s.now(),
	})
	if errors.Is(err, users.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}
	return plaintext, nil
}

// RevokeToken removes a user's API token.
func (s *Service) RevokeToken(userID uint) error {
	err := s.users.Update(userID, map[string]any{
		"token_hash":       "",
		"token_created_at": nil,
	})
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ChangePassword replaces a user's password after checking the old one.
func (s *Service) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	err = s.users.Update(userID, map[string]any{"password_hash": hash})
	if errors.Is(err, users.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ProfileUpdate changes account details. Nil fields are left alone and an
// empty string clears the field.
type ProfileUpdate struct {
	Name      *string `json:"name" validate:"omitempty,max=100"`
	Username  *string `json:"username" validate:"omitempty,max=64"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=2048"`
}

// UpdateProfile writes the set fields of upd and returns the updated user.
func (s *Service) UpdateProfile(userID uint, upd ProfileUpdate) (*entities.User, error) {
	columns, err := profileColumns(upd)
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		err := s.users.Update(userID, columns)
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	return s.GetUserByID(userID)
}

func profileColumns(upd ProfileUpdate) (map[string]any, error) {
	err := validate.Struct(upd)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Name":
			return nil, ErrNameTooLong
		case "Username":
			return nil, ErrUsernameInvalid
		default:
			return nil, ErrAvatarURLInvalid
		}
	}
	if err != nil {
		return nil, err
	}

	columns := map[string]any{}
	if upd.Name != nil {
		columns["name"] = strings.TrimSpace(*upd.Name)
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if !usernamePattern.MatchString(username) {
			return nil, ErrUsernameInvalid
		}
		columns["username"] = username
	}
	if upd.AvatarURL != nil {
		avatar := strings.TrimSpace(*upd.AvatarURL)
		if !validAvatarURL(avatar) {
			return nil, ErrAvatarURLInvalid
		}
		columns["avatar_url"] = avatar
	}
	return columns, nil
}

// validAvatarURL accepts "", a server path such as "/avatars/x.jpg", or an
// absolute http(s) URL.
func validAvatarURL(u string) bool {
	switch {
	case u == "":
		return true
	case strings.HasPrefix(u, "/"):
		return !strings.HasPrefix(u, "//") && !strings.Contains(u, "..")
	default:
		return validate.Var(u, "http_url") == nil
	}
}

// IdentityOf is the client-facing view of a user.
func IdentityOf(user *entities.User) identity.Identity {
	return identity.Identity{
		ID:    wire.OwnerID(user.ID),
		Email: user.Email,
		Name: identity.DisplayName(user.Email, identity.Metadata{
			Name:     user.Name,
			UserName: user.Username,
		}),
		AvatarURL: user.AvatarURL,
	}
}
