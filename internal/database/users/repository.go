// Package users provides database operations for accounts and API tokens.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetByTokenHash(auth.HashToken(token))
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/storynest/internal/entities"
)

var ErrNotFound = errors.New("user not found")

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a user. The email is normalized first.
func (r *Repository) Create(user *entities.User) error {
	user.Email = NormalizeEmail(user.Email)
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *Repository) GetByID(id uint) (*entities.User, error) {
	return r.first("id = ?", id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *Repository) GetByEmail(email string) (*entities.User, error) {
	return r.first("email = ?", NormalizeEmail(email))
}

// GetByTokenHash retrieves the owner of a hashed API token.
func (r *Repository) GetByTokenHash(tokenHash string) (*entities.User, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	return r.first("token_hash = ?", tokenHash)
}

// Update writes the given columns. A missing user yields ErrNotFound.
func (r *Repository) Update(id uint, columns map[string]any) error {
	result := r.db.Model(&entities.User{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferencedAvatars returns every distinct avatar URL still set on an account.
func (r *Repository) ReferencedAvatars(ctx context.Context) ([]string, error) {
	var urls []string
	err := r.db.WithContext(ctx).Model(&entities.User{}).
		Where("avatar_url <> ''").
		Distinct().
		Pluck("avatar_url", &urls).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list avatars: %w", err)
	}
	return urls, nil
}

// Count returns the number of registered users.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.User{}).Count(&count).Error
	return count, err
}

func (r *Repository) first(query string, arg any) (*entities.User, error) {
	var user entities.User
	err := r.db.Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
