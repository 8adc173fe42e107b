package entities

import "time"

type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Email     string `gorm:"uniqueIndex;size:255" json:"email"`
	Name      string `gorm:"size:100" json:"name,omitempty"`
	Username  string `gorm:"size:64" json:"username,omitempty"`
	AvatarURL string `gorm:"size:2048" json:"avatar_url,omitempty"`

	PasswordHash     string     `gorm:"size:255" json:"-"`
	TokenHash        string     `gorm:"index;size:64" json:"-"`
	TokenCreatedAt   *time.Time `json:"-"`
	FailedLoginCount int        `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
