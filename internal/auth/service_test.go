package auth

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storynest/internal/config"
	"github.com/mrlokans/storynest/internal/database/users"
	"github.com/mrlokans/storynest/internal/entities"
)

const testPassword = "correct-horse-battery"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&entities.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func setupService(t *testing.T, cfg config.Auth) *Service {
	t.Helper()
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 4
	}
	return NewService(users.NewRepository(setupTestDB(t)), cfg)
}

func mustRegister(t *testing.T, svc *Service, email string) *entities.User {
	t.Helper()
	user, err := svc.Register(Registration{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func TestService_Register(t *testing.T) {
	svc := setupService(t, config.Auth{})

	tests := []struct {
		name    string
		reg     Registration
		wantErr error
	}{
		{"valid", Registration{Email: " Ana@Example.com ", Password: testPassword, Name: "Ana"}, nil},
		{"duplicate ignores case", Registration{Email: "ana@example.com", Password: testPassword}, ErrUserExists},
		{"missing email", Registration{Password: testPassword}, ErrEmailRequired},
		{"malformed email", Registration{Email: "not-an-email", Password: testPassword}, ErrEmailInvalid},
		{"missing password", Registration{Email: "bo@example.com"}, ErrPasswordRequired},
		{"short password", Registration{Email: "bo@example.com", Password: "short"}, ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Register(tt.reg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if user.Email != "ana@example.com" {
				t.Errorf("email = %q, want normalized", user.Email)
			}
			if user.PasswordHash == "" || user.PasswordHash == testPassword {
				t.Error("password must be stored hashed")
			}
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	svc := setupService(t, config.Auth{})
	mustRegister(t, svc, "ana@example.com")

	user, err := svc.Authenticate("ANA@example.com", testPassword)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.LastLoginAt == nil {
		t.Error("LastLoginAt should be set")
	}

	if _, err := svc.Authenticate("ana@example.com", "wrong-password!"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := svc.Authenticate("nobody@example.com", testPassword); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user error = %v", err)
	}
}

func TestService_AuthenticateLocksAccount(t *testing.T) {
	svc := setupService(t, config.Auth{MaxLoginAttempts: 3, LockoutDuration: time.Hour})
	mustRegister(t, svc, "ana@example.com")

	for i := 0; i < 3; i++ {
		if _, err := svc.Authenticate("ana@example.com", "wrong-password!"); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	if _, err := svc.Authenticate("ana@example.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lockout, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Authenticate("ana@example.com", testPassword); err != nil {
		t.Fatalf("lockout should expire: %v", err)
	}
}

func TestService_Tokens(t *testing.T) {
	svc := setupService(t, config.Auth{TokenExpiry: time.Hour})
	user := mustRegister(t, svc, "ana@example.com")

	token, err := svc.GenerateToken(user.ID)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	got, err := svc.ValidateToken(token)
	if err != nil || got.ID != user.ID {
		t.Fatalf("ValidateToken() = %v, %v", got, err)
	}

	if _, err := svc.ValidateToken("sn_unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown token error = %v", err)
	}

	t.Run("expiry", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { svc.now = time.Now }()
		if _, err := svc.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("expired token error = %v", err)
		}
	})

	t.Run("regenerate replaces", func(t *testing.T) {
		second, err := svc.GenerateToken(user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("old token should be invalid, got %v", err)
		}
		token = second
	})

	t.Run("revoke", func(t *testing.T) {
		if err := svc.RevokeToken(user.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("revoked token error = %v", err)
		}
	})

	if _, err := svc.GenerateToken(999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GenerateToken(unknown) error = %v", err)
	}
}

func TestService_ChangePassword(t *testing.T) {
	svc := setupService(t, config.Auth{})
	user := mustRegister(t, svc, "ana@example.com")

	if err := svc.ChangePassword(user.ID, "wrong-password!", "another-long-secret"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong old password error = %v", err)
	}
	if err := svc.ChangePassword(user.ID, testPassword, "another-long-secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate("ana@example.com", "another-long-secret"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestService_ChangePasswordRejectsWeakPassword(t *testing.T) {
	svc := setupService(t, config.Auth{})
	user := mustRegister(t, svc, "ana@example.com")

	if err := svc.ChangePassword(user.ID, testPassword, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("ChangePassword(short) error = %v", err)
	}
	if _, err := svc.Authenticate("ana@example.com", testPassword); err != nil {
		t.Errorf("old password no longer accepted: %v", err)
	}
}

func TestService_UpdateProfile(t *testing.T) {
	svc := setupService(t, config.Auth{})
	user := mustRegister(t, svc, "ana@example.com")
	str := func(s string) *string { return &s }

	updated, err := svc.UpdateProfile(user.ID, ProfileUpdate{
		Name:      str("  Ana Lima "),
		Username:  str("ana_l"),
		AvatarURL: str("/avatars/1_me_abc.jpg"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Ana Lima" || updated.Username != "ana_l" || updated.AvatarURL != "/avatars/1_me_abc.jpg" {
		t.Fatalf("updated = %+v", updated)
	}

	updated, err = svc.UpdateProfile(user.ID, ProfileUpdate{Name: str("")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "" || updated.Username != "ana_l" {
		t.Errorf("clearing the name touched other fields: %+v", updated)
	}
	if got := IdentityOf(updated); got.Name != "ana_l" || got.AvatarURL != "/avatars/1_me_abc.jpg" {
		t.Errorf("IdentityOf = %+v", got)
	}

	tests := []struct {
		name string
		upd  ProfileUpdate
		want error
	}{
		{"long name", ProfileUpdate{Name: str(strings.Repeat("a", 101))}, ErrNameTooLong},
		{"username with spaces", ProfileUpdate{Username: str("ana lima")}, ErrUsernameInvalid},
		{"long username", ProfileUpdate{Username: str(strings.Repeat("a", 65))}, ErrUsernameInvalid},
		{"protocol-relative avatar", ProfileUpdate{AvatarURL: str("//evil.example/a.png")}, ErrAvatarURLInvalid},
		{"avatar with dot segments", ProfileUpdate{AvatarURL: str("/avatars/../storynest.db")}, ErrAvatarURLInvalid},
		{"non-http avatar", ProfileUpdate{AvatarURL: str("javascript:alert(1)")}, ErrAvatarURLInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.UpdateProfile(user.ID, tt.upd); !errors.Is(err, tt.want) {
				t.Errorf("UpdateProfile error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := svc.UpdateProfile(999, ProfileUpdate{Name: str("x")}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateProfile(unknown) error = %v", err)
	}
}

func TestService_FailedLoginWriteErrorIsLogged(t *testing.T) {
	svc := setupService(t, config.Auth{})

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	svc.recordFailedLogin(&entities.User{ID: 999})
	if !strings.Contains(buf.String(), "[AUTH] Failed to record failed login for user 999") {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestIdentityOf(t *testing.T) {
	tests := []struct {
		name string
		user entities.User
		want string
	}{
		{"explicit name", entities.User{ID: 7, Email: "ana@example.com", Name: "Ana Lima"}, "Ana Lima"},
		{"username", entities.User{ID: 7, Email: "ana@example.com", Username: "ana_l"}, "ana_l"},
		{"email local part", entities.User{ID: 7, Email: "ana@example.com"}, "ana"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := IdentityOf(&tt.user)
			if id.ID != "7" {
				t.Errorf("ID = %q, want 7", id.ID)
			}
			if id.Name != tt.want {
				t.Errorf("Name = %q, want %q", id.Name, tt.want)
			}
		})
	}
}
