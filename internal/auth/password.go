package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength counts characters, not bytes.
	MinPasswordLength = 12
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// API tokens look like "sn_" followed by 40 alphanumerics, so they are easy
// to spot in config files and shell history.
const (
	TokenPrefix   = "sn_"
	tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenLength   = 40
)

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

func ValidatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword validates password and returns its bcrypt hash. Costs below
// bcrypt's minimum fall back to the default.
func HashPassword(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(hash), err
}

// CheckPassword returns ErrInvalidPassword on a mismatch and the bcrypt
// error for a corrupt hash.
func CheckPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	return err
}

// NewAPIToken returns a token to hand to the client once and the hash that
// is stored in its place.
func NewAPIToken() (plaintext, hash string, err error) {
	secret, err := gonanoid.Generate(tokenAlphabet, tokenLength)
	if err != nil {
		return "", "", err
	}
	plaintext = TokenPrefix + secret
	return plaintext, HashToken(plaintext), nil
}

// HashToken is the lookup key of a token in the users table.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewSessionSecret returns 32 random bytes for signing CSRF cookies.
func NewSessionSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
