// Package auth verifies admin credentials and tracks admin sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("invalid username or password")

// MinPasswordLength is enforced when admins are created
const MinPasswordLength = 8

// UserStore is the subset of storage.Repository used for admin accounts
type UserStore interface {
	CreateAdminUser(ctx context.Context, u *models.AdminUser) error
	GetAdminUser(ctx context.Context, id string) (*models.AdminUser, error)
	GetAdminUserByUsername(ctx context.Context, username string) (*models.AdminUser, error)
}

// dummyHash is compared against when the user does not exist so that
// unknown usernames take as long as wrong passwords
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("checklist-engine"), bcrypt.DefaultCost)

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate verifies a username/password pair
func Authenticate(ctx context.Context, users UserStore, username, password string) (*models.AdminUser, error) {
	user, err := users.GetAdminUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up admin user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// CreateAdmin hashes password and stores a new admin account
func CreateAdmin(ctx context.Context, users UserStore, username, displayName, password string) (*models.AdminUser, error) {
	username = models.NormalizeUsername(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}

	user := &models.AdminUser{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := users.CreateAdminUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	return user, nil
}
