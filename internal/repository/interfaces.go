package repository

import (
	"context"
	"time"

	"github.com/healthlink/healthlink-api/internal/domain"
)

// UserRepository is the credential-store capability: user rows, hashed
// credentials, role membership and the lockout counters.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, userID string) error

	// Delete exists only for the registration rollback path; accounts are
	// otherwise deactivated, never removed.
	Delete(ctx context.Context, userID string) error

	AddRole(ctx context.Context, userID, role string) error
	GetRoles(ctx context.Context, userID string) ([]string, error)

	SetPasswordHash(ctx context.Context, userID, passwordHash string) error
	SetEmailConfirmed(ctx context.Context, userID string) error

	// RecordFailedLogin atomically increments the consecutive-failure counter
	// and returns the new count.
	RecordFailedLogin(ctx context.Context, userID string) (int, error)
	SetLockout(ctx context.Context, userID string, until time.Time) error
	ResetFailedLogins(ctx context.Context, userID string) error
}

// TokenRepository persists refresh token rows. State transitions are
// explicit; looking a token up never mutates it.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByValue(ctx context.Context, tokenValue string) (*domain.RefreshToken, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error)
	MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error
	Revoke(ctx context.Context, tokenID string, revokedAt time.Time, ipAddress string) error

	// Rotate marks the old token used and inserts its replacement inside one
	// transaction, so a crash can never leave the old token consumed without
	// the new one persisted.
	Rotate(ctx context.Context, oldTokenID string, usedAt time.Time, replacement *domain.RefreshToken) error

	DeleteExpired(ctx context.Context) error
}
