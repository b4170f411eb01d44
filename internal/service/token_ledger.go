package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/repository"
)

// Ledger failure modes. Each out-of-state use is a distinct, named error so
// the orchestrator can tell benign expiry apart from a possible replay.
var (
	ErrTokenNotFound       = errors.New("refresh token not found")
	ErrTokenNotActive      = errors.New("refresh token is not active")
	ErrTokenExpired        = errors.New("refresh token expired")
	ErrTokenAlreadyUsed    = errors.New("refresh token already used")
	ErrTokenAlreadyRevoked = errors.New("refresh token already revoked")
)

// OpaqueTokenSource produces refresh token values. Satisfied by the JWT
// manager's GenerateRefreshToken.
type OpaqueTokenSource interface {
	GenerateRefreshToken() (string, error)
}

// RefreshTokenLedger enforces single-use rotation and revocation semantics
// over persisted refresh tokens. Redeem never mutates state; the orchestrator
// decides when to consume a token, atomically with replacement issuance.
type RefreshTokenLedger struct {
	repo   repository.TokenRepository
	source OpaqueTokenSource
}

// NewRefreshTokenLedger creates a refresh token ledger
func NewRefreshTokenLedger(repo repository.TokenRepository, source OpaqueTokenSource) *RefreshTokenLedger {
	return &RefreshTokenLedger{repo: repo, source: source}
}

// Issue creates and persists a new active token row for the user. Prior rows
// are untouched; multiple concurrent sessions are allowed.
func (l *RefreshTokenLedger) Issue(ctx context.Context, userID, ipAddress string, ttl time.Duration) (*domain.RefreshToken, error) {
	value, err := l.source.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token value: %w", err)
	}

	token := &domain.RefreshToken{
		UserID:      userID,
		TokenValue:  value,
		ExpiresAt:   time.Now().UTC().Add(ttl),
		CreatedByIP: ipAddress,
	}

	if err := l.repo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return token, nil
}

// Redeem looks a token up by exact value and validates it for the expected
// user. A missing row and a user mismatch are indistinguishable to the
// caller. The token is NOT marked used here.
func (l *RefreshTokenLedger) Redeem(ctx context.Context, tokenValue, expectedUserID string) (*domain.RefreshToken, error) {
	token, err := l.repo.GetByValue(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if token.UserID != expectedUserID {
		return nil, ErrTokenNotFound
	}
	if !token.IsActive() {
		return nil, ErrTokenNotActive
	}
	if token.IsExpired(time.Now()) {
		return nil, ErrTokenExpired
	}

	return token, nil
}

// Rotate consumes the redeemed token and issues its replacement in one
// storage transaction.
func (l *RefreshTokenLedger) Rotate(ctx context.Context, old *domain.RefreshToken, ipAddress string, ttl time.Duration) (*domain.RefreshToken, error) {
	if err := checkActive(old); err != nil {
		return nil, err
	}

	value, err := l.source.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate replacement token value: %w", err)
	}

	replacement := &domain.RefreshToken{
		UserID:      old.UserID,
		TokenValue:  value,
		ExpiresAt:   time.Now().UTC().Add(ttl),
		CreatedByIP: ipAddress,
	}

	usedAt := time.Now().UTC()
	if err := l.repo.Rotate(ctx, old.ID, usedAt, replacement); err != nil {
		// The guarded UPDATE matches zero rows when a concurrent redemption
		// consumed the token after our Redeem check.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotActive
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	old.UsedAt = &usedAt
	return replacement, nil
}

// MarkUsed transitions an active token to used. Violations are errors, not
// no-ops, so a double redemption is detectable.
func (l *RefreshTokenLedger) MarkUsed(ctx context.Context, token *domain.RefreshToken) error {
	if err := checkActive(token); err != nil {
		return err
	}

	usedAt := time.Now().UTC()
	if err := l.repo.MarkUsed(ctx, token.ID, usedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotActive
		}
		return fmt.Errorf("failed to mark token used: %w", err)
	}

	token.UsedAt = &usedAt
	return nil
}

// Revoke explicitly invalidates a token by value, stamping time and origin
// IP for audit.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, tokenValue, ipAddress string) error {
	token, err := l.repo.GetByValue(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if err := checkActive(token); err != nil {
		return err
	}

	if err := l.repo.Revoke(ctx, token.ID, time.Now().UTC(), ipAddress); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotActive
		}
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

func checkActive(token *domain.RefreshToken) error {
	if token.IsUsed() {
		return ErrTokenAlreadyUsed
	}
	if token.IsRevoked() {
		return ErrTokenAlreadyRevoked
	}
	return nil
}
