package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/healthlink/healthlink-api/pkg/database"
	"github.com/redis/go-redis/v9"
)

const securityTokenBytes = 32

// SecurityTokens issues and consumes single-use security tokens for the
// password reset and email confirmation flows.
type SecurityTokens interface {
	IssuePasswordResetToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ConsumePasswordResetToken(ctx context.Context, userID, token string) (bool, error)
	IssueEmailConfirmToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ConsumeEmailConfirmToken(ctx context.Context, userID, token string) (bool, error)
}

// SecurityTokenService issues and verifies single-use security tokens
// (password reset, email confirmation) in Redis. Only a SHA-256 hash of the
// token is stored; the TTL bounds the token lifetime without any sweeper.
type SecurityTokenService struct {
	redis *database.Redis
}

var _ SecurityTokens = (*SecurityTokenService)(nil)

// NewSecurityTokenService creates a new security token service
func NewSecurityTokenService(redis *database.Redis) *SecurityTokenService {
	return &SecurityTokenService{redis: redis}
}

// IssuePasswordResetToken creates a reset token for the user, replacing any
// outstanding one.
func (s *SecurityTokenService) IssuePasswordResetToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return s.issue(ctx, resetKey(userID), ttl)
}

// ConsumePasswordResetToken verifies and deletes the reset token in one step,
// so a token can never be replayed.
func (s *SecurityTokenService) ConsumePasswordResetToken(ctx context.Context, userID, token string) (bool, error) {
	return s.consume(ctx, resetKey(userID), token)
}

// IssueEmailConfirmToken creates an email confirmation token for the user.
func (s *SecurityTokenService) IssueEmailConfirmToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return s.issue(ctx, confirmKey(userID), ttl)
}

// ConsumeEmailConfirmToken verifies and deletes the confirmation token.
func (s *SecurityTokenService) ConsumeEmailConfirmToken(ctx context.Context, userID, token string) (bool, error) {
	return s.consume(ctx, confirmKey(userID), token)
}

func (s *SecurityTokenService) issue(ctx context.Context, key string, ttl time.Duration) (string, error) {
	buf := make([]byte, securityTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate security token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.redis.Client.Set(ctx, key, hashToken(token), ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store security token: %w", err)
	}

	return token, nil
}

func (s *SecurityTokenService) consume(ctx context.Context, key, token string) (bool, error) {
	stored, err := s.redis.Client.GetDel(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to load security token: %w", err)
	}

	match := subtle.ConstantTimeCompare([]byte(stored), []byte(hashToken(token))) == 1
	return match, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func resetKey(userID string) string {
	return fmt.Sprintf("security:pwreset:%s", userID)
}

func confirmKey(userID string) string {
	return fmt.Sprintf("security:emailconfirm:%s", userID)
}
