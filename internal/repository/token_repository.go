package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/pkg/database"
	"github.com/lib/pq"
)

const tokenColumns = `id, user_id, token_value, expires_at, created_at, created_by_ip,
		used_at, revoked_at, revoked_by_ip`

// tokenRepository implements TokenRepository interface
type tokenRepository struct {
	db *database.Postgres
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *database.Postgres) TokenRepository {
	return &tokenRepository{db: db}
}

// Create inserts a new refresh token row
func (r *tokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	return insertToken(ctx, r.db.DB, token)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_value, expires_at, created_at, created_by_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenValue,
		token.ExpiresAt,
		token.CreatedAt,
		token.CreatedByIP,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("refresh token value collision: %w", ErrDuplicateToken)
			}
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

// GetByValue looks a refresh token up by its exact value
func (r *tokenRepository) GetByValue(ctx context.Context, tokenValue string) (*domain.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE token_value = $1`, tokenColumns)

	token := &domain.RefreshToken{}
	var usedAt, revokedAt sql.NullTime
	var revokedByIP sql.NullString

	err := r.db.DB.QueryRowContext(ctx, query, tokenValue).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenValue,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.CreatedByIP,
		&usedAt,
		&revokedAt,
		&revokedByIP,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if usedAt.Valid {
		token.UsedAt = &usedAt.Time
	}
	if revokedAt.Valid {
		token.RevokedAt = &revokedAt.Time
	}
	if revokedByIP.Valid {
		token.RevokedByIP = &revokedByIP.String
	}

	return token, nil
}

// GetByUserID retrieves all refresh tokens for a user, newest first
func (r *tokenRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at DESC`, tokenColumns)

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens by user id: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.RefreshToken
	for rows.Next() {
		token := &domain.RefreshToken{}
		var usedAt, revokedAt sql.NullTime
		var revokedByIP sql.NullString

		err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.TokenValue,
			&token.ExpiresAt,
			&token.CreatedAt,
			&token.CreatedByIP,
			&usedAt,
			&revokedAt,
			&revokedByIP,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}

		if usedAt.Valid {
			token.UsedAt = &usedAt.Time
		}
		if revokedAt.Valid {
			token.RevokedAt = &revokedAt.Time
		}
		if revokedByIP.Valid {
			token.RevokedByIP = &revokedByIP.String
		}

		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	return tokens, nil
}

// MarkUsed transitions an active token to used. The WHERE clause guards the
// transition so a double redemption surfaces as zero rows affected.
func (r *tokenRepository) MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	return markUsed(ctx, r.db.DB, tokenID, usedAt)
}

func markUsed(ctx context.Context, db execer, tokenID string, usedAt time.Time) error {
	query := `
		UPDATE refresh_tokens SET used_at = $1
		WHERE id = $2 AND used_at IS NULL AND revoked_at IS NULL
	`

	result, err := db.ExecContext(ctx, query, usedAt.UTC(), tokenID)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("token %s is not active: %w", tokenID, ErrNotFound)
	}

	return nil
}

// Revoke transitions an active token to revoked, stamping time and origin IP
// for audit.
func (r *tokenRepository) Revoke(ctx context.Context, tokenID string, revokedAt time.Time, ipAddress string) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $1, revoked_by_ip = $2
		WHERE id = $3 AND used_at IS NULL AND revoked_at IS NULL
	`

	result, err := r.db.DB.ExecContext(ctx, query, revokedAt.UTC(), ipAddress, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("token %s is not active: %w", tokenID, ErrNotFound)
	}

	return nil
}

// Rotate marks the old token used and inserts the replacement inside a single
// transaction. If either write fails the whole rotation rolls back, so the
// old token is never consumed without its replacement being durable.
func (r *tokenRepository) Rotate(ctx context.Context, oldTokenID string, usedAt time.Time, replacement *domain.RefreshToken) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rotation transaction: %w", err)
	}
	defer tx.Rollback()

	if err := markUsed(ctx, tx, oldTokenID, usedAt); err != nil {
		return err
	}

	if replacement.ID == "" {
		replacement.ID = uuid.New().String()
	}
	if replacement.CreatedAt.IsZero() {
		replacement.CreatedAt = time.Now().UTC()
	}

	if err := insertToken(ctx, tx, replacement); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}

	return nil
}

// DeleteExpired deletes all expired refresh tokens
func (r *tokenRepository) DeleteExpired(ctx context.Context) error {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	_, err := r.db.DB.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return nil
}
