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

const userColumns = `id, username, email, password_hash, full_name, created_at, updated_at,
		last_login_at, is_active, email_confirmed, failed_login_count, locked_until,
		patient_id, doctor_id, hospital_id`

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, full_name, created_at, updated_at,
			is_active, email_confirmed, failed_login_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.UserName,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.CreatedAt,
		user.UpdatedAt,
		user.IsActive,
		user.EmailConfirmed,
		user.FailedLoginCount,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("user %s already exists: %w", user.UserName, ErrDuplicateUser)
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.scanUser(r.db.DB.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return r.scanUser(r.db.DB.QueryRowContext(ctx, query, email))
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)
	return r.scanUser(r.db.DB.QueryRowContext(ctx, query, username))
}

func (r *userRepository) scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var lastLoginAt, lockedUntil sql.NullTime
	var patientID, doctorID, hospitalID sql.NullString

	err := row.Scan(
		&user.ID,
		&user.UserName,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLoginAt,
		&user.IsActive,
		&user.EmailConfirmed,
		&user.FailedLoginCount,
		&lockedUntil,
		&patientID,
		&doctorID,
		&hospitalID,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	if patientID.Valid {
		user.PatientID = &patientID.String
	}
	if doctorID.Valid {
		user.DoctorID = &doctorID.String
	}
	if hospitalID.Valid {
		user.HospitalID = &hospitalID.String
	}

	return user, nil
}

// Update updates an existing user
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, full_name = $4, is_active = $5, email_confirmed = $6,
			patient_id = $7, doctor_id = $8, hospital_id = $9, updated_at = $10
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.UserName,
		user.Email,
		user.FullName,
		user.IsActive,
		user.EmailConfirmed,
		user.PatientID,
		user.DoctorID,
		user.HospitalID,
		time.Now().UTC(),
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("user %s already exists: %w", user.UserName, ErrDuplicateUser)
			}
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return r.requireRow(result, user.ID)
}

// UpdateLastLogin updates the last login timestamp for a user
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	query := `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return r.requireRow(result, userID)
}

// Delete removes a user row. Role rows cascade via the foreign key.
func (r *userRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return r.requireRow(result, userID)
}

// AddRole assigns a role to a user
func (r *userRepository) AddRole(ctx context.Context, userID, role string) error {
	query := `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`

	_, err := r.db.DB.ExecContext(ctx, query, userID, role)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				return fmt.Errorf("role %s already assigned: %w", role, ErrDuplicateRole)
			case "23503": // foreign_key_violation
				return fmt.Errorf("user %s not found: %w", userID, ErrNotFound)
			}
		}
		return fmt.Errorf("failed to add role: %w", err)
	}

	return nil
}

// GetRoles returns a fresh snapshot of the user's role memberships.
func (r *userRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	return roles, nil
}

// SetPasswordHash replaces the stored credential hash.
func (r *userRepository) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.DB.ExecContext(ctx, query, passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set password hash: %w", err)
	}

	return r.requireRow(result, userID)
}

// SetEmailConfirmed flips the confirmed flag.
func (r *userRepository) SetEmailConfirmed(ctx context.Context, userID string) error {
	query := `UPDATE users SET email_confirmed = TRUE, updated_at = $1 WHERE id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}

	return r.requireRow(result, userID)
}

// RecordFailedLogin increments the consecutive-failure counter atomically so
// concurrent failed attempts never lose updates.
func (r *userRepository) RecordFailedLogin(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE users SET failed_login_count = failed_login_count + 1, updated_at = $1
		WHERE id = $2
		RETURNING failed_login_count
	`

	var count int
	err := r.db.DB.QueryRowContext(ctx, query, time.Now().UTC(), userID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("user %s not found: %w", userID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to record failed login: %w", err)
	}

	return count, nil
}

// SetLockout stamps the lockout window end on the user row.
func (r *userRepository) SetLockout(ctx context.Context, userID string, until time.Time) error {
	query := `UPDATE users SET locked_until = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.DB.ExecContext(ctx, query, until.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set lockout: %w", err)
	}

	return r.requireRow(result, userID)
}

// ResetFailedLogins clears the counter and any lockout stamp.
func (r *userRepository) ResetFailedLogins(ctx context.Context, userID string) error {
	query := `UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = $1 WHERE id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to reset failed logins: %w", err)
	}

	return r.requireRow(result, userID)
}

func (r *userRepository) requireRow(result sql.Result, userID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user with id %s not found: %w", userID, ErrNotFound)
	}
	return nil
}
