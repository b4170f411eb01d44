package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/repository"
)

// In-memory doubles for the storage interfaces. They mirror the SQL guards:
// MarkUsed and Revoke only transition active rows, and Rotate performs both
// writes or neither.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	roles map[string][]string

	addRoleErr error
	deleted    []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users: make(map[string]*domain.User),
		roles: make(map[string][]string),
	}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (f *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.UserName == user.UserName || existing.Email == user.Email {
			return fmt.Errorf("duplicate: %w", repository.ErrDuplicateUser)
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	f.users[user.ID] = copyUser(user)
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(user), nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if user.Email == email {
			return copyUser(user), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if user.UserName == username {
			return copyUser(user), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) Update(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	f.users[user.ID] = copyUser(user)
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, userID)
	delete(f.roles, userID)
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeUserRepo) AddRole(ctx context.Context, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addRoleErr != nil {
		return f.addRoleErr
	}
	if _, ok := f.users[userID]; !ok {
		return repository.ErrNotFound
	}
	for _, r := range f.roles[userID] {
		if r == role {
			return repository.ErrDuplicateRole
		}
	}
	f.roles[userID] = append(f.roles[userID], role)
	return nil
}

func (f *fakeUserRepo) GetRoles(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.roles[userID]...), nil
}

func (f *fakeUserRepo) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) SetEmailConfirmed(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailConfirmed = true
	return nil
}

func (f *fakeUserRepo) RecordFailedLogin(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.FailedLoginCount++
	return user.FailedLoginCount, nil
}

func (f *fakeUserRepo) SetLockout(ctx context.Context, userID string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u := until.UTC()
	user.LockedUntil = &u
	return nil
}

func (f *fakeUserRepo) ResetFailedLogins(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return nil
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken // keyed by ID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	c := *t
	return &c
}

func (f *fakeTokenRepo) Create(ctx context.Context, token *domain.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(token)
}

func (f *fakeTokenRepo) insert(token *domain.RefreshToken) error {
	for _, existing := range f.tokens {
		if existing.TokenValue == token.TokenValue {
			return repository.ErrDuplicateToken
		}
	}
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	f.tokens[token.ID] = copyToken(token)
	return nil
}

func (f *fakeTokenRepo) GetByValue(ctx context.Context, tokenValue string) (*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, token := range f.tokens {
		if token.TokenValue == tokenValue {
			return copyToken(token), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTokenRepo) GetByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var tokens []*domain.RefreshToken
	for _, token := range f.tokens {
		if token.UserID == userID {
			tokens = append(tokens, copyToken(token))
		}
	}
	return tokens, nil
}

func (f *fakeTokenRepo) MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markUsed(tokenID, usedAt)
}

func (f *fakeTokenRepo) markUsed(tokenID string, usedAt time.Time) error {
	token, ok := f.tokens[tokenID]
	if !ok || !token.IsActive() {
		return repository.ErrNotFound
	}
	u := usedAt.UTC()
	token.UsedAt = &u
	return nil
}

func (f *fakeTokenRepo) Revoke(ctx context.Context, tokenID string, revokedAt time.Time, ipAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[tokenID]
	if !ok || !token.IsActive() {
		return repository.ErrNotFound
	}
	r := revokedAt.UTC()
	token.RevokedAt = &r
	token.RevokedByIP = &ipAddress
	return nil
}

func (f *fakeTokenRepo) Rotate(ctx context.Context, oldTokenID string, usedAt time.Time, replacement *domain.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.markUsed(oldTokenID, usedAt); err != nil {
		return err
	}
	return f.insert(replacement)
}

func (f *fakeTokenRepo) DeleteExpired(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	for id, token := range f.tokens {
		if token.ExpiresAt.Before(now) {
			delete(f.tokens, id)
		}
	}
	return nil
}

func (f *fakeTokenRepo) activeForUser(userID string) []*domain.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()

	var tokens []*domain.RefreshToken
	for _, token := range f.tokens {
		if token.UserID == userID && token.IsActive() {
			tokens = append(tokens, copyToken(token))
		}
	}
	return tokens
}

var _ repository.TokenRepository = (*fakeTokenRepo)(nil)

type fakeSecurityTokens struct {
	mu     sync.Mutex
	issued map[string]string // key -> token
}

func newFakeSecurityTokens() *fakeSecurityTokens {
	return &fakeSecurityTokens{issued: make(map[string]string)}
}

func (f *fakeSecurityTokens) IssuePasswordResetToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return f.issue("reset:" + userID)
}

func (f *fakeSecurityTokens) ConsumePasswordResetToken(ctx context.Context, userID, token string) (bool, error) {
	return f.consume("reset:"+userID, token)
}

func (f *fakeSecurityTokens) IssueEmailConfirmToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return f.issue("confirm:" + userID)
}

func (f *fakeSecurityTokens) ConsumeEmailConfirmToken(ctx context.Context, userID, token string) (bool, error) {
	return f.consume("confirm:"+userID, token)
}

func (f *fakeSecurityTokens) issue(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token := uuid.New().String()
	f.issued[key] = token
	return token, nil
}

func (f *fakeSecurityTokens) consume(key, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.issued[key]
	if !ok {
		return false, nil
	}
	delete(f.issued, key)
	return stored == token, nil
}

var _ SecurityTokens = (*fakeSecurityTokens)(nil)

type sentNotification struct {
	email string
	token string
}

type fakeNotifier struct {
	mu       sync.Mutex
	resets   []sentNotification
	confirms []sentNotification
}

func (f *fakeNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, sentNotification{email: email, token: token})
	return nil
}

func (f *fakeNotifier) SendEmailConfirmation(ctx context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, sentNotification{email: email, token: token})
	return nil
}

var _ Notifier = (*fakeNotifier)(nil)
