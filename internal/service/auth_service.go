package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/dto"
	"github.com/healthlink/healthlink-api/internal/repository"
	"github.com/healthlink/healthlink-api/internal/utils"
	"go.uber.org/zap"
)

// registrationOrigin is recorded as the issuing IP of the refresh token
// created during registration, where no meaningful client address exists yet.
const registrationOrigin = "registration"

// neutralResetMessage is returned by ForgotPassword whether or not the email
// exists, so the response never reveals account existence.
const neutralResetMessage = "If the email exists, a password reset link has been sent."

// SecurityPolicy bundles the tunable security knobs of the orchestrator.
type SecurityPolicy struct {
	BCryptCost       int
	RefreshTokenTTL  time.Duration
	LockoutMaxFailed int
	LockoutWindow    time.Duration
	ResetTokenTTL    time.Duration
	ConfirmTokenTTL  time.Duration
}

// authService coordinates the credential store, the token codec and the
// refresh token ledger. It is the only component touching all three.
type authService struct {
	userRepo       repository.UserRepository
	ledger         *RefreshTokenLedger
	jwtManager     *utils.JWTManager
	securityTokens SecurityTokens
	notifier       Notifier
	logger         *zap.Logger
	policy         SecurityPolicy
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	ledger *RefreshTokenLedger,
	jwtManager *utils.JWTManager,
	securityTokens SecurityTokens,
	notifier Notifier,
	logger *zap.Logger,
	policy SecurityPolicy,
) AuthService {
	return &authService{
		userRepo:       userRepo,
		ledger:         ledger,
		jwtManager:     jwtManager,
		securityTokens: securityTokens,
		notifier:       notifier,
		logger:         logger,
		policy:         policy,
	}
}

// Register creates a user with a validated role, assigns the role with a
// compensating delete on failure, and issues the first token pair.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	role := domain.CanonicalRole(req.Role)
	if role == "" {
		return nil, E(KindInvalidRole, "Invalid role specified.",
			fmt.Sprintf("Role '%s' is not valid.", req.Role))
	}

	if violations := utils.ValidatePassword(req.Password); len(violations) > 0 {
		return nil, E(KindRegistrationFailed, "User registration failed.", violations...)
	}

	email := utils.SanitizeEmail(req.Email)
	if !utils.ValidateEmail(email) {
		return nil, E(KindRegistrationFailed, "User registration failed.", "Invalid email format.")
	}

	passwordHash, err := utils.HashPassword(req.Password, s.policy.BCryptCost)
	if err != nil {
		return nil, s.internal("registration", err)
	}

	user := &domain.User{
		UserName:     req.UserName,
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     req.FullName,
		IsActive:     true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, E(KindRegistrationFailed, "User registration failed.",
				"Username or email is already taken.")
		}
		return nil, s.internal("registration", err)
	}

	if err := s.userRepo.AddRole(ctx, user.ID, role); err != nil {
		// Compensating action: no orphan accounts with no role.
		if delErr := s.userRepo.Delete(ctx, user.ID); delErr != nil {
			s.logger.Error("failed to roll back user after role assignment failure",
				zap.String("user_id", user.ID), zap.Error(delErr))
		}
		return nil, E(KindRoleAssignmentFailed, "Failed to assign role to user.",
			fmt.Sprintf("Could not assign role '%s'.", role))
	}

	roles, err := s.userRepo.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, s.internal("registration", err)
	}

	s.dispatchEmailConfirmation(ctx, user)

	response, err := s.issueTokens(ctx, user, roles, registrationOrigin)
	if err != nil {
		return nil, s.internal("registration", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("username", user.UserName),
		zap.String("role", role),
	)

	return response, nil
}

// Login authenticates by username or email with lockout tracking. Unknown
// identifiers and wrong passwords are deliberately indistinguishable; the
// lockout counter only engages on an existing account.
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, ipAddress string) (*dto.AuthResponse, error) {
	user, err := s.resolveUser(ctx, req.UserNameOrEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, E(KindInvalidCredentials, "Invalid username/email or password.",
				"Authentication failed.")
		}
		return nil, s.internal("login", err)
	}

	if !user.IsActive {
		return nil, E(KindAccountInactive, "Account is inactive.",
			"Your account has been deactivated. Please contact support.")
	}

	now := time.Now().UTC()
	if user.IsLockedOut(now) {
		return nil, E(KindAccountLocked, "Account locked.",
			"Account is locked due to multiple failed login attempts.")
	}

	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, s.recordFailedAttempt(ctx, user, now)
	}

	// Successful login clears the consecutive-failure counter.
	if err := s.userRepo.ResetFailedLogins(ctx, user.ID); err != nil {
		s.logger.Warn("failed to reset login failure counter",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	roles, err := s.userRepo.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, s.internal("login", err)
	}

	response, err := s.issueTokens(ctx, user, roles, ipAddress)
	if err != nil {
		return nil, s.internal("login", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("ip", ipAddress),
	)

	return response, nil
}

// RefreshToken rotates a refresh token: the claimed user is recovered from
// the (possibly expired) access token, the refresh token is redeemed and
// consumed atomically with replacement issuance.
func (s *authService) RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest, ipAddress string) (*dto.AuthResponse, error) {
	userID, ok := s.jwtManager.ExtractUserID(req.Token)
	if !ok {
		return nil, E(KindInvalidToken, "Invalid token.", "Token validation failed.")
	}

	old, err := s.ledger.Redeem(ctx, req.RefreshToken, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return nil, E(KindInvalidRefreshToken, "Invalid refresh token.", "Refresh token not found.")
		case errors.Is(err, ErrTokenNotActive):
			return nil, E(KindRefreshTokenNotActive, "Refresh token is not active.",
				"Token has been revoked or used.")
		case errors.Is(err, ErrTokenExpired):
			return nil, E(KindRefreshTokenExpired, "Refresh token expired.",
				"Please log in again.")
		default:
			return nil, s.internal("token refresh", err)
		}
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || !user.IsActive {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, s.internal("token refresh", err)
		}
		return nil, E(KindAccountInactive, "User not found or inactive.", "Cannot refresh token.")
	}

	roles, err := s.userRepo.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, s.internal("token refresh", err)
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user, roles)
	if err != nil {
		return nil, s.internal("token refresh", err)
	}

	replacement, err := s.ledger.Rotate(ctx, old, ipAddress, s.policy.RefreshTokenTTL)
	if err != nil {
		if errors.Is(err, ErrTokenAlreadyUsed) || errors.Is(err, ErrTokenAlreadyRevoked) || errors.Is(err, ErrTokenNotActive) {
			// Lost a race with a concurrent redemption of the same token.
			return nil, E(KindRefreshTokenNotActive, "Refresh token is not active.",
				"Token has been revoked or used.")
		}
		return nil, s.internal("token refresh", err)
	}

	s.logger.Info("token refreshed", zap.String("user_id", user.ID))

	return s.bundle(accessToken, replacement.TokenValue, user, roles), nil
}

// RevokeToken explicitly invalidates a refresh token.
func (s *authService) RevokeToken(ctx context.Context, refreshToken, ipAddress string) error {
	if err := s.ledger.Revoke(ctx, refreshToken, ipAddress); err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return E(KindInvalidRefreshToken, "Invalid token.", "Token not found.")
		case errors.Is(err, ErrTokenAlreadyUsed), errors.Is(err, ErrTokenAlreadyRevoked):
			return E(KindRefreshTokenNotActive, "Token is not active.",
				"Token is already revoked or used.")
		default:
			return s.internal("token revocation", err)
		}
	}

	s.logger.Info("refresh token revoked", zap.String("ip", ipAddress))
	return nil
}

// ForgotPassword initiates a password reset. The returned message is the
// same whether or not the account exists.
func (s *authService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Don't reveal that the user doesn't exist.
			return neutralResetMessage, nil
		}
		return "", s.internal("password reset request", err)
	}

	token, err := s.securityTokens.IssuePasswordResetToken(ctx, user.ID, s.policy.ResetTokenTTL)
	if err != nil {
		return "", s.internal("password reset request", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to dispatch password reset",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	return neutralResetMessage, nil
}

// ResetPassword completes a password reset using the emailed token.
func (s *authService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return E(KindUserNotFound, "Invalid reset request.", "User not found.")
		}
		return s.internal("password reset", err)
	}

	if violations := utils.ValidatePassword(req.NewPassword); len(violations) > 0 {
		return E(KindResetFailed, "Password reset failed.", violations...)
	}

	ok, err := s.securityTokens.ConsumePasswordResetToken(ctx, user.ID, req.Token)
	if err != nil {
		return s.internal("password reset", err)
	}
	if !ok {
		return E(KindResetFailed, "Password reset failed.",
			"Reset token is invalid or expired.")
	}

	passwordHash, err := utils.HashPassword(req.NewPassword, s.policy.BCryptCost)
	if err != nil {
		return s.internal("password reset", err)
	}

	if err := s.userRepo.SetPasswordHash(ctx, user.ID, passwordHash); err != nil {
		return s.internal("password reset", err)
	}

	if err := s.userRepo.ResetFailedLogins(ctx, user.ID); err != nil {
		s.logger.Warn("failed to reset login failure counter",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	return nil
}

// ChangePassword verifies the current password and sets the new one.
func (s *authService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return E(KindUserNotFound, "User not found.", "Invalid user ID.")
		}
		return s.internal("password change", err)
	}

	if !utils.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		return E(KindPasswordChangeFailed, "Password change failed.",
			"Current password is incorrect.")
	}

	if violations := utils.ValidatePassword(req.NewPassword); len(violations) > 0 {
		return E(KindPasswordChangeFailed, "Password change failed.", violations...)
	}

	passwordHash, err := utils.HashPassword(req.NewPassword, s.policy.BCryptCost)
	if err != nil {
		return s.internal("password change", err)
	}

	if err := s.userRepo.SetPasswordHash(ctx, user.ID, passwordHash); err != nil {
		return s.internal("password change", err)
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// ConfirmEmail verifies the confirmation token and flips the confirmed flag.
func (s *authService) ConfirmEmail(ctx context.Context, userID, token string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return E(KindUserNotFound, "User not found.", "Invalid user ID.")
		}
		return s.internal("email confirmation", err)
	}

	ok, err := s.securityTokens.ConsumeEmailConfirmToken(ctx, user.ID, token)
	if err != nil {
		return s.internal("email confirmation", err)
	}
	if !ok {
		return E(KindConfirmationFailed, "Email confirmation failed.",
			"Confirmation token is invalid or expired.")
	}

	if err := s.userRepo.SetEmailConfirmed(ctx, user.ID); err != nil {
		return s.internal("email confirmation", err)
	}

	s.logger.Info("email confirmed", zap.String("user_id", user.ID))
	return nil
}

// GetUserInfo is a pure read projection of identity, roles and linked
// domain ids.
func (s *authService) GetUserInfo(ctx context.Context, userID string) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, E(KindUserNotFound, "User not found.", "Invalid user ID.")
		}
		return nil, s.internal("user info", err)
	}

	roles, err := s.userRepo.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, s.internal("user info", err)
	}

	info := userInfo(user, roles)
	return &info, nil
}

// ValidateToken verifies an access token for the request middleware.
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.Principal, error) {
	principal, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, E(KindInvalidToken, "Invalid or expired token.")
	}
	return principal, nil
}

// resolveUser treats identifiers containing '@' as emails and everything
// else as usernames.
func (s *authService) resolveUser(ctx context.Context, identifier string) (*domain.User, error) {
	if utils.IsEmailIdentifier(identifier) {
		return s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(identifier))
	}
	return s.userRepo.GetByUsername(ctx, identifier)
}

// recordFailedAttempt increments the consecutive-failure counter and locks
// the account once the threshold is reached.
func (s *authService) recordFailedAttempt(ctx context.Context, user *domain.User, now time.Time) error {
	count, err := s.userRepo.RecordFailedLogin(ctx, user.ID)
	if err != nil {
		return s.internal("login", err)
	}

	if count >= s.policy.LockoutMaxFailed {
		until := now.Add(s.policy.LockoutWindow)
		if err := s.userRepo.SetLockout(ctx, user.ID, until); err != nil {
			return s.internal("login", err)
		}

		s.logger.Warn("account locked after repeated failures",
			zap.String("user_id", user.ID),
			zap.Int("failures", count),
			zap.Time("locked_until", until),
		)

		return E(KindAccountLocked, "Account locked.",
			"Account is locked due to multiple failed login attempts.")
	}

	return E(KindInvalidCredentials, "Invalid username/email or password.",
		"Authentication failed.")
}

// dispatchEmailConfirmation issues a confirmation token for a new account.
// Failures are logged, never fatal to registration.
func (s *authService) dispatchEmailConfirmation(ctx context.Context, user *domain.User) {
	token, err := s.securityTokens.IssueEmailConfirmToken(ctx, user.ID, s.policy.ConfirmTokenTTL)
	if err != nil {
		s.logger.Error("failed to issue email confirmation token",
			zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := s.notifier.SendEmailConfirmation(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to dispatch email confirmation",
			zap.String("user_id", user.ID), zap.Error(err))
	}
}

// internal logs the underlying fault and returns the generic envelope.
func (s *authService) internal(op string, err error) *Error {
	s.logger.Error("unexpected failure", zap.String("operation", op), zap.Error(err))
	return Internal(fmt.Sprintf("An error occurred during %s.", op))
}
