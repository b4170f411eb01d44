package service

import (
	"context"

	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/dto"
)

// AuthService is the single boundary surface of the auth core. Every method
// either fully succeeds or returns a *Error; internal faults never escape
// as anything else.
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest, ipAddress string) (*dto.AuthResponse, error)
	RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest, ipAddress string) (*dto.AuthResponse, error)
	RevokeToken(ctx context.Context, refreshToken, ipAddress string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error
	ConfirmEmail(ctx context.Context, userID, token string) error
	GetUserInfo(ctx context.Context, userID string) (*dto.UserInfo, error)
	ValidateToken(ctx context.Context, token string) (*domain.Principal, error)
}
