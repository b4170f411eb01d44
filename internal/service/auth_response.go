package service

import (
	"context"
	"fmt"
	"time"

	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/dto"
)

// issueTokens generates an access token and persists a fresh refresh token,
// returning the full bundle.
func (s *authService) issueTokens(ctx context.Context, user *domain.User, roles []string, ipAddress string) (*dto.AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.ledger.Issue(ctx, user.ID, ipAddress, s.policy.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return s.bundle(accessToken, refreshToken.TokenValue, user, roles), nil
}

func (s *authService) bundle(accessToken, refreshToken string, user *domain.User, roles []string) *dto.AuthResponse {
	return &dto.AuthResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().UTC().Add(s.jwtManager.AccessTokenExpiry()),
		User:         userInfo(user, roles),
	}
}

func userInfo(user *domain.User, roles []string) dto.UserInfo {
	return dto.UserInfo{
		ID:         user.ID,
		UserName:   user.UserName,
		Email:      user.Email,
		FullName:   user.FullName,
		Roles:      roles,
		PatientID:  user.PatientID,
		DoctorID:   user.DoctorID,
		HospitalID: user.HospitalID,
	}
}
