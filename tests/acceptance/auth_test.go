package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/healthlink/healthlink-api/internal/dto"
)

// envelope mirrors dto.APIResponse with a typed auth payload.
type authEnvelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    dto.AuthResponse `json:"data"`
	Errors  []string         `json:"errors"`
}

type userInfoEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    dto.UserInfo `json:"data"`
	Errors  []string     `json:"errors"`
}

type plainEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func (s *Suite) postJSON(path string, payload interface{}) *http.Response {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	resp, err := http.Post(s.BaseURL+path, "application/json", bytes.NewBuffer(body))
	s.Require().NoError(err)
	return resp
}

func (s *Suite) registerUser(username, email, password, role string) authEnvelope {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		UserName: username,
		Email:    email,
		Password: password,
		FullName: "Test User",
		Role:     role,
	})
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode, "Registration should succeed")

	var envelope authEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func (s *Suite) TestRegister_Success() {
	envelope := s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	s.True(envelope.Success)
	s.NotEmpty(envelope.Data.Token)
	s.NotEmpty(envelope.Data.RefreshToken)
	s.Equal("alice", envelope.Data.User.UserName)
	s.Equal("alice@example.com", envelope.Data.User.Email)
	s.Equal([]string{"Patient"}, envelope.Data.User.Roles)
	s.NotEmpty(envelope.Data.User.ID)
}

func (s *Suite) TestRegister_InvalidRole() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		UserName: "mallory",
		Email:    "mallory@example.com",
		Password: "Sup3r$ecret",
		FullName: "Mallory",
		Role:     "NotARole",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)

	var envelope plainEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.False(envelope.Success)
	s.Equal("Invalid role specified.", envelope.Message)
}

func (s *Suite) TestRegister_WeakPassword() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		UserName: "bob",
		Email:    "bob@example.com",
		Password: "weakpw",
		FullName: "Bob",
		Role:     "Doctor",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)

	var envelope plainEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.False(envelope.Success)
	s.NotEmpty(envelope.Errors)
}

func (s *Suite) TestRegister_DuplicateUsername() {
	s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		UserName: "alice",
		Email:    "other@example.com",
		Password: "Sup3r$ecret",
		FullName: "Impostor",
		Role:     "Patient",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogin_ByUsernameAndEmail() {
	s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	for _, identifier := range []string{"alice", "alice@example.com"} {
		resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
			UserNameOrEmail: identifier,
			Password:        "Sup3r$ecret",
		})

		s.Equal(http.StatusOK, resp.StatusCode)

		var envelope authEnvelope
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
		resp.Body.Close()

		s.True(envelope.Success)
		s.NotEmpty(envelope.Data.Token)
		s.Equal("alice", envelope.Data.User.UserName)
	}
}

func (s *Suite) TestLogin_InvalidCredentials() {
	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		UserNameOrEmail: "nobody",
		Password:        "Wr0ng$ecret",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogin_LockoutAfterFiveFailures() {
	s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	for i := 0; i < 5; i++ {
		resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
			UserNameOrEmail: "alice",
			Password:        "Wr0ng$ecret",
		})
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	// The correct password is now rejected too.
	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		UserNameOrEmail: "alice",
		Password:        "Sup3r$ecret",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	var envelope plainEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.Equal("Account locked.", envelope.Message)
}

func (s *Suite) TestRefreshToken_RotatesAndIsSingleUse() {
	registered := s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	refreshReq := dto.RefreshTokenRequest{
		Token:        registered.Data.Token,
		RefreshToken: registered.Data.RefreshToken,
	}

	resp := s.postJSON("/api/v1/auth/refresh-token", refreshReq)
	s.Equal(http.StatusOK, resp.StatusCode)

	var refreshed authEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&refreshed))
	resp.Body.Close()

	s.NotEqual(registered.Data.RefreshToken, refreshed.Data.RefreshToken)
	s.NotEmpty(refreshed.Data.Token)

	// Replaying the consumed refresh token fails.
	resp = s.postJSON("/api/v1/auth/refresh-token", refreshReq)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestRevokeToken() {
	registered := s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	resp := s.postJSON("/api/v1/auth/revoke-token", dto.RevokeTokenRequest{
		RefreshToken: registered.Data.RefreshToken,
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The revoked token can no longer be refreshed.
	resp = s.postJSON("/api/v1/auth/refresh-token", dto.RefreshTokenRequest{
		Token:        registered.Data.Token,
		RefreshToken: registered.Data.RefreshToken,
	})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestForgotPassword_NeutralResponse() {
	s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	var messages []string
	for _, email := range []string{"alice@example.com", "stranger@example.com"} {
		resp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: email})
		s.Equal(http.StatusOK, resp.StatusCode)

		var envelope plainEnvelope
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
		resp.Body.Close()

		s.True(envelope.Success)
		messages = append(messages, envelope.Message)
	}

	// Identical response whether or not the account exists.
	s.Equal(messages[0], messages[1])
}

func (s *Suite) TestChangePassword_Flow() {
	registered := s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	body, _ := json.Marshal(dto.ChangePasswordRequest{
		CurrentPassword: "Sup3r$ecret",
		NewPassword:     "N3w$ecret",
	})
	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/change-password", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", registered.Data.Token))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The old password no longer works; the new one does.
	resp = s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		UserNameOrEmail: "alice",
		Password:        "Sup3r$ecret",
	})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		UserNameOrEmail: "alice",
		Password:        "N3w$ecret",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *Suite) TestGetMe_Success() {
	registered := s.registerUser("alice", "alice@example.com", "Sup3r$ecret", "Patient")

	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", registered.Data.Token))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var envelope userInfoEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))

	s.True(envelope.Success)
	s.Equal("alice", envelope.Data.UserName)
	s.Equal("alice@example.com", envelope.Data.Email)
	s.Equal([]string{"Patient"}, envelope.Data.Roles)
}

func (s *Suite) TestGetMe_NoToken() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestGetMe_InvalidToken() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
