package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-api/internal/dto"
	"github.com/healthlink/healthlink-api/internal/service"
)

// AuthHandler maps auth operations onto HTTP endpoints. Every response is an
// APIResponse envelope; the failure status depends on the endpoint, with
// internal faults always reported as 500.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	response, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondFailure(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(response, "User registered successfully."))
}

// Login handles user authentication
// @Summary Login with username or email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	response, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(response, "Login successful."))
}

// Refresh handles refresh token rotation
// @Summary Exchange a refresh token for a new token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Router /auth/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	response, err := h.authService.RefreshToken(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		respondFailure(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(response, "Token refreshed successfully."))
}

// Revoke handles explicit refresh token invalidation
// @Summary Revoke a refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RevokeTokenRequest true "Revoke request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Router /auth/revoke-token [post]
func (h *AuthHandler) Revoke(c *gin.Context) {
	var req dto.RevokeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	if err := h.authService.RevokeToken(c.Request.Context(), req.RefreshToken, c.ClientIP()); err != nil {
		respondFailure(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(nil, "Token revoked successfully."))
}

// ForgotPassword initiates a password reset. The response is 200 with a
// neutral message regardless of whether the email exists.
// @Summary Request a password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Forgot password request"
// @Success 200 {object} dto.APIResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	message, err := h.authService.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		respondFailure(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(nil, message))
}

// ResetPassword completes a password reset
// @Summary Reset a password using an emailed token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset password request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		respondFailure(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(nil, "Password reset successful."))
}

// ChangePassword changes the authenticated user's password
// @Summary Change the current password
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.ChangePasswordRequest true "Change password request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := subjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized.", "Missing subject claim."))
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		respondFailure(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(nil, "Password changed successfully."))
}

// ConfirmEmail verifies an email confirmation token
// @Summary Confirm an email address
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ConfirmEmailRequest true "Confirm email request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Router /auth/confirm-email [post]
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	var req dto.ConfirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Validation failed.", err.Error()))
		return
	}

	if err := h.authService.ConfirmEmail(c.Request.Context(), req.UserID, req.Token); err != nil {
		respondFailure(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(nil, "Email confirmed successfully."))
}

// GetMe returns the authenticated user's identity projection
// @Summary Get current user info
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := subjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized.", "Missing subject claim."))
		return
	}

	info, err := h.authService.GetUserInfo(c.Request.Context(), userID)
	if err != nil {
		if service.KindOf(err) == service.KindUserNotFound {
			respondFailure(c, http.StatusNotFound, err)
			return
		}
		respondFailure(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(info, "User info retrieved successfully."))
}

// GetUser returns the identity projection for an arbitrary user
// @Summary Get user info by id (system administrators only)
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Failure 403 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /auth/users/{id} [get]
func (h *AuthHandler) GetUser(c *gin.Context) {
	info, err := h.authService.GetUserInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		if service.KindOf(err) == service.KindUserNotFound {
			respondFailure(c, http.StatusNotFound, err)
			return
		}
		respondFailure(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(info, "User info retrieved successfully."))
}

// respondFailure writes the envelope for a service error, overriding the
// endpoint status with 500 for internal faults.
func respondFailure(c *gin.Context, status int, err error) {
	svcErr := service.AsError(err)
	if svcErr.Kind == service.KindInternal {
		status = http.StatusInternalServerError
	}
	c.JSON(status, dto.Fail(svcErr.Message, svcErr.Details...))
}
