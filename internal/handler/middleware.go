package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/dto"
	"github.com/healthlink/healthlink-api/internal/service"
)

const (
	contextKeyUserID    = "user_id"
	contextKeyPrincipal = "principal"
)

// AuthMiddleware validates the bearer token and stores the authenticated
// principal in the gin context.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized.", "Authorization header is required."))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized.", "Invalid authorization header format."))
			c.Abort()
			return
		}

		principal, err := authService.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized.", "Invalid or expired token."))
			c.Abort()
			return
		}

		c.Set(contextKeyUserID, principal.UserID)
		c.Set(contextKeyPrincipal, principal)

		c.Next()
	}
}

// RequireRoles allows the request only when the authenticated principal holds
// at least one of the given roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized.", "Authentication required."))
			c.Abort()
			return
		}

		for _, role := range roles {
			if principal.HasRole(role) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, dto.Fail("Forbidden.", "Insufficient role."))
		c.Abort()
	}
}

func subjectFromContext(c *gin.Context) (string, bool) {
	userID, ok := c.Get(contextKeyUserID)
	if !ok {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

func principalFromContext(c *gin.Context) (*domain.Principal, bool) {
	value, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*domain.Principal)
	return principal, ok
}
