package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mihastele/social-space-harry/pkg/response"
)

const (
	UserIDKey     = "user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthMiddleware validates bearer tokens on REST routes.
type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth returns a Gin middleware that rejects requests without a valid
// bearer token and stores the caller's user ID in the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization format")
			return
		}

		userID, err := m.verifier.Verify(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or missing authentication token")
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get(UserIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
