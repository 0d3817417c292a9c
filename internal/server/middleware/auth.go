package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"passwordless-auth/backend/internal/security"
)

const bearerPrefix = "bearer "

// Auth resolves the actor for each request. A request without an Authorization header runs as Guest.
// A header that is not a valid bearer credential is rejected with 401 before any handler runs.
func Auth(verifier security.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}
		token := extractBearer(header)
		if token == "" {
			abortUnauthorized(c)
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			abortUnauthorized(c)
			return
		}
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), claims.Actor()))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": security.ErrInvalidToken.Error()})
}

// extractBearer returns the token from a "Bearer <token>" header value, or "" if malformed.
func extractBearer(v string) string {
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
