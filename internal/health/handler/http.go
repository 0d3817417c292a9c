package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"passwordless-auth/backend/internal/health"
)

// HTTP returns the /healthz handler: 200 when ready, 503 otherwise, with the per-component report.
func HTTP(checker *health.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := checker.Check(c.Request.Context())
		code := http.StatusOK
		if !r.Ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, r)
	}
}
