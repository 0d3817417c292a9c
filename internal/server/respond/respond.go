// Package respond maps service errors to HTTP responses.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/db"
	otpdomain "passwordless-auth/backend/internal/otp/domain"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/platform/validation"
	"passwordless-auth/backend/internal/security"
	userdomain "passwordless-auth/backend/internal/user/domain"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	Restart bool              `json:"restart,omitempty"`
}

var statusByErr = []struct {
	err    error
	status int
}{
	{security.ErrInvalidToken, http.StatusUnauthorized},
	{authz.ErrUnauthorized, http.StatusForbidden},
	{userdomain.ErrUserNotFound, http.StatusNotFound},
	{otpdomain.ErrOTPNotFound, http.StatusNotFound},
	{userdomain.ErrUsernameTaken, http.StatusConflict},
	{userdomain.ErrUsernameOrEmailTaken, http.StatusConflict},
	{otpdomain.ErrOTPExpired, http.StatusUnprocessableEntity},
	{otpdomain.ErrOTPAlreadyUsed, http.StatusUnprocessableEntity},
	{otpdomain.ErrTooManyAttempts, http.StatusUnprocessableEntity},
	{otpdomain.ErrInvalidOTP, http.StatusUnprocessableEntity},
	{otpdomain.ErrOTPConflict, http.StatusUnprocessableEntity},
	{userdomain.ErrUnverifiedEmail, http.StatusUnprocessableEntity},
	{userdomain.ErrUnableToVerifyEmail, http.StatusUnprocessableEntity},
}

// Status returns the HTTP status for err and the body to send. Storage and unknown errors become an
// opaque 500.
func Status(err error) (int, ErrorBody) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorBody{Error: "validation failed", Fields: verr.Fields}
	}
	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			return m.status, ErrorBody{Error: m.err.Error(), Restart: m.err == otpdomain.ErrTooManyAttempts}
		}
	}
	return http.StatusInternalServerError, ErrorBody{Error: "internal server error"}
}

// Error writes the response for err and aborts the chain. 500s are logged with the storage detail.
func Error(c *gin.Context, log *zap.Logger, err error) {
	status, body := Status(err)
	if status == http.StatusInternalServerError {
		fields := []zap.Field{zap.String("path", c.FullPath()), zap.Error(err)}
		if d := db.Detail(err); d != "" {
			fields = append(fields, zap.String("db_detail", d))
		}
		logger.OrNop(log).Error("request failed", fields...)
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest reports a malformed body or query as a validation failure.
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: "malformed request: " + err.Error()})
}
