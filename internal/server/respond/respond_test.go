package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/db"
	otpdomain "passwordless-auth/backend/internal/otp/domain"
	"passwordless-auth/backend/internal/platform/validation"
	"passwordless-auth/backend/internal/security"
	userdomain "passwordless-auth/backend/internal/user/domain"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{validation.NewFieldError("email", "is required"), http.StatusBadRequest},
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
		{fmt.Errorf("wrapped: %w", userdomain.ErrUserNotFound), http.StatusNotFound},
		{db.Wrap("users.get", errors.New("conn reset")), http.StatusInternalServerError},
		{db.ErrTransactionFailed, http.StatusInternalServerError},
		{db.ErrInvalidTransaction, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, body := Status(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.err == otpdomain.ErrTooManyAttempts, body.Restart)
		})
	}
}

func TestError_OpaqueDatabaseFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.ErrorLevel)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(c, zap.New(core), db.Wrap("users.get", errors.New("relation users does not exist")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "users.get: relation users does not exist", logs.All()[0].ContextMap()["db_detail"])
}

func TestError_ValidationFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Error(c, nil, validation.NewFieldError("username", "must be at least 3 characters long"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "must be at least 3 characters long", body.Fields["username"])
}
