// Package handler implements the dev-only GET /dev/otp endpoint.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/devotp"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/server/respond"
)

const devOTPNote = "DEV MODE ONLY"

// OTPResponse is the body of a successful lookup.
type OTPResponse struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Note  string `json:"note"`
}

// Handler serves the plaintext code last issued to an email. Only mounted when dev OTP is enabled
// and not production.
type Handler struct {
	store devotp.Store
	log   *zap.Logger
}

// NewHandler returns a Handler that reads codes from store.
func NewHandler(store devotp.Store, log *zap.Logger) *Handler {
	return &Handler{store: store, log: logger.OrNop(log).Named("devotp")}
}

// Register mounts GET /dev/otp on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/dev/otp", h.getOTP)
}

func (h *Handler) getOTP(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" {
		c.JSON(http.StatusBadRequest, respond.ErrorBody{Error: "validation failed", Fields: map[string]string{"email": "is required"}})
		return
	}
	otp, ok, err := h.store.Get(c.Request.Context(), email)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, respond.ErrorBody{Error: "otp not found or expired"})
		return
	}
	c.JSON(http.StatusOK, OTPResponse{Email: email, OTP: otp, Note: devOTPNote})
}
