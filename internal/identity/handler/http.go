// Package handler exposes the sign-up, sign-in, and verification commands over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/identity/service"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/server/middleware"
	"passwordless-auth/backend/internal/server/respond"
	userdomain "passwordless-auth/backend/internal/user/domain"
)

// AuthService is the command surface the handler needs.
type AuthService interface {
	SignUp(ctx context.Context, actor authz.Actor, in service.SignUpInput) error
	SignIn(ctx context.Context, in service.SignInInput) error
	VerifyOTP(ctx context.Context, in service.VerifyInput) (*service.AuthResult, error)
	VerifyEmailWithOTP(ctx context.Context, in service.VerifyInput) (*service.AuthResult, error)
}

// TokenResponse is returned by both verification endpoints.
type TokenResponse struct {
	Token     string                   `json:"token"`
	ExpiresAt time.Time                `json:"expires_at"`
	User      userdomain.UserReadModel `json:"user"`
}

// AuthHandler serves /v1/auth. With a nil service every route answers 501.
type AuthHandler struct {
	svc AuthService
	log *zap.Logger
}

// NewAuthHandler returns an AuthHandler.
func NewAuthHandler(svc AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: logger.OrNop(log).Named("identity.http")}
}

// Register mounts the auth routes on rg.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/auth", h.requireService)
	g.POST("/sign-up", h.signUp)
	g.POST("/sign-in", h.signIn)
	g.POST("/verify-otp", h.verifyOTP)
	g.POST("/verify-email", h.verifyEmail)
}

func (h *AuthHandler) requireService(c *gin.Context) {
	if h.svc == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, respond.ErrorBody{Error: "auth service not configured"})
	}
}

func (h *AuthHandler) signUp(c *gin.Context) {
	var in service.SignUpInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	if err := h.svc.SignUp(c.Request.Context(), middleware.ActorFromContext(c.Request.Context()), in); err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "otp_sent"})
}

func (h *AuthHandler) signIn(c *gin.Context) {
	var in service.SignInInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	if err := h.svc.SignIn(c.Request.Context(), in); err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "otp_sent"})
}

func (h *AuthHandler) verifyOTP(c *gin.Context) {
	h.verify(c, h.svc.VerifyOTP)
}

func (h *AuthHandler) verifyEmail(c *gin.Context) {
	h.verify(c, h.svc.VerifyEmailWithOTP)
}

func (h *AuthHandler) verify(c *gin.Context, fn func(context.Context, service.VerifyInput) (*service.AuthResult, error)) {
	var in service.VerifyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	res, err := fn(c.Request.Context(), in)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User})
}
