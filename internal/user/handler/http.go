// Package handler exposes the account commands and user queries over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/server/middleware"
	"passwordless-auth/backend/internal/server/respond"
	"passwordless-auth/backend/internal/user/domain"
	"passwordless-auth/backend/internal/user/service"
)

// UserService is the command and query surface the handler needs.
type UserService interface {
	GetUserByID(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error)
	GetUserByEmail(ctx context.Context, actor authz.Actor, email string) (*domain.UserReadModel, error)
	ListUsers(ctx context.Context, actor authz.Actor, in service.ListInput) (*domain.UserConnection, error)
	BanUser(ctx context.Context, actor authz.Actor, id string, in service.BanInput) (*domain.UserReadModel, error)
	UnbanUser(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error)
	ChangeUsername(ctx context.Context, actor authz.Actor, id, username string) (*domain.UserReadModel, error)
	AwardBadge(ctx context.Context, actor authz.Actor, id, badge string) (*domain.UserReadModel, error)
	RevokeBadge(ctx context.Context, actor authz.Actor, id, badge string) (*domain.UserReadModel, error)
	MakeModerator(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error)
	MakeRegular(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error)
}

type usernameRequest struct {
	Username string `json:"username"`
}

type badgeRequest struct {
	Badge string `json:"badge"`
}

// MeResponse describes the caller.
type MeResponse struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// UserHandler serves /v1/users and /v1/me. With a nil service the /v1/users routes answer 501.
type UserHandler struct {
	svc UserService
	log *zap.Logger
}

// NewUserHandler returns a UserHandler.
func NewUserHandler(svc UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: logger.OrNop(log).Named("user.http")}
}

// Register mounts the user routes on rg.
func (h *UserHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)

	g := rg.Group("/users", h.requireService)
	g.GET("", h.list)
	g.GET("/by-email", h.getByEmail)
	g.GET("/:id", h.get)
	g.POST("/:id/ban", h.ban)
	g.POST("/:id/unban", h.command(UserService.UnbanUser))
	g.PUT("/:id/username", h.changeUsername)
	g.POST("/:id/badges", h.awardBadge)
	g.DELETE("/:id/badges/:badge", h.revokeBadge)
	g.POST("/:id/moderator", h.command(UserService.MakeModerator))
	g.POST("/:id/regular", h.command(UserService.MakeRegular))
}

func (h *UserHandler) requireService(c *gin.Context) {
	if h.svc == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, respond.ErrorBody{Error: "user service not configured"})
	}
}

func actor(c *gin.Context) authz.Actor {
	return middleware.ActorFromContext(c.Request.Context())
}

func (h *UserHandler) reply(c *gin.Context, v interface{}, err error) {
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *UserHandler) me(c *gin.Context) {
	a := actor(c)
	c.JSON(http.StatusOK, MeResponse{ID: a.ID, Email: a.Email, Role: string(a.Role)})
}

func (h *UserHandler) get(c *gin.Context) {
	rm, err := h.svc.GetUserByID(c.Request.Context(), actor(c), c.Param("id"))
	h.reply(c, rm, err)
}

func (h *UserHandler) getByEmail(c *gin.Context) {
	rm, err := h.svc.GetUserByEmail(c.Request.Context(), actor(c), c.Query("email"))
	h.reply(c, rm, err)
}

func (h *UserHandler) list(c *gin.Context) {
	var in service.ListInput
	if err := c.ShouldBindQuery(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	conn, err := h.svc.ListUsers(c.Request.Context(), actor(c), in)
	h.reply(c, conn, err)
}

func (h *UserHandler) ban(c *gin.Context) {
	var in service.BanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	rm, err := h.svc.BanUser(c.Request.Context(), actor(c), c.Param("id"), in)
	h.reply(c, rm, err)
}

func (h *UserHandler) changeUsername(c *gin.Context) {
	var in usernameRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	rm, err := h.svc.ChangeUsername(c.Request.Context(), actor(c), c.Param("id"), in.Username)
	h.reply(c, rm, err)
}

func (h *UserHandler) awardBadge(c *gin.Context) {
	var in badgeRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	rm, err := h.svc.AwardBadge(c.Request.Context(), actor(c), c.Param("id"), in.Badge)
	h.reply(c, rm, err)
}

func (h *UserHandler) revokeBadge(c *gin.Context) {
	rm, err := h.svc.RevokeBadge(c.Request.Context(), actor(c), c.Param("id"), c.Param("badge"))
	h.reply(c, rm, err)
}

// command adapts a body-less command keyed by the :id path parameter.
func (h *UserHandler) command(fn func(UserService, context.Context, authz.Actor, string) (*domain.UserReadModel, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm, err := fn(h.svc, c.Request.Context(), actor(c), c.Param("id"))
		h.reply(c, rm, err)
	}
}
