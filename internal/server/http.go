// Package server assembles the HTTP router and the gRPC server from the service handlers.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/devotp"
	devotphandler "passwordless-auth/backend/internal/devotp/handler"
	"passwordless-auth/backend/internal/health"
	healthhandler "passwordless-auth/backend/internal/health/handler"
	identityhandler "passwordless-auth/backend/internal/identity/handler"
	"passwordless-auth/backend/internal/security"
	"passwordless-auth/backend/internal/server/middleware"
	userhandler "passwordless-auth/backend/internal/user/handler"
)

// Deps holds the collaborators behind the HTTP routes.
type Deps struct {
	// Auth serves /v1/auth. If nil, those routes answer 501.
	Auth identityhandler.AuthService
	// Users serves /v1/users. If nil, those routes answer 501.
	Users userhandler.UserService
	// Verifier checks bearer credentials. Required.
	Verifier security.Verifier
	// Health backs /healthz. If nil, every check is skipped.
	Health *health.Checker
	// DevOTPStore backs GET /dev/otp. If nil, the route is not mounted. Set only when dev OTP is
	// enabled and not production.
	DevOTPStore devotp.Store
	// Registry receives the HTTP metrics and is served on /metrics. If nil, metrics are off.
	Registry *prometheus.Registry
	Log      *zap.Logger
}

// NewRouter returns the gin engine with every route mounted.
//
// Route → handler mapping:
//   - /v1/auth/*   → internal/identity/handler
//   - /v1/users/*, /v1/me → internal/user/handler
//   - /dev/otp     → internal/devotp/handler
//   - /healthz     → internal/health/handler
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(d.Log), middleware.Recovery(d.Log))
	if d.Registry != nil {
		r.Use(middleware.NewMetrics(d.Registry).Handler())
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	checker := d.Health
	if checker == nil {
		checker = health.NewChecker(nil, nil)
	}
	r.GET("/healthz", healthhandler.HTTP(checker))

	api := r.Group("/v1", middleware.Auth(d.Verifier))
	identityhandler.NewAuthHandler(d.Auth, d.Log).Register(api)
	userhandler.NewUserHandler(d.Users, d.Log).Register(api)

	if d.DevOTPStore != nil {
		devotphandler.NewHandler(d.DevOTPStore, d.Log).Register(r)
	}
	return r
}
