// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/realty-crm/internal/handler"
	"github.com/iliyamo/realty-crm/internal/middleware"
	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/ratelimit"
	"github.com/iliyamo/realty-crm/internal/service"
)

// Deps are the collaborators the routes need.  A nil Limiter disables rate
// limiting.
type Deps struct {
	Auth    *service.Auth
	Limiter *ratelimit.Limiter
	Log     *slog.Logger
}

// New returns an Echo instance with the global middleware and every route
// registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e)
	RegisterAuth(e, d)
	return e
}

// RegisterRoutes registers routes that need neither authentication nor rate
// limiting.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the /v1/auth surface.  Credential endpoints use the
// auth rate-limit bucket; session and admin endpoints use the general one.
func RegisterAuth(e *echo.Echo, d Deps) {
	a := handler.NewAuthHandler(d.Auth, d.Log)
	adm := handler.NewAdminHandler(d.Auth, d.Log)
	authn := middleware.Authenticate(d.Auth)

	// Unauthenticated credential operations.
	pub := e.Group("/v1/auth", middleware.RateLimit(d.Limiter, ratelimit.BucketAuth, d.Log))
	pub.POST("/register", a.Register)
	pub.POST("/login", a.Login)
	pub.POST("/refresh", a.Refresh)
	pub.POST("/forgot-password", a.ForgotPassword)
	pub.POST("/reset-password", a.ResetPassword)
	pub.POST("/change-password", a.ChangePassword, authn)

	// Bearer-protected endpoints.
	g := e.Group("/v1/auth", middleware.RateLimit(d.Limiter, ratelimit.BucketGeneral, d.Log), authn)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me)
	g.GET("/sessions", a.Sessions)
	g.DELETE("/sessions", a.RevokeAllSessions)
	g.DELETE("/sessions/:id", a.RevokeSession)
	g.GET("/csrf-token", a.CSRFToken)

	// Administration.
	admin := g.Group("", middleware.RequireRole(d.Auth.Permissions, model.RoleAdmin))
	admin.GET("/users", adm.ListUsers)
	admin.PUT("/users/:id/deactivate", adm.DeactivateUser, middleware.RequireCSRF(d.Auth.CSRF))
	admin.GET("/audit-logs", adm.AuditLogs)
}
