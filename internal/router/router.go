// Package router wires HTTP routes to handlers for the two binaries.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/handler"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/model"
)

// SSOHandlers bundles everything the sso binary serves.
type SSOHandlers struct {
	Auth      *handler.AuthHandler
	Accounts  *handler.AccountHandler
	Provision *handler.ProvisionHandler
	Links     *handler.LinkHandler
}

// TrafficHandlers bundles everything the traffic binary serves.
type TrafficHandlers struct {
	Student  *handler.StudentHandler
	Kiosks   *handler.KioskHandler
	Sessions *handler.SessionHandler
}

// RegisterSSO mounts the identity store: auth endpoints for humans and
// the capability-gated gateway for services and the super-admin.
func RegisterSSO(e *echo.Echo, h SSOHandlers, cfg config.Config, rlCfg config.RateLimitConfig, rdb *redis.Client, sink *audit.Sink) {
	e.GET("/healthz", handler.Health)

	auth := e.Group("/api/auth")
	auth.POST("/login", h.Auth.Login, middleware.RateLimit(rlCfg, rdb))
	auth.POST("/refresh", h.Auth.Refresh, middleware.RateLimit(rlCfg, rdb))
	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/me", h.Auth.Me, middleware.JWTAuth(cfg.JWTSecret, sink))

	// The gateway group: every route resolves the caller to a Principal
	// first, so handlers only do scope checks.
	gw := e.Group("/api", middleware.Capability(cfg.JWTSecret, cfg.ServiceSecrets, sink))

	gw.GET("/users/", h.Accounts.List)
	gw.POST("/users/", h.Accounts.Create)
	gw.GET("/users/check-username", h.Accounts.CheckUsername)
	gw.GET("/users/by-telegram/:telegram_id", h.Accounts.FindByTelegram)
	gw.GET("/users/by-roster-id/:roster_id", h.Accounts.FindByRoster)
	gw.PATCH("/users/:id", h.Accounts.Update)
	gw.DELETE("/users/:id", h.Accounts.Delete)
	gw.POST("/users/:id/telegram-link", h.Links.Link)
	gw.DELETE("/users/:id/telegram-link", h.Links.Unlink)

	gw.POST("/provision/:app/:role", h.Provision.Upsert)
	gw.DELETE("/provision/by-entity/:entity_id", h.Provision.DeleteByEntity)
}

// RegisterTraffic mounts the attendance service: public kiosk and
// attend endpoints, teacher session management, admin kiosk
// administration.
func RegisterTraffic(e *echo.Echo, h TrafficHandlers, cfg config.Config, rlCfg config.RateLimitConfig, rdb *redis.Client, sink *audit.Sink) {
	e.GET("/healthz", handler.Health)

	limiter := middleware.RateLimit(rlCfg, rdb)
	teacher := []echo.MiddlewareFunc{
		middleware.JWTAuth(cfg.JWTSecret, sink),
		middleware.RequireAppRole(sink, model.AppTraffic, "teacher", "admin"),
	}
	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(cfg.JWTSecret, sink),
		middleware.RequireAppRole(sink, model.AppTraffic, "admin"),
	}

	student := e.Group("/api/student")
	student.POST("/verify", h.Student.Verify, limiter)
	student.GET("/me", h.Student.Me)

	kiosk := e.Group("/api/kiosk")
	kiosk.POST("/init", h.Kiosks.Init)
	kiosk.GET("/", h.Kiosks.List, admin...)
	kiosk.GET("/statuses", h.Kiosks.Statuses, admin...)
	kiosk.GET("/by-reg-pin/:pin", h.Kiosks.ByRegPIN, admin...)
	kiosk.GET("/by-display-pin/:pin", h.Kiosks.ByDisplayPIN, append([]echo.MiddlewareFunc{limiter}, teacher...)...)
	kiosk.GET("/:id", h.Kiosks.Get)
	kiosk.GET("/:id/events", h.Kiosks.Events)
	kiosk.GET("/:id/current-session", h.Sessions.Current)
	kiosk.POST("/:id/register", h.Kiosks.Register, admin...)
	kiosk.DELETE("/:id", h.Kiosks.Delete, admin...)

	sessions := e.Group("/api/sessions", teacher...)
	sessions.POST("/", h.Sessions.Create)
	sessions.GET("/", h.Sessions.List)
	sessions.GET("/:id", h.Sessions.Get)
	sessions.GET("/:id/attendees", h.Sessions.Attendees)
	sessions.POST("/:id/close", h.Sessions.Close)

	e.POST("/api/attend", h.Sessions.Attend, limiter)
}
