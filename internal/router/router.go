// Package router wires HTTP routes to their handlers and middleware.
// Grouping follows the access model: /v1/auth and the public catalog
// take no token, everything else requires a Bearer access token, and
// management routes additionally require an ORGANIZER or ADMIN role.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/planora/event-scheduler/internal/handler"
	"github.com/planora/event-scheduler/internal/middleware"
	"github.com/planora/event-scheduler/internal/model"
)

// RegisterHealth exposes the liveness probe.
func RegisterHealth(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers registration/login plus the authenticated
// identity echo.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated catalog.  cacheMW caches
// listing responses; pass nil to serve uncached.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, pr *handler.ProgramHandler, reg *handler.RegistrationHandler, cacheMW echo.MiddlewareFunc) {
	g := e.Group("/v1")
	if cacheMW != nil {
		g.GET("/events", ev.ListPublished, cacheMW)
		g.GET("/events/slug/:slug", ev.GetBySlug, cacheMW)
		g.GET("/programs", pr.List, cacheMW)
		g.GET("/programs/:id/events", pr.Events, cacheMW)
	} else {
		g.GET("/events", ev.ListPublished)
		g.GET("/events/slug/:slug", ev.GetBySlug)
		g.GET("/programs", pr.List)
		g.GET("/programs/:id/events", pr.Events)
	}

	// Guest signup carries its own subject token instead of a JWT.
	g.POST("/public/events/:id/roles/:role_id/signup", reg.GuestSignUp)
}

// RegisterEvents registers the authenticated event lifecycle and
// registration routes.
func RegisterEvents(e *echo.Echo, ev *handler.EventHandler, reg *handler.RegistrationHandler, msg *handler.MessageHandler, pr *handler.ProgramHandler, jwtSecret string) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))

	// Lifecycle management. Fine-grained ownership (organizer of THIS
	// event) is enforced inside the service; the role middleware only
	// fences off attendees.
	manage := auth.Group("", middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin))
	manage.POST("/events", ev.Create)
	manage.PATCH("/events/:id", ev.Update)
	manage.POST("/events/:id/publish", ev.Publish)
	manage.POST("/events/:id/unpublish", ev.Unpublish)
	manage.POST("/events/:id/cancel", ev.Cancel)
	manage.POST("/events/:id/refresh-status", ev.RefreshStatus)
	manage.GET("/conflicts/check", ev.CheckConflicts)
	manage.GET("/events/mine", ev.ListMine)
	manage.GET("/events/:id/registrations", reg.ListByEvent)
	manage.POST("/events/:id/roles/:role_id/assign", reg.Assign)
	manage.POST("/programs", pr.Create)

	// Any authenticated user.
	auth.GET("/events/:id", ev.Get)
	auth.POST("/events/:id/roles/:role_id/signup", reg.SignUp)
	auth.DELETE("/events/:id/roles/:role_id/signup", reg.Cancel)
	auth.POST("/events/:id/move", reg.Move)
	auth.GET("/registrations/mine", reg.ListMine)
	auth.GET("/messages/mine", msg.ListMine)
}
