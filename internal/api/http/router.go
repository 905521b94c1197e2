package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Bulk           *handlers.BulkHandler
	AuthMiddleware *auth.AuthMiddleware
	Recaptcha      fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	login := []fiber.Handler{cfg.Auth.Login}
	if cfg.Recaptcha != nil {
		login = append([]fiber.Handler{cfg.Recaptcha}, login...)
	}
	app.Post("/login", login...)
	app.Post("/users", cfg.Users.Register)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Post("/logout", cfg.Auth.Logout)

	users := protected.Group("/users")
	users.Get("/me", cfg.Users.Me)
	users.Patch("/me", cfg.Users.UpdateMe)
	users.Get("/", cfg.Users.List)
	users.Get("/lookup", auth.RequireAdmin(), cfg.Users.Lookup)
	users.Get("/:id", cfg.Users.Get)

	// group middleware applies to every later /users route, so admin routes go last
	admin := users.Group("", auth.RequireAdmin())
	admin.Post("/bulk/check", cfg.Bulk.Check)
	admin.Post("/bulk", cfg.Bulk.Import)
	admin.Post("/invite", cfg.Users.Invite)
	admin.Patch("/", cfg.Users.UpdateWhere)
	admin.Delete("/:id/sessions", cfg.Users.ClearSessions)
}
