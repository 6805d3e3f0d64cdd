package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/api/http/handlers"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/auth"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The customer dashboard and the admin
// console share one ticket handler; the admin group only adds the role
// guard, the scope difference comes from the authenticated role itself.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/staff/login", cfg.Users.LoginStaff)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)

	admin := app.Group("/admin/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/", cfg.Tickets.List)
	admin.Get("/:id", cfg.Tickets.Get)
	admin.Post("/:id/messages", cfg.Tickets.AddMessage)
	admin.Post("/:id/close", cfg.Tickets.Close)
	admin.Post("/:id/reopen", cfg.Tickets.Reopen)
}
