package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Tickets  *handlers.TicketsHandler
	Sla      *handlers.SlaHandler
	Settings *handlers.SettingsHandler
	Team     *handlers.TeamHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/debug/metrics", cfg.Health.Metrics)

	api := app.Group("/api")

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/fetch", cfg.Tickets.Fetch)
	tickets.Post("/bulk", cfg.Tickets.Bulk)
	tickets.Get("/priority-queue", cfg.Tickets.PriorityQueue)
	tickets.Get("/customers/:email/history", cfg.Tickets.CustomerHistory)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/approve", cfg.Tickets.Approve)
	tickets.Post("/:id/reject", cfg.Tickets.Reject)
	tickets.Post("/:id/send", cfg.Tickets.Send)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Put("/:id/draft", cfg.Tickets.UpdateDraft)

	sla := api.Group("/sla")
	sla.Get("/summary", cfg.Sla.Summary)
	sla.Post("/refresh", cfg.Sla.Refresh)

	settings := api.Group("/settings")
	settings.Get("/sla", cfg.Settings.GetSlaPolicy)
	settings.Put("/sla", cfg.Settings.SetSlaPolicy)
	settings.Get("/scheduler", cfg.Settings.GetScheduler)
	settings.Put("/scheduler", cfg.Settings.SetScheduler)

	team := api.Group("/team")
	team.Post("/", cfg.Team.Create)
	team.Get("/", cfg.Team.List)
	team.Get("/:id", cfg.Team.Get)
}
