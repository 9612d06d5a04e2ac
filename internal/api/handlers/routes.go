package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Routes carries the handlers and per-route middleware the server mounts.
type Routes struct {
	Query       *QueryHandler
	WebSocket   *WebSocketHandler
	Diagnostics *DiagnosticsHandler
	Health      *HealthHandler

	// Limit guards every route that reaches the query engine.
	Limit    fiber.Handler
	Validate fiber.Handler
	Metrics  fiber.Handler
}

func passThrough(c *fiber.Ctx) error { return c.Next() }

func orPass(h fiber.Handler) fiber.Handler {
	if h == nil {
		return passThrough
	}
	return h
}

// Register mounts the public routes on app. Nil handlers leave their routes
// unmounted.
func Register(app *fiber.App, r Routes) {
	limit := orPass(r.Limit)
	validate := orPass(r.Validate)

	if r.Query != nil {
		app.Post("/query", limit, validate, r.Query.HandleQuery)
	}
	if r.WebSocket != nil {
		app.Get("/ws", limit, Upgrade, websocket.New(r.WebSocket.HandleConnection))
	}
	if r.Metrics != nil {
		app.Get("/metrics", r.Metrics)
	}

	api := app.Group("/api/v1")
	if r.Query != nil {
		api.Post("/query", limit, validate, r.Query.HandleQuery)
	}
	if r.Diagnostics != nil {
		api.Get("/diagnostics/unresolved", r.Diagnostics.ListUnresolved)
	}
	if r.Health != nil {
		api.Get("/health", r.Health.Health)
		api.Get("/ready", r.Health.Ready)
	}
}
