package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/spec-kit/collab-service/internal/api/http/handlers"
	wstransport "github.com/spec-kit/collab-service/internal/api/ws"
	"github.com/spec-kit/collab-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Collab         *handlers.CollaborationHandler
	WS             *wstransport.Handler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	// The websocket route authenticates via query token inside the
	// handler; browsers cannot send Authorization headers on ws dials.
	app.Use("/collab/ws", cfg.WS.Upgrade)
	app.Get("/collab/ws", websocket.New(cfg.WS.Serve))

	collabGroup := app.Group("/collab", cfg.AuthMiddleware.Handle)
	collabGroup.Post("/rooms", cfg.Collab.CreateRoom)
	collabGroup.Get("/rooms", cfg.Collab.ListUserRooms)
	collabGroup.Get("/rooms/:id", cfg.Collab.GetRoom)
	collabGroup.Post("/rooms/:id/join", cfg.Collab.JoinRoom)
	collabGroup.Post("/rooms/:id/leave", cfg.Collab.LeaveRoom)
	collabGroup.Post("/rooms/:id/updates", cfg.Collab.ProcessUpdate)
	collabGroup.Get("/history/:entityType/:entityId", cfg.Collab.GetHistory)
	collabGroup.Get("/statistics", cfg.Collab.GetStatistics)
}
