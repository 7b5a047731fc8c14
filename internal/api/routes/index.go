package routes

import (
	v1 "material-studio-backend/internal/api/routes/v1"
	"material-studio-backend/internal/libraries"

	"github.com/gofiber/fiber/v2"
)

func Register(app *fiber.App, deps v1.Dependencies) {
	// API v1 group
	api := app.Group("/api")
	v1Group := api.Group("/v1")

	// Register v1 routes
	v1.RegisterRoutes(v1Group, deps)

	// generation over websocket, the upgrade check lives in api.NewServer
	app.Get("/ws", libraries.WebSocketHandler(deps.Hub, deps.GenerateHandler()))
}
