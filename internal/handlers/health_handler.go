package handlers

import (
	"material-studio-backend/internal/libraries"

	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	hub *libraries.Hub
}

func NewHealthHandler(hub *libraries.Hub) *HealthHandler {
	return &HealthHandler{hub: hub}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	clients := 0
	if h.hub != nil {
		clients = h.hub.Connected()
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":            "ok",
		"websocket_clients": clients,
	})
}
