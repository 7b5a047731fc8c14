package handlers

import (
	"material-studio-backend/internal/repo"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type MaterialHandler struct {
	messages  repo.MessageRepoInterface
	materials repo.MaterialRepoInterface
	generator Generator
}

func NewMaterialHandler(repos *repo.Repositories, generator Generator) *MaterialHandler {
	return &MaterialHandler{
		messages:  repos.Messages,
		materials: repos.Materials,
		generator: generator,
	}
}

// get materials by message id
func (h *MaterialHandler) ListMessageMaterials(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return badRequest(c, "Invalid message ID")
	}

	ctx := c.UserContext()
	if _, err := h.messages.GetMessage(ctx, id); err != nil {
		return RespondError(c, err, "Failed to get materials")
	}
	materials, err := h.materials.ListMaterialsByMessage(ctx, id)
	if err != nil {
		return RespondError(c, err, "Failed to get materials")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"materials": nonNil(materials),
	})
}

// Rederive rebuilds the materials of an assistant message from its stored content.
func (h *MaterialHandler) Rederive(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return badRequest(c, "Invalid message ID")
	}

	materials, err := h.generator.Rederive(c.UserContext(), id)
	if err != nil {
		return RespondError(c, err, "Failed to rederive materials")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"materials": nonNil(materials),
	})
}
