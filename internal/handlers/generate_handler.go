package handlers

import (
	"context"
	"log"

	"material-studio-backend/internal/libraries"
	"material-studio-backend/internal/models"
	"material-studio-backend/internal/studio/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Generator is the part of the workflow the transport layer drives.
type Generator interface {
	Generate(ctx context.Context, req workflow.GenerateRequest) (*workflow.GenerateResult, error)
	Rederive(ctx context.Context, messageID uuid.UUID) ([]models.Material, error)
	Models() []workflow.ModelInfo
}

type GenerateHandler struct {
	generator Generator
}

func NewGenerateHandler(generator Generator) *GenerateHandler {
	return &GenerateHandler{generator: generator}
}

func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var req workflow.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.generator.Generate(c.UserContext(), req)
	if err != nil {
		return RespondError(c, err, "Failed to generate materials")
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *GenerateHandler) ListModels(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"models": h.generator.Models(),
	})
}

// ProcessGenerate runs a generate frame received on the websocket.
func (h *GenerateHandler) ProcessGenerate(hub *libraries.Hub, client *libraries.Client, payload *libraries.GeneratePayload) {
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		libraries.SendErrorMessage(hub, client, &libraries.ErrorPayload{
			RequestID: payload.RequestID,
			Status:    fiber.StatusBadRequest,
			Message:   "Invalid conversation ID",
		})
		return
	}

	req := workflow.GenerateRequest{
		ConversationID: conversationID,
		UserMessage:    payload.Message,
		Images:         payload.Images,
		Model:          payload.Model,
	}
	for _, turn := range payload.History {
		req.History = append(req.History, workflow.HistoryTurn{Role: models.Role(turn.Role), Content: turn.Content})
	}

	libraries.SendEvent(hub, client, libraries.WebSocketMessageTypeGenerationStarting, &libraries.GenerationStatusPayload{
		RequestID:      payload.RequestID,
		ConversationID: payload.ConversationID,
	})

	result, err := h.generator.Generate(context.Background(), req)
	if err != nil {
		status := StatusCode(err)
		if status >= fiber.StatusInternalServerError {
			log.Printf("ws generate for conversation %s: %v", payload.ConversationID, err)
		}
		libraries.SendErrorMessage(hub, client, &libraries.ErrorPayload{
			RequestID: payload.RequestID,
			Status:    status,
			Message:   errorMessage(err, "Failed to generate materials"),
		})
		return
	}

	libraries.SendEvent(hub, client, libraries.WebSocketMessageTypeGenerationCompleted, &libraries.GenerationStatusPayload{
		RequestID:      payload.RequestID,
		ConversationID: payload.ConversationID,
		Result:         result,
	})
}
