package handlers

import (
	"strings"

	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// for simple crud operations service layer is not required
type ConversationHandler struct {
	conversations repo.ConversationRepoInterface
	messages      repo.MessageRepoInterface
	materials     repo.MaterialRepoInterface
}

func NewConversationHandler(repos *repo.Repositories) *ConversationHandler {
	return &ConversationHandler{
		conversations: repos.Conversations,
		messages:      repos.Messages,
		materials:     repos.Materials,
	}
}

// MessageWithMaterials is a message as the UI renders it, with the materials derived from it.
type MessageWithMaterials struct {
	models.Message
	Materials []models.Material `json:"materials"`
}

func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	var dto struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&dto); err != nil {
		return badRequest(c, "Invalid request body")
	}

	title := strings.TrimSpace(dto.Title)
	if title == "" {
		return badRequest(c, "Title cannot be empty")
	}

	conversation, err := h.conversations.CreateConversation(c.UserContext(), title)
	if err != nil {
		return RespondError(c, err, "Failed to create conversation")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"conversation": conversation,
	})
}

func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	conversations, err := h.conversations.ListConversations(c.UserContext())
	if err != nil {
		return RespondError(c, err, "Failed to get conversations")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"conversations": nonNil(conversations),
	})
}

func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	conversation, err := h.conversations.GetConversation(c.UserContext(), id)
	if err != nil {
		return RespondError(c, err, "Failed to get conversation")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"conversation": conversation,
	})
}

func (h *ConversationHandler) UpdateConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	var update models.ConversationUpdate
	if err := c.BodyParser(&update); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return badRequest(c, "Title cannot be empty")
		}
		update.Title = &title
	}

	conversation, err := h.conversations.UpdateConversation(c.UserContext(), id, update)
	if err != nil {
		return RespondError(c, err, "Failed to update conversation")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"conversation": conversation,
	})
}

func (h *ConversationHandler) DeleteConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	if err := h.conversations.DeleteConversation(c.UserContext(), id); err != nil {
		return RespondError(c, err, "Failed to delete conversation")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Conversation deleted successfully",
	})
}

// ListMessages returns the messages of a conversation oldest first, each with its materials.
func (h *ConversationHandler) ListMessages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	ctx := c.UserContext()
	if _, err := h.conversations.GetConversation(ctx, id); err != nil {
		return RespondError(c, err, "Failed to get messages")
	}
	messages, err := h.messages.ListMessages(ctx, id)
	if err != nil {
		return RespondError(c, err, "Failed to get messages")
	}
	materials, err := h.materials.ListMaterialsByConversation(ctx, id)
	if err != nil {
		return RespondError(c, err, "Failed to get messages")
	}

	// materials come newest first, walk them backwards to keep each message's in creation order
	byMessage := make(map[uuid.UUID][]models.Material)
	for i := len(materials) - 1; i >= 0; i-- {
		m := materials[i]
		byMessage[m.MessageUUID] = append(byMessage[m.MessageUUID], m)
	}

	out := make([]MessageWithMaterials, 0, len(messages))
	for _, msg := range messages {
		mats := byMessage[msg.UUID]
		if mats == nil {
			mats = []models.Material{}
		}
		out = append(out, MessageWithMaterials{Message: msg, Materials: mats})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"messages": out,
	})
}

// ListConversationMaterials returns every material of a conversation, newest first.
func (h *ConversationHandler) ListConversationMaterials(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	ctx := c.UserContext()
	if _, err := h.conversations.GetConversation(ctx, id); err != nil {
		return RespondError(c, err, "Failed to get materials")
	}
	materials, err := h.materials.ListMaterialsByConversation(ctx, id)
	if err != nil {
		return RespondError(c, err, "Failed to get materials")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"materials": nonNil(materials),
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
