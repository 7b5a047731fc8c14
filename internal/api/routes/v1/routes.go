package v1

import (
	"material-studio-backend/internal/handlers"
	"material-studio-backend/internal/libraries"
	"material-studio-backend/internal/repo"

	"github.com/gofiber/fiber/v2"
)

// Dependencies are the collaborators the routes are built from.
type Dependencies struct {
	Repos     *repo.Repositories
	Generator handlers.Generator
	Uploader  libraries.Uploader
	Hub       *libraries.Hub
}

func (d Dependencies) GenerateHandler() *handlers.GenerateHandler {
	return handlers.NewGenerateHandler(d.Generator)
}

func RegisterRoutes(r fiber.Router, deps Dependencies) {
	registerHealth(r, deps)
	registerConversations(r, deps)
	registerMaterials(r, deps)
	registerGenerate(r, deps)
	registerUpload(r, deps)
}

func registerHealth(r fiber.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.Hub)
	r.Get("/health", healthHandler.Health)
}

func registerConversations(r fiber.Router, deps Dependencies) {
	conversationHandler := handlers.NewConversationHandler(deps.Repos)

	r.Get("/conversations", conversationHandler.ListConversations)
	r.Post("/conversations", conversationHandler.CreateConversation)
	r.Get("/conversations/:conversationId", conversationHandler.GetConversation)
	r.Patch("/conversations/:conversationId", conversationHandler.UpdateConversation)
	r.Delete("/conversations/:conversationId", conversationHandler.DeleteConversation)
	r.Get("/conversations/:conversationId/messages", conversationHandler.ListMessages)
	r.Get("/conversations/:conversationId/materials", conversationHandler.ListConversationMaterials)
}

func registerMaterials(r fiber.Router, deps Dependencies) {
	materialHandler := handlers.NewMaterialHandler(deps.Repos, deps.Generator)

	r.Get("/messages/:messageId/materials", materialHandler.ListMessageMaterials)
	r.Post("/messages/:messageId/rederive", materialHandler.Rederive)
}

func registerGenerate(r fiber.Router, deps Dependencies) {
	generateHandler := deps.GenerateHandler()

	r.Get("/models", generateHandler.ListModels)
	r.Post("/generate", generateHandler.Generate)
}

func registerUpload(r fiber.Router, deps Dependencies) {
	uploadHandler := handlers.NewUploadHandler(deps.Uploader)
	r.Post("/upload", uploadHandler.UploadImage)
}
