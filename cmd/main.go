package main

import (
	"context"
	"log"
	"os"

	"material-studio-backend/internal/api"
	"material-studio-backend/internal/api/routes"
	v1 "material-studio-backend/internal/api/routes/v1"
	"material-studio-backend/internal/config"
	"material-studio-backend/internal/libraries"
	llmHandlers "material-studio-backend/internal/llm_handlers"
	"material-studio-backend/internal/studio/workflow"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Open the store and run migrations
	repos, closeStore, err := config.OpenRepositories(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to open storage:", err)
	}
	defer closeStore()

	gcp, err := libraries.NewClients(context.Background(), cfg.GCP)
	if err != nil {
		log.Fatalf("failed to init gcp clients: %v", err)
	}
	defer gcp.Close()

	factory := llmHandlers.NewProviderFactory(gcp, cfg.Generation)
	wf := workflow.NewWorkflow(repos, cfg, factory)

	hub := libraries.NewHub()
	go hub.Run()

	// Create and configure Fiber app
	app := api.NewServer(cfg.Server)

	// Register routes
	routes.Register(app, v1.Dependencies{
		Repos:     repos,
		Generator: wf,
		Uploader:  libraries.NewUploader(gcp),
		Hub:       hub,
	})

	// Start server
	if err := api.StartServer(app, cfg.Server.Port); err != nil {
		log.Println("Failed to start server:", err)
	}
}
