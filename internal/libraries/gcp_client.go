package libraries

import (
	"context"
	"encoding/base64"
	"fmt"

	"material-studio-backend/internal/config"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

type Clients struct {
	GCS          *storage.Client
	Vertex       *aiplatform.PredictionClient
	ProjectID    string
	VertexRegion string
	Bucket       string
}

// NewClients builds the GCP clients from base64 encoded service account JSON.
// It returns nil, nil when no credentials are configured.
func NewClients(ctx context.Context, cfg config.GCPConfig) (*Clients, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	// decode JSON
	decoded, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service account json: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, decoded, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("CredentialsFromJSON: %w", err)
	}
	credOpt := option.WithCredentials(creds)

	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = creds.ProjectID
	}

	// create GCS client
	gcsClient, err := storage.NewClient(ctx, credOpt)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}

	clients := &Clients{
		GCS:          gcsClient,
		ProjectID:    projectID,
		VertexRegion: cfg.VertexLocation,
		Bucket:       cfg.Bucket,
	}

	// Vertex AI serves publisher models from regional endpoints only
	if cfg.VertexLocation != "" {
		vertexClient, err := aiplatform.NewPredictionClient(ctx, credOpt,
			option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", cfg.VertexLocation)))
		if err != nil {
			gcsClient.Close()
			return nil, fmt.Errorf("vertex.NewPredictionClient: %w", err)
		}
		clients.Vertex = vertexClient
	}

	return clients, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	c.GCS.Close()
	if c.Vertex != nil {
		c.Vertex.Close()
	}
}
