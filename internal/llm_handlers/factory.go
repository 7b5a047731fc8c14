package llmHandlers

import (
	"context"
	"fmt"

	"material-studio-backend/internal/config"
	"material-studio-backend/internal/libraries"
)

// Factory builds the client for a configured model choice.
type Factory interface {
	NewClient(ctx context.Context, model config.ModelConfig) (Client, error)
}

// ProviderFactory creates real provider clients.
type ProviderFactory struct {
	GCP      *libraries.Clients
	Sampling Sampling
}

func NewProviderFactory(gcp *libraries.Clients, gen config.GenerationConfig) *ProviderFactory {
	return &ProviderFactory{
		GCP:      gcp,
		Sampling: Sampling{Temperature: gen.Temperature, MaxTokens: gen.MaxTokens},
	}
}

func (f *ProviderFactory) NewClient(ctx context.Context, model config.ModelConfig) (Client, error) {
	switch model.Provider {
	case config.ProviderOpenAICompatible:
		return NewLangChainClient(LangChainConfig{
			Model:    model.ModelID,
			BaseURL:  model.BaseURL,
			APIKey:   model.APIKey,
			Sampling: f.Sampling,
		})
	case config.ProviderGemini:
		return NewGenaiGeminiClient(ctx, model.APIKey, model.ModelID, f.Sampling)
	case config.ProviderVertexAnthropic:
		if f.GCP == nil || f.GCP.Vertex == nil {
			return nil, fmt.Errorf("vertex AI is not configured: set GCP_SERVICE_ACCOUNT_CREDENTIALS and GOOGLE_CLOUD_VERTEXAI_LOCATION")
		}
		return NewVertexAnthropicClient(f.GCP.Vertex, f.GCP.ProjectID, f.GCP.VertexRegion, model.ModelID, f.Sampling)
	default:
		return nil, fmt.Errorf("unknown provider %s", model.Provider)
	}
}
