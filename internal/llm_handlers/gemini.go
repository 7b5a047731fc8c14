package llmHandlers

import (
	"context"
	"fmt"
	"strings"

	"material-studio-backend/internal/libraries"
	"material-studio-backend/internal/models"

	"google.golang.org/genai"
)

// GenaiGeminiClient implements Client for Gemini via Google AI API
type GenaiGeminiClient struct {
	client  *genai.Client
	modelID string

	Temperature float32
	MaxTokens   int32
}

func NewGenaiGeminiClient(ctx context.Context, apiKey, modelID string, sampling Sampling) (*GenaiGeminiClient, error) {
	if apiKey == "" || modelID == "" {
		return nil, fmt.Errorf("gemini api key and model id must be set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &GenaiGeminiClient{
		client:      client,
		modelID:     modelID,
		Temperature: float32(sampling.Temperature),
		MaxTokens:   int32(sampling.MaxTokens),
	}, nil
}

// convertMessagesToGenaiContent converts our Message format to genai.Content.
// System turns are folded into the returned system text.
func convertMessagesToGenaiContent(messages []Message) (string, []*genai.Content) {
	systemParts := []string{}
	contents := []*genai.Content{}

	for _, m := range messages {
		if m.Role == models.RoleSystem {
			systemParts = append(systemParts, m.Text)
			continue
		}

		// Map role: "assistant" -> "model", "user" -> "user"
		roleOut := "user"
		if m.Role == models.RoleAssistant {
			roleOut = "model"
		}

		parts := []*genai.Part{genai.NewPartFromText(m.Text)}
		for _, img := range m.Images {
			parts = append(parts, imagePart(img))
		}
		contents = append(contents, &genai.Content{Role: roleOut, Parts: parts})
	}

	return strings.Join(systemParts, "\n"), contents
}

// imagePart inlines data URIs and references gs:// objects. Gemini cannot fetch
// arbitrary web URLs, so those are passed on as text.
func imagePart(img string) *genai.Part {
	if mimeType, data, ok := libraries.ParseDataURI(img); ok {
		return genai.NewPartFromBytes(data, mimeType)
	}
	if strings.HasPrefix(img, "gs://") {
		return genai.NewPartFromURI(img, libraries.GuessImageMIME(img))
	}
	return genai.NewPartFromText("Product image: " + img)
}

func (v *GenaiGeminiClient) Chat(ctx context.Context, systemMessage string, messages []Message) (string, error) {
	extraSystem, contents := convertMessagesToGenaiContent(messages)
	if extraSystem != "" {
		systemMessage = strings.TrimSpace(systemMessage + "\n" + extraSystem)
	}

	// Build generation config
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &v.Temperature,
		MaxOutputTokens: v.MaxTokens,
	}

	// Add system instruction if exists
	if systemMessage != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemMessage}},
		}
	}

	resp, err := v.client.Models.GenerateContent(ctx, v.modelID, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}

	// Collect output text from the first candidate's parts
	var sb strings.Builder
	if cand := resp.Candidates[0]; cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}

	return sb.String(), nil
}
