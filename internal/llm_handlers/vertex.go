package llmHandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"material-studio-backend/internal/libraries"
	"material-studio-backend/internal/models"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genproto/googleapis/api/httpbody"
)

// rawPredictor is the part of aiplatform.PredictionClient the Claude client uses.
type rawPredictor interface {
	RawPredict(ctx context.Context, req *aiplatformpb.RawPredictRequest, opts ...gax.CallOption) (*httpbody.HttpBody, error)
}

// VertexAnthropicClient implements Client for Claude models published on Vertex AI.
type VertexAnthropicClient struct {
	predictor rawPredictor
	endpoint  string
	sampling  Sampling
}

func NewVertexAnthropicClient(predictor rawPredictor, projectID, location, modelID string, sampling Sampling) (*VertexAnthropicClient, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_VERTEXAI_LOCATION must be set")
	}
	if sampling.MaxTokens <= 0 {
		sampling.MaxTokens = 1024
	}
	return &VertexAnthropicClient{
		predictor: predictor,
		endpoint:  fmt.Sprintf("projects/%s/locations/%s/publishers/anthropic/models/%s", projectID, location, modelID),
		sampling:  sampling,
	}, nil
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *VertexAnthropicClient) Chat(ctx context.Context, systemMessage string, messages []Message) (string, error) {
	// messages -> []map[string]interface{} in Claude format
	msgs := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			systemMessage = strings.TrimSpace(systemMessage + "\n" + m.Text)
			continue
		}
		msgs = append(msgs, map[string]interface{}{
			"role":    string(m.Role),
			"content": claudeContent(m),
		})
	}

	body := map[string]interface{}{
		"anthropic_version": "vertex-2023-10-16",
		"messages":          msgs,
		"max_tokens":        c.sampling.MaxTokens,
		"temperature":       c.sampling.Temperature,
		"stream":            false,
	}
	if systemMessage != "" {
		body["system"] = systemMessage
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	resp, err := c.predictor.RawPredict(ctx, &aiplatformpb.RawPredictRequest{
		Endpoint: c.endpoint,
		HttpBody: &httpbody.HttpBody{ContentType: "application/json", Data: payload},
	})
	if err != nil {
		return "", fmt.Errorf("vertex rawPredict: %w", err)
	}

	var cr claudeResponse
	if err := json.Unmarshal(resp.GetData(), &cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var texts []string
	for _, block := range cr.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.Join(texts, "\n\n"), nil
}

// claudeContent renders a turn as a plain string, or as content blocks when it has images.
func claudeContent(m Message) interface{} {
	if len(m.Images) == 0 {
		return m.Text
	}

	blocks := []map[string]interface{}{}
	for _, img := range m.Images {
		if mimeType, data, ok := libraries.ParseDataURI(img); ok {
			blocks = append(blocks, map[string]interface{}{
				"type": "image",
				"source": map[string]interface{}{
					"type":       "base64",
					"media_type": mimeType,
					"data":       data,
				},
			})
			continue
		}
		blocks = append(blocks, map[string]interface{}{
			"type":   "image",
			"source": map[string]interface{}{"type": "url", "url": img},
		})
	}
	return append(blocks, map[string]interface{}{"type": "text", "text": m.Text})
}
