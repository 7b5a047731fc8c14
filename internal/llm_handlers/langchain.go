package llmHandlers

import (
	"context"
	"fmt"
	"net/http"

	"material-studio-backend/internal/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient talks to any OpenAI-compatible chat completions endpoint
// (Volcengine Ark doubao models, DeepSeek, OpenAI itself).
type LangChainClient struct {
	llm      llms.Model
	sampling Sampling
}

type LangChainConfig struct {
	Model   string // e.g. "doubao-1-5-pro-32k-250115", "deepseek-v3-250324"
	BaseURL string // optional: for Ark or other OpenAI-compatible APIs
	APIKey  string
	// HTTPClient overrides the transport, tests point it at a local server
	HTTPClient *http.Client
	Sampling   Sampling
}

func NewLangChainClient(cfg LangChainConfig) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain openai client: %w", err)
	}

	return &LangChainClient{llm: llm, sampling: cfg.Sampling}, nil
}

func (c *LangChainClient) Chat(ctx context.Context, systemMessage string, messages []Message) (string, error) {
	msgContents := make([]llms.MessageContent, 0, len(messages)+1)
	if systemMessage != "" {
		msgContents = append(msgContents, llms.TextParts(llms.ChatMessageTypeSystem, systemMessage))
	}
	for _, m := range messages {
		var msgType llms.ChatMessageType
		switch m.Role {
		case models.RoleSystem:
			msgType = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			msgType = llms.ChatMessageTypeAI
		default:
			msgType = llms.ChatMessageTypeHuman
		}

		if len(m.Images) == 0 {
			msgContents = append(msgContents, llms.TextParts(msgType, m.Text))
			continue
		}

		// OpenAI-compatible APIs take both http URLs and data URIs as image_url parts
		parts := []llms.ContentPart{llms.TextPart(m.Text)}
		for _, img := range m.Images {
			parts = append(parts, llms.ImageURLPart(img))
		}
		msgContents = append(msgContents, llms.MessageContent{Role: msgType, Parts: parts})
	}

	opts := []llms.CallOption{llms.WithTemperature(c.sampling.Temperature)}
	if c.sampling.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.sampling.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, msgContents, opts...)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Content, nil
}
