package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	llmHandlers "material-studio-backend/internal/llm_handlers"
	"material-studio-backend/internal/models"
	"material-studio-backend/internal/studio/prompts"
)

// ErrEmptyTurn is returned when the user turn would reach the model with neither
// text nor images.
var ErrEmptyTurn = errors.New("user turn has no text and no images the model can read")

type Agent struct {
	llmClient llmHandlers.Client
	vision    bool
	timeout   time.Duration
}

// NewAgent wraps a model client. vision says whether the model accepts images;
// timeout bounds every call.
func NewAgent(client llmHandlers.Client, vision bool, timeout time.Duration) *Agent {
	return &Agent{
		llmClient: client,
		vision:    vision,
		timeout:   timeout,
	}
}

// Request is one generation turn.
type Request struct {
	Refinement bool
	History    []llmHandlers.Message
	Message    string
	Images     []string
}

// ProcessRequest sends the material instruction, the history and the new user turn
// to the model and returns its raw output.
func (a *Agent) ProcessRequest(ctx context.Context, req Request) (string, error) {
	systemMessage := prompts.SystemInstruction(req.Refinement)

	messages := []llmHandlers.Message{}
	if len(req.History) > 0 {
		messages = append(messages, req.History...)
	}

	userMessage := llmHandlers.Message{
		Role: models.RoleUser,
		Text: req.Message,
	}
	if len(req.Images) > 0 {
		if a.vision {
			userMessage.Images = req.Images
		} else {
			log.Printf("agent: model has no image support, dropping %d image(s)", len(req.Images))
		}
	}
	if userMessage.Text == "" {
		if len(userMessage.Images) == 0 {
			return "", ErrEmptyTurn
		}
		userMessage.Text = "Generate materials for the product in these images."
	}
	messages = append(messages, userMessage)

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// Call the LLM
	response, err := a.llmClient.Chat(ctx, systemMessage, messages)
	if err != nil {
		return "", fmt.Errorf("LLM chat error: %w", err)
	}

	return response, nil
}
