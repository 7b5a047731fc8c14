package llmHandlers

import (
	"context"
	"errors"

	"material-studio-backend/internal/models"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("model returned no completion")

// Message is one role-tagged turn sent to a model. Images are URLs or data URIs
// and are only sent by the caller when the model accepts them.
type Message struct {
	Role   models.Role
	Text   string
	Images []string
}

// Client sends a system instruction and ordered turns to a model and returns the
// text of its single completion.
type Client interface {
	Chat(ctx context.Context, systemMessage string, messages []Message) (string, error)
}

// Sampling holds the generation parameters shared by every provider.
type Sampling struct {
	Temperature float64
	MaxTokens   int
}
