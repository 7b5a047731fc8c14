package helpers

import (
	llmHandlers "material-studio-backend/internal/llm_handlers"
	"material-studio-backend/internal/models"
)

// HistoryFromMessages converts stored messages into model turns. Past images are
// not replayed, only the current turn carries images.
func HistoryFromMessages(messages []models.Message) []llmHandlers.Message {
	history := make([]llmHandlers.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		history = append(history, llmHandlers.Message{Role: m.Role, Text: m.Content})
	}
	return history
}

// TrimHistory keeps at most limit turns from the end of history. A window never
// opens on an assistant turn, models expect the exchange to start with the user.
func TrimHistory(history []llmHandlers.Message, limit int) []llmHandlers.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	for len(history) > 0 && history[0].Role == models.RoleAssistant {
		history = history[1:]
	}
	return history
}
