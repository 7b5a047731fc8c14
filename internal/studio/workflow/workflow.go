package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"material-studio-backend/internal/config"
	llmHandlers "material-studio-backend/internal/llm_handlers"
	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"
	"material-studio-backend/internal/studio/agents"
	"material-studio-backend/internal/studio/helpers"
	"material-studio-backend/internal/studio/materials"

	"github.com/google/uuid"
)

var (
	// ErrValidation is returned for requests rejected before anything is written.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration is returned when the chosen model cannot be called as configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstream is returned when the model call fails.
	ErrUpstream = errors.New("model call failed")
)

// HistoryTurn is a prior turn supplied by the client.
type HistoryTurn struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type GenerateRequest struct {
	ConversationID uuid.UUID     `json:"conversationId"`
	UserMessage    string        `json:"message"`
	Images         []string      `json:"images,omitempty"`
	Model          string        `json:"model,omitempty"`
	History        []HistoryTurn `json:"history,omitempty"`
}

type GenerateResult struct {
	UserMessageID uuid.UUID         `json:"userMessageId"`
	MessageID     uuid.UUID         `json:"messageId"`
	Model         string            `json:"model"`
	Refinement    bool              `json:"refinement"`
	RawContent    string            `json:"content"`
	Materials     []models.Material `json:"materials"`
}

// ModelInfo describes a model choice offered to clients.
type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Vision   bool   `json:"vision"`
	Ready    bool   `json:"ready"`
	Default  bool   `json:"default"`
}

type Workflow struct {
	repos   *repo.Repositories
	cfg     *config.Config
	factory llmHandlers.Factory
	locks   *keyedMutex
}

func NewWorkflow(repos *repo.Repositories, cfg *config.Config, factory llmHandlers.Factory) *Workflow {
	return &Workflow{
		repos:   repos,
		cfg:     cfg,
		factory: factory,
		locks:   newKeyedMutex(),
	}
}

// Generate runs one generation turn: it stores the user message, calls the model,
// derives materials and stores the assistant message with its materials.
func (w *Workflow) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	text := strings.TrimSpace(req.UserMessage)
	images, err := cleanImages(req.Images)
	if err != nil {
		return nil, err
	}
	if text == "" && len(images) == 0 {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	if req.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: conversationId is required", ErrValidation)
	}
	clientHistory, err := historyFromTurns(req.History)
	if err != nil {
		return nil, err
	}

	if _, err := w.repos.Conversations.GetConversation(ctx, req.ConversationID); err != nil {
		return nil, err
	}

	modelName, modelCfg, client, err := w.client(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	if text == "" && len(images) > 0 && !modelCfg.Vision {
		return nil, fmt.Errorf("%w: model %s cannot read images and the message is empty", ErrValidation, modelName)
	}

	unlock := w.locks.Lock(req.ConversationID)
	history := clientHistory
	if len(history) == 0 {
		stored, err := w.repos.Messages.GetLatestMessages(ctx, req.ConversationID, w.cfg.Generation.HistoryLimit)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("load history: %w", err)
		}
		history = helpers.HistoryFromMessages(stored)
	}
	refinement, err := w.repos.Messages.HasAssistantMessage(ctx, req.ConversationID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("check refinement: %w", err)
	}
	userMsg, err := w.repos.Messages.CreateMessage(ctx, models.NewMessage{
		ConversationID: req.ConversationID,
		Role:           models.RoleUser,
		Content:        text,
		Images:         images,
	})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	agent := agents.NewAgent(client, modelCfg.Vision, w.cfg.Generation.Timeout())
	raw, err := agent.ProcessRequest(ctx, agents.Request{
		Refinement: refinement,
		History:    helpers.TrimHistory(history, w.cfg.Generation.HistoryLimit),
		Message:    text,
		Images:     images,
	})
	if err != nil {
		log.Printf("workflow: generation failed for conversation %s with %s: %v", req.ConversationID, modelName, err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	unlock = w.locks.Lock(req.ConversationID)
	defer unlock()

	records, err := materials.Build(req.ConversationID, uuid.Nil, materials.Derive(raw))
	if err != nil {
		return nil, err
	}
	assistantMsg, saved, err := w.repos.Messages.CreateAssistantMessage(ctx, models.NewMessage{
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        raw,
	}, records)
	if err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	return &GenerateResult{
		UserMessageID: userMsg.UUID,
		MessageID:     assistantMsg.UUID,
		Model:         modelName,
		Refinement:    refinement,
		RawContent:    raw,
		Materials:     saved,
	}, nil
}

// Rederive rebuilds the materials of a stored assistant message from its content.
func (w *Workflow) Rederive(ctx context.Context, messageID uuid.UUID) ([]models.Material, error) {
	msg, err := w.repos.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != models.RoleAssistant {
		return nil, fmt.Errorf("%w: only assistant messages have materials", ErrValidation)
	}

	records, err := materials.Build(msg.ConversationUUID, msg.UUID, materials.Derive(msg.Content))
	if err != nil {
		return nil, err
	}

	unlock := w.locks.Lock(msg.ConversationUUID)
	defer unlock()
	return w.repos.Materials.ReplaceMaterialsForMessage(ctx, msg.UUID, records)
}

// Models lists the configured model choices by name.
func (w *Workflow) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(w.cfg.Models))
	for name, m := range w.cfg.Models {
		out = append(out, ModelInfo{
			Name:     name,
			Provider: m.Provider,
			Vision:   m.Vision,
			Ready:    m.Validate() == nil,
			Default:  name == w.cfg.Generation.DefaultModel,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (w *Workflow) client(ctx context.Context, name string) (string, config.ModelConfig, llmHandlers.Client, error) {
	modelName, modelCfg, ok := w.cfg.Model(name)
	if !ok {
		return "", config.ModelConfig{}, nil, fmt.Errorf("%w: unknown model %q", ErrConfiguration, modelName)
	}
	if err := modelCfg.Validate(); err != nil {
		return "", config.ModelConfig{}, nil, fmt.Errorf("%w: model %s: %v", ErrConfiguration, modelName, err)
	}
	client, err := w.factory.NewClient(ctx, modelCfg)
	if err != nil {
		return "", config.ModelConfig{}, nil, fmt.Errorf("%w: model %s: %v", ErrConfiguration, modelName, err)
	}
	return modelName, modelCfg, client, nil
}

func cleanImages(images []string) ([]string, error) {
	out := make([]string, 0, len(images))
	for i, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			return nil, fmt.Errorf("%w: image %d is empty", ErrValidation, i)
		}
		out = append(out, img)
	}
	return out, nil
}

func historyFromTurns(turns []HistoryTurn) ([]llmHandlers.Message, error) {
	out := make([]llmHandlers.Message, 0, len(turns))
	for i, t := range turns {
		if t.Role != models.RoleUser && t.Role != models.RoleAssistant {
			return nil, fmt.Errorf("%w: history turn %d has role %q", ErrValidation, i, t.Role)
		}
		out = append(out, llmHandlers.Message{Role: t.Role, Text: t.Content})
	}
	return out, nil
}
