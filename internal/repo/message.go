package repo

import (
	"context"
	"errors"
	"fmt"

	"material-studio-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MessageRepo struct {
	db    *gorm.DB
	clock *Clock
}

func NewMessageRepository(db *gorm.DB) MessageRepoInterface {
	return &MessageRepo{db: db, clock: NewClock()}
}

// CreateMessage appends a message and bumps the parent conversation's updated_at
// to the message timestamp. Both writes share one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	msg, err := newMessage(in)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendMessage(tx, r.clock, msg)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", in.ConversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// CreateAssistantMessage appends an assistant message together with its materials.
// The materials are attached to the new message; nothing is written unless all of
// them are valid.
func (r *MessageRepo) CreateAssistantMessage(ctx context.Context, in models.NewMessage, materials []models.Material) (*models.Message, []models.Material, error) {
	in.Role = models.RoleAssistant
	msg, err := newMessage(in)
	if err != nil {
		return nil, nil, err
	}

	out := make([]models.Material, len(materials))
	copy(out, materials)
	for i := range out {
		out[i].MessageUUID = msg.UUID
		out[i].ConversationUUID = msg.ConversationUUID
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := appendMessage(tx, r.clock, msg); err != nil {
			return err
		}
		return insertMaterials(tx, r.clock, out)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("conversation %s: %w", in.ConversationID, ErrNotFound)
	}
	if errors.Is(err, ErrInvalid) {
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create assistant message: %w", err)
	}
	return msg, out, nil
}

func newMessage(in models.NewMessage) (*models.Message, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, in.Role)
	}

	msg := &models.Message{
		UUID:             uuid.New(),
		ConversationUUID: in.ConversationID,
		Role:             in.Role,
		Content:          in.Content,
	}
	if len(in.Images) > 0 {
		msg.Images = datatypes.JSONSlice[string](in.Images)
	}
	return msg, nil
}

func appendMessage(tx *gorm.DB, clock *Clock, msg *models.Message) error {
	var parent models.Conversation
	if err := tx.Select("uuid").Where("uuid = ?", msg.ConversationUUID).First(&parent).Error; err != nil {
		return err
	}

	msg.CreatedAt = clock.Now()
	if err := tx.Create(msg).Error; err != nil {
		return err
	}

	return tx.Model(&models.Conversation{}).
		Where("uuid = ?", msg.ConversationUUID).
		Update("updated_at", msg.CreatedAt).Error
}

func (r *MessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Where("uuid = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns the messages of a conversation, oldest first
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.db.WithContext(ctx).
		Where("conversation_uuid = ?", conversationID).
		Order("created_at ASC, uuid ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// GetLatestMessages returns the last limit messages of a conversation, oldest first.
func (r *MessageRepo) GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message

	err := r.db.WithContext(ctx).
		Where("conversation_uuid = ?", conversationID).
		Order("created_at DESC, uuid DESC").
		Limit(LatestLimit(limit)).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}

	// newest first from the query, flip for chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) HasAssistantMessage(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_uuid = ? AND role = ?", conversationID, models.RoleAssistant).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count assistant messages: %w", err)
	}
	return count > 0, nil
}
