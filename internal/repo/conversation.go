package repo

import (
	"context"
	"errors"
	"fmt"

	"material-studio-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepo represents the repository for the conversation model
type ConversationRepo struct {
	db    *gorm.DB
	clock *Clock
}

func NewConversationRepository(db *gorm.DB) ConversationRepoInterface {
	return &ConversationRepo{db: db, clock: NewClock()}
}

// CreateConversation creates a new conversation in the database
func (r *ConversationRepo) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	now := r.clock.Now()
	conversation := &models.Conversation{
		UUID:      uuid.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

func (r *ConversationRepo) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Where("uuid = ?", id).First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conversation, nil
}

// ListConversations returns every conversation, most recently active first
func (r *ConversationRepo) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	err := r.db.WithContext(ctx).Order("updated_at DESC, uuid DESC").Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepo) UpdateConversation(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", id).First(&conversation).Error; err != nil {
			return err
		}
		if update.Title != nil {
			conversation.Title = *update.Title
		}
		conversation.UpdatedAt = r.clock.Now()
		return tx.Model(&models.Conversation{}).Where("uuid = ?", id).Updates(map[string]interface{}{
			"title":      conversation.Title,
			"updated_at": conversation.UpdatedAt,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return &conversation, nil
}

// DeleteConversation removes the conversation together with its messages and materials
func (r *ConversationRepo) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_uuid = ?", id).Delete(&models.Material{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_uuid = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("uuid = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
