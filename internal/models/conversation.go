package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a titled container for an ordered sequence of messages.
type Conversation struct {
	UUID      uuid.UUID `gorm:"type:uuid;primaryKey;" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index" json:"updated_at"`
}

// ConversationUpdate carries the fields a caller may change. Nil fields are left as is.
type ConversationUpdate struct {
	Title *string `json:"title,omitempty"`
}
