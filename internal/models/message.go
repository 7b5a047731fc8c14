package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn of a conversation. Messages are append-only.
type Message struct {
	UUID             uuid.UUID                   `gorm:"type:uuid;primaryKey;" json:"id"`
	ConversationUUID uuid.UUID                   `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Role             Role                        `gorm:"not null" json:"role"`
	Content          string                      `gorm:"type:text;not null" json:"content"`
	Images           datatypes.JSONSlice[string] `json:"images,omitempty"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// NewMessage is the input of MessageRepoInterface.CreateMessage.
type NewMessage struct {
	ConversationID uuid.UUID
	Role           Role
	Content        string
	Images         []string
}
