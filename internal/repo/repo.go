package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"material-studio-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalid is returned when a write would break a data invariant.
	ErrInvalid = errors.New("invalid record")
)

type ConversationRepoInterface interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	UpdateConversation(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) error
}

type MessageRepoInterface interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	HasAssistantMessage(ctx context.Context, conversationID uuid.UUID) (bool, error)
	CreateAssistantMessage(ctx context.Context, msg models.NewMessage, materials []models.Material) (*models.Message, []models.Material, error)
}

type MaterialRepoInterface interface {
	CreateMaterial(ctx context.Context, material models.Material) (*models.Material, error)
	CreateMaterials(ctx context.Context, materials []models.Material) ([]models.Material, error)
	ReplaceMaterialsForMessage(ctx context.Context, messageID uuid.UUID, materials []models.Material) ([]models.Material, error)
	ListMaterialsByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Material, error)
	ListMaterialsByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Material, error)
}

// Repositories bundles the repositories of one store so they can be passed around together.
type Repositories struct {
	Conversations ConversationRepoInterface
	Messages      MessageRepoInterface
	Materials     MaterialRepoInterface
}

// NewGormRepositories returns repositories backed by db. They share one clock so
// timestamps across the three tables stay strictly increasing.
func NewGormRepositories(db *gorm.DB) *Repositories {
	clock := NewClock()
	return &Repositories{
		Conversations: &ConversationRepo{db: db, clock: clock},
		Messages:      &MessageRepo{db: db, clock: clock},
		Materials:     &MaterialRepo{db: db, clock: clock},
	}
}

// Clock hands out strictly increasing timestamps at microsecond precision,
// the finest precision every backend round-trips.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// SetNowFunc replaces the wall clock the timestamps are derived from.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// ValidateMaterial checks a material against the message that owns it.
func ValidateMaterial(material models.Material, owner *models.Message) error {
	if !material.Type.Valid() {
		return fmt.Errorf("%w: unknown material type %q", ErrInvalid, material.Type)
	}
	if owner.Role != models.RoleAssistant {
		return fmt.Errorf("%w: materials must belong to an assistant message", ErrInvalid)
	}
	if material.ConversationUUID != owner.ConversationUUID {
		return fmt.Errorf("%w: material conversation does not match its message", ErrInvalid)
	}
	return nil
}

// ChronologicalLess orders records by creation time, breaking ties on the id bytes
// so every backend returns equal timestamps in the same order.
func ChronologicalLess(at time.Time, aid uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return bytes.Compare(aid[:], bid[:]) < 0
}

// LatestLimit clamps a history size the same way for every backend.
func LatestLimit(limit int) int {
	const defaultLimit = 20
	const maxLimit = 100
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
