package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

type conversationRepo struct{ s *Store }

func (r *conversationRepo) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var conversation *models.Conversation
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		now := r.s.clock.Now()
		conversation = &models.Conversation{UUID: uuid.New(), Title: title, CreatedAt: now, UpdatedAt: now}
		return put(tx.Bucket(bucketConversations), key(conversation.UUID), conversation)
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

func (r *conversationRepo) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	var found bool
	err := r.s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = get(tx.Bucket(bucketConversations), key(id), &conversation)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("conversation %s: %w", id, repo.ErrNotFound)
	}
	return &conversation, nil
}

func (r *conversationRepo) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.s.db.View(func(tx *bolt.Tx) error {
		conversations = scan[models.Conversation](tx.Bucket(bucketConversations), nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[j], conversations[i]
		return repo.ChronologicalLess(a.UpdatedAt, a.UUID, b.UpdatedAt, b.UUID)
	})
	return conversations, nil
}

func (r *conversationRepo) UpdateConversation(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) (*models.Conversation, error) {
	var conversation models.Conversation
	var found bool
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		var err error
		if found, err = get(b, key(id), &conversation); err != nil || !found {
			return err
		}
		if update.Title != nil {
			conversation.Title = *update.Title
		}
		conversation.UpdatedAt = r.s.clock.Now()
		return put(b, key(id), &conversation)
	})
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("conversation %s: %w", id, repo.ErrNotFound)
	}
	return &conversation, nil
}

func (r *conversationRepo) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	var found bool
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if found = b.Get(key(id)) != nil; !found {
			return nil
		}
		if _, err := deletePrefix(tx.Bucket(bucketMaterials), prefix(id)); err != nil {
			return err
		}
		removed, err := deletePrefix(tx.Bucket(bucketMessages), prefix(id))
		if err != nil {
			return err
		}
		index := tx.Bucket(bucketMessageIndex)
		for _, k := range removed {
			if err := index.Delete(bytes.TrimPrefix(k, prefix(id))); err != nil {
				return err
			}
		}
		return b.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if !found {
		return fmt.Errorf("conversation %s: %w", id, repo.ErrNotFound)
	}
	return nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	msg, err := newMessage(in)
	if err != nil {
		return nil, err
	}

	var found bool
	err = r.s.db.Update(func(tx *bolt.Tx) error {
		var err error
		found, err = r.s.appendMessage(tx, msg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("conversation %s: %w", in.ConversationID, repo.ErrNotFound)
	}
	return msg, nil
}

// CreateAssistantMessage writes an assistant message and its materials in one
// transaction, so a failed material leaves no message behind.
func (r *messageRepo) CreateAssistantMessage(ctx context.Context, in models.NewMessage, materials []models.Material) (*models.Message, []models.Material, error) {
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

	var found bool
	err = r.s.db.Update(func(tx *bolt.Tx) error {
		var err error
		if found, err = r.s.appendMessage(tx, msg); err != nil || !found {
			return err
		}
		return r.s.insertMaterials(tx, out)
	})
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("conversation %s: %w", in.ConversationID, repo.ErrNotFound)
	}
	return msg, out, nil
}

func newMessage(in models.NewMessage) (*models.Message, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", repo.ErrInvalid, in.Role)
	}

	msg := &models.Message{
		UUID:             uuid.New(),
		ConversationUUID: in.ConversationID,
		Role:             in.Role,
		Content:          in.Content,
	}
	if len(in.Images) > 0 {
		msg.Images = append(msg.Images, in.Images...)
	}
	return msg, nil
}

func (r *messageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	var found bool
	err := r.s.db.View(func(tx *bolt.Tx) error {
		conversationID, ok, err := conversationOf(tx, id)
		if err != nil || !ok {
			return err
		}
		found, err = get(tx.Bucket(bucketMessages), key(conversationID, id), &msg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("message %s: %w", id, repo.ErrNotFound)
	}
	return &msg, nil
}

func (r *messageRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := r.s.db.View(func(tx *bolt.Tx) error {
		messages = scan[models.Message](tx.Bucket(bucketMessages), prefix(conversationID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		return repo.ChronologicalLess(a.CreatedAt, a.UUID, b.CreatedAt, b.UUID)
	})
	return messages, nil
}

func (r *messageRepo) GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	messages, err := r.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if n := repo.LatestLimit(limit); len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages, nil
}

func (r *messageRepo) HasAssistantMessage(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	messages, err := r.ListMessages(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, m := range messages {
		if m.Role == models.RoleAssistant {
			return true, nil
		}
	}
	return false, nil
}

type materialRepo struct{ s *Store }

func (r *materialRepo) CreateMaterial(ctx context.Context, material models.Material) (*models.Material, error) {
	created, err := r.CreateMaterials(ctx, []models.Material{material})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

func (r *materialRepo) CreateMaterials(ctx context.Context, materials []models.Material) ([]models.Material, error) {
	out := make([]models.Material, len(materials))
	copy(out, materials)
	if len(out) == 0 {
		return out, nil
	}

	err := r.s.db.Update(func(tx *bolt.Tx) error {
		return r.s.insertMaterials(tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *materialRepo) ReplaceMaterialsForMessage(ctx context.Context, messageID uuid.UUID, materials []models.Material) ([]models.Material, error) {
	out := make([]models.Material, len(materials))
	copy(out, materials)

	err := r.s.db.Update(func(tx *bolt.Tx) error {
		for i := range out {
			if out[i].MessageUUID != messageID {
				return fmt.Errorf("%w: material for message %s in replacement of %s", repo.ErrInvalid, out[i].MessageUUID, messageID)
			}
		}
		conversationID, ok, err := conversationOf(tx, messageID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("owning message: %w", repo.ErrNotFound)
		}
		if _, err := deletePrefix(tx.Bucket(bucketMaterials), prefix(conversationID, messageID)); err != nil {
			return err
		}
		return r.s.insertMaterials(tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *materialRepo) ListMaterialsByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Material, error) {
	var materials []models.Material
	err := r.s.db.View(func(tx *bolt.Tx) error {
		materials = scan[models.Material](tx.Bucket(bucketMaterials), prefix(conversationID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	sort.SliceStable(materials, func(i, j int) bool {
		a, b := materials[j], materials[i]
		return repo.ChronologicalLess(a.CreatedAt, a.UUID, b.CreatedAt, b.UUID)
	})
	return materials, nil
}

func (r *materialRepo) ListMaterialsByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Material, error) {
	materials := []models.Material{}
	err := r.s.db.View(func(tx *bolt.Tx) error {
		conversationID, ok, err := conversationOf(tx, messageID)
		if err != nil || !ok {
			return err
		}
		materials = scan[models.Material](tx.Bucket(bucketMaterials), prefix(conversationID, messageID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	sort.SliceStable(materials, func(i, j int) bool {
		a, b := materials[i], materials[j]
		return repo.ChronologicalLess(a.CreatedAt, a.UUID, b.CreatedAt, b.UUID)
	})
	return materials, nil
}
