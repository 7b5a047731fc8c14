// Package docstore keeps conversations, messages and materials in a single bbolt file,
// one bucket per collection and one JSON document per record.
//
// Keys nest by ownership so a conversation's records form a contiguous key range:
//
//	conversations: <conversation>
//	messages:      <conversation>/<message>
//	materials:     <conversation>/<message>/<material>
//	message_index: <message> -> <conversation>
package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketMaterials     = []byte("materials")
	bucketMessageIndex  = []byte("message_index")
)

// Store is a bbolt-backed document store. Every mutation runs in one write
// transaction, so writers are serialized and readers never see a partial cascade.
type Store struct {
	db    *bolt.DB
	clock *repo.Clock
}

// Open opens (creating if needed) the store file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketMessages, bucketMaterials, bucketMessageIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("✅ Document store opened at %s", path)
	return &Store{db: db, clock: repo.NewClock()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repo.Repositories {
	return &repo.Repositories{
		Conversations: &conversationRepo{s},
		Messages:      &messageRepo{s},
		Materials:     &materialRepo{s},
	}
}

func key(ids ...uuid.UUID) []byte {
	var buf bytes.Buffer
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.WriteString(id.String())
	}
	return buf.Bytes()
}

func prefix(ids ...uuid.UUID) []byte {
	return append(key(ids...), '/')
}

func put(b *bolt.Bucket, k []byte, v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(k, enc)
}

// get decodes the document at k into v and reports whether it existed.
func get(b *bolt.Bucket, k []byte, v any) (bool, error) {
	raw := b.Get(k)
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", k, err)
	}
	return true, nil
}

// scan decodes every document under p. Malformed documents are skipped.
func scan[T any](b *bolt.Bucket, p []byte) []T {
	out := []T{}
	c := b.Cursor()
	k, v := c.First()
	if len(p) > 0 {
		k, v = c.Seek(p)
	}
	for ; k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var doc T
		if err := json.Unmarshal(v, &doc); err != nil {
			log.Printf("docstore: skipping malformed document %s: %v", k, err)
			continue
		}
		out = append(out, doc)
	}
	return out
}

// deletePrefix removes every key under p and returns the removed keys.
func deletePrefix(b *bolt.Bucket, p []byte) ([][]byte, error) {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// conversationOf resolves the conversation owning message id.
func conversationOf(tx *bolt.Tx, id uuid.UUID) (uuid.UUID, bool, error) {
	raw := tx.Bucket(bucketMessageIndex).Get(key(id))
	if raw == nil {
		return uuid.Nil, false, nil
	}
	conversationID, err := uuid.ParseBytes(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("message index for %s: %w", id, err)
	}
	return conversationID, true, nil
}

// appendMessage stores msg under its conversation and bumps the conversation's
// updated_at. It reports false when the conversation does not exist.
func (s *Store) appendMessage(tx *bolt.Tx, msg *models.Message) (bool, error) {
	conversations := tx.Bucket(bucketConversations)
	var parent models.Conversation
	found, err := get(conversations, key(msg.ConversationUUID), &parent)
	if err != nil || !found {
		return found, err
	}

	msg.CreatedAt = s.clock.Now()
	if err := put(tx.Bucket(bucketMessages), key(msg.ConversationUUID, msg.UUID), msg); err != nil {
		return false, err
	}
	if err := tx.Bucket(bucketMessageIndex).Put(key(msg.UUID), key(msg.ConversationUUID)); err != nil {
		return false, err
	}

	parent.UpdatedAt = msg.CreatedAt
	return true, put(conversations, key(msg.ConversationUUID), &parent)
}

// insertMaterials validates and writes materials. A returned error rolls the transaction back.
func (s *Store) insertMaterials(tx *bolt.Tx, materials []models.Material) error {
	messages := tx.Bucket(bucketMessages)
	b := tx.Bucket(bucketMaterials)
	owners := map[uuid.UUID]*models.Message{}

	for i := range materials {
		m := &materials[i]
		owner, ok := owners[m.MessageUUID]
		if !ok {
			conversationID, indexed, err := conversationOf(tx, m.MessageUUID)
			if err != nil {
				return err
			}
			owner = &models.Message{}
			found := false
			if indexed {
				if found, err = get(messages, key(conversationID, m.MessageUUID), owner); err != nil {
					return err
				}
			}
			if !found {
				return fmt.Errorf("owning message: %w", repo.ErrNotFound)
			}
			owners[m.MessageUUID] = owner
		}
		if err := repo.ValidateMaterial(*m, owner); err != nil {
			return err
		}

		m.UUID = uuid.New()
		m.CreatedAt = s.clock.Now()
		if err := put(b, key(m.ConversationUUID, m.MessageUUID, m.UUID), m); err != nil {
			return fmt.Errorf("create materials: %w", err)
		}
	}
	return nil
}
