package repo

import (
	"context"
	"errors"
	"fmt"

	"material-studio-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MaterialRepo struct {
	db    *gorm.DB
	clock *Clock
}

func NewMaterialRepository(db *gorm.DB) MaterialRepoInterface {
	return &MaterialRepo{db: db, clock: NewClock()}
}

func (r *MaterialRepo) CreateMaterial(ctx context.Context, material models.Material) (*models.Material, error) {
	created, err := r.CreateMaterials(ctx, []models.Material{material})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateMaterials inserts materials in order. Every material is checked against its
// owning message before anything is written.
func (r *MaterialRepo) CreateMaterials(ctx context.Context, materials []models.Material) ([]models.Material, error) {
	if len(materials) == 0 {
		return []models.Material{}, nil
	}

	out := make([]models.Material, len(materials))
	copy(out, materials)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertMaterials(tx, r.clock, out)
	})
	if err != nil {
		return nil, wrapMaterialErr(err)
	}
	return out, nil
}

// ReplaceMaterialsForMessage swaps the materials of one message for a new set.
func (r *MaterialRepo) ReplaceMaterialsForMessage(ctx context.Context, messageID uuid.UUID, materials []models.Material) ([]models.Material, error) {
	out := make([]models.Material, len(materials))
	copy(out, materials)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range out {
			if out[i].MessageUUID != messageID {
				return fmt.Errorf("%w: material for message %s in replacement of %s", ErrInvalid, out[i].MessageUUID, messageID)
			}
		}
		if err := tx.Where("message_uuid = ?", messageID).Delete(&models.Material{}).Error; err != nil {
			return err
		}
		return insertMaterials(tx, r.clock, out)
	})
	if err != nil {
		return nil, wrapMaterialErr(err)
	}
	return out, nil
}

// insertMaterials validates materials against their owning messages as seen by tx,
// then stamps and inserts them.
func insertMaterials(tx *gorm.DB, clock *Clock, materials []models.Material) error {
	owners := map[uuid.UUID]*models.Message{}
	for i := range materials {
		m := &materials[i]
		owner, ok := owners[m.MessageUUID]
		if !ok {
			owner = &models.Message{}
			if err := tx.Where("uuid = ?", m.MessageUUID).First(owner).Error; err != nil {
				return err
			}
			owners[m.MessageUUID] = owner
		}
		if err := ValidateMaterial(*m, owner); err != nil {
			return err
		}
		m.UUID = uuid.New()
		m.CreatedAt = clock.Now()
	}
	if len(materials) == 0 {
		return nil
	}
	return tx.Create(&materials).Error
}

// ListMaterialsByConversation returns the materials of a conversation, newest first
func (r *MaterialRepo) ListMaterialsByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Material, error) {
	materials := []models.Material{}
	err := r.db.WithContext(ctx).
		Where("conversation_uuid = ?", conversationID).
		Order("created_at DESC, uuid DESC").
		Find(&materials).Error
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return materials, nil
}

// ListMaterialsByMessage returns the materials of one message in creation order
func (r *MaterialRepo) ListMaterialsByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Material, error) {
	materials := []models.Material{}
	err := r.db.WithContext(ctx).
		Where("message_uuid = ?", messageID).
		Order("created_at ASC, uuid ASC").
		Find(&materials).Error
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return materials, nil
}

func wrapMaterialErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("owning message: %w", ErrNotFound)
	}
	if errors.Is(err, ErrInvalid) {
		return err
	}
	return fmt.Errorf("create materials: %w", err)
}
