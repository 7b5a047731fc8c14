package repo_test

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"material-studio-backend/internal/config"
	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"
	"material-studio-backend/internal/repo/repotest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.ConnectDB(config.StorageConfig{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "studio.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateAllModels(db, true))
	t.Cleanup(func() { _ = config.CloseDB(db) })
	return db
}

func newSQLiteRepos(t *testing.T) *repo.Repositories {
	t.Helper()
	return repo.NewGormRepositories(openSQLite(t))
}

func TestGormRepositories(t *testing.T) {
	repotest.Run(t, newSQLiteRepos)
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	clock := repo.NewClock()
	clock.SetNowFunc(func() time.Time { return fixed })

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.Equal(t, fixed.Truncate(time.Microsecond), first)
	assert.Equal(t, time.Microsecond, second.Sub(first))
	assert.Equal(t, time.Microsecond, third.Sub(second))
	assert.Equal(t, time.UTC, first.Location())
}

func TestLatestLimit(t *testing.T) {
	assert.Equal(t, 20, repo.LatestLimit(0))
	assert.Equal(t, 20, repo.LatestLimit(-3))
	assert.Equal(t, 7, repo.LatestLimit(7))
	assert.Equal(t, 100, repo.LatestLimit(1000))
}

func TestChronologicalLess(t *testing.T) {
	early := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	late := early.Add(time.Microsecond)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	assert.True(t, repo.ChronologicalLess(early, high, late, low))
	assert.False(t, repo.ChronologicalLess(late, low, early, high))
	assert.True(t, repo.ChronologicalLess(early, low, early, high))
	assert.False(t, repo.ChronologicalLess(early, high, early, low))
	assert.False(t, repo.ChronologicalLess(early, low, early, low))
}

func TestEqualTimestampsOrderById(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	r := repo.NewGormRepositories(db)

	c, err := r.Conversations.CreateConversation(ctx, "ties")
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Microsecond)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, db.Create(&models.Message{
			UUID:             id,
			ConversationUUID: c.UUID,
			Role:             models.RoleAssistant,
			Content:          id.String(),
			CreatedAt:        at,
		}).Error)
	}
	materialIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range materialIDs {
		require.NoError(t, db.Create(&models.Material{
			UUID:             id,
			ConversationUUID: c.UUID,
			MessageUUID:      ids[0],
			Type:             models.MaterialTitle,
			Content:          id.String(),
			CreatedAt:        at,
		}).Error)
	}
	ascending := func(in []uuid.UUID) []uuid.UUID {
		out := append([]uuid.UUID(nil), in...)
		sort.Slice(out, func(i, j int) bool { return repo.ChronologicalLess(at, out[i], at, out[j]) })
		return out
	}

	messages, err := r.Messages.ListMessages(ctx, c.UUID)
	require.NoError(t, err)
	latest, err := r.Messages.GetLatestMessages(ctx, c.UUID, 2)
	require.NoError(t, err)
	wantMessages := ascending(ids)
	require.Len(t, messages, 3)
	require.Len(t, latest, 2)
	for i, m := range messages {
		assert.Equal(t, wantMessages[i], m.UUID)
	}
	assert.Equal(t, wantMessages[1], latest[0].UUID)
	assert.Equal(t, wantMessages[2], latest[1].UUID)

	byMessage, err := r.Materials.ListMaterialsByMessage(ctx, ids[0])
	require.NoError(t, err)
	byConversation, err := r.Materials.ListMaterialsByConversation(ctx, c.UUID)
	require.NoError(t, err)
	wantMaterials := ascending(materialIDs)
	require.Len(t, byMessage, 3)
	require.Len(t, byConversation, 3)
	for i := range wantMaterials {
		assert.Equal(t, wantMaterials[i], byMessage[i].UUID)
		assert.Equal(t, wantMaterials[len(wantMaterials)-1-i], byConversation[i].UUID)
	}
}
