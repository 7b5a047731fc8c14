package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"
	"material-studio-backend/internal/repo/docstore"
	"material-studio-backend/internal/repo/repotest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoltRepos(t *testing.T) *repo.Repositories {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.Repositories()
}

func TestDocumentStore(t *testing.T) {
	repotest.Run(t, newBoltRepos)
}

func TestDocumentStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "studio.db")

	store, err := docstore.Open(path)
	require.NoError(t, err)
	r := store.Repositories()

	c, err := r.Conversations.CreateConversation(ctx, "Demo")
	require.NoError(t, err)
	assistant, err := r.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: c.UUID, Role: models.RoleAssistant, Content: `{"title":"T"}`})
	require.NoError(t, err)
	m, err := models.NewMaterial(c.UUID, assistant.UUID, models.SellingPointsBody{Points: []string{"A", "B"}})
	require.NoError(t, err)
	_, err = r.Materials.CreateMaterial(ctx, m)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := docstore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	r = reopened.Repositories()

	got, err := r.Conversations.GetConversation(ctx, c.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Title)
	assert.True(t, got.UpdatedAt.Equal(assistant.CreatedAt))

	msg, err := r.Messages.GetMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"T"}`, msg.Content)

	materials, err := r.Materials.ListMaterialsByMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	body, err := materials[0].Body()
	require.NoError(t, err)
	assert.Equal(t, models.SellingPointsBody{Points: []string{"A", "B"}}, body)
}

func TestListMaterialsOfUnknownMessage(t *testing.T) {
	r := newBoltRepos(t)

	materials, err := r.Materials.ListMaterialsByMessage(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, materials)
}
