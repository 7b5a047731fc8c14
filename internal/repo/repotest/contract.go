// Package repotest holds the behaviour every repository backend must share.
package repotest

import (
	"context"
	"sync"
	"testing"

	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty set of repositories for one subtest.
type Factory func(t *testing.T) *repo.Repositories

// Run executes the repository contract against the backend produced by newRepos.
func Run(t *testing.T, newRepos Factory) {
	t.Run("CreateConversation", func(t *testing.T) { testCreateConversation(t, newRepos(t)) })
	t.Run("ListConversationsByActivity", func(t *testing.T) { testListConversations(t, newRepos(t)) })
	t.Run("UpdateConversation", func(t *testing.T) { testUpdateConversation(t, newRepos(t)) })
	t.Run("MessagesOrderedAndBumpParent", func(t *testing.T) { testMessages(t, newRepos(t)) })
	t.Run("MessageNeedsConversation", func(t *testing.T) { testMessageNeedsConversation(t, newRepos(t)) })
	t.Run("LatestMessages", func(t *testing.T) { testLatestMessages(t, newRepos(t)) })
	t.Run("MaterialOwnership", func(t *testing.T) { testMaterialOwnership(t, newRepos(t)) })
	t.Run("MaterialOrdering", func(t *testing.T) { testMaterialOrdering(t, newRepos(t)) })
	t.Run("AssistantMessageWithMaterials", func(t *testing.T) { testAssistantMessageWithMaterials(t, newRepos(t)) })
	t.Run("AssistantMessageRollsBack", func(t *testing.T) { testAssistantMessageRollsBack(t, newRepos(t)) })
	t.Run("ReplaceMaterials", func(t *testing.T) { testReplaceMaterials(t, newRepos(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newRepos(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, newRepos(t)) })
}

func testCreateConversation(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	a, err := r.Conversations.CreateConversation(ctx, "Demo")
	require.NoError(t, err)
	b, err := r.Conversations.CreateConversation(ctx, "Demo")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, a.UUID)
	assert.NotEqual(t, a.UUID, b.UUID)
	assert.True(t, a.CreatedAt.Equal(a.UpdatedAt))
	assert.Equal(t, "Demo", a.Title)

	got, err := r.Conversations.GetConversation(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, a.UUID, got.UUID)
	assert.Equal(t, "Demo", got.Title)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))

	_, err = r.Conversations.GetConversation(ctx, uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testListConversations(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	first, err := r.Conversations.CreateConversation(ctx, "first")
	require.NoError(t, err)
	second, err := r.Conversations.CreateConversation(ctx, "second")
	require.NoError(t, err)

	list, err := r.Conversations.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.UUID, list[0].UUID)

	// a new message makes the older conversation the most recent one
	_, err = r.Messages.CreateMessage(ctx, models.NewMessage{
		ConversationID: first.UUID,
		Role:           models.RoleUser,
		Content:        "hello",
	})
	require.NoError(t, err)

	list, err = r.Conversations.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.UUID, list[0].UUID)
	assert.Equal(t, second.UUID, list[1].UUID)
}

func testUpdateConversation(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	c, err := r.Conversations.CreateConversation(ctx, "old")
	require.NoError(t, err)

	title := "new"
	updated, err := r.Conversations.UpdateConversation(ctx, c.UUID, models.ConversationUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(c.CreatedAt))

	// an empty update still refreshes updated_at
	again, err := r.Conversations.UpdateConversation(ctx, c.UUID, models.ConversationUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "new", again.Title)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))

	_, err = r.Conversations.UpdateConversation(ctx, uuid.New(), models.ConversationUpdate{Title: &title})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testMessages(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	c, err := r.Conversations.CreateConversation(ctx, "Demo")
	require.NoError(t, err)

	var created []*models.Message
	for i, role := range []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant} {
		msg, err := r.Messages.CreateMessage(ctx, models.NewMessage{
			ConversationID: c.UUID,
			Role:           role,
			Content:        string(rune('a' + i)),
			Images:         []string{"https://cdn.example.com/shoe.png"},
		})
		require.NoError(t, err)
		created = append(created, msg)

		parent, err := r.Conversations.GetConversation(ctx, c.UUID)
		require.NoError(t, err)
		assert.False(t, parent.UpdatedAt.Before(msg.CreatedAt), "parent updated_at must reach the message timestamp")
	}

	list, err := r.Messages.ListMessages(ctx, c.UUID)
	require.NoError(t, err)
	require.Len(t, list, len(created))
	for i := range list {
		assert.Equal(t, created[i].UUID, list[i].UUID)
		assert.Equal(t, []string{"https://cdn.example.com/shoe.png"}, []string(list[i].Images))
		if i > 0 {
			assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
		}
	}

	got, err := r.Messages.GetMessage(ctx, created[1].UUID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, got.Role)
	assert.Equal(t, "b", got.Content)

	has, err := r.Messages.HasAssistantMessage(ctx, c.UUID)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = r.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: c.UUID, Role: "robot", Content: "x"})
	assert.ErrorIs(t, err, repo.ErrInvalid)
}

func testMessageNeedsConversation(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	_, err := r.Messages.CreateMessage(ctx, models.NewMessage{
		ConversationID: uuid.New(),
		Role:           models.RoleUser,
		Content:        "orphan",
	})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = r.Messages.GetMessage(ctx, uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testLatestMessages(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	c, err := r.Conversations.CreateConversation(ctx, "history")
	require.NoError(t, err)

	has, err := r.Messages.HasAssistantMessage(ctx, c.UUID)
	require.NoError(t, err)
	assert.False(t, has)

	for _, content := range []string{"1", "2", "3", "4", "5"} {
		_, err := r.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: c.UUID, Role: models.RoleUser, Content: content})
		require.NoError(t, err)
	}

	latest, err := r.Messages.GetLatestMessages(ctx, c.UUID, 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, "3", latest[0].Content)
	assert.Equal(t, "4", latest[1].Content)
	assert.Equal(t, "5", latest[2].Content)
}

func seedAssistant(t *testing.T, r *repo.Repositories) (*models.Conversation, *models.Message, *models.Message) {
	t.Helper()
	ctx := context.Background()

	c, err := r.Conversations.CreateConversation(ctx, "materials")
	require.NoError(t, err)
	user, err := r.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: c.UUID, Role: models.RoleUser, Content: "red sneakers"})
	require.NoError(t, err)
	assistant, err := r.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: c.UUID, Role: models.RoleAssistant, Content: `{"title":"T"}`})
	require.NoError(t, err)
	return c, user, assistant
}

func mustMaterial(t *testing.T, conversationID, messageID uuid.UUID, body models.MaterialBody) models.Material {
	t.Helper()
	m, err := models.NewMaterial(conversationID, messageID, body)
	require.NoError(t, err)
	return m
}

func testMaterialOwnership(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()
	c, user, assistant := seedAssistant(t, r)

	created, err := r.Materials.CreateMaterial(ctx, mustMaterial(t, c.UUID, assistant.UUID, models.TitleBody{Title: "T"}))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.UUID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = r.Materials.CreateMaterial(ctx, mustMaterial(t, c.UUID, user.UUID, models.TitleBody{Title: "T"}))
	assert.ErrorIs(t, err, repo.ErrInvalid, "user messages own no materials")

	_, err = r.Materials.CreateMaterial(ctx, mustMaterial(t, uuid.New(), assistant.UUID, models.TitleBody{Title: "T"}))
	assert.ErrorIs(t, err, repo.ErrInvalid, "conversation must match the owning message")

	_, err = r.Materials.CreateMaterial(ctx, mustMaterial(t, c.UUID, uuid.New(), models.TitleBody{Title: "T"}))
	assert.ErrorIs(t, err, repo.ErrNotFound)

	bad := mustMaterial(t, c.UUID, assistant.UUID, models.TitleBody{Title: "T"})
	bad.Type = "poster"
	_, err = r.Materials.CreateMaterial(ctx, bad)
	assert.ErrorIs(t, err, repo.ErrInvalid)

	// a rejected batch writes nothing
	_, err = r.Materials.CreateMaterials(ctx, []models.Material{
		mustMaterial(t, c.UUID, assistant.UUID, models.AtmosphereBody{Line: "X"}),
		mustMaterial(t, c.UUID, user.UUID, models.AtmosphereBody{Line: "Y"}),
	})
	assert.ErrorIs(t, err, repo.ErrInvalid)

	list, err := r.Materials.ListMaterialsByMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testMaterialOrdering(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()
	c, _, assistant := seedAssistant(t, r)

	created, err := r.Materials.CreateMaterials(ctx, []models.Material{
		mustMaterial(t, c.UUID, assistant.UUID, models.TitleBody{Title: "T"}),
		mustMaterial(t, c.UUID, assistant.UUID, models.SellingPointsBody{Points: []string{"A", "B"}}),
		mustMaterial(t, c.UUID, assistant.UUID, models.AtmosphereBody{Line: "X"}),
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	byMessage, err := r.Materials.ListMaterialsByMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	require.Len(t, byMessage, 3)
	assert.Equal(t, models.MaterialTitle, byMessage[0].Type)
	assert.Equal(t, models.MaterialSellingPoint, byMessage[1].Type)
	assert.Equal(t, "A · B", byMessage[1].Content)
	assert.JSONEq(t, `{"points":["A","B"]}`, string(byMessage[1].Metadata))
	assert.Equal(t, models.MaterialAtmosphere, byMessage[2].Type)

	body, err := byMessage[1].Body()
	require.NoError(t, err)
	assert.Equal(t, models.SellingPointsBody{Points: []string{"A", "B"}}, body)

	byConversation, err := r.Materials.ListMaterialsByConversation(ctx, c.UUID)
	require.NoError(t, err)
	require.Len(t, byConversation, 3)
	assert.Equal(t, models.MaterialAtmosphere, byConversation[0].Type)
	assert.Equal(t, models.MaterialTitle, byConversation[2].Type)
}

func testAssistantMessageWithMaterials(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()
	c, err := r.Conversations.CreateConversation(ctx, "atomic")
	require.NoError(t, err)

	msg, saved, err := r.Messages.CreateAssistantMessage(ctx, models.NewMessage{
		ConversationID: c.UUID,
		Role:           models.RoleUser,
		Content:        `{"title":"T","atmosphere":"X"}`,
	}, []models.Material{
		mustMaterial(t, c.UUID, uuid.Nil, models.TitleBody{Title: "T"}),
		mustMaterial(t, c.UUID, uuid.Nil, models.AtmosphereBody{Line: "X"}),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	require.Len(t, saved, 2)
	for _, m := range saved {
		assert.Equal(t, msg.UUID, m.MessageUUID)
		assert.Equal(t, c.UUID, m.ConversationUUID)
		assert.NotEqual(t, uuid.Nil, m.UUID)
		assert.True(t, m.CreatedAt.After(msg.CreatedAt))
	}

	list, err := r.Materials.ListMaterialsByMessage(ctx, msg.UUID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "T", list[0].Content)
	assert.Equal(t, "X", list[1].Content)

	got, err := r.Conversations.GetConversation(ctx, c.UUID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(msg.CreatedAt))

	_, _, err = r.Messages.CreateAssistantMessage(ctx, models.NewMessage{ConversationID: uuid.New(), Content: "x"}, nil)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testAssistantMessageRollsBack(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()
	c, err := r.Conversations.CreateConversation(ctx, "atomic")
	require.NoError(t, err)

	poster := mustMaterial(t, c.UUID, uuid.Nil, models.TitleBody{Title: "T"})
	poster.Type = "poster"
	_, _, err = r.Messages.CreateAssistantMessage(ctx, models.NewMessage{
		ConversationID: c.UUID,
		Content:        `{"title":"T"}`,
	}, []models.Material{
		mustMaterial(t, c.UUID, uuid.Nil, models.TitleBody{Title: "T"}),
		poster,
	})
	assert.ErrorIs(t, err, repo.ErrInvalid)

	messages, err := r.Messages.ListMessages(ctx, c.UUID)
	require.NoError(t, err)
	assert.Empty(t, messages)
	materials, err := r.Materials.ListMaterialsByConversation(ctx, c.UUID)
	require.NoError(t, err)
	assert.Empty(t, materials)
	refinement, err := r.Messages.HasAssistantMessage(ctx, c.UUID)
	require.NoError(t, err)
	assert.False(t, refinement)
}

func testReplaceMaterials(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()
	c, _, assistant := seedAssistant(t, r)

	_, err := r.Materials.CreateMaterials(ctx, []models.Material{
		mustMaterial(t, c.UUID, assistant.UUID, models.DegradedBody{Raw: "oops"}),
	})
	require.NoError(t, err)

	replaced, err := r.Materials.ReplaceMaterialsForMessage(ctx, assistant.UUID, []models.Material{
		mustMaterial(t, c.UUID, assistant.UUID, models.TitleBody{Title: "T"}),
		mustMaterial(t, c.UUID, assistant.UUID, models.VideoScriptBody{Script: "S"}),
	})
	require.NoError(t, err)
	require.Len(t, replaced, 2)

	list, err := r.Materials.ListMaterialsByMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "T", list[0].Content)
	assert.Equal(t, models.MaterialVideoScript, list[1].Type)

	_, err = r.Materials.ReplaceMaterialsForMessage(ctx, assistant.UUID, []models.Material{
		mustMaterial(t, c.UUID, uuid.New(), models.TitleBody{Title: "T"}),
	})
	assert.ErrorIs(t, err, repo.ErrInvalid)

	list, err = r.Materials.ListMaterialsByMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	assert.Len(t, list, 2, "failed replacement keeps the previous set")
}

func testDeleteCascades(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()
	c, _, assistant := seedAssistant(t, r)
	other, _, otherAssistant := seedAssistant(t, r)

	_, err := r.Materials.CreateMaterials(ctx, []models.Material{
		mustMaterial(t, c.UUID, assistant.UUID, models.TitleBody{Title: "T"}),
	})
	require.NoError(t, err)
	_, err = r.Materials.CreateMaterials(ctx, []models.Material{
		mustMaterial(t, other.UUID, otherAssistant.UUID, models.TitleBody{Title: "kept"}),
	})
	require.NoError(t, err)

	require.NoError(t, r.Conversations.DeleteConversation(ctx, c.UUID))

	_, err = r.Conversations.GetConversation(ctx, c.UUID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	messages, err := r.Messages.ListMessages(ctx, c.UUID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	materials, err := r.Materials.ListMaterialsByConversation(ctx, c.UUID)
	require.NoError(t, err)
	assert.Empty(t, materials)

	byMessage, err := r.Materials.ListMaterialsByMessage(ctx, assistant.UUID)
	require.NoError(t, err)
	assert.Empty(t, byMessage)

	kept, err := r.Materials.ListMaterialsByConversation(ctx, other.UUID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.ErrorIs(t, r.Conversations.DeleteConversation(ctx, c.UUID), repo.ErrNotFound)
}

func testConcurrentWriters(t *testing.T, r *repo.Repositories) {
	ctx := context.Background()

	c, err := r.Conversations.CreateConversation(ctx, "busy")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: c.UUID, Role: models.RoleUser, Content: "hi"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := r.Messages.ListMessages(ctx, c.UUID)
	require.NoError(t, err)
	assert.Len(t, list, writers)
}
