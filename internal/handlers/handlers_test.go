package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"material-studio-backend/internal/api"
	"material-studio-backend/internal/api/routes"
	v1 "material-studio-backend/internal/api/routes/v1"
	"material-studio-backend/internal/config"
	"material-studio-backend/internal/handlers"
	"material-studio-backend/internal/libraries"
	"material-studio-backend/internal/models"
	"material-studio-backend/internal/repo"
	"material-studio-backend/internal/repo/docstore"
	"material-studio-backend/internal/studio/materials"
	"material-studio-backend/internal/studio/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator stores a canned exchange, or fails with err.
type fakeGenerator struct {
	repos *repo.Repositories
	reply string
	err   error
	last  workflow.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req workflow.GenerateRequest) (*workflow.GenerateResult, error) {
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	user, err := g.repos.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: req.ConversationID, Role: models.RoleUser, Content: req.UserMessage})
	if err != nil {
		return nil, err
	}
	assistant, err := g.repos.Messages.CreateMessage(ctx, models.NewMessage{ConversationID: req.ConversationID, Role: models.RoleAssistant, Content: g.reply})
	if err != nil {
		return nil, err
	}
	records, err := materials.Build(req.ConversationID, assistant.UUID, materials.Derive(g.reply))
	if err != nil {
		return nil, err
	}
	saved, err := g.repos.Materials.CreateMaterials(ctx, records)
	if err != nil {
		return nil, err
	}
	return &workflow.GenerateResult{UserMessageID: user.UUID, MessageID: assistant.UUID, Model: "stub", RawContent: g.reply, Materials: saved}, nil
}

func (g *fakeGenerator) Rederive(ctx context.Context, messageID uuid.UUID) ([]models.Material, error) {
	msg, err := g.repos.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	records, err := materials.Build(msg.ConversationUUID, msg.UUID, materials.Derive(msg.Content))
	if err != nil {
		return nil, err
	}
	return g.repos.Materials.ReplaceMaterialsForMessage(ctx, msg.UUID, records)
}

func (g *fakeGenerator) Models() []workflow.ModelInfo {
	return []workflow.ModelInfo{{Name: "stub", Provider: config.ProviderOpenAICompatible, Vision: true, Ready: true, Default: true}}
}

type testServer struct {
	app       *fiber.App
	repos     *repo.Repositories
	generator *fakeGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repos := store.Repositories()
	gen := &fakeGenerator{
		repos: repos,
		reply: `{"title":"Bold Red Sneakers","sellingPoints":["Lightweight","Durable"],"atmosphere":"Street Ready"}`,
	}

	app := api.NewServer(config.Default().Server)
	routes.Register(app, v1.Dependencies{
		Repos:     repos,
		Generator: gen,
		Uploader:  libraries.InlineUploader{},
		Hub:       libraries.NewHub(),
	})
	return &testServer{app: app, repos: repos, generator: gen}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]json.RawMessage) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (s *testServer) createConversation(t *testing.T, title string) models.Conversation {
	t.Helper()
	status, body := s.do(t, fiber.MethodPost, "/api/v1/conversations", map[string]string{"title": title})
	require.Equal(t, fiber.StatusCreated, status)
	return decode[models.Conversation](t, body["conversation"])
}

func TestConversationCRUD(t *testing.T) {
	s := newTestServer(t)

	demo := s.createConversation(t, "Demo")
	other := s.createConversation(t, "Other")
	assert.Equal(t, "Demo", demo.Title)
	assert.NotEqual(t, demo.UUID, other.UUID)

	status, body := s.do(t, fiber.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, fiber.StatusOK, status)
	list := decode[[]models.Conversation](t, body["conversations"])
	require.Len(t, list, 2)
	assert.Equal(t, other.UUID, list[0].UUID)

	status, body = s.do(t, fiber.MethodPatch, "/api/v1/conversations/"+demo.UUID.String(), map[string]string{"title": "Renamed"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Renamed", decode[models.Conversation](t, body["conversation"]).Title)

	status, body = s.do(t, fiber.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, fiber.StatusOK, status)
	list = decode[[]models.Conversation](t, body["conversations"])
	assert.Equal(t, demo.UUID, list[0].UUID)

	status, _ = s.do(t, fiber.MethodDelete, "/api/v1/conversations/"+demo.UUID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, fiber.MethodGet, "/api/v1/conversations/"+demo.UUID.String(), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, string(body["error"]), "not found")
}

func TestConversationRequestErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{fiber.MethodPost, "/api/v1/conversations", map[string]string{"title": "  "}, fiber.StatusBadRequest},
		{fiber.MethodGet, "/api/v1/conversations/not-a-uuid", nil, fiber.StatusBadRequest},
		{fiber.MethodGet, "/api/v1/conversations/" + uuid.NewString(), nil, fiber.StatusNotFound},
		{fiber.MethodPatch, "/api/v1/conversations/" + uuid.NewString(), map[string]string{"title": "x"}, fiber.StatusNotFound},
		{fiber.MethodDelete, "/api/v1/conversations/" + uuid.NewString(), nil, fiber.StatusNotFound},
		{fiber.MethodGet, "/api/v1/conversations/" + uuid.NewString() + "/messages", nil, fiber.StatusNotFound},
		{fiber.MethodGet, "/api/v1/messages/" + uuid.NewString() + "/materials", nil, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			status, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGenerateAndReadBack(t *testing.T) {
	s := newTestServer(t)
	conv := s.createConversation(t, "Demo")

	status, body := s.do(t, fiber.MethodPost, "/api/v1/generate", map[string]any{
		"conversationId": conv.UUID,
		"message":        "red sneakers",
		"model":          "stub",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "red sneakers", s.generator.last.UserMessage)
	assert.Equal(t, conv.UUID, s.generator.last.ConversationID)
	messageID := decode[uuid.UUID](t, body["messageId"])
	require.Len(t, decode[[]models.Material](t, body["materials"]), 3)

	status, body = s.do(t, fiber.MethodGet, "/api/v1/conversations/"+conv.UUID.String()+"/messages", nil)
	require.Equal(t, fiber.StatusOK, status)
	msgs := decode[[]handlers.MessageWithMaterials](t, body["messages"])
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Empty(t, msgs[0].Materials)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Materials, 3)
	assert.Equal(t, models.MaterialTitle, msgs[1].Materials[0].Type)
	assert.Equal(t, models.MaterialAtmosphere, msgs[1].Materials[2].Type)

	status, body = s.do(t, fiber.MethodGet, "/api/v1/conversations/"+conv.UUID.String()+"/materials", nil)
	require.Equal(t, fiber.StatusOK, status)
	byConv := decode[[]models.Material](t, body["materials"])
	require.Len(t, byConv, 3)
	assert.Equal(t, models.MaterialAtmosphere, byConv[0].Type)

	status, body = s.do(t, fiber.MethodGet, "/api/v1/messages/"+messageID.String()+"/materials", nil)
	require.Equal(t, fiber.StatusOK, status)
	byMsg := decode[[]models.Material](t, body["materials"])
	require.Len(t, byMsg, 3)
	assert.Equal(t, "Lightweight · Durable", byMsg[1].Content)

	status, body = s.do(t, fiber.MethodPost, "/api/v1/messages/"+messageID.String()+"/rederive", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]models.Material](t, body["materials"]), 3)
}

func TestGenerateErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		msg  string
	}{
		{"validation", fmt.Errorf("%w: message cannot be empty", workflow.ErrValidation), fiber.StatusBadRequest, "message cannot be empty"},
		{"not found", fmt.Errorf("conversation x: %w", repo.ErrNotFound), fiber.StatusNotFound, "not found"},
		{"configuration", fmt.Errorf("%w: model gemini: api key is not configured", workflow.ErrConfiguration), fiber.StatusInternalServerError, "api key is not configured"},
		{"upstream", fmt.Errorf("%w: timeout", workflow.ErrUpstream), fiber.StatusBadGateway, "timeout"},
		{"storage", errors.New("disk on fire"), fiber.StatusInternalServerError, "Failed to generate materials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.generator.err = tt.err

			status, body := s.do(t, fiber.MethodPost, "/api/v1/generate", map[string]any{
				"conversationId": uuid.New(),
				"message":        "red sneakers",
			})
			assert.Equal(t, tt.want, status)
			assert.Contains(t, decode[string](t, body["error"]), tt.msg)
		})
	}
}

func TestGenerateRejectsBadBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/generate", bytes.NewBufferString(`{"conversationId": 12`))
	req.Header.Set("Content-Type", "application/json")

	status, body := s.send(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
}

func TestModelsAndHealth(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/api/v1/models", nil)
	require.Equal(t, fiber.StatusOK, status)
	list := decode[[]workflow.ModelInfo](t, body["models"])
	require.Len(t, list, 1)
	assert.Equal(t, "stub", list[0].Name)

	status, body = s.do(t, fiber.MethodGet, "/api/v1/health", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", decode[string](t, body["status"]))
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, fiber.MethodGet, "/ws", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	status, body := s.send(t, uploadRequest(t, "shoe.png", png))
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, libraries.EncodeDataURI("image/png", png), decode[string](t, body["url"]))

	status, body = s.send(t, uploadRequest(t, "notes.txt", []byte("just some text")))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, decode[string](t, body["error"]), "unsupported image")

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/upload", nil)
	status, _ = s.send(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, fiber.StatusBadRequest, handlers.StatusCode(fmt.Errorf("x: %w", repo.ErrInvalid)))
	assert.Equal(t, fiber.StatusBadRequest, handlers.StatusCode(fmt.Errorf("x: %w", libraries.ErrUnsupportedImage)))
	assert.Equal(t, fiber.StatusNotFound, handlers.StatusCode(fmt.Errorf("x: %w", repo.ErrNotFound)))
	assert.Equal(t, fiber.StatusBadGateway, handlers.StatusCode(fmt.Errorf("%w: %w", workflow.ErrUpstream, errors.New("boom"))))
	assert.Equal(t, fiber.StatusInternalServerError, handlers.StatusCode(workflow.ErrConfiguration))
}
