package llmHandlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"material-studio-backend/internal/models"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/api/httpbody"
)

type fakePredictor struct {
	req   *aiplatformpb.RawPredictRequest
	reply string
	err   error
}

func (f *fakePredictor) RawPredict(ctx context.Context, req *aiplatformpb.RawPredictRequest, opts ...gax.CallOption) (*httpbody.HttpBody, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &httpbody.HttpBody{ContentType: "application/json", Data: []byte(f.reply)}, nil
}

func TestVertexAnthropicClientChat(t *testing.T) {
	predictor := &fakePredictor{reply: `{"content":[{"type":"text","text":"{\"title\":"},{"type":"text","text":"\"T\"}"}],"stop_reason":"end_turn"}`}
	client, err := NewVertexAnthropicClient(predictor, "proj", "us-east5", "claude-sonnet-4", Sampling{Temperature: 0.7, MaxTokens: 500})
	require.NoError(t, err)

	out, err := client.Chat(context.Background(), "return json", []Message{
		{Role: models.RoleSystem, Text: "be brief"},
		{Role: models.RoleUser, Text: "red sneakers", Images: []string{"data:image/png;base64,AAEC", "https://example.com/a.jpg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"title\":\n\n\"T\"}", out)

	assert.Equal(t, "projects/proj/locations/us-east5/publishers/anthropic/models/claude-sonnet-4", predictor.req.GetEndpoint())

	var body struct {
		AnthropicVersion string  `json:"anthropic_version"`
		System           string  `json:"system"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float64 `json:"temperature"`
		Messages         []struct {
			Role    string `json:"role"`
			Content []struct {
				Type   string            `json:"type"`
				Text   string            `json:"text"`
				Source map[string]string `json:"source"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(predictor.req.GetHttpBody().GetData(), &body))
	assert.Equal(t, "vertex-2023-10-16", body.AnthropicVersion)
	assert.Equal(t, "return json\nbe brief", body.System)
	assert.Equal(t, 500, body.MaxTokens)
	assert.InDelta(t, 0.7, body.Temperature, 1e-9)

	require.Len(t, body.Messages, 1)
	blocks := body.Messages[0].Content
	require.Len(t, blocks, 3)
	assert.Equal(t, "base64", blocks[0].Source["type"])
	assert.Equal(t, "image/png", blocks[0].Source["media_type"])
	assert.Equal(t, "AAEC", blocks[0].Source["data"])
	assert.Equal(t, "url", blocks[1].Source["type"])
	assert.Equal(t, "https://example.com/a.jpg", blocks[1].Source["url"])
	assert.Equal(t, "text", blocks[2].Type)
	assert.Equal(t, "red sneakers", blocks[2].Text)
}

func TestVertexAnthropicClientErrors(t *testing.T) {
	_, err := NewVertexAnthropicClient(&fakePredictor{}, "", "us-east5", "claude", Sampling{})
	assert.Error(t, err)

	client, err := NewVertexAnthropicClient(&fakePredictor{reply: `{"content":[]}`}, "proj", "us-east5", "claude", Sampling{})
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), "", []Message{{Role: models.RoleUser, Text: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	client, err = NewVertexAnthropicClient(&fakePredictor{err: errors.New("quota exceeded")}, "proj", "us-east5", "claude", Sampling{})
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), "", []Message{{Role: models.RoleUser, Text: "hi"}})
	assert.ErrorContains(t, err, "quota exceeded")
}
