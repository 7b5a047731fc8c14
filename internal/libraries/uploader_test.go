package libraries

import (
	"context"
	"strings"
	"testing"

	"material-studio-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDataURIRoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/png", pngHeader)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	mimeType, data, ok := ParseDataURI(uri)
	require.True(t, ok)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, pngHeader, data)
}

func TestParseDataURIRejects(t *testing.T) {
	for _, uri := range []string{
		"https://example.com/a.png",
		"data:image/png,plain",
		"data:image/png;base64",
		"data:image/png;base64,@@@",
	} {
		_, _, ok := ParseDataURI(uri)
		assert.False(t, ok, uri)
	}
}

func TestGuessImageMIME(t *testing.T) {
	assert.Equal(t, "image/jpeg", GuessImageMIME("https://cdn.example.com/SHOE.JPG?w=200"))
	assert.Equal(t, "image/webp", GuessImageMIME("gs://bucket/a.webp"))
	assert.Equal(t, "application/octet-stream", GuessImageMIME("readme"))
}

func TestDetectImageType(t *testing.T) {
	mimeType, err := DetectImageType("whatever.bin", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	// sniffing fails on these bytes, the extension decides
	mimeType, err = DetectImageType("shoe.webp", []byte("not really an image"))
	require.NoError(t, err)
	assert.Equal(t, "image/webp", mimeType)

	_, err = DetectImageType("notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = DetectImageType("empty.png", nil)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = DetectImageType("huge.png", make([]byte, MaxImageBytes+1))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestNewUploaderFallsBackToInline(t *testing.T) {
	up := NewUploader(nil)
	require.IsType(t, InlineUploader{}, up)

	url, err := up.Upload(context.Background(), "shoe.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, EncodeDataURI("image/png", pngHeader), url)
}

func TestNewClientsDisabled(t *testing.T) {
	clients, err := NewClients(context.Background(), config.GCPConfig{})
	require.NoError(t, err)
	assert.Nil(t, clients)
	clients.Close()
}
