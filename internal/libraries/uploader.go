package libraries

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// MaxImageBytes caps a single uploaded product image.
const MaxImageBytes = 10 << 20

var ErrUnsupportedImage = errors.New("unsupported image")

// Uploader stores a product image and returns an address a model can read it from.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// NewUploader returns a GCS uploader when a bucket is configured, otherwise an
// uploader that embeds images as data URIs.
func NewUploader(clients *Clients) Uploader {
	if clients != nil && clients.GCS != nil && clients.Bucket != "" {
		return &GCSUploader{client: clients.GCS, bucket: clients.Bucket}
	}
	return InlineUploader{}
}

// DetectImageType sniffs data and falls back to the file extension.
func DetectImageType(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedImage)
	}
	if len(data) > MaxImageBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrUnsupportedImage, MaxImageBytes)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = GuessImageMIME(filename)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
	return mimeType, nil
}

type InlineUploader struct{}

func (InlineUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	mimeType, err := DetectImageType(filename, data)
	if err != nil {
		return "", err
	}
	return EncodeDataURI(mimeType, data), nil
}

type GCSUploader struct {
	client *storage.Client
	bucket string
}

func (u *GCSUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	mimeType, err := DetectImageType(filename, data)
	if err != nil {
		return "", err
	}

	object := path.Join("uploads", uuid.NewString()+path.Ext(filename))
	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", object, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, object), nil
}
