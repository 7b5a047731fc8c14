package handlers

import (
	"io"

	"material-studio-backend/internal/libraries"

	"github.com/gofiber/fiber/v2"
)

type UploadHandler struct {
	uploader libraries.Uploader
}

func NewUploadHandler(uploader libraries.Uploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

// UploadImage stores the multipart "file" field and returns the address to pass in a generate request.
func (h *UploadHandler) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file provided")
	}
	if file.Size > libraries.MaxImageBytes {
		return badRequest(c, "File is too large")
	}

	f, err := file.Open()
	if err != nil {
		return RespondError(c, err, "Failed to read file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, libraries.MaxImageBytes+1))
	if err != nil {
		return RespondError(c, err, "Failed to read file")
	}

	url, err := h.uploader.Upload(c.UserContext(), file.Filename, data)
	if err != nil {
		return RespondError(c, err, "Failed to upload image")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url": url,
	})
}
