package handlers

import (
	"errors"
	"log"

	"material-studio-backend/internal/libraries"
	"material-studio-backend/internal/repo"
	"material-studio-backend/internal/studio/workflow"

	"github.com/gofiber/fiber/v2"
)

// StatusCode maps a domain error to the HTTP status reported to clients.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation),
		errors.Is(err, repo.ErrInvalid),
		errors.Is(err, libraries.ErrUnsupportedImage):
		return fiber.StatusBadRequest
	case errors.Is(err, repo.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, workflow.ErrUpstream):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// errorMessage is the text sent to clients. Unclassified failures are replaced by
// fallback so storage details stay in the logs.
func errorMessage(err error, fallback string) string {
	if StatusCode(err) != fiber.StatusInternalServerError || errors.Is(err, workflow.ErrConfiguration) {
		return err.Error()
	}
	return fallback
}

// RespondError writes the standard {"error": "..."} body for err.
func RespondError(c *fiber.Ctx, err error, fallback string) error {
	status := StatusCode(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": errorMessage(err, fallback),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}
