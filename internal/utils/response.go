package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

const internalMessage = "internal server error"

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"status": "ok", "data": payload})
}

// JSONMessage writes the error envelope with a fixed message.
func JSONMessage(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
}

// JSONError writes err under the status StatusOf picks. Server faults are
// reported without detail.
func JSONError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	if status >= fiber.StatusInternalServerError {
		return JSONMessage(c, status, internalMessage)
	}
	return JSONMessage(c, status, err.Error())
}

// StatusOf maps domain and fiber errors to HTTP status codes. Anything else
// is a 500.
func StatusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case domain.IsValidation(err):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}
