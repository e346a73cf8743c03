package serverutils

import (
	"errors"

	"zero-entropy-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var validationErr *ValidationError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr), errors.Is(err, rag.ErrInput):
		return fiber.StatusBadRequest
	case errors.Is(err, rag.ErrSessionNotFound), errors.Is(err, rag.ErrDocumentNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, rag.ErrSessionClosed), errors.Is(err, rag.ErrStateConflict):
		return fiber.StatusConflict
	case errors.Is(err, rag.ErrCapacityExceeded):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrCollaboratorUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}

		res := ErrorResponse(code, message)
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			res.Data = validationErr.Fields
		}
		return ctx.Status(code).JSON(res)
	}
}
