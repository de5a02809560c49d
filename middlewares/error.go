package middlewares

import (
	"errors"
	"log"

	"syncledger-backend/ledger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler centralizes error responses and keeps messages sanitized.
// Ledger sentinels map to the status table; everything unknown is a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// 1) Typed ledger errors
	if status, message, ok := ledgerStatus(err); ok {
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": message,
			"error":   err.Error(),
		})
	}

	// 2) Fiber errors (use their status code + message)
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"message": fe.Message,
			"error":   fe.Message,
		})
	}

	// 3) Validation errors (400 + per-field info)
	if ve, ok := err.(validator.ValidationErrors); ok {
		out := make(map[string]string, len(ve))
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "validation failed",
			"error":   "validation failed",
			"errors":  out,
		})
	}

	// 4) Unknown errors (500)
	log.Printf("internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "internal server error",
		"error":   "internal server error",
	})
}

func ledgerStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return fiber.StatusBadRequest, "validation failed", true
	case errors.Is(err, ledger.ErrOutOfRange):
		return fiber.StatusBadRequest, "index out of range", true
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.StatusNotFound, "approval not found", true
	case errors.Is(err, ledger.ErrDuplicateKey):
		return fiber.StatusConflict, "approval already recorded", true
	case errors.Is(err, ledger.ErrAlreadyInactive):
		return fiber.StatusConflict, "approval already inactive", true
	case errors.Is(err, ledger.ErrReadOnlyMode):
		return fiber.StatusServiceUnavailable, "ledger is read-only", true
	case errors.Is(err, ledger.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable, "ledger backend unavailable", true
	case errors.Is(err, ledger.ErrDisabled):
		return fiber.StatusServiceUnavailable, "ledger subsystem disabled", true
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.StatusInternalServerError, "ledger write could not be funded", true
	}
	return 0, "", false
}
