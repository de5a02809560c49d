package controllers

import (
	"os"
	"strings"

	"syncledger-backend/middlewares"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// Login authenticates the single env-configured service account and issues
// the bearer token the mutating approval routes require. The secret is
// stored as a bcrypt hash (SERVICE_ACCOUNT_SECRET_HASH), never plaintext.
func Login(c *fiber.Ctx) error {
	var data map[string]string
	if err := c.BodyParser(&data); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	accountID := strings.TrimSpace(os.Getenv("SERVICE_ACCOUNT_ID"))
	secretHash := strings.TrimSpace(os.Getenv("SERVICE_ACCOUNT_SECRET_HASH"))
	if accountID == "" || secretHash == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "login not configured",
			"error":   "set SERVICE_ACCOUNT_ID and SERVICE_ACCOUNT_SECRET_HASH",
		})
	}

	if data["account_id"] != accountID {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "invalid credentials",
			"error":   "invalid credentials",
		})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(data["secret"])); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "invalid credentials",
			"error":   "invalid credentials",
		})
	}

	token, err := middlewares.GenerateJWT(accountID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "could not issue token",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token":      token,
			"account_id": accountID,
		},
	})
}
