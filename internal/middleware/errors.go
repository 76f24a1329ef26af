package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/config"
)

// ErrorHandler renders every error as {success:false, message}.
// Unexpected errors become a generic 500; their detail is only exposed
// outside production.
func ErrorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"success": false,
				"message": fe.Message,
			})
		}

		body := fiber.Map{
			"success": false,
			"message": "internal server error",
		}
		if !cfg.IsProduction() {
			body["error"] = err.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}
}
