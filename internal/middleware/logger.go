package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/logging"
)

// RequestLogger attaches a request scoped logger and logs the outcome.
// It must run after requestid so the id is available.
func RequestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		l := base.With(
			"method", c.Method(),
			"path", c.Path(),
			"remote_ip", c.IP(),
		)
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			l = l.With("request_id", rid)
		}
		c.SetUserContext(logging.IntoContext(c.UserContext(), l))

		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()
		dur := time.Since(start).Milliseconds()

		switch {
		case status >= 500:
			l.Error("request completed", "status", status, "duration_ms", dur, "error", errString(err))
		case status >= 400:
			l.Warn("request completed", "status", status, "duration_ms", dur)
		default:
			l.Info("request completed", "status", status, "duration_ms", dur, "bytes", len(c.Response().Body()))
		}
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
