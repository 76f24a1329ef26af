package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

const (
	userContextKey  = "currentUserID"
	roleContextKey  = "currentUserRole"
	emailContextKey = "currentUserEmail"
)

// AuthMiddleware validates the access token from the accessToken cookie or
// a Bearer header and loads the caller into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(utils.AccessTokenCookie)
		if token == "" {
			authHeader := c.Get("Authorization")
			if authHeader == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
			}
			token = parts[1]
		}

		claims, err := utils.ParseAccessToken(cfg.JWTSecret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		userID, _ := uuid.Parse(claims.UserID)
		c.Locals(userContextKey, userID)
		c.Locals(roleContextKey, claims.Role)
		c.Locals(emailContextKey, claims.Email)
		return c.Next()
	}
}

// RequireSuperAdmin must run after AuthMiddleware.
func RequireSuperAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsSuperAdmin(c) {
			return fiber.NewError(fiber.StatusForbidden, "access denied: super admin only")
		}
		return c.Next()
	}
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok && id != uuid.Nil {
		return id, true
	}

	return uuid.Nil, false
}

func GetCurrentUserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(emailContextKey).(string)
	return email
}

func IsSuperAdmin(c *fiber.Ctx) bool {
	role, _ := c.Locals(roleContextKey).(string)
	return role == models.RoleSuperAdmin
}
