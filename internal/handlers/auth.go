package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/logging"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

const minPasswordLength = 6

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = utils.NormalizeEmail(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
	}
	if !utils.IsValidEmail(req.Email) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return fiber.NewError(fiber.StatusBadRequest, "password must be at least 6 characters")
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	logging.FromContext(c.UserContext()).Info("user registered", "user_id", user.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "user registered successfully",
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing user and starts a cookie session.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.Where("email = ?", utils.NormalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}
		return err
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
	}

	if err := h.startSession(c, h.db, &user); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "logged in successfully",
		"user":    user,
	})
}

// startSession issues an access token and a fresh refresh token and sets both cookies.
func (h *AuthHandler) startSession(c *fiber.Ctx, tx *gorm.DB, user *models.User) error {
	now := time.Now()
	access, err := utils.GenerateAccessToken(h.cfg.JWTSecret, user.ID, user.Email, user.Role, h.cfg.AccessTokenTTL)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	refresh := utils.NewRefreshToken()
	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.Sha256Hex(refresh),
		ExpiresAt: now.Add(h.cfg.RefreshTokenTTL),
	}
	if err := tx.Create(&record).Error; err != nil {
		return err
	}

	utils.SetAuthCookie(c, utils.AccessTokenCookie, access, now.Add(h.cfg.AccessTokenTTL), h.cfg.CookieSecure)
	utils.SetAuthCookie(c, utils.RefreshTokenCookie, refresh, record.ExpiresAt, h.cfg.CookieSecure)
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the refresh token and issues a new access token.
// Any failure clears both cookies.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	raw := c.Cookies(utils.RefreshTokenCookie)
	if raw == "" {
		var req refreshRequest
		_ = c.BodyParser(&req)
		raw = req.RefreshToken
	}
	if raw == "" {
		return h.rejectRefresh(c, "refresh token not found")
	}

	var stored models.RefreshToken
	if err := h.db.Where("token_hash = ?", utils.Sha256Hex(raw)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return h.rejectRefresh(c, "invalid refresh token")
		}
		return err
	}

	log := logging.FromContext(c.UserContext())
	if stored.Revoked {
		// A rotated token came back: treat the whole token family as leaked.
		if err := revokeUserTokens(h.db, stored.UserID); err != nil {
			return err
		}
		log.Warn("revoked refresh token reused, all sessions revoked", "user_id", stored.UserID)
		return h.rejectRefresh(c, "invalid refresh token")
	}
	if time.Now().After(stored.ExpiresAt) {
		return h.rejectRefresh(c, "refresh token expired")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return h.rejectRefresh(c, "invalid refresh token")
		}
		return err
	}

	errTokenRace := errors.New("refresh token already rotated")
	err := h.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked = ?", stored.ID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTokenRace
		}
		return h.startSession(c, tx, &user)
	})
	if errors.Is(err, errTokenRace) {
		return h.rejectRefresh(c, "invalid refresh token")
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "token refreshed",
		"user":    user,
	})
}

func (h *AuthHandler) rejectRefresh(c *fiber.Ctx, message string) error {
	utils.ClearAuthCookies(c, h.cfg.CookieSecure)
	return fiber.NewError(fiber.StatusUnauthorized, message)
}

// Logout revokes the presented refresh token and clears both cookies.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if raw := c.Cookies(utils.RefreshTokenCookie); raw != "" {
		if err := h.db.Model(&models.RefreshToken{}).
			Where("token_hash = ?", utils.Sha256Hex(raw)).
			Update("revoked", true).Error; err != nil {
			logging.FromContext(c.UserContext()).Warn("refresh token revoke failed", "error", err)
		}
	}
	utils.ClearAuthCookies(c, h.cfg.CookieSecure)

	return c.JSON(fiber.Map{"success": true, "message": "logged out successfully"})
}

// CheckAuth returns the user behind the current access token.
func (h *AuthHandler) CheckAuth(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "user": user})
}
