package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// WishlistHandler manages saved products.
type WishlistHandler struct {
	db *gorm.DB
}

// NewWishlistHandler constructs WishlistHandler.
func NewWishlistHandler(db *gorm.DB) *WishlistHandler {
	return &WishlistHandler{db: db}
}

func (h *WishlistHandler) GetWishlist(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	items := []models.WishlistItem{}
	if err := h.db.Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": items})
}

type wishlistRequest struct {
	ProductID string `json:"productId"`
}

func (h *WishlistHandler) AddToWishlist(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var req wishlistRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	product, err := services.FindProduct(h.db, productID)
	if errors.Is(err, services.ErrProductNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}
	if err != nil {
		return err
	}

	inWishlist := func() (bool, error) {
		var n int64
		err := h.db.Model(&models.WishlistItem{}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			Count(&n).Error
		return n > 0, err
	}

	exists, err := inWishlist()
	if err != nil {
		return err
	}
	if exists {
		return fiber.NewError(fiber.StatusConflict, "product already in wishlist")
	}

	item := models.WishlistItem{UserID: userID, ProductID: productID}
	if err := h.db.Create(&item).Error; err != nil {
		// Lost a race against a concurrent add for the same product.
		if exists, cerr := inWishlist(); cerr == nil && exists {
			return fiber.NewError(fiber.StatusConflict, "product already in wishlist")
		}
		return err
	}
	item.Product = product

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "product added to wishlist",
		"data":    item,
	})
}

func (h *WishlistHandler) RemoveFromWishlist(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	res := h.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.WishlistItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "product not in wishlist")
	}

	return c.JSON(fiber.Map{"success": true, "message": "product removed from wishlist"})
}
