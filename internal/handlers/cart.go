package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// CartHandler serves the authenticated user's cart.
type CartHandler struct {
	db *gorm.DB
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(db *gorm.DB) *CartHandler {
	return &CartHandler{db: db}
}

// cartError maps cart rule violations to client errors.
func cartError(err error) error {
	var stockErr *services.StockError
	switch {
	case errors.As(err, &stockErr):
		return fiber.NewError(fiber.StatusBadRequest, stockErr.Error())
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrCartItemNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidSize),
		errors.Is(err, services.ErrInvalidColor):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

func cartPayload(cart *models.Cart) fiber.Map {
	items := []models.CartItem{}
	subtotal := decimal.Zero
	count := 0
	var cartID *uuid.UUID

	if cart != nil {
		cartID = &cart.ID
		for _, item := range cart.Items {
			items = append(items, item)
			count += item.Quantity
			if item.Product != nil {
				subtotal = subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			}
		}
	}

	return fiber.Map{
		"id":         cartID,
		"items":      items,
		"totalItems": count,
		"subtotal":   subtotal,
	}
}

func (h *CartHandler) respondWithCart(c *fiber.Ctx, status int, userID uuid.UUID, message string) error {
	cart, err := services.LoadCart(h.db, userID)
	if err != nil {
		return err
	}
	body := fiber.Map{"success": true, "data": cartPayload(cart)}
	if message != "" {
		body["message"] = message
	}
	return c.Status(status).JSON(body)
}

// GetCart returns the cart with products and subtotal. A user without a cart
// gets an empty one.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	return h.respondWithCart(c, fiber.StatusOK, userID, "")
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// AddToCart adds a product variant to the cart, incrementing an existing line.
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var req addToCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		product, err := services.FindProduct(tx, productID)
		if err != nil {
			return err
		}
		cart, err := services.EnsureCart(tx, userID)
		if err != nil {
			return err
		}
		_, err = services.AddCartItem(tx, cart.ID, product, req.Quantity, req.Size, req.Color)
		return err
	})
	if err != nil {
		return cartError(err)
	}

	return h.respondWithCart(c, fiber.StatusOK, userID, "item added to cart")
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets a line quantity, checked against current stock.
func (h *CartHandler) UpdateCartItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	itemID, err := uuid.Parse(c.Params("itemId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid cart item id")
	}

	var req updateCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		_, err := services.UpdateCartItem(tx, userID, itemID, req.Quantity)
		return err
	})
	if err != nil {
		return cartError(err)
	}

	return h.respondWithCart(c, fiber.StatusOK, userID, "cart updated")
}

// RemoveCartItem deletes a single line.
func (h *CartHandler) RemoveCartItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	itemID, err := uuid.Parse(c.Params("itemId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid cart item id")
	}

	if err := services.RemoveCartItem(h.db, userID, itemID); err != nil {
		return cartError(err)
	}

	return h.respondWithCart(c, fiber.StatusOK, userID, "item removed from cart")
}

// ClearCart deletes every line but keeps merge receipts so guest items are not replayed.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	if err := h.db.Where("cart_id IN (?)",
		h.db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID),
	).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}

	return h.respondWithCart(c, fiber.StatusOK, userID, "cart cleared")
}

type mergeCartRequest struct {
	Items []struct {
		ClientID  string `json:"clientId"`
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Size      string `json:"size"`
		Color     string `json:"color"`
	} `json:"items"`
}

// MergeCart folds a guest cart into the user's cart after login.
func (h *CartHandler) MergeCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var req mergeCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items := make([]services.GuestCartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.GuestCartItem{
			ClientID:  it.ClientID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		})
	}

	result, err := services.MergeGuestCart(h.db, userID, items)
	if err != nil {
		return err
	}

	cart, err := services.LoadCart(h.db, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"data":     cartPayload(cart),
		"merged":   result.Merged,
		"skipped":  result.Skipped,
		"rejected": result.Rejected,
	})
}
