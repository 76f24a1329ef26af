package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/logging"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// OrderHandler drives PayPal checkout and order queries.
type OrderHandler struct {
	db        *gorm.DB
	checkout  *services.CheckoutService
	publisher events.Publisher
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, checkout *services.CheckoutService, publisher events.Publisher) *OrderHandler {
	return &OrderHandler{db: db, checkout: checkout, publisher: publisher}
}

const paymentUnavailableMessage = "payment provider unavailable, please try again"

// checkoutError maps checkout and provider failures to responses.
func checkoutError(err error) error {
	var paymentErr *services.PaymentError
	switch {
	case errors.Is(err, services.ErrPaymentAuth):
		return fiber.NewError(fiber.StatusBadGateway, paymentUnavailableMessage)
	case errors.As(err, &paymentErr):
		if paymentErr.Status >= 400 && paymentErr.Status < 500 && paymentErr.Status != http.StatusUnauthorized {
			return fiber.NewError(paymentErr.Status, "payment could not be completed, please try again")
		}
		return fiber.NewError(fiber.StatusBadGateway, paymentUnavailableMessage)
	case errors.Is(err, services.ErrInsufficientStock):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrAddressNotFound),
		errors.Is(err, services.ErrCheckoutNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrCheckoutState),
		errors.Is(err, services.ErrPaymentNotCaptured),
		errors.Is(err, services.ErrCheckoutRefunded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrCartEmpty),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrInvalidTotal),
		errors.Is(err, services.ErrProductUnavailable),
		errors.Is(err, services.ErrCouponNotFound),
		errors.Is(err, services.ErrCouponInactive),
		errors.Is(err, services.ErrCouponNotStarted),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponExhausted):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

type createPayPalOrderRequest struct {
	AddressID  string `json:"addressId"`
	CouponCode string `json:"couponCode"`
}

// CreatePayPalOrder prices the cart and opens a PayPal order for approval.
func (h *OrderHandler) CreatePayPalOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var req createPayPalOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "a shipping address is required")
	}

	var user models.User
	if err := h.db.Select("id", "email").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
		}
		return err
	}

	session, err := h.checkout.CreatePaymentOrder(c.UserContext(), services.CreatePaymentInput{
		UserID:     userID,
		Email:      user.Email,
		AddressID:  addressID,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		return checkoutError(err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"orderId":  session.ProviderOrderID,
		"subtotal": session.Subtotal,
		"discount": session.Discount,
		"total":    session.Total,
		"currency": session.Currency,
	})
}

type paypalOrderRequest struct {
	OrderID string `json:"orderId"`
}

func parsePayPalOrderID(c *fiber.Ctx) (string, error) {
	var req paypalOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "orderId is required")
	}
	return id, nil
}

// CapturePayPalOrder captures an approved PayPal order.
func (h *OrderHandler) CapturePayPalOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	providerOrderID, err := parsePayPalOrderID(c)
	if err != nil {
		return err
	}

	session, err := h.checkout.CapturePayment(c.UserContext(), userID, providerOrderID)
	if err != nil {
		return checkoutError(err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"paymentId": session.PaymentID,
		"status":    session.PaymentStatus,
	})
}

// CreateFinalOrder turns a captured payment into an order. Replays for the
// same payment return the existing order with 200.
func (h *OrderHandler) CreateFinalOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	providerOrderID, err := parsePayPalOrderID(c)
	if err != nil {
		return err
	}

	order, created, err := h.checkout.FinalizeOrder(c.UserContext(), userID, providerOrderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientStock):
			return fiber.NewError(fiber.StatusConflict, "some items are no longer in stock, your payment will be refunded")
		case errors.Is(err, services.ErrCheckoutNotFound),
			errors.Is(err, services.ErrPaymentNotCaptured),
			errors.Is(err, services.ErrCheckoutRefunded):
			return checkoutError(err)
		}
		logging.FromContext(c.UserContext()).Error("order finalization failed",
			"provider_order_id", providerOrderID, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to finalize order")
	}

	status, message := fiber.StatusOK, "order already created"
	if created {
		status, message = fiber.StatusCreated, "order created successfully"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    order,
	})
}

// GetSingleOrder returns an order to its owner or an admin.
func (h *OrderHandler) GetSingleOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var order models.Order
	if err := h.db.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}
	if order.UserID != userID && !middleware.IsSuperAdmin(c) {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// GetOrdersByUser lists the current user's orders, newest first.
func (h *OrderHandler) GetOrdersByUser(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}
	pg := utils.ParsePagination(c)

	query := h.db.Model(&models.Order{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	orders := []models.Order{}
	if err := query.Preload("Items").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

// GetAllOrdersForAdmin lists every order with an optional status filter.
func (h *OrderHandler) GetAllOrdersForAdmin(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	query := h.db.Model(&models.Order{})
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		if !models.ValidOrderStatus(status) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order status")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	orders := []models.Order{}
	if err := query.Preload("Items").
		Preload("User").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order forward through its lifecycle.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("orderId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var req updateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	next := strings.ToUpper(strings.TrimSpace(req.Status))
	if !models.ValidOrderStatus(next) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order status")
	}

	var order models.Order
	if err := h.db.First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}
	if !models.CanAdvanceOrderStatus(order.Status, next) {
		return fiber.NewError(fiber.StatusConflict, "order status can only move forward")
	}

	previous := order.Status
	res := h.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, previous).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusConflict, "order status changed concurrently, reload and retry")
	}
	order.Status = next

	evt := events.OrderStatusChanged{OrderID: order.ID, From: previous, To: next, At: time.Now().UTC()}
	if err := h.publisher.Publish(c.UserContext(), events.TopicOrderStatusChanged, order.ID.String(), evt); err != nil {
		logging.FromContext(c.UserContext()).Warn("publish order status change failed", "order_id", order.ID, "error", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "order status updated",
		"data":    order,
	})
}
