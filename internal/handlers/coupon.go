package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// CouponHandler serves coupon administration and advisory validation.
type CouponHandler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCouponHandler constructs CouponHandler.
func NewCouponHandler(db *gorm.DB) *CouponHandler {
	return &CouponHandler{db: db, now: time.Now}
}

// parseCouponDate accepts RFC 3339 timestamps or plain dates. A plain end
// date covers the whole day.
func parseCouponDate(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func validateCouponFields(c *models.Coupon) error {
	if c.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "coupon code is required")
	}
	if c.DiscountPercent < 1 || c.DiscountPercent > 100 {
		return fiber.NewError(fiber.StatusBadRequest, "discountPercent must be between 1 and 100")
	}
	if !c.EndDate.After(c.StartDate) {
		return fiber.NewError(fiber.StatusBadRequest, "endDate must be after startDate")
	}
	if c.UsageLimit < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "usageLimit must be at least 1")
	}
	return nil
}

func couponError(err error) error {
	switch {
	case errors.Is(err, services.ErrCouponNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrCouponInactive),
		errors.Is(err, services.ErrCouponNotStarted),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponExhausted):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

// ListCoupons returns every coupon, newest first.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	coupons := []models.Coupon{}
	if err := h.db.Order("created_at desc").Find(&coupons).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": coupons})
}

type couponRequest struct {
	Code            string `json:"code"`
	DiscountPercent int    `json:"discountPercent"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	UsageLimit      int    `json:"usageLimit"`
	IsActive        *bool  `json:"isActive"`
}

// CreateCoupon adds a coupon; codes are stored uppercase and must be unique.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req couponRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	start, err := parseCouponDate(req.StartDate, false)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid startDate")
	}
	end, err := parseCouponDate(req.EndDate, true)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid endDate")
	}

	coupon := models.Coupon{
		Code:            strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountPercent: req.DiscountPercent,
		StartDate:       start,
		EndDate:         end,
		UsageLimit:      req.UsageLimit,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	if err := validateCouponFields(&coupon); err != nil {
		return err
	}

	var existing int64
	if err := h.db.Model(&models.Coupon{}).Where("code = ?", coupon.Code).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusConflict, "coupon code already exists")
	}

	if err := h.db.Create(&coupon).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "coupon created successfully",
		"data":    coupon,
	})
}

type updateCouponRequest struct {
	DiscountPercent *int    `json:"discountPercent"`
	StartDate       *string `json:"startDate"`
	EndDate         *string `json:"endDate"`
	UsageLimit      *int    `json:"usageLimit"`
	IsActive        *bool   `json:"isActive"`
}

// UpdateCoupon edits a coupon. The code itself is immutable.
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid coupon id")
	}

	var req updateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "coupon not found")
		}
		return err
	}

	if req.DiscountPercent != nil {
		coupon.DiscountPercent = *req.DiscountPercent
	}
	if req.StartDate != nil {
		if coupon.StartDate, err = parseCouponDate(*req.StartDate, false); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid startDate")
		}
	}
	if req.EndDate != nil {
		if coupon.EndDate, err = parseCouponDate(*req.EndDate, true); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid endDate")
		}
	}
	if req.UsageLimit != nil {
		coupon.UsageLimit = *req.UsageLimit
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	if err := validateCouponFields(&coupon); err != nil {
		return err
	}

	if err := h.db.Model(&coupon).Updates(map[string]interface{}{
		"discount_percent": coupon.DiscountPercent,
		"start_date":       coupon.StartDate,
		"end_date":         coupon.EndDate,
		"usage_limit":      coupon.UsageLimit,
		"is_active":        coupon.IsActive,
	}).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "coupon updated successfully",
		"data":    coupon,
	})
}

// DeleteCoupon removes a coupon. Orders keep the code they were placed with.
func (h *CouponHandler) DeleteCoupon(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid coupon id")
	}

	res := h.db.Delete(&models.Coupon{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "coupon not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "coupon deleted successfully"})
}

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidateCoupon reports the discount a code would give on subtotal. The
// result is advisory; usage is only counted when an order is finalized.
func (h *CouponHandler) ValidateCoupon(c *fiber.Ctx) error {
	var req validateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "coupon code is required")
	}
	if req.Subtotal.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "subtotal must not be negative")
	}

	coupon, err := services.FindCoupon(h.db, req.Code)
	if err != nil {
		return couponError(err)
	}
	if err := services.ValidateCoupon(coupon, h.now()); err != nil {
		return couponError(err)
	}

	discount := services.CouponDiscount(req.Subtotal, coupon.DiscountPercent)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "coupon applied",
		"data": fiber.Map{
			"code":            coupon.Code,
			"discountPercent": coupon.DiscountPercent,
			"discount":        discount,
			"total":           req.Subtotal.Sub(discount),
		},
	})
}
