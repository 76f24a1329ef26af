package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ValidateCoupon reports why a coupon cannot be redeemed at now, or nil.
// The window is inclusive on both ends.
func ValidateCoupon(c *models.Coupon, now time.Time) error {
	switch {
	case c == nil:
		return ErrCouponNotFound
	case !c.IsActive:
		return ErrCouponInactive
	case now.Before(c.StartDate):
		return ErrCouponNotStarted
	case now.After(c.EndDate):
		return ErrCouponExpired
	case c.UsageCount >= c.UsageLimit:
		return ErrCouponExhausted
	}
	return nil
}

// CouponDiscount is subtotal * percent / 100, rounded to cents.
func CouponDiscount(subtotal decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return decimal.Zero
	}
	if percent > 100 {
		percent = 100
	}
	return subtotal.Mul(decimal.NewFromInt(int64(percent))).Div(hundred).Round(2)
}
