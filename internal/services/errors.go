package services

import "errors"

var (
	ErrCartEmpty          = errors.New("cart is empty")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product is no longer available")
	ErrAddressNotFound    = errors.New("shipping address not found")
	ErrInvalidEmail       = errors.New("a valid email is required before payment")
	ErrInvalidTotal       = errors.New("order total must be greater than zero")
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidSize        = errors.New("selected size is not available for this product")
	ErrInvalidColor       = errors.New("selected color is not available for this product")
	ErrCartItemNotFound   = errors.New("cart item not found")

	ErrCheckoutNotFound   = errors.New("checkout not found")
	ErrCheckoutState      = errors.New("checkout is not in a capturable state")
	ErrPaymentNotCaptured = errors.New("payment has not been captured")
	ErrCheckoutRefunded   = errors.New("checkout was refunded")

	ErrCouponNotFound   = errors.New("invalid coupon code")
	ErrCouponInactive   = errors.New("coupon is not active")
	ErrCouponNotStarted = errors.New("coupon is not valid yet")
	ErrCouponExpired    = errors.New("coupon has expired")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
)
