package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderCreated struct {
	OrderID    uuid.UUID       `json:"orderId"`
	UserID     uuid.UUID       `json:"userId"`
	PaymentID  string          `json:"paymentId"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	CouponCode string          `json:"couponCode,omitempty"`
	Items      []OrderLine     `json:"items"`
	PlacedAt   time.Time       `json:"placedAt"`
}

type OrderLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type OrderStatusChanged struct {
	OrderID uuid.UUID `json:"orderId"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
}

// ProductChanged carries Action "created", "updated" or "deleted".
type ProductChanged struct {
	ProductID uuid.UUID `json:"productId"`
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
}
