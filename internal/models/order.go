package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"

	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusPending   = "PENDING"
	PaymentMethodPayPal    = "paypal"
)

var orderStatusRank = map[string]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// ValidOrderStatus reports whether status is a known order status.
func ValidOrderStatus(status string) bool {
	_, ok := orderStatusRank[status]
	return ok
}

// CanAdvanceOrderStatus allows only forward moves along
// PENDING -> PROCESSING -> SHIPPED -> DELIVERED.
func CanAdvanceOrderStatus(from, to string) bool {
	fromRank, okFrom := orderStatusRank[from]
	toRank, okTo := orderStatusRank[to]
	return okFrom && okTo && toRank > fromRank
}

type Order struct {
	BaseModel
	UserID          uuid.UUID       `gorm:"type:uuid;index;not null" json:"userId"`
	User            *User           `json:"user,omitempty"`
	AddressID       *uuid.UUID      `gorm:"type:uuid" json:"addressId"`
	ShipFullName    string          `json:"shipFullName"`
	ShipAddressLine string          `json:"shipAddressLine"`
	ShipCity        string          `json:"shipCity"`
	ShipPostalCode  string          `json:"shipPostalCode"`
	ShipCountry     string          `json:"shipCountry"`
	ShipPhone       string          `json:"shipPhone"`
	Subtotal        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Discount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	Total           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency        string          `json:"currency"`
	CouponCode      string          `json:"couponCode"`
	Status          string          `gorm:"index;not null" json:"status"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentID       string          `gorm:"uniqueIndex;not null" json:"paymentId"`
	ProviderOrderID string          `gorm:"index" json:"providerOrderId"`
	PlacedAt        time.Time       `json:"placedAt"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem snapshots product data at purchase time.
type OrderItem struct {
	BaseModel
	OrderID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"orderId"`
	ProductID       uuid.UUID       `gorm:"type:uuid;index" json:"productId"`
	ProductName     string          `json:"productName"`
	ProductCategory string          `json:"productCategory"`
	ProductImage    string          `json:"productImage"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	LineTotal       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"lineTotal"`
}
