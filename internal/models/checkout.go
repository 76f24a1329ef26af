package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CheckoutCreated   = "CREATED"
	CheckoutCaptured  = "CAPTURED"
	CheckoutFinalized = "FINALIZED"
	CheckoutRefunded  = "REFUNDED"
)

// CheckoutSession tracks one PayPal order from creation to a persisted Order.
type CheckoutSession struct {
	BaseModel
	UserID          uuid.UUID             `gorm:"type:uuid;index;not null" json:"userId"`
	ProviderOrderID string                `gorm:"uniqueIndex;not null" json:"providerOrderId"`
	AddressID       uuid.UUID             `gorm:"type:uuid;not null" json:"addressId"`
	CouponID        *uuid.UUID            `gorm:"type:uuid" json:"couponId"`
	CouponCode      string                `json:"couponCode"`
	Subtotal        decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Discount        decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"discount"`
	Total           decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency        string                `json:"currency"`
	Status          string                `gorm:"index;not null" json:"status"`
	PaymentID       string                `json:"paymentId"`
	PaymentStatus   string                `json:"paymentStatus"`
	OrderID         *uuid.UUID            `gorm:"type:uuid" json:"orderId"`
	Attempts        int                   `json:"attempts"`
	LastError       string                `json:"lastError"`
	Items           []CheckoutSessionItem `gorm:"foreignKey:SessionID" json:"items,omitempty"`
}

type CheckoutSessionItem struct {
	BaseModel
	SessionID       uuid.UUID       `gorm:"type:uuid;index;not null" json:"sessionId"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null" json:"productId"`
	ProductName     string          `json:"productName"`
	ProductCategory string          `json:"productCategory"`
	ProductImage    string          `json:"productImage"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity        int             `gorm:"not null" json:"quantity"`
}
