package models

import (
	"github.com/google/uuid"
)

type Cart struct {
	BaseModel
	UserID uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"userId"`
	Items  []CartItem `json:"items"`
}

// CartItem is unique per (cart, product, size, color); repeated adds bump Quantity.
type CartItem struct {
	BaseModel
	CartID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line" json:"cartId"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line" json:"productId"`
	Size      string    `gorm:"not null;default:'';uniqueIndex:idx_cart_line" json:"size"`
	Color     string    `gorm:"not null;default:'';uniqueIndex:idx_cart_line" json:"color"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	Product   *Product  `json:"product,omitempty"`
}

// CartMergeReceipt records a guest cart line that was already merged.
type CartMergeReceipt struct {
	BaseModel
	CartID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_merge" json:"cartId"`
	ClientItemID string    `gorm:"not null;uniqueIndex:idx_cart_merge" json:"clientItemId"`
}
