package models

import (
	"github.com/google/uuid"
)

type Address struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"userId"`
	FullName    string    `json:"fullName"`
	AddressLine string    `json:"addressLine"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postalCode"`
	Country     string    `json:"country"`
	Phone       string    `json:"phone"`
	Notes       string    `json:"notes"`
	IsDefault   bool      `json:"isDefault"`
}

type WishlistItem struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_wishlist_user_product" json:"userId"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_wishlist_user_product" json:"productId"`
	Product   *Product  `json:"product,omitempty"`
}
