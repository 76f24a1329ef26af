package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser       = "USER"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// User represents a storefront account.
type User struct {
	BaseModel
	Name         string    `json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"default:USER;not null" json:"role"`
	Addresses    []Address `json:"addresses,omitempty"`
	Orders       []Order   `json:"orders,omitempty"`
}

// IsSuperAdmin reports whether the user may reach admin routes.
func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// RefreshToken stores the hash of an issued refresh token.
type RefreshToken struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"userId"`
	TokenHash string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
}
