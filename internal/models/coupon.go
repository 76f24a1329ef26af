package models

import "time"

type Coupon struct {
	BaseModel
	Code            string    `gorm:"uniqueIndex;not null" json:"code"`
	DiscountPercent int       `gorm:"not null" json:"discountPercent"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	UsageLimit      int       `gorm:"not null" json:"usageLimit"`
	UsageCount      int       `gorm:"not null;default:0" json:"usageCount"`
	IsActive        bool      `json:"isActive"`
}
