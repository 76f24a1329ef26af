package models

import (
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Product struct {
	BaseModel
	Name        string          `gorm:"not null" json:"name"`
	Brand       string          `gorm:"index" json:"brand"`
	Category    string          `gorm:"index" json:"category"`
	Description string          `json:"description"`
	Gender      string          `json:"gender"`
	Sizes       pq.StringArray  `gorm:"type:text[]" json:"sizes"`
	Colors      pq.StringArray  `gorm:"type:text[]" json:"colors"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Images      pq.StringArray  `gorm:"type:text[]" json:"images"`
	SoldCount   int             `gorm:"not null;default:0" json:"soldCount"`
	Rating      float64         `json:"rating"`
	IsFeatured  bool            `gorm:"index" json:"isFeatured"`
}

// HasSize reports whether size is offered; products without sizes accept any.
func (p *Product) HasSize(size string) bool {
	return containsOrEmpty(p.Sizes, size)
}

// HasColor reports whether color is offered; products without colors accept any.
func (p *Product) HasColor(color string) bool {
	return containsOrEmpty(p.Colors, color)
}

func containsOrEmpty(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
