package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

// CatalogHandler serves the values the storefront filter panel offers.
type CatalogHandler struct {
	db *gorm.DB
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

func (h *CatalogHandler) distinct(column string) ([]string, error) {
	out := []string{}
	err := h.db.Model(&models.Product{}).
		Distinct(column).
		Where(column+" <> ''").
		Order(column+" asc").
		Pluck(column, &out).Error
	return out, err
}

// distinctElements flattens a text[] column. Done in Go so the query stays
// portable across database dialects.
func (h *CatalogHandler) distinctElements(column string) ([]string, error) {
	var rows []pq.StringArray
	if err := h.db.Model(&models.Product{}).Pluck(column, &rows).Error; err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, values := range rows {
		for _, v := range values {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetFilters returns the distinct categories, brands, genders, sizes and
// colors in the catalog together with the price range.
func (h *CatalogHandler) GetFilters(c *fiber.Ctx) error {
	facets := fiber.Map{}
	for key, column := range map[string]string{
		"categories": "category",
		"brands":     "brand",
		"genders":    "gender",
	} {
		values, err := h.distinct(column)
		if err != nil {
			return err
		}
		facets[key] = values
	}
	for key, column := range map[string]string{
		"sizes":  "sizes",
		"colors": "colors",
	} {
		values, err := h.distinctElements(column)
		if err != nil {
			return err
		}
		facets[key] = values
	}

	var minPrice, maxPrice decimal.Decimal
	if err := h.db.Model(&models.Product{}).
		Select("COALESCE(MIN(price), 0), COALESCE(MAX(price), 0)").
		Row().Scan(&minPrice, &maxPrice); err != nil {
		return err
	}
	facets["minPrice"] = minPrice
	facets["maxPrice"] = maxPrice

	return c.JSON(fiber.Map{"success": true, "data": facets})
}
