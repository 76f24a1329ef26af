package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

const lowStockThreshold = 5

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalProducts int64
	if err := h.db.Model(&models.Product{}).Count(&totalProducts).Error; err != nil {
		return err
	}

	var totalOrders int64
	if err := h.db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	// Orders by status
	type statusCount struct {
		Status string
		Count  int64
	}
	var statusCounts []statusCount
	if err := h.db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	ordersByStatus := map[string]int64{
		models.OrderStatusPending:    0,
		models.OrderStatusProcessing: 0,
		models.OrderStatusShipped:    0,
		models.OrderStatusDelivered:  0,
	}
	for _, sc := range statusCounts {
		ordersByStatus[sc.Status] = sc.Count
	}

	var totalRevenue decimal.Decimal
	if err := h.db.Model(&models.Order{}).
		Select("COALESCE(SUM(total), 0)").
		Row().Scan(&totalRevenue); err != nil {
		return err
	}

	lowStock := []models.Product{}
	if err := h.db.Where("stock <= ?", lowStockThreshold).
		Order("stock asc, name asc").
		Limit(20).
		Find(&lowStock).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"totalUsers":       totalUsers,
			"totalProducts":    totalProducts,
			"totalOrders":      totalOrders,
			"ordersByStatus":   ordersByStatus,
			"totalRevenue":     totalRevenue,
			"lowStockProducts": lowStock,
		},
	})
}
