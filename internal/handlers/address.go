package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
)

// AddressHandler manages shipping addresses. A user has at most one default.
type AddressHandler struct {
	db *gorm.DB
}

// NewAddressHandler constructs AddressHandler.
func NewAddressHandler(db *gorm.DB) *AddressHandler {
	return &AddressHandler{db: db}
}

var errAddressNotFound = fiber.NewError(fiber.StatusNotFound, "address not found")

func clearDefaultAddress(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Model(&models.Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func findUserAddress(tx *gorm.DB, userID uuid.UUID, id string) (*models.Address, error) {
	addressID, err := uuid.Parse(id)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid address id")
	}
	var address models.Address
	if err := tx.First(&address, "id = ? AND user_id = ?", addressID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

// ListAddresses returns the user's addresses, default first.
func (h *AddressHandler) ListAddresses(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	addresses := []models.Address{}
	if err := h.db.Where("user_id = ?", userID).
		Order("is_default desc, created_at desc").
		Find(&addresses).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

type addressRequest struct {
	FullName    string `json:"fullName"`
	AddressLine string `json:"addressLine"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
	Phone       string `json:"phone"`
	Notes       string `json:"notes"`
	IsDefault   bool   `json:"isDefault"`
}

// CreateAddress stores a new address. The first address is always the default.
func (h *AddressHandler) CreateAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var req addressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	address := models.Address{
		UserID:      userID,
		FullName:    strings.TrimSpace(req.FullName),
		AddressLine: strings.TrimSpace(req.AddressLine),
		City:        strings.TrimSpace(req.City),
		PostalCode:  strings.TrimSpace(req.PostalCode),
		Country:     strings.TrimSpace(req.Country),
		Phone:       strings.TrimSpace(req.Phone),
		Notes:       req.Notes,
		IsDefault:   req.IsDefault,
	}
	if address.FullName == "" || address.AddressLine == "" || address.City == "" || address.Country == "" {
		return fiber.NewError(fiber.StatusBadRequest, "fullName, addressLine, city and country are required")
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Address{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return err
		}
		if existing == 0 {
			address.IsDefault = true
		}
		if address.IsDefault {
			if err := clearDefaultAddress(tx, userID); err != nil {
				return err
			}
		}
		return tx.Create(&address).Error
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "address added successfully",
		"data":    address,
	})
}

type updateAddressRequest struct {
	FullName    *string `json:"fullName"`
	AddressLine *string `json:"addressLine"`
	City        *string `json:"city"`
	PostalCode  *string `json:"postalCode"`
	Country     *string `json:"country"`
	Phone       *string `json:"phone"`
	Notes       *string `json:"notes"`
	IsDefault   *bool   `json:"isDefault"`
}

// UpdateAddress edits the provided fields of an address.
func (h *AddressHandler) UpdateAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var req updateAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	required := func(column string, v *string) error {
		if v == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			return fiber.NewError(fiber.StatusBadRequest, column+" must not be empty")
		}
		updates[column] = trimmed
		return nil
	}
	for column, v := range map[string]*string{
		"full_name":    req.FullName,
		"address_line": req.AddressLine,
		"city":         req.City,
		"country":      req.Country,
	} {
		if err := required(column, v); err != nil {
			return err
		}
	}
	if req.PostalCode != nil {
		updates["postal_code"] = strings.TrimSpace(*req.PostalCode)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	var address *models.Address
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if address, err = findUserAddress(tx, userID, c.Params("id")); err != nil {
			return err
		}
		if req.IsDefault != nil && *req.IsDefault {
			if err := clearDefaultAddress(tx, userID); err != nil {
				return err
			}
		}
		if err := tx.Model(address).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(address, "id = ?", address.ID).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "address updated successfully",
		"data":    address,
	})
}

// SetDefaultAddress makes the address the user's only default.
func (h *AddressHandler) SetDefaultAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	var address *models.Address
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if address, err = findUserAddress(tx, userID, c.Params("id")); err != nil {
			return err
		}
		if err := clearDefaultAddress(tx, userID); err != nil {
			return err
		}
		address.IsDefault = true
		return tx.Model(address).Update("is_default", true).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "default address updated", "data": address})
}

// DeleteAddress removes an address. When it was the default, the most
// recently created remaining address takes over.
func (h *AddressHandler) DeleteAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized user")
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		address, err := findUserAddress(tx, userID, c.Params("id"))
		if err != nil {
			return err
		}
		if err := tx.Delete(address).Error; err != nil {
			return err
		}
		if !address.IsDefault {
			return nil
		}

		var next models.Address
		err = tx.Where("user_id = ?", userID).Order("created_at desc").First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_default", true).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "address deleted successfully"})
}
