package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/storage"
)

const bannerImageFolder = "banners"

// SettingsHandler manages storefront banners and the featured product set.
type SettingsHandler struct {
	db    *gorm.DB
	store storage.ImageStore
}

// NewSettingsHandler constructs SettingsHandler.
func NewSettingsHandler(db *gorm.DB, store storage.ImageStore) *SettingsHandler {
	return &SettingsHandler{db: db, store: store}
}

// Banners

func (h *SettingsHandler) ListBanners(c *fiber.Ctx) error {
	items := []models.FeatureBanner{}
	if err := h.db.Order("sort_order asc, created_at desc").Find(&items).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": items})
}

type bannerRequest struct {
	Image     string `json:"image"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	SortOrder int    `json:"sortOrder"`
}

// CreateBanner accepts a multipart "image" upload or a JSON body with an image URL.
func (h *SettingsHandler) CreateBanner(c *fiber.Ctx) error {
	var req bannerRequest

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req.Title = strings.TrimSpace(c.FormValue("title"))
		req.Link = strings.TrimSpace(c.FormValue("link"))
		if v := c.FormValue("sortOrder"); v != "" {
			order, err := strconv.Atoi(v)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid sortOrder")
			}
			req.SortOrder = order
		}

		fh, err := c.FormFile("image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "image file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to read uploaded file")
		}
		defer f.Close()

		url, err := h.store.Upload(c.UserContext(), bannerImageFolder, fh.Filename, fh.Header.Get(fiber.HeaderContentType), f, fh.Size)
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to upload image")
		}
		req.Image = url
	} else if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Image) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "banner image is required")
	}

	banner := models.FeatureBanner{
		Image:     strings.TrimSpace(req.Image),
		Title:     req.Title,
		Link:      req.Link,
		SortOrder: req.SortOrder,
	}
	if err := h.db.Create(&banner).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "banner added successfully",
		"data":    banner,
	})
}

func (h *SettingsHandler) DeleteBanner(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid banner id")
	}

	res := h.db.Delete(&models.FeatureBanner{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "banner not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "banner deleted successfully"})
}

// Featured products

func (h *SettingsHandler) ListFeaturedProducts(c *fiber.Ctx) error {
	products := []models.Product{}
	if err := h.db.Where("is_featured = ?", true).
		Order("created_at desc").
		Find(&products).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": products})
}

type featuredProductsRequest struct {
	ProductIDs []string `json:"productIds"`
}

// SetFeaturedProducts replaces the featured set atomically. Unknown ids abort
// the change.
func (h *SettingsHandler) SetFeaturedProducts(c *fiber.Ctx) error {
	var req featuredProductsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(req.ProductIDs))
	for _, raw := range req.ProductIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id: "+raw)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Product{}).
			Where("is_featured = ?", true).
			Update("is_featured", false).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Model(&models.Product{}).Where("id IN ?", ids).Update("is_featured", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fiber.NewError(fiber.StatusNotFound, "one or more products were not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return h.ListFeaturedProducts(c)
}
