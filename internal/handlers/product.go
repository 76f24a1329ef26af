package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/logging"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/search"
	"github.com/example/storefront/internal/storage"
	"github.com/example/storefront/internal/utils"
)

const productImageFolder = "products"

// ProductHandler manages product CRUD.
type ProductHandler struct {
	db        *gorm.DB
	store     storage.ImageStore
	index     search.ProductIndex
	publisher events.Publisher
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, store storage.ImageStore, index search.ProductIndex, publisher events.Publisher) *ProductHandler {
	return &ProductHandler{db: db, store: store, index: index, publisher: publisher}
}

// buildProductFilter turns the listing query string into AND-combined
// conditions. List filters match any of their comma separated values.
func buildProductFilter(c *fiber.Ctx, postgres bool) (sq.And, error) {
	filter := sq.And{}

	if v := utils.SplitList(c.Query("category")); len(v) > 0 {
		filter = append(filter, sq.Eq{"category": v})
	}
	if v := utils.SplitList(c.Query("brand")); len(v) > 0 {
		filter = append(filter, sq.Eq{"brand": v})
	}
	if v := utils.SplitList(c.Query("size")); len(v) > 0 {
		filter = append(filter, arrayOverlap("sizes", v, postgres))
	}
	if v := utils.SplitList(c.Query("color")); len(v) > 0 {
		filter = append(filter, arrayOverlap("colors", v, postgres))
	}
	if v := strings.TrimSpace(c.Query("gender")); v != "" {
		filter = append(filter, sq.Eq{"gender": v})
	}
	if v := c.Query("min_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid min_price")
		}
		filter = append(filter, sq.GtOrEq{"price": price})
	}
	if v := c.Query("max_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid max_price")
		}
		filter = append(filter, sq.LtOrEq{"price": price})
	}
	return filter, nil
}

// arrayOverlap matches rows whose text[] column shares a value with values.
// Outside postgres the column holds the array literal, so each value is
// matched as a quoted element.
func arrayOverlap(column string, values []string, postgres bool) sq.Sqlizer {
	if postgres {
		return sq.Expr(column+" && ?", pq.Array(values))
	}
	or := sq.Or{}
	for _, v := range values {
		or = append(or, sq.Like{column: `%"` + v + `"%`})
	}
	return or
}

func applyFilter(query *gorm.DB, filter sq.And) (*gorm.DB, error) {
	if len(filter) == 0 {
		return query, nil
	}
	where, args, err := filter.ToSql()
	if err != nil {
		return nil, err
	}
	return query.Where(where, args...), nil
}

func productOrder(c *fiber.Ctx) string {
	column := "created_at"
	if c.Query("sort") == "price" {
		column = "price"
	}
	direction := "desc"
	if strings.EqualFold(c.Query("order"), "asc") {
		direction = "asc"
	}
	return column + " " + direction
}

// ListProducts returns paginated products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	filter, err := buildProductFilter(c, h.db.Dialector.Name() == "postgres")
	if err != nil {
		return err
	}
	query, err := applyFilter(h.db.Model(&models.Product{}), filter)
	if err != nil {
		return err
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	products := []models.Product{}
	if err := query.Order(productOrder(c)).
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

// ListAllProducts is the unfiltered admin listing.
func (h *ProductHandler) ListAllProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	var total int64
	if err := h.db.Model(&models.Product{}).Count(&total).Error; err != nil {
		return err
	}

	products := []models.Product{}
	if err := h.db.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

// GetProduct loads a single product.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// SearchProducts runs a full text search, falling back to SQL matching when
// no search index is configured or the index is unreachable.
func (h *ProductHandler) SearchProducts(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "search query is required")
	}
	pg := utils.ParsePagination(c)
	log := logging.FromContext(c.UserContext())

	if h.index.Enabled() {
		total, ids, err := h.index.Search(c.UserContext(), q, pg.Offset, pg.Limit)
		if err == nil {
			products, err := h.productsInOrder(ids)
			if err != nil {
				return err
			}
			return c.JSON(fiber.Map{
				"success":    true,
				"data":       products,
				"pagination": pg.Meta(total),
			})
		}
		log.Warn("search index query failed, using database search", "error", err)
	}

	like := "%" + strings.ToLower(q) + "%"
	query := h.db.Model(&models.Product{}).
		Where("LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(category) LIKE ? OR LOWER(description) LIKE ?",
			like, like, like, like)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	products := []models.Product{}
	if err := query.Order("sold_count desc, created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

func (h *ProductHandler) productsInOrder(ids []uuid.UUID) ([]models.Product, error) {
	out := []models.Product{}
	if len(ids) == 0 {
		return out, nil
	}

	var found []models.Product
	if err := h.db.Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	// Hits can outlive deleted rows; those are dropped.
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type productRequest struct {
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Gender      string          `json:"gender"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Images      []string        `json:"images"`
	IsFeatured  bool            `json:"isFeatured"`
}

// parseProductForm reads a multipart product form. List fields accept
// repeated keys or a single comma separated value.
func parseProductForm(form *multipart.Form) (productRequest, error) {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	list := func(key string) []string {
		var out []string
		for _, v := range form.Value[key] {
			out = append(out, utils.SplitList(v)...)
		}
		return out
	}

	req := productRequest{
		Name:        value("name"),
		Brand:       value("brand"),
		Category:    value("category"),
		Description: value("description"),
		Gender:      value("gender"),
		Sizes:       list("sizes"),
		Colors:      list("colors"),
	}

	if v := value("price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return req, fiber.NewError(fiber.StatusBadRequest, "invalid price")
		}
		req.Price = price
	}
	if v := value("stock"); v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil {
			return req, fiber.NewError(fiber.StatusBadRequest, "invalid stock")
		}
		req.Stock = stock
	}
	if v := value("isFeatured"); v != "" {
		req.IsFeatured, _ = strconv.ParseBool(v)
	}
	return req, nil
}

// CreateProduct accepts a multipart form with "images" files, or a JSON body
// carrying image URLs.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	var files []*multipart.FileHeader

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
		}
		if req, err = parseProductForm(form); err != nil {
			return err
		}
		files = form.File["images"]
	} else if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !req.Price.IsPositive() {
		return fiber.NewError(fiber.StatusBadRequest, "name and a positive price are required")
	}
	if req.Stock < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "stock must not be negative")
	}

	images := append([]string{}, req.Images...)
	for _, fh := range files {
		url, err := h.uploadImage(c.UserContext(), fh)
		if err != nil {
			return err
		}
		images = append(images, url)
	}

	product := models.Product{
		Name:        req.Name,
		Brand:       strings.TrimSpace(req.Brand),
		Category:    strings.TrimSpace(req.Category),
		Description: req.Description,
		Gender:      strings.TrimSpace(req.Gender),
		Sizes:       pq.StringArray(req.Sizes),
		Colors:      pq.StringArray(req.Colors),
		Price:       req.Price,
		Stock:       req.Stock,
		Images:      pq.StringArray(images),
		IsFeatured:  req.IsFeatured,
	}
	if err := h.db.Create(&product).Error; err != nil {
		return err
	}

	h.productChanged(c.UserContext(), &product, "created")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "product created successfully",
		"data":    product,
	})
}

func (h *ProductHandler) uploadImage(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "failed to read uploaded file")
	}
	defer f.Close()

	url, err := h.store.Upload(ctx, productImageFolder, fh.Filename, fh.Header.Get(fiber.HeaderContentType), f, fh.Size)
	if errors.Is(err, storage.ErrUnsupportedImage) {
		return "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		logging.FromContext(ctx).Error("image upload failed", "filename", fh.Filename, "error", err)
		return "", fiber.NewError(fiber.StatusBadGateway, "failed to upload image")
	}
	return url, nil
}

// UploadImage stores a single image and returns its public URL.
func (h *ProductHandler) UploadImage(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}
	url, err := h.uploadImage(c.UserContext(), fh)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "url": url})
}

type updateProductRequest struct {
	Name        *string          `json:"name"`
	Brand       *string          `json:"brand"`
	Category    *string          `json:"category"`
	Description *string          `json:"description"`
	Gender      *string          `json:"gender"`
	Sizes       *[]string        `json:"sizes"`
	Colors      *[]string        `json:"colors"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	IsFeatured  *bool            `json:"isFeatured"`
}

// UpdateProduct overwrites the provided fields. Images are managed separately.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var req updateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name must not be empty")
		}
		updates["name"] = name
	}
	if req.Brand != nil {
		updates["brand"] = strings.TrimSpace(*req.Brand)
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Gender != nil {
		updates["gender"] = strings.TrimSpace(*req.Gender)
	}
	if req.Sizes != nil {
		updates["sizes"] = pq.StringArray(*req.Sizes)
	}
	if req.Colors != nil {
		updates["colors"] = pq.StringArray(*req.Colors)
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "price must be positive")
		}
		updates["price"] = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "stock must not be negative")
		}
		updates["stock"] = *req.Stock
	}
	if req.IsFeatured != nil {
		updates["is_featured"] = *req.IsFeatured
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	res := h.db.Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		return err
	}

	h.productChanged(c.UserContext(), &product, "updated")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "product updated successfully",
		"data":    product,
	})
}

// DeleteProduct removes the product together with cart and wishlist rows
// that point at it. Order items keep their own snapshot.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.WishlistItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.productChanged(c.UserContext(), &models.Product{BaseModel: models.BaseModel{ID: id}}, "deleted")
	return c.JSON(fiber.Map{"success": true, "message": "product deleted successfully"})
}

// productChanged keeps the search index in sync and publishes the change.
// Both are best effort; the database write already succeeded.
func (h *ProductHandler) productChanged(ctx context.Context, product *models.Product, action string) {
	log := logging.FromContext(ctx)

	var err error
	if action == "deleted" {
		err = h.index.DeleteProduct(ctx, product.ID)
	} else {
		err = h.index.IndexProduct(ctx, product)
	}
	if err != nil {
		log.Warn("search index sync failed", "product_id", product.ID, "action", action, "error", err)
	}

	evt := events.ProductChanged{ProductID: product.ID, Action: action, At: time.Now().UTC()}
	if err := h.publisher.Publish(ctx, events.TopicProductChanged, product.ID.String(), evt); err != nil {
		log.Warn("publish product change failed", "product_id", product.ID, "action", action, "error", err)
	}
}
