package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// publicStatuses are the product statuses visible in the storefront.
var publicStatuses = []models.ProductStatus{models.ProductActive, models.ProductOutOfStock}

const effectivePriceSQL = "CASE WHEN sale_price IS NOT NULL AND sale_price > 0 THEN sale_price ELSE price END"

// ProductHandler manages product CRUD.
type ProductHandler struct {
	db    *gorm.DB
	cache *services.CatalogCache
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, cache *services.CatalogCache) *ProductHandler {
	return &ProductHandler{db: db, cache: cache}
}

func isStaff(c *fiber.Ctx) bool {
	role, ok := middleware.GetCurrentRole(c)
	return ok && role.IsStaff()
}

// ListProducts returns paginated products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{})

	status := models.ProductStatus(c.Query("status"))
	switch {
	case isStaff(c) && status != "":
		if !status.Valid() {
			return apperr.Validation("invalid product status %q", status)
		}
		query = query.Where("status = ?", status)
	case isStaff(c):
	default:
		query = query.Where("status IN ?", publicStatuses)
	}

	if v := strings.TrimSpace(c.Query("category")); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("category_id = ?", id)
		} else {
			query = query.Where("category_id IN (?)",
				h.db.Model(&models.Category{}).Select("id").Where("slug = ?", v))
		}
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := likePattern(search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(sku) LIKE ?", q, q, q)
	}

	if brand := strings.TrimSpace(c.Query("brand")); brand != "" {
		query = query.Where("LOWER(brand) = ?", strings.ToLower(brand))
	}

	if v, ok := queryFloat(c, "min_price"); ok {
		query = query.Where(effectivePriceSQL+" >= ?", v)
	}
	if v, ok := queryFloat(c, "max_price"); ok {
		query = query.Where(effectivePriceSQL+" <= ?", v)
	}

	flags := map[string]string{
		"featured":    "is_featured",
		"trending":    "is_trending",
		"best_seller": "is_best_seller",
		"new_arrival": "is_new_arrival",
	}
	for param, column := range flags {
		if queryBool(c, param) {
			query = query.Where(column+" = ?", true)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Preload("Category").
		Limit(pg.Limit).Offset(pg.Offset).
		Order(productOrder(c.Query("sort"))).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

func productOrder(sort string) string {
	switch sort {
	case "price_asc":
		return effectivePriceSQL + " asc"
	case "price_desc":
		return effectivePriceSQL + " desc"
	case "name":
		return "name asc"
	case "rating":
		return "rating_average desc, rating_count desc"
	default:
		return "created_at desc"
	}
}

// GetProduct loads a product by id or slug with its approved review summary.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	query := h.db.Preload("Category")
	if id, err := uuid.Parse(c.Params("id")); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("slug = ?", c.Params("id"))
	}
	if !isStaff(c) {
		query = query.Where("status IN ?", publicStatuses)
	}

	var product models.Product
	if err := query.First(&product).Error; err != nil {
		return apperr.NotFoundOr(err, "product not found")
	}

	summary, err := services.Summary(h.db, product.ID)
	if err != nil {
		return err
	}

	var reviews []models.Review
	if err := h.db.Preload("User", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "first_name", "last_name")
	}).
		Where("product_id = ? AND status = ?", product.ID, models.ReviewApproved).
		Order("created_at desc").Limit(5).
		Find(&reviews).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"product":        product,
			"rating_summary": summary,
			"recent_reviews": reviews,
		},
	})
}

// collection serves a flagged product list through the catalog cache.
func (h *ProductHandler) collection(column string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 8)
		if limit <= 0 || limit > utils.MaxPageSize {
			limit = 8
		}
		key := fmt.Sprintf("%s:%d", column, limit)

		var products []models.Product
		if h.cache.Get(c.UserContext(), key, &products) {
			return c.JSON(fiber.Map{"success": true, "data": products})
		}

		if err := h.db.Preload("Category").
			Where(column+" = ? AND status IN ?", true, publicStatuses).
			Order("created_at desc").Limit(limit).
			Find(&products).Error; err != nil {
			return err
		}

		h.cache.Set(c.UserContext(), key, products)
		return c.JSON(fiber.Map{"success": true, "data": products})
	}
}

type productRequest struct {
	Name              *string               `json:"name" validate:"omitempty,min=1,max=255"`
	Slug              *string               `json:"slug" validate:"omitempty,max=191"`
	SKU               *string               `json:"sku" validate:"omitempty,min=1,max=100"`
	Description       *string               `json:"description"`
	ShortDescription  *string               `json:"short_description" validate:"omitempty,max=500"`
	Brand             *string               `json:"brand" validate:"omitempty,max=150"`
	CategoryID        *uuid.UUID            `json:"category_id"`
	Price             *float64              `json:"price" validate:"omitempty,gte=0"`
	SalePrice         *float64              `json:"sale_price" validate:"omitempty,gte=0"`
	CostPrice         *float64              `json:"cost_price" validate:"omitempty,gte=0"`
	StockQuantity     *int                  `json:"stock_quantity" validate:"omitempty,gte=0"`
	LowStockThreshold *int                  `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Status            *models.ProductStatus `json:"status" validate:"omitempty,oneof=active inactive out_of_stock draft"`
	IsFeatured        *bool                 `json:"is_featured"`
	IsTrending        *bool                 `json:"is_trending"`
	IsBestSeller      *bool                 `json:"is_best_seller"`
	IsNewArrival      *bool                 `json:"is_new_arrival"`
	ImageURL          *string               `json:"image_url" validate:"omitempty,max=500"`
}

// CreateProduct handles product creation.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if req.Name == nil || req.SKU == nil || req.Price == nil {
		return apperr.Validation("name, sku and price are required")
	}

	product := models.Product{
		Status:            models.ProductActive,
		LowStockThreshold: 10,
	}
	if err := h.applyProduct(&product, req); err != nil {
		return err
	}
	if product.StockQuantity == 0 && product.Status == models.ProductActive {
		product.Status = models.ProductOutOfStock
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		if product.StockQuantity == 0 {
			return nil
		}
		return tx.Create(&models.StockMovement{
			ProductID:  product.ID,
			Change:     product.StockQuantity,
			StockAfter: product.StockQuantity,
			Reason:     models.StockAdjustment,
			Reference:  "initial",
			CreatedBy:  actor(c),
		}).Error
	})
	if err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct applies a partial update. Stock changes go through the
// stock endpoints so every change leaves a movement.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req productRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if req.StockQuantity != nil {
		return apperr.Validation("use the stock endpoints to change stock_quantity")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "product not found")
	}
	if err := h.applyProduct(&product, req); err != nil {
		return err
	}
	if req.SalePrice != nil && *req.SalePrice == 0 {
		product.SalePrice = nil
	}

	if err := h.db.Save(&product).Error; err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext())
	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct removes a product. Products referenced by orders or
// purchase orders are deactivated instead.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	soft := false
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Select("id").First(&product, "id = ?", id).Error; err != nil {
			return apperr.NotFoundOr(err, "product not found")
		}

		var refs int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Model(&models.PurchaseOrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
				return err
			}
		}
		if refs > 0 {
			soft = true
			return tx.Model(&models.Product{}).Where("id = ?", id).Update("status", models.ProductInactive).Error
		}

		for _, dependent := range []any{
			&models.CartItem{}, &models.WishlistItem{}, &models.Review{}, &models.StockMovement{},
		} {
			if err := tx.Where("product_id = ?", id).Delete(dependent).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Product{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext())
	message := "product deleted"
	if soft {
		message = "product is referenced by orders and was deactivated"
	}
	return c.JSON(fiber.Map{"success": true, "message": message, "data": fiber.Map{"deactivated": soft}})
}

func (h *ProductHandler) applyProduct(p *models.Product, req productRequest) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Slug != nil {
		p.Slug = utils.Slugify(*req.Slug)
	}
	if p.Slug == "" {
		p.Slug = utils.Slugify(p.Name)
	}
	if req.SKU != nil {
		p.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if p.Name == "" || p.Slug == "" || p.SKU == "" {
		return apperr.Validation("name, slug and sku must not be empty")
	}

	var clash int64
	if err := h.db.Model(&models.Product{}).
		Where("(slug = ? OR sku = ?) AND id <> ?", p.Slug, p.SKU, p.ID).
		Count(&clash).Error; err != nil {
		return err
	}
	if clash > 0 {
		return apperr.Conflict("a product with this slug or sku already exists")
	}

	if req.CategoryID != nil {
		if *req.CategoryID == uuid.Nil {
			p.CategoryID = nil
		} else {
			var exists int64
			if err := h.db.Model(&models.Category{}).Where("id = ?", *req.CategoryID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return apperr.Validation("category does not exist")
			}
			p.CategoryID = req.CategoryID
		}
	}

	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.ShortDescription != nil {
		p.ShortDescription = *req.ShortDescription
	}
	if req.Brand != nil {
		p.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.SalePrice != nil {
		p.SalePrice = req.SalePrice
	}
	if p.SalePrice != nil && *p.SalePrice > p.Price {
		return apperr.Validation("sale_price must not exceed price")
	}
	if req.CostPrice != nil {
		p.CostPrice = *req.CostPrice
	}
	if req.StockQuantity != nil {
		p.StockQuantity = *req.StockQuantity
	}
	if req.LowStockThreshold != nil {
		p.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return apperr.Validation("invalid product status %q", *req.Status)
		}
		p.Status = *req.Status
	}
	if req.IsFeatured != nil {
		p.IsFeatured = *req.IsFeatured
	}
	if req.IsTrending != nil {
		p.IsTrending = *req.IsTrending
	}
	if req.IsBestSeller != nil {
		p.IsBestSeller = *req.IsBestSeller
	}
	if req.IsNewArrival != nil {
		p.IsNewArrival = *req.IsNewArrival
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}
	return nil
}

// RegisterProductRoutes attaches product routes to the router. Mutations
// run behind the staff middleware chain.
func (h *ProductHandler) RegisterProductRoutes(router fiber.Router, staff ...fiber.Handler) {
	router.Get("/", h.ListProducts)
	router.Get("/featured", h.collection("is_featured"))
	router.Get("/trending", h.collection("is_trending"))
	router.Get("/best-sellers", h.collection("is_best_seller"))
	router.Get("/new-arrivals", h.collection("is_new_arrival"))
	router.Get("/:id", h.GetProduct)

	admin := router.Group("", staff...)
	admin.Post("/", h.CreateProduct)
	admin.Put("/:id", h.UpdateProduct)
	admin.Delete("/:id", h.DeleteProduct)
}
