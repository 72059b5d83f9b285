package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// StockHandler exposes inventory levels and manual adjustments.
type StockHandler struct {
	db    *gorm.DB
	stock *services.StockService
}

// NewStockHandler constructs StockHandler.
func NewStockHandler(db *gorm.DB, stock *services.StockService) *StockHandler {
	return &StockHandler{db: db, stock: stock}
}

type stockRow struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	SKU               string               `json:"sku"`
	Brand             string               `json:"brand"`
	StockQuantity     int                  `json:"stock_quantity"`
	LowStockThreshold int                  `json:"low_stock_threshold"`
	Status            models.ProductStatus `json:"status"`
	IsLowStock        bool                 `json:"is_low_stock"`
}

func toStockRows(products []models.Product) []stockRow {
	rows := make([]stockRow, len(products))
	for i, p := range products {
		rows[i] = stockRow{
			ID:                p.ID,
			Name:              p.Name,
			SKU:               p.SKU,
			Brand:             p.Brand,
			StockQuantity:     p.StockQuantity,
			LowStockThreshold: p.LowStockThreshold,
			Status:            p.Status,
			IsLowStock:        p.IsLowStock(),
		}
	}
	return rows
}

func (h *StockHandler) listStock(c *fiber.Ctx, query *gorm.DB, order string) error {
	pg := utils.ParsePagination(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Order(order).
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       toStockRows(products),
		"pagination": pg.Meta(total),
	})
}

// ListStock returns products with their stock levels.
func (h *StockHandler) ListStock(c *fiber.Ctx) error {
	query := h.db.Model(&models.Product{})

	if queryBool(c, "low_stock") {
		query = query.Where("stock_quantity <= low_stock_threshold AND stock_quantity > 0")
	}
	if queryBool(c, "out_of_stock") {
		query = query.Where("stock_quantity = 0")
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := likePattern(search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", q, q)
	}

	return h.listStock(c, query, "stock_quantity asc, name asc")
}

// LowStock returns products at or below their reorder threshold.
func (h *StockHandler) LowStock(c *fiber.Ctx) error {
	query := h.db.Model(&models.Product{}).
		Where("stock_quantity <= low_stock_threshold AND status <> ?", models.ProductInactive)
	return h.listStock(c, query, "stock_quantity asc")
}

// AdjustStock sets or shifts one product's stock.
func (h *StockHandler) AdjustStock(c *fiber.Ctx) error {
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}

	var req services.StockAdjustment
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	product, err := h.stock.Adjust(c.UserContext(), productID, req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "stock updated", "data": toStockRows([]models.Product{product})[0]})
}

type bulkStockRequest struct {
	Updates []services.StockUpdate `json:"updates" validate:"required,min=1,dive"`
	Note    string                 `json:"note" validate:"max=500"`
}

// BulkUpdateStock sets absolute stock levels for several products at once.
// Any invalid entry rolls back the whole batch.
func (h *StockHandler) BulkUpdateStock(c *fiber.Ctx) error {
	var req bulkStockRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	products, err := h.stock.BulkUpdate(c.UserContext(), req.Updates, req.Note, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "stock updated",
		"data":    toStockRows(products),
	})
}

// ListMovements returns the stock movement history.
func (h *StockHandler) ListMovements(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.StockMovement{})

	if v := c.Query("product_id"); v != "" {
		productID, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid product_id")
		}
		query = query.Where("product_id = ?", productID)
	}
	if reason := c.Query("reason"); reason != "" {
		query = query.Where("reason = ?", reason)
	}
	if from, ok := queryDate(c, "date_from"); ok {
		query = query.Where("created_at >= ?", from)
	}
	if to, ok := queryDate(c, "date_to"); ok {
		query = query.Where("created_at <= ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var movements []models.StockMovement
	if err := query.Preload("Product").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&movements).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       movements,
		"pagination": pg.Meta(total),
	})
}
