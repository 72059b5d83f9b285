package services

import (
	"context"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/telemetry"
)

// StockChange describes a relative change applied to one product.
type StockChange struct {
	ProductID uuid.UUID
	Delta     int
	Reason    models.StockReason
	Reference string
	Note      string
	Actor     *uuid.UUID
}

// ApplyStockChange adjusts a product's stock inside tx. Decrements are
// conditional on sufficient stock, so two concurrent transactions can never
// drive stock below zero. The product status follows the new quantity and a
// stock movement is recorded.
func ApplyStockChange(tx *gorm.DB, change StockChange) (models.Product, error) {
	query := tx.Model(&models.Product{}).Where("id = ?", change.ProductID)
	if change.Delta < 0 {
		query = query.Where("stock_quantity >= ?", -change.Delta)
	}

	result := query.UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", change.Delta))
	if result.Error != nil {
		return models.Product{}, result.Error
	}
	if result.RowsAffected == 0 {
		var exists int64
		if err := tx.Model(&models.Product{}).Where("id = ?", change.ProductID).Count(&exists).Error; err != nil {
			return models.Product{}, err
		}
		if exists == 0 {
			return models.Product{}, apperr.NotFound("product not found")
		}
		return models.Product{}, apperr.Validation("insufficient stock for product %s", change.ProductID)
	}

	return finishStockChange(tx, change)
}

// SetStock sets a product's stock to an absolute quantity inside tx.
func SetStock(tx *gorm.DB, productID uuid.UUID, quantity int, reason models.StockReason, reference, note string, actor *uuid.UUID) (models.Product, error) {
	if quantity < 0 {
		return models.Product{}, apperr.Validation("stock_quantity must not be negative")
	}

	var product models.Product
	if err := tx.Select("id", "stock_quantity").First(&product, "id = ?", productID).Error; err != nil {
		return models.Product{}, apperr.NotFoundOr(err, "product not found")
	}

	delta := quantity - product.StockQuantity
	if err := tx.Model(&models.Product{}).Where("id = ?", productID).
		UpdateColumn("stock_quantity", quantity).Error; err != nil {
		return models.Product{}, err
	}

	return finishStockChange(tx, StockChange{
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		Note:      note,
		Actor:     actor,
	})
}

func finishStockChange(tx *gorm.DB, change StockChange) (models.Product, error) {
	var product models.Product
	if err := tx.First(&product, "id = ?", change.ProductID).Error; err != nil {
		return models.Product{}, err
	}

	if next, ok := statusForStock(product); ok {
		if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).
			UpdateColumn("status", next).Error; err != nil {
			return models.Product{}, err
		}
		product.Status = next
	}

	if change.Delta != 0 {
		movement := models.StockMovement{
			ProductID:  product.ID,
			Change:     change.Delta,
			StockAfter: product.StockQuantity,
			Reason:     change.Reason,
			Reference:  change.Reference,
			Note:       change.Note,
			CreatedBy:  change.Actor,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return models.Product{}, err
		}
	}

	return product, nil
}

// statusForStock flips active products with no stock to out_of_stock and
// restocked out_of_stock products back to active. Inactive and draft
// products keep their status.
func statusForStock(p models.Product) (models.ProductStatus, bool) {
	switch {
	case p.StockQuantity <= 0 && p.Status == models.ProductActive:
		return models.ProductOutOfStock, true
	case p.StockQuantity > 0 && p.Status == models.ProductOutOfStock:
		return models.ProductActive, true
	}
	return "", false
}

// StockService manages inventory levels from the back-office.
type StockService struct {
	db       *gorm.DB
	notifier *Notifier
	cache    *CatalogCache
}

// NewStockService constructs StockService.
func NewStockService(db *gorm.DB, notifier *Notifier, cache *CatalogCache) *StockService {
	return &StockService{db: db, notifier: notifier, cache: cache}
}

// StockUpdate is one entry of a bulk stock update.
type StockUpdate struct {
	ProductID         uuid.UUID `json:"product_id" validate:"required"`
	StockQuantity     *int      `json:"stock_quantity" validate:"required,gte=0"`
	LowStockThreshold *int      `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

// BulkUpdate sets absolute stock levels for several products in one transaction.
func (s *StockService) BulkUpdate(ctx context.Context, updates []StockUpdate, note string, actor *uuid.UUID) (products []models.Product, err error) {
	ctx, span := telemetry.StartSpan(ctx, "stock.bulk_update", attribute.Int("stock.items", len(updates)))
	defer func() { telemetry.EndSpan(span, err) }()

	if len(updates) == 0 {
		return nil, apperr.Validation("updates must contain at least 1 entries")
	}

	seen := make(map[uuid.UUID]bool, len(updates))
	for _, u := range updates {
		if u.StockQuantity == nil || *u.StockQuantity < 0 {
			return nil, apperr.Validation("stock_quantity must be greater than or equal to 0")
		}
		if seen[u.ProductID] {
			return nil, apperr.Validation("product %s listed more than once", u.ProductID)
		}
		seen[u.ProductID] = true
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if u.LowStockThreshold != nil {
				if err := tx.Model(&models.Product{}).Where("id = ?", u.ProductID).
					UpdateColumn("low_stock_threshold", *u.LowStockThreshold).Error; err != nil {
					return err
				}
			}
			product, err := SetStock(tx, u.ProductID, *u.StockQuantity, models.StockAdjustment, "bulk", note, actor)
			if err != nil {
				return err
			}
			products = append(products, product)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, products)
	return products, nil
}

// StockAdjustment changes a single product's stock, either to an absolute
// quantity or by a delta.
type StockAdjustment struct {
	Quantity *int   `json:"quantity" validate:"omitempty,gte=0"`
	Delta    *int   `json:"delta"`
	Note     string `json:"note" validate:"max=500"`
}

// Adjust applies a single manual stock adjustment.
func (s *StockService) Adjust(ctx context.Context, productID uuid.UUID, adj StockAdjustment, actor *uuid.UUID) (product models.Product, err error) {
	ctx, span := telemetry.StartSpan(ctx, "stock.adjust", attribute.String("product.id", productID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	if (adj.Quantity == nil) == (adj.Delta == nil) {
		return models.Product{}, apperr.Validation("exactly one of quantity or delta is required")
	}
	if adj.Delta != nil && *adj.Delta == 0 {
		return models.Product{}, apperr.Validation("delta must not be zero")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if adj.Quantity != nil {
			product, err = SetStock(tx, productID, *adj.Quantity, models.StockAdjustment, "manual", adj.Note, actor)
			return err
		}
		product, err = ApplyStockChange(tx, StockChange{
			ProductID: productID,
			Delta:     *adj.Delta,
			Reason:    models.StockAdjustment,
			Reference: "manual",
			Note:      adj.Note,
			Actor:     actor,
		})
		return err
	})
	if err != nil {
		return models.Product{}, err
	}

	s.afterChange(ctx, []models.Product{product})
	return product, nil
}

func (s *StockService) afterChange(ctx context.Context, products []models.Product) {
	s.cache.Invalidate(ctx)

	var low []models.Product
	for _, p := range products {
		if p.IsLowStock() {
			low = append(low, p)
		}
	}
	if len(low) > 0 {
		log.Printf("[Stock] %d product(s) at or below threshold", len(low))
		s.notifier.LowStock(low)
	}
}
