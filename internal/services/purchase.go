package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/telemetry"
	"github.com/example/glowbeauty/internal/utils"
)

// PurchaseService manages supplier purchase orders.
type PurchaseService struct {
	db       *gorm.DB
	notifier *Notifier
	cache    *CatalogCache
	now      func() time.Time
}

// NewPurchaseService constructs PurchaseService.
func NewPurchaseService(db *gorm.DB, notifier *Notifier, cache *CatalogCache) *PurchaseService {
	return &PurchaseService{db: db, notifier: notifier, cache: cache, now: time.Now}
}

// PurchaseItemInput is one line of a new purchase order.
type PurchaseItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=1"`
	UnitCost  float64   `json:"unit_cost" validate:"gte=0"`
}

// PurchaseOrderInput describes a new purchase order.
type PurchaseOrderInput struct {
	SupplierID   uuid.UUID             `json:"supplier_id" validate:"required"`
	Status       models.PurchaseStatus `json:"status" validate:"omitempty,oneof=draft ordered"`
	ExpectedDate *time.Time            `json:"expected_date"`
	Notes        string                `json:"notes"`
	Items        []PurchaseItemInput   `json:"items" validate:"required,min=1,dive"`
}

// Create writes a purchase order and its lines in one transaction.
func (s *PurchaseService) Create(ctx context.Context, input PurchaseOrderInput, actor *uuid.UUID) (po models.PurchaseOrder, err error) {
	ctx, span := telemetry.StartSpan(ctx, "purchase.create", attribute.Int("purchase.items", len(input.Items)))
	defer func() { telemetry.EndSpan(span, err) }()

	if len(input.Items) == 0 {
		return models.PurchaseOrder{}, apperr.Validation("items must contain at least 1 entries")
	}
	status := input.Status
	if status == "" {
		status = models.PurchaseDraft
	}
	if status != models.PurchaseDraft && status != models.PurchaseOrdered {
		return models.PurchaseOrder{}, apperr.Validation("new purchase orders must be draft or ordered")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var supplier models.Supplier
		if err := tx.First(&supplier, "id = ?", input.SupplierID).Error; err != nil {
			return apperr.NotFoundOr(err, "supplier not found")
		}
		if supplier.Status != "active" {
			return apperr.Validation("supplier is not active")
		}

		total := decimal.Zero
		items := make([]models.PurchaseOrderItem, 0, len(input.Items))
		for _, in := range input.Items {
			if in.Quantity < 1 {
				return apperr.Validation("quantity must be at least 1")
			}
			if in.UnitCost < 0 {
				return apperr.Validation("unit_cost must not be negative")
			}
			var count int64
			if err := tx.Model(&models.Product{}).Where("id = ?", in.ProductID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperr.Validation("product %s does not exist", in.ProductID)
			}

			line := LineTotal(in.UnitCost, in.Quantity)
			total = total.Add(line)
			items = append(items, models.PurchaseOrderItem{
				ProductID: in.ProductID,
				Quantity:  in.Quantity,
				UnitCost:  in.UnitCost,
				TotalCost: Float(line),
			})
		}

		number, err := s.uniquePONumber(tx)
		if err != nil {
			return err
		}

		po = models.PurchaseOrder{
			PONumber:     number,
			SupplierID:   supplier.ID,
			Status:       status,
			TotalAmount:  Float(total),
			ExpectedDate: input.ExpectedDate,
			Notes:        input.Notes,
			CreatedBy:    actor,
			Items:        items,
		}
		if err := tx.Create(&po).Error; err != nil {
			return err
		}
		po.Supplier = &supplier
		return nil
	})
	if err != nil {
		return models.PurchaseOrder{}, err
	}
	return po, nil
}

// UpdateStatus moves a purchase order along its lifecycle. Moving to
// received books every outstanding unit into stock.
func (s *PurchaseService) UpdateStatus(ctx context.Context, id uuid.UUID, next models.PurchaseStatus, actor *uuid.UUID) (models.PurchaseOrder, error) {
	if !next.Valid() {
		return models.PurchaseOrder{}, apperr.Validation("invalid purchase status %q", next)
	}
	if next == models.PurchaseReceived {
		return s.Receive(ctx, id, nil, actor)
	}
	if next == models.PurchasePartiallyReceived {
		return models.PurchaseOrder{}, apperr.Validation("use the receive endpoint to book partial deliveries")
	}

	var po models.PurchaseOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&po, "id = ?", id).Error; err != nil {
			return apperr.NotFoundOr(err, "purchase order not found")
		}
		if !po.Status.CanTransitionTo(next) {
			return apperr.Conflict("cannot change purchase order status from %s to %s", po.Status, next)
		}
		if err := tx.Model(&models.PurchaseOrder{}).Where("id = ?", po.ID).
			Update("status", next).Error; err != nil {
			return err
		}
		po.Status = next
		return nil
	})
	return po, err
}

// ReceiveLine books a quantity of one purchase order line.
type ReceiveLine struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"gte=1"`
}

// Receive books delivered goods into stock. With no lines every outstanding
// unit is received.
func (s *PurchaseService) Receive(ctx context.Context, id uuid.UUID, lines []ReceiveLine, actor *uuid.UUID) (po models.PurchaseOrder, err error) {
	ctx, span := telemetry.StartSpan(ctx, "purchase.receive", attribute.String("purchase.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&po, "id = ?", id).Error; err != nil {
			return apperr.NotFoundOr(err, "purchase order not found")
		}
		if !po.Status.Receivable() {
			return apperr.Conflict("purchase order in status %s cannot receive goods", po.Status)
		}

		requested := make(map[uuid.UUID]int)
		if len(lines) == 0 {
			for _, item := range po.Items {
				if out := item.Outstanding(); out > 0 {
					requested[item.ID] = out
				}
			}
		} else {
			for _, line := range lines {
				if line.Quantity < 1 {
					return apperr.Validation("quantity must be at least 1")
				}
				requested[line.ItemID] += line.Quantity
			}
		}
		if len(requested) == 0 {
			return apperr.Validation("nothing left to receive")
		}

		itemsByID := make(map[uuid.UUID]*models.PurchaseOrderItem, len(po.Items))
		for i := range po.Items {
			itemsByID[po.Items[i].ID] = &po.Items[i]
		}

		for itemID, qty := range requested {
			item, ok := itemsByID[itemID]
			if !ok {
				return apperr.Validation("item %s does not belong to this purchase order", itemID)
			}
			if qty > item.Outstanding() {
				return apperr.Validation("cannot receive %d units of item %s: %d outstanding", qty, itemID, item.Outstanding())
			}

			if err := tx.Model(&models.PurchaseOrderItem{}).Where("id = ?", item.ID).
				UpdateColumn("received_quantity", gorm.Expr("received_quantity + ?", qty)).Error; err != nil {
				return err
			}
			item.ReceivedQuantity += qty

			if _, err := ApplyStockChange(tx, StockChange{
				ProductID: item.ProductID,
				Delta:     qty,
				Reason:    models.StockPurchase,
				Reference: po.PONumber,
				Actor:     actor,
			}); err != nil {
				return err
			}
		}

		next := models.PurchaseReceived
		for _, item := range po.Items {
			if item.Outstanding() > 0 {
				next = models.PurchasePartiallyReceived
				break
			}
		}

		updates := map[string]any{"status": next}
		if next == models.PurchaseReceived {
			now := s.now()
			updates["received_at"] = now
			po.ReceivedAt = &now
		}
		if err := tx.Model(&models.PurchaseOrder{}).Where("id = ?", po.ID).Updates(updates).Error; err != nil {
			return err
		}
		po.Status = next
		return nil
	})
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	s.cache.Invalidate(ctx)
	s.notifier.Publish(EventPurchaseReceived, map[string]any{
		"purchase_order_id": po.ID,
		"po_number":         po.PONumber,
		"status":            po.Status,
	})
	return po, nil
}

func (s *PurchaseService) uniquePONumber(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := utils.GenerateReference("PO", s.now())
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&models.PurchaseOrder{}).Where("po_number = ?", number).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", apperr.Conflict("could not allocate a unique purchase order number")
}
