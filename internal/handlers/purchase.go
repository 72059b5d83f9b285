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

// PurchaseHandler manages suppliers and purchase orders.
type PurchaseHandler struct {
	db       *gorm.DB
	purchase *services.PurchaseService
}

// NewPurchaseHandler constructs PurchaseHandler.
func NewPurchaseHandler(db *gorm.DB, purchase *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{db: db, purchase: purchase}
}

const (
	supplierActive   = "active"
	supplierInactive = "inactive"
)

// Suppliers

// ListSuppliers returns suppliers with optional status and search filters.
func (h *PurchaseHandler) ListSuppliers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Supplier{})

	if status := c.Query("status"); status != "" {
		if status != supplierActive && status != supplierInactive {
			return apperr.Validation("status must be one of [active inactive]")
		}
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := likePattern(search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(contact_name) LIKE ? OR LOWER(email) LIKE ?", q, q, q)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var suppliers []models.Supplier
	if err := query.Order("name asc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&suppliers).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       suppliers,
		"pagination": pg.Meta(total),
	})
}

// GetSupplier returns one supplier.
func (h *PurchaseHandler) GetSupplier(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var supplier models.Supplier
	if err := h.db.First(&supplier, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "supplier not found")
	}
	return c.JSON(fiber.Map{"success": true, "data": supplier})
}

type supplierRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=191"`
	ContactName *string `json:"contact_name" validate:"omitempty,max=150"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	Notes       *string `json:"notes"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (r supplierRequest) apply(s *models.Supplier) {
	if r.Name != nil {
		s.Name = strings.TrimSpace(*r.Name)
	}
	if r.ContactName != nil {
		s.ContactName = *r.ContactName
	}
	if r.Email != nil {
		s.Email = strings.ToLower(strings.TrimSpace(*r.Email))
	}
	if r.Phone != nil {
		s.Phone = *r.Phone
	}
	if r.Address != nil {
		s.Address = *r.Address
	}
	if r.Notes != nil {
		s.Notes = *r.Notes
	}
	if r.Status != nil {
		s.Status = *r.Status
	}
}

// CreateSupplier adds a supplier.
func (h *PurchaseHandler) CreateSupplier(c *fiber.Ctx) error {
	var req supplierRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return apperr.Validation("name is required")
	}

	supplier := models.Supplier{Status: supplierActive}
	req.apply(&supplier)
	if err := h.db.Create(&supplier).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": supplier})
}

// UpdateSupplier applies a partial update to a supplier.
func (h *PurchaseHandler) UpdateSupplier(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req supplierRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	var supplier models.Supplier
	if err := h.db.First(&supplier, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "supplier not found")
	}
	req.apply(&supplier)
	if supplier.Name == "" {
		return apperr.Validation("name is required")
	}
	if err := h.db.Save(&supplier).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": supplier})
}

// DeleteSupplier removes a supplier without purchase orders. Suppliers that
// have purchase orders are deactivated instead and the request answers 409.
func (h *PurchaseHandler) DeleteSupplier(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var supplier models.Supplier
	if err := h.db.First(&supplier, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "supplier not found")
	}

	var orders int64
	if err := h.db.Model(&models.PurchaseOrder{}).Where("supplier_id = ?", id).Count(&orders).Error; err != nil {
		return err
	}
	if orders > 0 {
		if err := h.db.Model(&models.Supplier{}).Where("id = ?", id).Update("status", supplierInactive).Error; err != nil {
			return err
		}
		return apperr.Conflict("supplier has %d purchase orders and was deactivated instead", orders)
	}

	if err := h.db.Delete(&models.Supplier{}, "id = ?", id).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "supplier deleted"})
}

// Purchase orders

// ListPurchaseOrders returns purchase orders filtered by status and supplier.
func (h *PurchaseHandler) ListPurchaseOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PurchaseOrder{})

	if status := models.PurchaseStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return apperr.Validation("invalid purchase order status %q", status)
		}
		query = query.Where("status = ?", status)
	}
	if v := c.Query("supplier_id"); v != "" {
		supplierID, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid supplier_id")
		}
		query = query.Where("supplier_id = ?", supplierID)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(po_number) LIKE ?", likePattern(search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.PurchaseOrder
	if err := query.Preload("Supplier").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

// GetPurchaseOrder returns a purchase order with supplier and lines.
func (h *PurchaseHandler) GetPurchaseOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var po models.PurchaseOrder
	if err := h.db.Preload("Supplier").Preload("Items.Product").First(&po, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "purchase order not found")
	}
	return c.JSON(fiber.Map{"success": true, "data": po})
}

// CreatePurchaseOrder creates a purchase order with its lines.
func (h *PurchaseHandler) CreatePurchaseOrder(c *fiber.Ctx) error {
	var req services.PurchaseOrderInput
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	po, err := h.purchase.Create(c.UserContext(), req, actor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": po})
}

type purchaseStatusRequest struct {
	Status models.PurchaseStatus `json:"status" validate:"required"`
}

// UpdatePurchaseOrderStatus moves a purchase order along its lifecycle.
func (h *PurchaseHandler) UpdatePurchaseOrderStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req purchaseStatusRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	po, err := h.purchase.UpdateStatus(c.UserContext(), id, req.Status, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "purchase order status updated", "data": po})
}

type receiveRequest struct {
	Items []services.ReceiveLine `json:"items" validate:"omitempty,dive"`
}

// ReceivePurchaseOrder books delivered goods. An empty body receives every
// outstanding line in full.
func (h *PurchaseHandler) ReceivePurchaseOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req receiveRequest
	if len(c.Body()) > 0 {
		if err := validate.Body(c, &req); err != nil {
			return err
		}
	}

	po, err := h.purchase.Receive(c.UserContext(), id, req.Items, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "items received", "data": po})
}

// DeletePurchaseOrder removes a draft or cancelled purchase order.
func (h *PurchaseHandler) DeletePurchaseOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var po models.PurchaseOrder
		if err := tx.First(&po, "id = ?", id).Error; err != nil {
			return apperr.NotFoundOr(err, "purchase order not found")
		}
		if po.Status != models.PurchaseDraft && po.Status != models.PurchaseCancelled {
			return apperr.Conflict("only draft or cancelled purchase orders can be deleted")
		}
		if err := tx.Where("purchase_order_id = ?", po.ID).Delete(&models.PurchaseOrderItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PurchaseOrder{}, "id = ?", po.ID).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "purchase order deleted"})
}
