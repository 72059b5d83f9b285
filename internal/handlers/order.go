package handlers

import (
	"strings"
	"time"

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

// OrderHandler manages checkout and order endpoints.
type OrderHandler struct {
	db       *gorm.DB
	checkout *services.CheckoutService
	orders   *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, checkout *services.CheckoutService, orders *services.OrderService) *OrderHandler {
	return &OrderHandler{db: db, checkout: checkout, orders: orders}
}

type createOrderRequest struct {
	Items             []services.CheckoutItem `json:"items" validate:"required,min=1,dive"`
	ShippingAddress   *services.AddressInput  `json:"shipping_address" validate:"omitempty"`
	ShippingAddressID *uuid.UUID              `json:"shipping_address_id"`
	BillingAddress    *services.AddressInput  `json:"billing_address" validate:"omitempty"`
	BillingAddressID  *uuid.UUID              `json:"billing_address_id"`
	PaymentMethod     models.PaymentMethod    `json:"payment_method" validate:"required,oneof=card cash_on_delivery paypal bank_transfer"`
	CouponCode        string                  `json:"coupon_code" validate:"max=50"`
	GuestEmail        string                  `json:"guest_email" validate:"omitempty,email"`
	Notes             string                  `json:"notes" validate:"max=1000"`
}

// CreateOrder places an order for the authenticated user or a guest.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	checkout := services.CheckoutRequest{
		SessionID:         middleware.SessionID(c),
		GuestEmail:        req.GuestEmail,
		Items:             req.Items,
		ShippingAddress:   req.ShippingAddress,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddress:    req.BillingAddress,
		BillingAddressID:  req.BillingAddressID,
		PaymentMethod:     req.PaymentMethod,
		CouponCode:        req.CouponCode,
		Notes:             req.Notes,
	}
	if userID, ok := middleware.GetCurrentUserID(c); ok {
		checkout.UserID = &userID
	}

	order, err := h.checkout.PlaceOrder(c.UserContext(), checkout)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "order placed successfully",
		"data": fiber.Map{
			"id":              order.ID,
			"order_number":    order.OrderNumber,
			"status":          order.Status,
			"payment_status":  order.PaymentStatus,
			"subtotal":        order.Subtotal,
			"discount_amount": order.DiscountAmount,
			"shipping_cost":   order.ShippingCost,
			"tax_amount":      order.TaxAmount,
			"total":           order.TotalAmount,
			"currency":        order.Currency,
			"placed_at":       order.PlacedAt,
		},
	})
}

type quoteRequest struct {
	Items      []services.CheckoutItem `json:"items" validate:"required,min=1,dive"`
	CouponCode string                  `json:"coupon_code" validate:"max=50"`
}

// QuoteOrder prices items without placing an order.
func (h *OrderHandler) QuoteOrder(c *fiber.Ctx) error {
	var req quoteRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	var userID *uuid.UUID
	if id, ok := middleware.GetCurrentUserID(c); ok {
		userID = &id
	}

	quote, err := h.checkout.Preview(c.UserContext(), userID, req.Items, req.CouponCode)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"subtotal":        services.Float(quote.Subtotal),
			"discount_amount": services.Float(quote.Discount),
			"shipping_cost":   services.Float(quote.Shipping),
			"tax_amount":      services.Float(quote.Tax),
			"total":           services.Float(quote.Total),
		},
	})
}

// ListMyOrders returns the authenticated user's orders.
func (h *OrderHandler) ListMyOrders(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{}).Where("user_id = ?", userID)
	if status := models.OrderStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return apperr.Validation("invalid order status %q", status)
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
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

func withOrderDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("ShippingAddress").
		Preload("BillingAddress")
}

// GetMyOrder returns one of the authenticated user's orders.
func (h *OrderHandler) GetMyOrder(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var order models.Order
	if err := withOrderDetails(h.db).
		Where("user_id = ?", userID).
		First(&order, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "order not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// GetOrderByNumber lets a guest look up an order with its number and the
// email it was placed with.
func (h *OrderHandler) GetOrderByNumber(c *fiber.Ctx) error {
	number := strings.TrimSpace(c.Params("orderNumber"))
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" {
		return apperr.Validation("email is required")
	}

	var order models.Order
	if err := withOrderDetails(h.db).Preload("User").
		Where("order_number = ?", number).
		First(&order).Error; err != nil {
		return apperr.NotFoundOr(err, "order not found")
	}
	if strings.ToLower(order.ContactEmail()) != email {
		return apperr.NotFound("order not found")
	}
	order.User = nil

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CancelOrder cancels the authenticated user's pending or confirmed order.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req cancelOrderRequest
	if len(c.Body()) > 0 {
		if err := validate.Body(c, &req); err != nil {
			return err
		}
	}
	note := "Cancelled by customer"
	if req.Reason != "" {
		note += ": " + req.Reason
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), services.StatusChange{
		OrderID: id,
		OwnerID: &userID,
		Next:    models.OrderCancelled,
		Note:    note,
		Actor:   &userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "order cancelled", "data": order})
}

// AdminListOrders returns all orders with filters.
func (h *OrderHandler) AdminListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if status := models.OrderStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return apperr.Validation("invalid order status %q", status)
		}
		query = query.Where("status = ?", status)
	}
	if payment := models.PaymentStatus(c.Query("payment_status")); payment != "" {
		if !payment.Valid() {
			return apperr.Validation("invalid payment status %q", payment)
		}
		query = query.Where("payment_status = ?", payment)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := likePattern(search)
		query = query.Where("LOWER(order_number) LIKE ? OR LOWER(guest_email) LIKE ? OR user_id IN (?)",
			q, q, h.db.Model(&models.User{}).Select("id").
				Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", q, q, q))
	}
	if from, ok := queryDate(c, "date_from"); ok {
		query = query.Where("placed_at >= ?", from)
	}
	if to, ok := queryDate(c, "date_to"); ok {
		if len(c.Query("date_to")) == len("2006-01-02") {
			to = to.Add(24 * time.Hour)
		}
		query = query.Where("placed_at < ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("User").Preload("Items").
		Order("placed_at desc").
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

// AdminGetOrder returns any order with its details.
func (h *OrderHandler) AdminGetOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var order models.Order
	if err := withOrderDetails(h.db).Preload("User").First(&order, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "order not found")
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type updateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
	Note   string             `json:"note" validate:"max=500"`
}

// UpdateOrderStatus moves an order along its lifecycle.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req updateOrderStatusRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), services.StatusChange{
		OrderID: id,
		Next:    req.Status,
		Note:    req.Note,
		Actor:   actor(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "order status updated", "data": order})
}

type updatePaymentStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" validate:"required"`
}

// UpdatePaymentStatus moves an order's payment along its lifecycle.
func (h *OrderHandler) UpdatePaymentStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req updatePaymentStatusRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdatePaymentStatus(c.UserContext(), id, req.PaymentStatus)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "payment status updated", "data": order})
}

// OrderStats aggregates order counts and revenue.
func (h *OrderHandler) OrderStats(c *fiber.Ctx) error {
	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}

	var byStatus []statusCount
	if err := h.db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return err
	}

	var byPayment []struct {
		PaymentStatus string `json:"payment_status"`
		Count         int64  `json:"count"`
	}
	if err := h.db.Model(&models.Order{}).
		Select("payment_status, count(*) as count").
		Group("payment_status").
		Scan(&byPayment).Error; err != nil {
		return err
	}

	var revenue struct {
		Total   float64
		Average float64
		Orders  int64
	}
	if err := h.db.Model(&models.Order{}).
		Where("status NOT IN ?", []models.OrderStatus{models.OrderCancelled, models.OrderReturned}).
		Select("COALESCE(SUM(total_amount), 0) AS total, COALESCE(AVG(total_amount), 0) AS average, COUNT(*) AS orders").
		Scan(&revenue).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"by_status":           byStatus,
			"by_payment_status":   byPayment,
			"revenue":             revenue.Total,
			"average_order_value": revenue.Average,
			"revenue_orders":      revenue.Orders,
		},
	})
}
