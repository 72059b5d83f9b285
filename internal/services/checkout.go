package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
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

const orderNumberAttempts = 5

// AddressInput is a postal address submitted at checkout.
type AddressInput struct {
	FirstName    string `json:"first_name" validate:"required,max=100"`
	LastName     string `json:"last_name" validate:"required,max=100"`
	Company      string `json:"company" validate:"max=150"`
	Phone        string `json:"phone" validate:"max=32"`
	Email        string `json:"email" validate:"omitempty,email"`
	AddressLine1 string `json:"address_line1" validate:"required,max=255"`
	AddressLine2 string `json:"address_line2" validate:"max=255"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
}

// ToAddress converts the input into an unsaved address row.
func (a AddressInput) ToAddress(kind models.AddressType, userID *uuid.UUID) models.Address {
	return models.Address{
		UserID:       userID,
		Type:         kind,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Company:      a.Company,
		Phone:        a.Phone,
		Email:        a.Email,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
	}
}

// CheckoutItem is one requested cart line.
type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=1,lte=1000"`
}

// CheckoutRequest carries everything needed to place an order.
type CheckoutRequest struct {
	UserID            *uuid.UUID
	SessionID         string
	GuestEmail        string
	Items             []CheckoutItem
	ShippingAddress   *AddressInput
	ShippingAddressID *uuid.UUID
	BillingAddress    *AddressInput
	BillingAddressID  *uuid.UUID
	PaymentMethod     models.PaymentMethod
	CouponCode        string
	Notes             string
}

// CheckoutService places orders.
type CheckoutService struct {
	db       *gorm.DB
	rules    PricingRules
	currency string
	notifier *Notifier
	cache    *CatalogCache
	now      func() time.Time
}

// NewCheckoutService constructs CheckoutService.
func NewCheckoutService(db *gorm.DB, rules PricingRules, currency string, notifier *Notifier, cache *CatalogCache) *CheckoutService {
	if currency == "" {
		currency = "USD"
	}
	return &CheckoutService{db: db, rules: rules, currency: currency, notifier: notifier, cache: cache, now: time.Now}
}

// PlaceOrder validates stock, prices the cart, applies the coupon and writes
// the order in a single transaction. Any failure rolls everything back.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req CheckoutRequest) (order models.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "checkout.place_order",
		attribute.Int("checkout.items", len(req.Items)),
		attribute.Bool("checkout.guest", req.UserID == nil),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	items, err := mergeItems(req.Items)
	if err != nil {
		return models.Order{}, err
	}
	if !req.PaymentMethod.Valid() {
		return models.Order{}, apperr.Validation("invalid payment method")
	}
	if req.UserID == nil && strings.TrimSpace(req.GuestEmail) == "" {
		return models.Order{}, apperr.Validation("guest_email is required for guest checkout")
	}

	var customerName string
	var lowStock []models.Product

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := loadProducts(tx, items)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		orderItems := make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			product := products[item.ProductID]
			unit := product.EffectivePrice()
			line := LineTotal(unit, item.Quantity)
			subtotal = subtotal.Add(line)
			orderItems = append(orderItems, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				ProductSKU:  product.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   unit,
				TotalPrice:  Float(line),
			})
		}

		var coupon *models.Coupon
		discount := decimal.Zero
		if code := normalizeCouponCode(req.CouponCode); code != "" {
			c, err := s.findCoupon(tx, code, req.UserID)
			if err != nil {
				return err
			}
			coupon = &c
			discount = CouponDiscount(c, subtotal)
		}

		quote := s.rules.Quote(subtotal, discount)

		shipping, err := s.resolveAddress(tx, models.AddressShipping, req.ShippingAddress, req.ShippingAddressID, req.UserID)
		if err != nil {
			return err
		}
		billing := shipping
		if req.BillingAddress != nil || req.BillingAddressID != nil {
			billing, err = s.resolveAddress(tx, models.AddressBilling, req.BillingAddress, req.BillingAddressID, req.UserID)
			if err != nil {
				return err
			}
		}
		billing.ID = uuid.Nil
		billing.Type = models.AddressBilling
		if err := tx.Create(&shipping).Error; err != nil {
			return err
		}
		if err := tx.Create(&billing).Error; err != nil {
			return err
		}

		number, err := s.uniqueOrderNumber(tx)
		if err != nil {
			return err
		}

		order = models.Order{
			OrderNumber:       number,
			UserID:            req.UserID,
			Status:            models.OrderPending,
			PaymentStatus:     models.PaymentPending,
			PaymentMethod:     req.PaymentMethod,
			Subtotal:          Float(quote.Subtotal),
			DiscountAmount:    Float(quote.Discount),
			ShippingCost:      Float(quote.Shipping),
			TaxAmount:         Float(quote.Tax),
			TotalAmount:       Float(quote.Total),
			Currency:          s.currency,
			ShippingAddressID: &shipping.ID,
			BillingAddressID:  &billing.ID,
			Notes:             req.Notes,
			PlacedAt:          s.now(),
			Items:             orderItems,
		}
		if req.UserID == nil {
			order.GuestEmail = strings.ToLower(strings.TrimSpace(req.GuestEmail))
		}
		if coupon != nil && discount.IsPositive() {
			order.CouponCode = coupon.Code
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		history := models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.OrderPending,
			Note:      "Order placed",
			ChangedBy: req.UserID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		for _, item := range items {
			product, err := ApplyStockChange(tx, StockChange{
				ProductID: item.ProductID,
				Delta:     -item.Quantity,
				Reason:    models.StockSale,
				Reference: order.OrderNumber,
				Actor:     req.UserID,
			})
			if err != nil {
				return err
			}
			if product.IsLowStock() {
				lowStock = append(lowStock, product)
			}
		}

		if err := clearCart(tx, req.UserID, req.SessionID); err != nil {
			return err
		}

		if coupon != nil && discount.IsPositive() {
			if err := recordCouponUsage(tx, *coupon, order, Float(discount)); err != nil {
				return err
			}
		}

		if req.UserID != nil {
			var user models.User
			if err := tx.Select("id", "first_name", "last_name", "email").First(&user, "id = ?", *req.UserID).Error; err != nil {
				return apperr.NotFoundOr(err, "user not found")
			}
			order.User = &user
			customerName = user.FullName()

			if err := CreateNotification(tx, user.ID, "order",
				"Order placed",
				fmt.Sprintf("Your order %s has been placed.", order.OrderNumber),
				"/orders/"+order.ID.String()); err != nil {
				return err
			}
		} else {
			customerName = shipping.FirstName + " " + shipping.LastName
		}

		order.ShippingAddress = &shipping
		order.BillingAddress = &billing
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	log.Printf("[Checkout] order %s placed, total %.2f %s", order.OrderNumber, order.TotalAmount, order.Currency)
	s.cache.Invalidate(ctx)
	s.notifier.OrderPlaced(order, customerName)
	s.notifier.LowStock(lowStock)
	return order, nil
}

// Preview prices a cart without writing anything.
func (s *CheckoutService) Preview(ctx context.Context, userID *uuid.UUID, reqItems []CheckoutItem, couponCode string) (Quote, error) {
	items, err := mergeItems(reqItems)
	if err != nil {
		return Quote{}, err
	}

	tx := s.db.WithContext(ctx)
	products, err := loadProducts(tx, items)
	if err != nil {
		return Quote{}, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(products[item.ProductID].EffectivePrice(), item.Quantity))
	}

	discount := decimal.Zero
	if code := normalizeCouponCode(couponCode); code != "" {
		coupon, err := s.findCoupon(tx, code, userID)
		if err != nil {
			return Quote{}, err
		}
		discount = CouponDiscount(coupon, subtotal)
	}

	return s.rules.Quote(subtotal, discount), nil
}

func mergeItems(items []CheckoutItem) ([]CheckoutItem, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("items must contain at least 1 entries")
	}

	index := make(map[uuid.UUID]int, len(items))
	merged := make([]CheckoutItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, apperr.Validation("product_id is required")
		}
		if item.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func loadProducts(tx *gorm.DB, items []CheckoutItem) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	var products []models.Product
	if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !product.Status.Purchasable() {
			return nil, apperr.Validation("product %s is not available", item.ProductID)
		}
		if product.StockQuantity < item.Quantity {
			return nil, apperr.Validation("insufficient stock for %s: %d available", product.Name, product.StockQuantity)
		}
	}
	return byID, nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *CheckoutService) findCoupon(tx *gorm.DB, code string, userID *uuid.UUID) (models.Coupon, error) {
	var coupon models.Coupon
	if err := tx.Where("code = ?", code).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Coupon{}, apperr.Validation("invalid coupon code")
		}
		return models.Coupon{}, err
	}
	if !coupon.UsableAt(s.now()) {
		return models.Coupon{}, apperr.Validation("coupon is expired or no longer available")
	}
	if coupon.UserID != nil && (userID == nil || *coupon.UserID != *userID) {
		return models.Coupon{}, apperr.Validation("coupon is not valid for this account")
	}
	return coupon, nil
}

func (s *CheckoutService) resolveAddress(tx *gorm.DB, kind models.AddressType, input *AddressInput, savedID *uuid.UUID, userID *uuid.UUID) (models.Address, error) {
	if savedID != nil {
		if userID == nil {
			return models.Address{}, apperr.Validation("saved addresses require an account")
		}
		var saved models.Address
		if err := tx.First(&saved, "id = ? AND user_id = ?", *savedID, *userID).Error; err != nil {
			return models.Address{}, apperr.NotFoundOr(err, "address not found")
		}
		snapshot := saved
		snapshot.BaseModel = models.BaseModel{}
		snapshot.UserID = nil
		snapshot.IsDefault = false
		snapshot.Type = kind
		return snapshot, nil
	}
	if input == nil {
		return models.Address{}, apperr.Validation("%s_address is required", kind)
	}
	// Order addresses are snapshots and stay out of the owner's address book.
	return input.ToAddress(kind, nil), nil
}

func (s *CheckoutService) uniqueOrderNumber(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := utils.GenerateReference("ORD", s.now())
		if err != nil {
			return "", err
		}

		var count int64
		if err := tx.Model(&models.Order{}).Where("order_number = ?", number).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", apperr.Conflict("could not allocate a unique order number")
}

func clearCart(tx *gorm.DB, userID *uuid.UUID, sessionID string) error {
	switch {
	case userID != nil:
		return tx.Where("user_id = ?", *userID).Delete(&models.CartItem{}).Error
	case sessionID != "":
		return tx.Where("session_id = ? AND user_id IS NULL", sessionID).Delete(&models.CartItem{}).Error
	}
	return nil
}

// recordCouponUsage writes the usage row and bumps used_count, conditional on
// the usage limit so concurrent checkouts cannot exceed it.
func recordCouponUsage(tx *gorm.DB, coupon models.Coupon, order models.Order, discount float64) error {
	result := tx.Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", coupon.ID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("coupon usage limit reached")
	}

	return tx.Create(&models.CouponUsage{
		CouponID:       coupon.ID,
		UserID:         order.UserID,
		GuestEmail:     order.GuestEmail,
		OrderID:        order.ID,
		DiscountAmount: discount,
	}).Error
}

// releaseCouponUsage undoes recordCouponUsage for a cancelled order so the
// coupon, including a single-use reward coupon, can be used again.
func releaseCouponUsage(tx *gorm.DB, orderID uuid.UUID) error {
	var usage models.CouponUsage
	err := tx.Where("order_id = ?", orderID).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.Delete(&models.CouponUsage{}, "id = ?", usage.ID).Error; err != nil {
		return err
	}
	return tx.Model(&models.Coupon{}).
		Where("id = ? AND used_count > 0", usage.CouponID).
		UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error
}
