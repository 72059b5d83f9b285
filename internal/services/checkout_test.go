package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/testutil"
)

func newCheckout(db *gorm.DB) *CheckoutService {
	rules := PricingRules{ShippingFlatFee: 5.99, FreeShippingThreshold: 50}
	return NewCheckoutService(db, rules, "USD", NewNotifier(nil, nil, "USD"), nil)
}

func testAddress() *AddressInput {
	return &AddressInput{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		AddressLine1: "1 Analytical Way",
		City:         "London",
		PostalCode:   "N1 1AA",
		Country:      "UK",
	}
}

func stockOf(t *testing.T, db *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p
}

func TestPlaceOrderDecrementsStockAndClearsCart(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	serum := testutil.CreateProduct(t, db, "Vitamin C Serum", 25, 3)
	cream := testutil.CreateProduct(t, db, "Night Cream", 10, 10)

	if err := db.Create(&models.CartItem{UserID: &user.ID, ProductID: serum.ID, Quantity: 1}).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	order, err := newCheckout(db).PlaceOrder(context.Background(), CheckoutRequest{
		UserID: &user.ID,
		Items: []CheckoutItem{
			{ProductID: serum.ID, Quantity: 2},
			{ProductID: cream.ID, Quantity: 1},
			{ProductID: serum.ID, Quantity: 1},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCard,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if order.Subtotal != 85 || order.ShippingCost != 0 || order.TotalAmount != 85 {
		t.Fatalf("unexpected totals: %+v", order)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected merged lines, got %d", len(order.Items))
	}
	if order.Status != models.OrderPending || order.PaymentStatus != models.PaymentPending {
		t.Fatalf("unexpected statuses %s/%s", order.Status, order.PaymentStatus)
	}

	if p := stockOf(t, db, serum.ID); p.StockQuantity != 0 || p.Status != models.ProductOutOfStock {
		t.Fatalf("serum stock=%d status=%s", p.StockQuantity, p.Status)
	}
	if p := stockOf(t, db, cream.ID); p.StockQuantity != 9 {
		t.Fatalf("cream stock=%d", p.StockQuantity)
	}

	var cart int64
	db.Model(&models.CartItem{}).Where("user_id = ?", user.ID).Count(&cart)
	if cart != 0 {
		t.Fatalf("cart not cleared: %d lines", cart)
	}

	var movements int64
	db.Model(&models.StockMovement{}).Where("reference = ?", order.OrderNumber).Count(&movements)
	if movements != 2 {
		t.Fatalf("expected 2 stock movements, got %d", movements)
	}

	var saved int64
	db.Model(&models.Address{}).Where("user_id = ?", user.ID).Count(&saved)
	if saved != 0 {
		t.Fatalf("order snapshot leaked into address book")
	}
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	a := testutil.CreateProduct(t, db, "Toner", 12, 5)
	b := testutil.CreateProduct(t, db, "Lip Balm", 4, 1)

	_, err := newCheckout(db).PlaceOrder(context.Background(), CheckoutRequest{
		UserID: &user.ID,
		Items: []CheckoutItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 2},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCard,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if p := stockOf(t, db, a.ID); p.StockQuantity != 5 {
		t.Fatalf("stock changed after failed checkout: %d", p.StockQuantity)
	}
	var orders int64
	db.Model(&models.Order{}).Count(&orders)
	if orders != 0 {
		t.Fatalf("expected no orders, got %d", orders)
	}
}

func TestPlaceOrderCouponBelowMinimumStillSucceeds(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Face Mask", 20, 10)

	coupon := models.Coupon{
		Code:              "SAVE10",
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     10,
		MinPurchaseAmount: 100,
		IsActive:          true,
	}
	if err := db.Create(&coupon).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	order, err := newCheckout(db).PlaceOrder(context.Background(), CheckoutRequest{
		UserID:          &user.ID,
		Items:           []CheckoutItem{{ProductID: p.ID, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCard,
		CouponCode:      "save10",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.DiscountAmount != 0 {
		t.Fatalf("expected no discount, got %v", order.DiscountAmount)
	}
	if order.TotalAmount != 45.99 {
		t.Fatalf("total = %v, want 45.99", order.TotalAmount)
	}

	var reloaded models.Coupon
	db.First(&reloaded, "id = ?", coupon.ID)
	if reloaded.UsedCount != 0 {
		t.Fatalf("coupon usage recorded without a discount")
	}
}

func TestPlaceOrderGuestCouponUsageLimit(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.CreateProduct(t, db, "Cleanser", 30, 10)

	limit := 1
	coupon := models.Coupon{
		Code:          "ONCE",
		DiscountType:  models.DiscountFixed,
		DiscountValue: 5,
		UsageLimit:    &limit,
		IsActive:      true,
	}
	if err := db.Create(&coupon).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	svc := newCheckout(db)
	req := CheckoutRequest{
		SessionID:       "sess-1",
		GuestEmail:      "Guest@Example.com",
		Items:           []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCashOnDelivery,
		CouponCode:      "ONCE",
	}

	order, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	if order.GuestEmail != "guest@example.com" || order.UserID != nil {
		t.Fatalf("unexpected guest fields: %q %v", order.GuestEmail, order.UserID)
	}
	if order.DiscountAmount != 5 {
		t.Fatalf("discount = %v", order.DiscountAmount)
	}

	var usage models.CouponUsage
	if err := db.First(&usage, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("guest coupon usage not recorded: %v", err)
	}

	if _, err := svc.PlaceOrder(context.Background(), req); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected exhausted coupon to be rejected, got %v", err)
	}
}

func TestPlaceOrderRequiresGuestEmail(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.CreateProduct(t, db, "Cleanser", 30, 10)

	_, err := newCheckout(db).PlaceOrder(context.Background(), CheckoutRequest{
		Items:           []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCard,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderRejectsExpiredCoupon(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.CreateProduct(t, db, "Cleanser", 30, 10)

	past := time.Now().Add(-time.Hour)
	if err := db.Create(&models.Coupon{
		Code: "OLD", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true, ExpiresAt: &past,
	}).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	_, err := newCheckout(db).PlaceOrder(context.Background(), CheckoutRequest{
		GuestEmail:      "g@example.com",
		Items:           []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCard,
		CouponCode:      "OLD",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyStockChangeRefusesOverdraw(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.CreateProduct(t, db, "Toner", 12, 2)

	_, err := ApplyStockChange(db, StockChange{ProductID: p.ID, Delta: -3, Reason: models.StockSale})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	_, err = ApplyStockChange(db, StockChange{ProductID: uuid.New(), Delta: 1, Reason: models.StockAdjustment})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
