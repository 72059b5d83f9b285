package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/testutil"
)

func placeTestOrder(t *testing.T, db *gorm.DB, user models.User, product models.Product, qty int) models.Order {
	t.Helper()
	order, err := newCheckout(db).PlaceOrder(context.Background(), CheckoutRequest{
		UserID:          &user.ID,
		Items:           []CheckoutItem{{ProductID: product.ID, Quantity: qty}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func pointsOf(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var user models.User
	if err := db.Select("id", "reward_points").First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user.RewardPoints
}

func advance(t *testing.T, svc *OrderService, id uuid.UUID, statuses ...models.OrderStatus) models.Order {
	t.Helper()
	var order models.Order
	for _, next := range statuses {
		var err error
		order, err = svc.UpdateStatus(context.Background(), StatusChange{OrderID: id, Next: next})
		if err != nil {
			t.Fatalf("move to %s: %v", next, err)
		}
	}
	return order
}

func TestBulkUpdateFlipsStatusesInOneTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.CreateProduct(t, db, "Serum", 20, 8)
	b := testutil.CreateProduct(t, db, "Mask", 15, 0)
	c := testutil.CreateProduct(t, db, "Toner", 10, 4)

	svc := NewStockService(db, NewNotifier(nil, nil, "USD"), nil)
	zero, twelve := 0, 12
	products, err := svc.BulkUpdate(context.Background(), []StockUpdate{
		{ProductID: a.ID, StockQuantity: &zero},
		{ProductID: b.ID, StockQuantity: &twelve},
	}, "count", nil)
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	if p := stockOf(t, db, a.ID); p.StockQuantity != 0 || p.Status != models.ProductOutOfStock {
		t.Fatalf("a: stock=%d status=%s", p.StockQuantity, p.Status)
	}
	if p := stockOf(t, db, b.ID); p.StockQuantity != 12 || p.Status != models.ProductActive {
		t.Fatalf("b: stock=%d status=%s", p.StockQuantity, p.Status)
	}
	if p := stockOf(t, db, c.ID); p.StockQuantity != 4 || p.Status != models.ProductActive {
		t.Fatalf("c changed: stock=%d status=%s", p.StockQuantity, p.Status)
	}

	var movements int64
	db.Model(&models.StockMovement{}).Count(&movements)
	if movements != 2 {
		t.Fatalf("expected 2 movements, got %d", movements)
	}
}

func TestBulkUpdateRejectsNegativeAndRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.CreateProduct(t, db, "Serum", 20, 8)
	b := testutil.CreateProduct(t, db, "Mask", 15, 3)

	svc := NewStockService(db, nil, nil)
	five, negative := 5, -1
	_, err := svc.BulkUpdate(context.Background(), []StockUpdate{
		{ProductID: a.ID, StockQuantity: &five},
		{ProductID: b.ID, StockQuantity: &negative},
	}, "", nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if p := stockOf(t, db, a.ID); p.StockQuantity != 8 {
		t.Fatalf("a changed despite rejected batch: %d", p.StockQuantity)
	}

	missing := uuid.New()
	_, err = svc.BulkUpdate(context.Background(), []StockUpdate{
		{ProductID: a.ID, StockQuantity: &five},
		{ProductID: missing, StockQuantity: &five},
	}, "", nil)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if p := stockOf(t, db, a.ID); p.StockQuantity != 8 {
		t.Fatalf("a changed despite failed transaction: %d", p.StockQuantity)
	}
}

func TestAdjustRequiresExactlyOneMode(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.CreateProduct(t, db, "Serum", 20, 8)
	svc := NewStockService(db, nil, nil)

	if _, err := svc.Adjust(context.Background(), p.ID, StockAdjustment{}, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	zero := 0
	if _, err := svc.Adjust(context.Background(), p.ID, StockAdjustment{Delta: &zero}, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for zero delta, got %v", err)
	}
	var movements int64
	db.Model(&models.StockMovement{}).Where("product_id = ?", p.ID).Count(&movements)
	if movements != 0 {
		t.Fatalf("zero delta recorded %d movements", movements)
	}

	delta := -3
	got, err := svc.Adjust(context.Background(), p.ID, StockAdjustment{Delta: &delta}, nil)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.StockQuantity != 5 {
		t.Fatalf("stock = %d, want 5", got.StockQuantity)
	}
}

func TestCustomerCancelRestoresStock(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	other := testutil.CreateUser(t, db, "other@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 20, 5)
	order := placeTestOrder(t, db, user, p, 2)

	svc := NewOrderService(db, NewRewardService(db, 1), nil, nil)

	_, err := svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, OwnerID: &other.ID, Next: models.OrderCancelled})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, OwnerID: &user.ID, Next: models.OrderShipped})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	cancelled, err := svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, OwnerID: &user.ID, Next: models.OrderCancelled})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.OrderCancelled || len(cancelled.History) != 2 {
		t.Fatalf("unexpected order after cancel: %s, %d history rows", cancelled.Status, len(cancelled.History))
	}
	if got := stockOf(t, db, p.ID); got.StockQuantity != 5 {
		t.Fatalf("stock not restored: %d", got.StockQuantity)
	}

	_, err = svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, OwnerID: &user.ID, Next: models.OrderCancelled})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
}

func TestStaffTransitionsAreChecked(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 20, 5)
	order := placeTestOrder(t, db, user, p, 1)
	svc := NewOrderService(db, NewRewardService(db, 1), nil, nil)

	_, err := svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, Next: models.OrderDelivered})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict skipping to delivered, got %v", err)
	}
	_, err = svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, Next: "lost"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestDeliveryAwardsPointsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 60, 5)
	order := placeTestOrder(t, db, user, p, 1)

	rewards := NewRewardService(db, 1)
	svc := NewOrderService(db, rewards, nil, nil)
	delivered := advance(t, svc, order.ID,
		models.OrderConfirmed, models.OrderProcessing, models.OrderShipped, models.OrderDelivered)

	if delivered.PaymentStatus != models.PaymentPaid {
		t.Fatalf("cash on delivery not marked paid: %s", delivered.PaymentStatus)
	}
	if got := pointsOf(t, db, user.ID); got != 60 {
		t.Fatalf("points = %d, want 60", got)
	}

	if err := db.Transaction(func(tx *gorm.DB) error { return rewards.Award(tx, delivered) }); err != nil {
		t.Fatalf("second award: %v", err)
	}
	if got := pointsOf(t, db, user.ID); got != 60 {
		t.Fatalf("points awarded twice: %d", got)
	}
}

func TestRefundedReturnsReverseEarnedPoints(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 30, 5)
	order := placeTestOrder(t, db, user, p, 2)

	rewards := NewRewardService(db, 1)
	orders := NewOrderService(db, rewards, nil, nil)
	returns := NewReturnService(db, rewards, nil, nil)
	advance(t, orders, order.ID,
		models.OrderConfirmed, models.OrderProcessing, models.OrderShipped, models.OrderDelivered)
	if got := pointsOf(t, db, user.ID); got != 60 {
		t.Fatalf("points after delivery = %d, want 60", got)
	}

	refund := func(quantity int) {
		t.Helper()
		request, err := returns.Create(context.Background(), user.ID, ReturnInput{
			OrderID: order.ID, Reason: "changed my mind",
			Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: quantity}},
		})
		if err != nil {
			t.Fatalf("create return: %v", err)
		}
		for _, next := range []models.ReturnStatus{models.ReturnApproved, models.ReturnReceived, models.ReturnRefunded} {
			if _, err := returns.UpdateStatus(context.Background(), request.ID, ReturnStatusChange{Status: next}, nil); err != nil {
				t.Fatalf("move return to %s: %v", next, err)
			}
		}
	}

	refund(1)
	if got := pointsOf(t, db, user.ID); got != 30 {
		t.Fatalf("points after partial refund = %d, want 30", got)
	}
	var reloaded models.Order
	db.First(&reloaded, "id = ?", order.ID)
	if reloaded.Status != models.OrderDelivered || reloaded.PaymentStatus != models.PaymentPartiallyRefunded {
		t.Fatalf("after partial refund: order %s / payment %s", reloaded.Status, reloaded.PaymentStatus)
	}

	refund(1)
	if got := pointsOf(t, db, user.ID); got != 0 {
		t.Fatalf("points after full refund = %d, want 0", got)
	}
	db.First(&reloaded, "id = ?", order.ID)
	if reloaded.Status != models.OrderReturned || reloaded.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("after full refund: order %s / payment %s", reloaded.Status, reloaded.PaymentStatus)
	}

	var reversals int64
	db.Model(&models.RewardTransaction{}).
		Where("order_id = ? AND type = ?", order.ID, models.RewardReversed).
		Count(&reversals)
	if reversals != 2 {
		t.Fatalf("expected 2 reversal entries, got %d", reversals)
	}
}

func TestCancelReleasesRedeemedCoupon(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 60, 5)

	rewards := NewRewardService(db, 1)
	if _, err := rewards.Adjust(context.Background(), user.ID, 500, ""); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	coupon, err := rewards.Redeem(context.Background(), user.ID, 500)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	checkout := newCheckout(db)
	order, err := checkout.PlaceOrder(context.Background(), CheckoutRequest{
		UserID:          &user.ID,
		Items:           []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCashOnDelivery,
		CouponCode:      coupon.Code,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.DiscountAmount != 5 {
		t.Fatalf("discount = %v, want 5", order.DiscountAmount)
	}

	items := []CheckoutItem{{ProductID: p.ID, Quantity: 1}}
	if _, err := checkout.Preview(context.Background(), &user.ID, items, coupon.Code); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected used coupon to be refused, got %v", err)
	}

	svc := NewOrderService(db, rewards, nil, nil)
	if _, err := svc.UpdateStatus(context.Background(), StatusChange{OrderID: order.ID, OwnerID: &user.ID, Next: models.OrderCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var reloaded models.Coupon
	db.First(&reloaded, "id = ?", coupon.ID)
	if reloaded.UsedCount != 0 {
		t.Fatalf("used_count = %d after cancel", reloaded.UsedCount)
	}
	var usages int64
	db.Model(&models.CouponUsage{}).Where("order_id = ?", order.ID).Count(&usages)
	if usages != 0 {
		t.Fatalf("usage row kept after cancel")
	}

	quote, err := checkout.Preview(context.Background(), &user.ID, items, coupon.Code)
	if err != nil {
		t.Fatalf("coupon not usable after cancel: %v", err)
	}
	if !quote.Discount.Equal(Money(5)) {
		t.Fatalf("discount = %s, want 5", quote.Discount)
	}
}

func TestRedeemCreatesBoundCoupon(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	rewards := NewRewardService(db, 1)

	if _, err := rewards.Adjust(context.Background(), user.ID, 250, ""); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := rewards.Redeem(context.Background(), user.ID, 150); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for odd amount, got %v", err)
	}
	if _, err := rewards.Redeem(context.Background(), user.ID, 300); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	coupon, err := rewards.Redeem(context.Background(), user.ID, 200)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if coupon.DiscountValue != 2 || coupon.UserID == nil || *coupon.UserID != user.ID {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
	if coupon.UsageLimit == nil || *coupon.UsageLimit != 1 {
		t.Fatalf("coupon is not single use")
	}

	var reloaded models.User
	db.First(&reloaded, "id = ?", user.ID)
	if reloaded.RewardPoints != 50 {
		t.Fatalf("balance = %d, want 50", reloaded.RewardPoints)
	}

	if _, err := rewards.Adjust(context.Background(), user.ID, -100, "fix"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected negative balance to be refused, got %v", err)
	}
}

func TestReceivePurchaseOrderRestocks(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.CreateProduct(t, db, "Serum", 20, 0)
	supplier := models.Supplier{Name: "Acme Labs", Status: "active"}
	if err := db.Create(&supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	svc := NewPurchaseService(db, nil, nil)
	po, err := svc.Create(context.Background(), PurchaseOrderInput{
		SupplierID: supplier.ID,
		Status:     models.PurchaseOrdered,
		Items:      []PurchaseItemInput{{ProductID: p.ID, Quantity: 10, UnitCost: 7.5}},
	}, nil)
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	if po.TotalAmount != 75 {
		t.Fatalf("total = %v", po.TotalAmount)
	}

	partial, err := svc.Receive(context.Background(), po.ID, []ReceiveLine{{ItemID: po.Items[0].ID, Quantity: 4}}, nil)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if partial.Status != models.PurchasePartiallyReceived {
		t.Fatalf("status = %s", partial.Status)
	}
	if got := stockOf(t, db, p.ID); got.StockQuantity != 4 || got.Status != models.ProductActive {
		t.Fatalf("stock=%d status=%s", got.StockQuantity, got.Status)
	}

	_, err = svc.Receive(context.Background(), po.ID, []ReceiveLine{{ItemID: po.Items[0].ID, Quantity: 7}}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected over-receipt to be refused, got %v", err)
	}

	done, err := svc.UpdateStatus(context.Background(), po.ID, models.PurchaseReceived, nil)
	if err != nil {
		t.Fatalf("receive rest: %v", err)
	}
	if done.Status != models.PurchaseReceived || done.ReceivedAt == nil {
		t.Fatalf("po not fully received: %+v", done)
	}
	if got := stockOf(t, db, p.ID); got.StockQuantity != 10 {
		t.Fatalf("stock = %d, want 10", got.StockQuantity)
	}

	if _, err := svc.UpdateStatus(context.Background(), po.ID, models.PurchaseCancelled, nil); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict cancelling received po, got %v", err)
	}
}

func TestReturnFlowRestocksAndRefunds(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 20, 5)
	order := placeTestOrder(t, db, user, p, 2)

	orders := NewOrderService(db, NewRewardService(db, 0), nil, nil)
	returns := NewReturnService(db, nil, nil, nil)

	_, err := returns.Create(context.Background(), user.ID, ReturnInput{
		OrderID: order.ID, Reason: "too early", Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected undelivered order to be refused, got %v", err)
	}

	advance(t, orders, order.ID,
		models.OrderConfirmed, models.OrderProcessing, models.OrderShipped, models.OrderDelivered)

	_, err = returns.Create(context.Background(), user.ID, ReturnInput{
		OrderID: order.ID, Reason: "too many", Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 3}},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected over-return to be refused, got %v", err)
	}

	request, err := returns.Create(context.Background(), user.ID, ReturnInput{
		OrderID: order.ID, Reason: "allergic", Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if request.RefundAmount != 40 {
		t.Fatalf("refund = %v", request.RefundAmount)
	}

	for _, next := range []models.ReturnStatus{models.ReturnApproved, models.ReturnReceived, models.ReturnRefunded} {
		if _, err := returns.UpdateStatus(context.Background(), request.ID, ReturnStatusChange{Status: next}, nil); err != nil {
			t.Fatalf("move return to %s: %v", next, err)
		}
	}

	if got := stockOf(t, db, p.ID); got.StockQuantity != 5 {
		t.Fatalf("stock = %d, want 5 after restock", got.StockQuantity)
	}
	var reloaded models.Order
	db.First(&reloaded, "id = ?", order.ID)
	if reloaded.Status != models.OrderReturned || reloaded.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("order %s / payment %s", reloaded.Status, reloaded.PaymentStatus)
	}
}
