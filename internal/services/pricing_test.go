package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/example/glowbeauty/internal/models"
)

func TestCouponDiscount(t *testing.T) {
	maxTen := 10.0
	cases := []struct {
		name     string
		coupon   models.Coupon
		subtotal float64
		want     string
	}{
		{"percentage", models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: 10}, 80, "8"},
		{"below minimum", models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: 10, MinPurchaseAmount: 100}, 80, "0"},
		{"at minimum", models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: 15, MinPurchaseAmount: 80}, 80, "15"},
		{"capped by max", models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: 50, MaxDiscountAmount: &maxTen}, 80, "10"},
		{"fixed above subtotal", models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: 100}, 30, "30"},
		{"unknown type", models.Coupon{DiscountType: "bogus", DiscountValue: 5}, 30, "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CouponDiscount(tc.coupon, Money(tc.subtotal))
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("discount = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestQuoteShippingAndTax(t *testing.T) {
	rules := PricingRules{ShippingFlatFee: 5.99, FreeShippingThreshold: 50, TaxRate: 0.1}

	q := rules.Quote(Money(40), Money(10))
	if !q.Shipping.Equal(Money(5.99)) {
		t.Fatalf("shipping = %s, want 5.99", q.Shipping)
	}
	if !q.Tax.Equal(Money(3)) {
		t.Fatalf("tax = %s, want 3", q.Tax)
	}
	if !q.Total.Equal(Money(38.99)) {
		t.Fatalf("total = %s, want 38.99", q.Total)
	}

	free := rules.Quote(Money(50), decimal.Zero)
	if !free.Shipping.IsZero() {
		t.Fatalf("expected free shipping at threshold, got %s", free.Shipping)
	}
}

func TestLineTotalRoundsToCents(t *testing.T) {
	if got := LineTotal(19.99, 3); !got.Equal(Money(59.97)) {
		t.Fatalf("line total = %s", got)
	}
	if got := Float(LineTotal(0.1, 3)); got != 0.3 {
		t.Fatalf("float = %v", got)
	}
}
