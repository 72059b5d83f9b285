package services

import (
	"github.com/shopspring/decimal"

	"github.com/example/glowbeauty/internal/models"
)

// PricingRules holds the store-wide shipping and tax settings.
type PricingRules struct {
	ShippingFlatFee       float64
	FreeShippingThreshold float64
	TaxRate               float64
}

// Quote is the price breakdown of an order.
type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Money converts a stored amount into a decimal.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// LineTotal returns unit × quantity rounded to cents.
func LineTotal(unit float64, quantity int) decimal.Decimal {
	return Money(unit).Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// CouponDiscount returns the discount the coupon grants on subtotal. It is
// zero when subtotal is below the coupon minimum, capped by the coupon's
// maximum discount and never exceeds the subtotal.
func CouponDiscount(c models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThan(Money(c.MinPurchaseAmount)) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal.Mul(Money(c.DiscountValue)).Div(hundred)
	case models.DiscountFixed:
		discount = Money(c.DiscountValue)
	default:
		return decimal.Zero
	}

	if c.MaxDiscountAmount != nil && *c.MaxDiscountAmount > 0 {
		discount = decimal.Min(discount, Money(*c.MaxDiscountAmount))
	}
	discount = decimal.Min(discount, subtotal)
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount.Round(2)
}

// ShippingCost is the flat fee unless subtotal reaches the free-shipping threshold.
func (r PricingRules) ShippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if r.FreeShippingThreshold > 0 && subtotal.GreaterThanOrEqual(Money(r.FreeShippingThreshold)) {
		return decimal.Zero
	}
	return Money(r.ShippingFlatFee)
}

// Quote prices an order from its subtotal and discount.
func (r PricingRules) Quote(subtotal, discount decimal.Decimal) Quote {
	shipping := r.ShippingCost(subtotal)
	taxable := subtotal.Sub(discount)
	tax := decimal.Zero
	if r.TaxRate > 0 && taxable.IsPositive() {
		tax = taxable.Mul(decimal.NewFromFloat(r.TaxRate)).Round(2)
	}

	return Quote{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Shipping: shipping,
		Tax:      tax,
		Total:    taxable.Add(shipping).Add(tax).Round(2),
	}
}

// Float returns d as a float64 for storage.
func Float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
