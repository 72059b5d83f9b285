package models

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	BaseModel
	OrderNumber       string               `gorm:"size:64;uniqueIndex" json:"order_number"`
	UserID            *uuid.UUID           `gorm:"type:char(36);index" json:"user_id"`
	User              *User                `json:"user,omitempty"`
	GuestEmail        string               `gorm:"size:191;index" json:"guest_email,omitempty"`
	Status            OrderStatus          `gorm:"size:20;default:pending;index" json:"status"`
	PaymentStatus     PaymentStatus        `gorm:"size:20;default:pending;index" json:"payment_status"`
	PaymentMethod     PaymentMethod        `gorm:"size:30" json:"payment_method"`
	Subtotal          float64              `gorm:"type:decimal(12,2)" json:"subtotal"`
	DiscountAmount    float64              `gorm:"type:decimal(12,2)" json:"discount_amount"`
	ShippingCost      float64              `gorm:"type:decimal(12,2)" json:"shipping_cost"`
	TaxAmount         float64              `gorm:"type:decimal(12,2)" json:"tax_amount"`
	TotalAmount       float64              `gorm:"type:decimal(12,2)" json:"total_amount"`
	Currency          string               `gorm:"size:3;default:USD" json:"currency"`
	CouponCode        string               `gorm:"size:50" json:"coupon_code,omitempty"`
	ShippingAddressID *uuid.UUID           `gorm:"type:char(36)" json:"shipping_address_id"`
	ShippingAddress   *Address             `gorm:"foreignKey:ShippingAddressID" json:"shipping_address,omitempty"`
	BillingAddressID  *uuid.UUID           `gorm:"type:char(36)" json:"billing_address_id"`
	BillingAddress    *Address             `gorm:"foreignKey:BillingAddressID" json:"billing_address,omitempty"`
	Notes             string               `gorm:"type:text" json:"notes"`
	RewardPointsUsed  int                  `gorm:"default:0" json:"reward_points_used"`
	PlacedAt          time.Time            `gorm:"index" json:"placed_at"`
	Items             []OrderItem          `json:"items,omitempty"`
	History           []OrderStatusHistory `json:"history,omitempty"`
}

// ContactEmail returns the address notifications for the order go to.
func (o Order) ContactEmail() string {
	if o.User != nil && o.User.Email != "" {
		return o.User.Email
	}
	return o.GuestEmail
}

// OrderItem snapshots product data at purchase time.
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID `gorm:"type:char(36);index" json:"order_id"`
	ProductID   uuid.UUID `gorm:"type:char(36);index" json:"product_id"`
	ProductName string    `gorm:"size:255" json:"product_name"`
	ProductSKU  string    `gorm:"column:product_sku;size:100" json:"product_sku"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `gorm:"type:decimal(12,2)" json:"unit_price"`
	TotalPrice  float64   `gorm:"type:decimal(12,2)" json:"total_price"`
}

type OrderStatusHistory struct {
	BaseModel
	OrderID    uuid.UUID   `gorm:"type:char(36);index" json:"order_id"`
	FromStatus OrderStatus `gorm:"size:20" json:"from_status"`
	ToStatus   OrderStatus `gorm:"size:20" json:"to_status"`
	Note       string      `gorm:"size:500" json:"note"`
	ChangedBy  *uuid.UUID  `gorm:"type:char(36)" json:"changed_by"`
}

type Coupon struct {
	BaseModel
	Code              string       `gorm:"size:50;uniqueIndex" json:"code"`
	Description       string       `gorm:"size:255" json:"description"`
	DiscountType      DiscountType `gorm:"size:20" json:"discount_type"`
	DiscountValue     float64      `gorm:"type:decimal(12,2)" json:"discount_value"`
	MinPurchaseAmount float64      `gorm:"type:decimal(12,2);default:0" json:"min_purchase_amount"`
	MaxDiscountAmount *float64     `gorm:"type:decimal(12,2)" json:"max_discount_amount"`
	UsageLimit        *int         `json:"usage_limit"`
	UsedCount         int          `gorm:"default:0" json:"used_count"`
	StartsAt          *time.Time   `json:"starts_at"`
	ExpiresAt         *time.Time   `json:"expires_at"`
	IsActive          bool         `json:"is_active"`
	UserID            *uuid.UUID   `gorm:"type:char(36);index" json:"user_id,omitempty"`
}

// UsableAt reports whether the coupon is active, started, unexpired and below its usage limit.
func (c Coupon) UsableAt(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return false
	}
	return true
}

type CouponUsage struct {
	BaseModel
	CouponID       uuid.UUID  `gorm:"type:char(36);index" json:"coupon_id"`
	UserID         *uuid.UUID `gorm:"type:char(36);index" json:"user_id"`
	GuestEmail     string     `gorm:"size:191" json:"guest_email,omitempty"`
	OrderID        uuid.UUID  `gorm:"type:char(36);index" json:"order_id"`
	DiscountAmount float64    `gorm:"type:decimal(12,2)" json:"discount_amount"`
}
