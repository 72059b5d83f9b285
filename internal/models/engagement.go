package models

import (
	"github.com/google/uuid"
)

type Review struct {
	BaseModel
	ProductID        uuid.UUID    `gorm:"type:char(36);uniqueIndex:idx_review_product_user" json:"product_id"`
	Product          *Product     `json:"product,omitempty"`
	UserID           uuid.UUID    `gorm:"type:char(36);uniqueIndex:idx_review_product_user" json:"user_id"`
	User             *User        `json:"user,omitempty"`
	Rating           int          `json:"rating"`
	Title            string       `gorm:"size:255" json:"title"`
	Comment          string       `gorm:"type:text" json:"comment"`
	Status           ReviewStatus `gorm:"size:20;default:pending;index" json:"status"`
	VerifiedPurchase bool         `json:"verified_purchase"`
}

type ReturnRequest struct {
	BaseModel
	ReturnNumber string       `gorm:"size:64;uniqueIndex" json:"return_number"`
	OrderID      uuid.UUID    `gorm:"type:char(36);index" json:"order_id"`
	Order        *Order       `json:"order,omitempty"`
	UserID       uuid.UUID    `gorm:"type:char(36);index" json:"user_id"`
	Reason       string       `gorm:"size:500" json:"reason"`
	Status       ReturnStatus `gorm:"size:20;default:requested;index" json:"status"`
	RefundAmount float64      `gorm:"type:decimal(12,2)" json:"refund_amount"`
	AdminNote    string       `gorm:"size:500" json:"admin_note"`
	Items        []ReturnItem `json:"items,omitempty"`
}

type ReturnItem struct {
	BaseModel
	ReturnRequestID uuid.UUID `gorm:"type:char(36);index" json:"return_request_id"`
	OrderItemID     uuid.UUID `gorm:"type:char(36);index" json:"order_item_id"`
	ProductID       uuid.UUID `gorm:"type:char(36)" json:"product_id"`
	Quantity        int       `json:"quantity"`
	UnitPrice       float64   `gorm:"type:decimal(12,2)" json:"unit_price"`
}

type RewardTransaction struct {
	BaseModel
	UserID       uuid.UUID  `gorm:"type:char(36);index" json:"user_id"`
	Points       int        `json:"points"`
	Type         RewardType `gorm:"size:20" json:"type"`
	OrderID      *uuid.UUID `gorm:"type:char(36);index" json:"order_id"`
	Description  string     `gorm:"size:255" json:"description"`
	BalanceAfter int        `json:"balance_after"`
}

type Notification struct {
	BaseModel
	UserID  uuid.UUID `gorm:"type:char(36);index" json:"user_id"`
	Type    string    `gorm:"size:50" json:"type"`
	Title   string    `gorm:"size:255" json:"title"`
	Message string    `gorm:"type:text" json:"message"`
	Link    string    `gorm:"size:255" json:"link"`
	IsRead  bool      `gorm:"default:false;index" json:"is_read"`
}
