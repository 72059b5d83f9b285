package models

import (
	"time"

	"github.com/google/uuid"
)

type Supplier struct {
	BaseModel
	Name        string `gorm:"size:191" json:"name"`
	ContactName string `gorm:"size:150" json:"contact_name"`
	Email       string `gorm:"size:191" json:"email"`
	Phone       string `gorm:"size:32" json:"phone"`
	Address     string `gorm:"size:500" json:"address"`
	Notes       string `gorm:"type:text" json:"notes"`
	Status      string `gorm:"size:20;default:active" json:"status"`
}

type PurchaseOrder struct {
	BaseModel
	PONumber     string              `gorm:"column:po_number;size:64;uniqueIndex" json:"po_number"`
	SupplierID   uuid.UUID           `gorm:"type:char(36);index" json:"supplier_id"`
	Supplier     *Supplier           `json:"supplier,omitempty"`
	Status       PurchaseStatus      `gorm:"size:20;default:draft;index" json:"status"`
	TotalAmount  float64             `gorm:"type:decimal(12,2)" json:"total_amount"`
	ExpectedDate *time.Time          `json:"expected_date"`
	ReceivedAt   *time.Time          `json:"received_at"`
	Notes        string              `gorm:"type:text" json:"notes"`
	CreatedBy    *uuid.UUID          `gorm:"type:char(36)" json:"created_by"`
	Items        []PurchaseOrderItem `json:"items,omitempty"`
}

type PurchaseOrderItem struct {
	BaseModel
	PurchaseOrderID  uuid.UUID `gorm:"type:char(36);index" json:"purchase_order_id"`
	ProductID        uuid.UUID `gorm:"type:char(36);index" json:"product_id"`
	Product          *Product  `json:"product,omitempty"`
	Quantity         int       `json:"quantity"`
	ReceivedQuantity int       `gorm:"default:0" json:"received_quantity"`
	UnitCost         float64   `gorm:"type:decimal(12,2)" json:"unit_cost"`
	TotalCost        float64   `gorm:"type:decimal(12,2)" json:"total_cost"`
}

// Outstanding returns how many units are still expected.
func (i PurchaseOrderItem) Outstanding() int {
	if i.ReceivedQuantity >= i.Quantity {
		return 0
	}
	return i.Quantity - i.ReceivedQuantity
}
