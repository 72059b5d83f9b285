package models

import (
	"github.com/google/uuid"
)

type Category struct {
	BaseModel
	Name        string     `gorm:"size:150" json:"name"`
	Slug        string     `gorm:"size:191;uniqueIndex" json:"slug"`
	Description string     `gorm:"type:text" json:"description"`
	ParentID    *uuid.UUID `gorm:"type:char(36);index" json:"parent_id"`
	ImageURL    string     `gorm:"size:500" json:"image_url"`
	IsActive    bool       `json:"is_active"`
}

type Product struct {
	BaseModel
	Name              string        `gorm:"size:255" json:"name"`
	Slug              string        `gorm:"size:191;uniqueIndex" json:"slug"`
	SKU               string        `gorm:"column:sku;size:100;uniqueIndex" json:"sku"`
	Description       string        `gorm:"type:text" json:"description"`
	ShortDescription  string        `gorm:"size:500" json:"short_description"`
	Brand             string        `gorm:"size:150;index" json:"brand"`
	CategoryID        *uuid.UUID    `gorm:"type:char(36);index" json:"category_id"`
	Category          *Category     `json:"category,omitempty"`
	Price             float64       `gorm:"type:decimal(12,2)" json:"price"`
	SalePrice         *float64      `gorm:"type:decimal(12,2)" json:"sale_price"`
	CostPrice         float64       `gorm:"type:decimal(12,2)" json:"cost_price"`
	StockQuantity     int           `gorm:"default:0" json:"stock_quantity"`
	LowStockThreshold int           `gorm:"default:10" json:"low_stock_threshold"`
	Status            ProductStatus `gorm:"size:20;default:active;index" json:"status"`
	IsFeatured        bool          `json:"is_featured"`
	IsTrending        bool          `json:"is_trending"`
	IsBestSeller      bool          `json:"is_best_seller"`
	IsNewArrival      bool          `json:"is_new_arrival"`
	ImageURL          string        `gorm:"size:500" json:"image_url"`
	RatingAverage     float64       `gorm:"type:decimal(3,2);default:0" json:"rating_average"`
	RatingCount       int           `gorm:"default:0" json:"rating_count"`
}

// EffectivePrice returns the sale price when one is set, otherwise the list price.
func (p Product) EffectivePrice() float64 {
	if p.SalePrice != nil && *p.SalePrice > 0 {
		return *p.SalePrice
	}
	return p.Price
}

// IsLowStock reports whether stock is at or below the reorder threshold.
func (p Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// StockMovement records every change applied to a product's stock.
type StockMovement struct {
	BaseModel
	ProductID  uuid.UUID   `gorm:"type:char(36);index" json:"product_id"`
	Product    *Product    `json:"product,omitempty"`
	Change     int         `json:"change"`
	StockAfter int         `json:"stock_after"`
	Reason     StockReason `gorm:"size:20;index" json:"reason"`
	Reference  string      `gorm:"size:100" json:"reference"`
	Note       string      `gorm:"size:500" json:"note"`
	CreatedBy  *uuid.UUID  `gorm:"type:char(36)" json:"created_by"`
}
