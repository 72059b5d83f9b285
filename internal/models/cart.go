package models

import (
	"github.com/google/uuid"
)

// CartItem belongs either to a user or to an anonymous session.
type CartItem struct {
	BaseModel
	UserID    *uuid.UUID `gorm:"type:char(36);index" json:"user_id"`
	SessionID string     `gorm:"size:100;index" json:"session_id,omitempty"`
	ProductID uuid.UUID  `gorm:"type:char(36);index" json:"product_id"`
	Product   *Product   `json:"product,omitempty"`
	Quantity  int        `json:"quantity"`
}

// WishlistItem is a saved product for later.
type WishlistItem struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:char(36);uniqueIndex:idx_wishlist_user_product" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:char(36);uniqueIndex:idx_wishlist_user_product" json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
}
