package models

import (
	"github.com/google/uuid"
)

// Address is a postal address owned by a user. Order addresses placed by
// guests have no owner.
type Address struct {
	BaseModel
	UserID       *uuid.UUID  `gorm:"type:char(36);index" json:"user_id"`
	Type         AddressType `gorm:"size:20;index" json:"type"`
	IsDefault    bool        `gorm:"default:false" json:"is_default"`
	FirstName    string      `gorm:"size:100" json:"first_name"`
	LastName     string      `gorm:"size:100" json:"last_name"`
	Company      string      `gorm:"size:150" json:"company"`
	Phone        string      `gorm:"size:32" json:"phone"`
	Email        string      `gorm:"size:191" json:"email"`
	AddressLine1 string      `gorm:"size:255" json:"address_line1"`
	AddressLine2 string      `gorm:"size:255" json:"address_line2"`
	City         string      `gorm:"size:100" json:"city"`
	State        string      `gorm:"size:100" json:"state"`
	PostalCode   string      `gorm:"size:20" json:"postal_code"`
	Country      string      `gorm:"size:100" json:"country"`
}
