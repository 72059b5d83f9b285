package models

// User represents a customer or back-office account.
type User struct {
	BaseModel
	FirstName    string     `gorm:"size:100" json:"first_name"`
	LastName     string     `gorm:"size:100" json:"last_name"`
	Email        string     `gorm:"size:191;uniqueIndex" json:"email"`
	Phone        string     `gorm:"size:32" json:"phone"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Role         Role       `gorm:"size:20;default:customer;index" json:"role"`
	Status       UserStatus `gorm:"size:20;default:active" json:"status"`
	RewardPoints int        `gorm:"default:0" json:"reward_points"`
	Addresses    []Address  `json:"addresses,omitempty"`
	Orders       []Order    `json:"orders,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
