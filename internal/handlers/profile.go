package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// ProfileHandler manages the address book and reward points of the
// authenticated user.
type ProfileHandler struct {
	db      *gorm.DB
	rewards *services.RewardService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB, rewards *services.RewardService) *ProfileHandler {
	return &ProfileHandler{db: db, rewards: rewards}
}

// Address endpoints

// ListAddresses returns user addresses, defaults first.
func (h *ProfileHandler) ListAddresses(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	query := h.db.Where("user_id = ?", userID)
	if kind := models.AddressType(c.Query("type")); kind != "" {
		if !kind.Valid() {
			return apperr.Validation("type must be one of [shipping billing]")
		}
		query = query.Where("type = ?", kind)
	}

	var addresses []models.Address
	if err := query.Order("is_default desc, created_at desc").Find(&addresses).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

// GetAddress returns one of the user's addresses.
func (h *ProfileHandler) GetAddress(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	address, err := ownAddress(h.db, userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": address})
}

type createAddressRequest struct {
	services.AddressInput
	Type      models.AddressType `json:"type" validate:"required,oneof=shipping billing"`
	IsDefault bool               `json:"is_default"`
}

// CreateAddress creates an address for the user.
func (h *ProfileHandler) CreateAddress(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var req createAddressRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	address := req.AddressInput.ToAddress(req.Type, &userID)
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Address{}).
			Where("user_id = ? AND type = ?", userID, req.Type).
			Count(&existing).Error; err != nil {
			return err
		}
		address.IsDefault = req.IsDefault || existing == 0
		if address.IsDefault {
			if err := unsetDefaults(tx, userID, req.Type, uuid.Nil); err != nil {
				return err
			}
		}
		return tx.Create(&address).Error
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": address})
}

type updateAddressRequest struct {
	FirstName    *string             `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName     *string             `json:"last_name" validate:"omitempty,min=1,max=100"`
	Company      *string             `json:"company" validate:"omitempty,max=150"`
	Phone        *string             `json:"phone" validate:"omitempty,max=32"`
	Email        *string             `json:"email" validate:"omitempty,email"`
	AddressLine1 *string             `json:"address_line1" validate:"omitempty,min=1,max=255"`
	AddressLine2 *string             `json:"address_line2" validate:"omitempty,max=255"`
	City         *string             `json:"city" validate:"omitempty,min=1,max=100"`
	State        *string             `json:"state" validate:"omitempty,max=100"`
	PostalCode   *string             `json:"postal_code" validate:"omitempty,min=1,max=20"`
	Country      *string             `json:"country" validate:"omitempty,min=1,max=100"`
	Type         *models.AddressType `json:"type" validate:"omitempty,oneof=shipping billing"`
	IsDefault    *bool               `json:"is_default"`
}

// UpdateAddress updates a user address.
func (h *ProfileHandler) UpdateAddress(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	addrID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req updateAddressRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	set := func(column string, value *string) {
		if value != nil {
			updates[column] = *value
		}
	}
	set("first_name", req.FirstName)
	set("last_name", req.LastName)
	set("company", req.Company)
	set("phone", req.Phone)
	set("email", req.Email)
	set("address_line1", req.AddressLine1)
	set("address_line2", req.AddressLine2)
	set("city", req.City)
	set("state", req.State)
	set("postal_code", req.PostalCode)
	set("country", req.Country)
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if len(updates) == 0 {
		return apperr.Validation("no fields to update")
	}

	var address models.Address
	err = h.db.Transaction(func(tx *gorm.DB) error {
		current, err := ownAddress(tx, userID, addrID)
		if err != nil {
			return err
		}

		kind := current.Type
		if req.Type != nil {
			kind = *req.Type
		}
		if req.IsDefault != nil && *req.IsDefault {
			if err := unsetDefaults(tx, userID, kind, current.ID); err != nil {
				return err
			}
		} else if kind != current.Type {
			updates["is_default"] = false
		}

		if err := tx.Model(&models.Address{}).Where("id = ?", current.ID).Updates(updates).Error; err != nil {
			return err
		}

		if current.IsDefault && (kind != current.Type || (req.IsDefault != nil && !*req.IsDefault)) {
			if err := promoteNewest(tx, userID, current.Type, current.ID); err != nil {
				return err
			}
		}

		address, err = ownAddress(tx, userID, current.ID)
		return err
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "address updated", "data": address})
}

// SetDefaultAddress marks an address as the default of its type.
func (h *ProfileHandler) SetDefaultAddress(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	addrID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var address models.Address
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		address, err = ownAddress(tx, userID, addrID)
		if err != nil {
			return err
		}
		if err := unsetDefaults(tx, userID, address.Type, address.ID); err != nil {
			return err
		}
		address.IsDefault = true
		return tx.Model(&models.Address{}).Where("id = ?", address.ID).Update("is_default", true).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "default address updated", "data": address})
}

// DeleteAddress removes a user address. Removing the default promotes the
// newest remaining address of the same type.
func (h *ProfileHandler) DeleteAddress(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	addrID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		address, err := ownAddress(tx, userID, addrID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Address{}, "id = ?", address.ID).Error; err != nil {
			return err
		}
		if address.IsDefault {
			return promoteNewest(tx, userID, address.Type, address.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "address deleted"})
}

func ownAddress(db *gorm.DB, userID, id uuid.UUID) (models.Address, error) {
	var address models.Address
	if err := db.First(&address, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return models.Address{}, apperr.NotFoundOr(err, "address not found")
	}
	return address, nil
}

func unsetDefaults(tx *gorm.DB, userID uuid.UUID, kind models.AddressType, except uuid.UUID) error {
	return tx.Model(&models.Address{}).
		Where("user_id = ? AND type = ? AND id <> ?", userID, kind, except).
		Update("is_default", false).Error
}

func promoteNewest(tx *gorm.DB, userID uuid.UUID, kind models.AddressType, except uuid.UUID) error {
	var next models.Address
	err := tx.Where("user_id = ? AND type = ? AND id <> ?", userID, kind, except).
		Order("created_at desc").First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Model(&models.Address{}).Where("id = ?", next.ID).Update("is_default", true).Error
}

// Reward endpoints

// RewardBalance returns the user's current point balance.
func (h *ProfileHandler) RewardBalance(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.Select("id", "reward_points").First(&user, "id = ?", userID).Error; err != nil {
		return apperr.NotFoundOr(err, "user not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"points":              user.RewardPoints,
			"redeemable_value":    user.RewardPoints / services.PointsPerRedemptionUnit,
			"points_per_currency": services.PointsPerRedemptionUnit,
		},
	})
}

// ListRewardTransactions returns the reward ledger.
func (h *ProfileHandler) ListRewardTransactions(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID).Model(&models.RewardTransaction{})
	if kind := c.Query("type"); kind != "" {
		query = query.Where("type = ?", kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.RewardTransaction
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       items,
		"pagination": pg.Meta(total),
	})
}

type redeemRequest struct {
	Points int `json:"points" validate:"required,gte=100"`
}

// RedeemRewards converts points into a single-use store credit coupon.
func (h *ProfileHandler) RedeemRewards(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var req redeemRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	coupon, err := h.rewards.Redeem(c.UserContext(), userID, req.Points)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "points redeemed",
		"data":    coupon,
	})
}
