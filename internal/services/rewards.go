package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/utils"
)

// PointsPerRedemptionUnit is how many points buy one currency unit of credit.
const PointsPerRedemptionUnit = 100

// RewardService maintains customers' reward point balances.
type RewardService struct {
	db            *gorm.DB
	pointsPerUnit float64
}

// NewRewardService constructs RewardService.
func NewRewardService(db *gorm.DB, pointsPerUnit float64) *RewardService {
	return &RewardService{db: db, pointsPerUnit: pointsPerUnit}
}

// PointsFor returns the points an order total earns.
func (s *RewardService) PointsFor(total float64) int {
	if total <= 0 || s.pointsPerUnit <= 0 {
		return 0
	}
	return int(math.Floor(total * s.pointsPerUnit))
}

// Award credits points for a delivered order once.
func (s *RewardService) Award(tx *gorm.DB, order models.Order) error {
	if order.UserID == nil {
		return nil
	}

	points := s.PointsFor(order.TotalAmount)
	if points == 0 {
		return nil
	}

	var already int64
	if err := tx.Model(&models.RewardTransaction{}).
		Where("order_id = ? AND type = ?", order.ID, models.RewardEarned).
		Count(&already).Error; err != nil {
		return err
	}
	if already > 0 {
		return nil
	}

	return s.record(tx, *order.UserID, points, models.RewardEarned, &order.ID,
		fmt.Sprintf("Earned for order %s", order.OrderNumber))
}

// Reverse takes back all points earned by an order, never below a zero balance.
func (s *RewardService) Reverse(tx *gorm.DB, order models.Order) error {
	return s.reverse(tx, order, -1)
}

// ReverseRefund takes back the points a refunded amount of an order earned.
func (s *RewardService) ReverseRefund(tx *gorm.DB, order models.Order, refunded float64) error {
	points := s.PointsFor(refunded)
	if points == 0 {
		return nil
	}
	return s.reverse(tx, order, points)
}

// reverse takes back up to limit of the order's outstanding earned points.
// A negative limit reverses all of them.
func (s *RewardService) reverse(tx *gorm.DB, order models.Order, limit int) error {
	if order.UserID == nil {
		return nil
	}

	var net struct{ Total int }
	if err := tx.Model(&models.RewardTransaction{}).
		Select("COALESCE(SUM(points), 0) AS total").
		Where("order_id = ? AND type IN ?", order.ID, []models.RewardType{models.RewardEarned, models.RewardReversed}).
		Scan(&net).Error; err != nil {
		return err
	}
	if net.Total <= 0 {
		return nil
	}

	points := net.Total
	if limit >= 0 && limit < points {
		points = limit
	}

	var user models.User
	if err := tx.Select("id", "reward_points").First(&user, "id = ?", *order.UserID).Error; err != nil {
		return err
	}
	if points > user.RewardPoints {
		points = user.RewardPoints
	}
	if points == 0 {
		return nil
	}

	return s.record(tx, user.ID, -points, models.RewardReversed, &order.ID,
		fmt.Sprintf("Reversed for order %s", order.OrderNumber))
}

// Adjust applies a manual correction. The balance may not go negative.
func (s *RewardService) Adjust(ctx context.Context, userID uuid.UUID, points int, description string) (models.RewardTransaction, error) {
	if points == 0 {
		return models.RewardTransaction{}, apperr.Validation("points must not be zero")
	}
	if description == "" {
		description = "Manual adjustment"
	}

	var entry models.RewardTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
			return apperr.NotFoundOr(err, "customer not found")
		}
		var err error
		entry, err = s.recordReturning(tx, userID, points, models.RewardAdjusted, nil, description)
		return err
	})
	return entry, err
}

// Redeem converts points into a single-use store credit coupon bound to the user.
func (s *RewardService) Redeem(ctx context.Context, userID uuid.UUID, points int) (models.Coupon, error) {
	if points < PointsPerRedemptionUnit || points%PointsPerRedemptionUnit != 0 {
		return models.Coupon{}, apperr.Validation("points must be a positive multiple of %d", PointsPerRedemptionUnit)
	}

	var coupon models.Coupon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := utils.GenerateReference("RWD", time.Now())
		if err != nil {
			return err
		}

		entry, err := s.recordReturning(tx, userID, -points, models.RewardRedeemed, nil,
			fmt.Sprintf("Redeemed for coupon %s", code))
		if err != nil {
			return err
		}

		limit := 1
		coupon = models.Coupon{
			Code:          strings.ToUpper(code),
			Description:   entry.Description,
			DiscountType:  models.DiscountFixed,
			DiscountValue: float64(points / PointsPerRedemptionUnit),
			UsageLimit:    &limit,
			IsActive:      true,
			UserID:        &userID,
		}
		return tx.Create(&coupon).Error
	})
	return coupon, err
}

func (s *RewardService) record(tx *gorm.DB, userID uuid.UUID, points int, kind models.RewardType, orderID *uuid.UUID, description string) error {
	_, err := s.recordReturning(tx, userID, points, kind, orderID, description)
	return err
}

// recordReturning updates the balance conditionally so concurrent
// redemptions cannot overdraw it, then writes the ledger entry.
func (s *RewardService) recordReturning(tx *gorm.DB, userID uuid.UUID, points int, kind models.RewardType, orderID *uuid.UUID, description string) (models.RewardTransaction, error) {
	query := tx.Model(&models.User{}).Where("id = ?", userID)
	if points < 0 {
		query = query.Where("reward_points >= ?", -points)
	}
	result := query.UpdateColumn("reward_points", gorm.Expr("reward_points + ?", points))
	if result.Error != nil {
		return models.RewardTransaction{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.RewardTransaction{}, apperr.Validation("insufficient reward points")
	}

	var user models.User
	if err := tx.Select("id", "reward_points").First(&user, "id = ?", userID).Error; err != nil {
		return models.RewardTransaction{}, err
	}

	entry := models.RewardTransaction{
		UserID:       userID,
		Points:       points,
		Type:         kind,
		OrderID:      orderID,
		Description:  description,
		BalanceAfter: user.RewardPoints,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return models.RewardTransaction{}, err
	}
	return entry, nil
}
