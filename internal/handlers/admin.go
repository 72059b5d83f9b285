package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// AdminHandler manages back-office endpoints.
type AdminHandler struct {
	db      *gorm.DB
	reviews *services.ReviewService
	rewards *services.RewardService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, reviews *services.ReviewService, rewards *services.RewardService) *AdminHandler {
	return &AdminHandler{db: db, reviews: reviews, rewards: rewards}
}

var nonRevenueStatuses = []models.OrderStatus{models.OrderCancelled}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	var totalUsers int64
	if err := h.db.Model(&models.User{}).Where("role = ?", models.RoleCustomer).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalOrders int64
	if err := h.db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	// Orders by status
	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var statusCounts []statusCount
	if err := h.db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	ordersByStatus := make(map[string]int64)
	for _, sc := range statusCounts {
		ordersByStatus[sc.Status] = sc.Count
	}

	var totalRevenue float64
	if err := h.db.Model(&models.Order{}).
		Where("status NOT IN ?", nonRevenueStatuses).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&totalRevenue).Error; err != nil {
		return err
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var todayRevenue float64
	if err := h.db.Model(&models.Order{}).
		Where("status NOT IN ? AND placed_at >= ?", nonRevenueStatuses, startOfDay).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&todayRevenue).Error; err != nil {
		return err
	}

	var lowStock int64
	if err := h.db.Model(&models.Product{}).
		Where("stock_quantity <= low_stock_threshold AND status <> ?", models.ProductInactive).
		Count(&lowStock).Error; err != nil {
		return err
	}

	var pendingReviews int64
	if err := h.db.Model(&models.Review{}).Where("status = ?", models.ReviewPending).Count(&pendingReviews).Error; err != nil {
		return err
	}

	var openReturns int64
	if err := h.db.Model(&models.ReturnRequest{}).
		Where("status IN ?", []models.ReturnStatus{models.ReturnRequested, models.ReturnApproved, models.ReturnReceived}).
		Count(&openReturns).Error; err != nil {
		return err
	}

	var recent []models.Order
	if err := h.db.Preload("User").
		Order("placed_at desc").
		Limit(5).
		Find(&recent).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_customers":  totalUsers,
			"total_orders":     totalOrders,
			"total_revenue":    totalRevenue,
			"today_revenue":    todayRevenue,
			"pending_orders":   ordersByStatus[string(models.OrderPending)],
			"low_stock_count":  lowStock,
			"pending_reviews":  pendingReviews,
			"open_returns":     openReturns,
			"orders_by_status": ordersByStatus,
			"recent_orders":    recent,
		},
	})
}

type customerStats struct {
	UserID     uuid.UUID `json:"user_id"`
	OrderCount int64     `json:"order_count"`
	TotalSpent float64   `json:"total_spent"`
}

type customerResponse struct {
	models.User
	OrderCount int64   `json:"order_count"`
	TotalSpent float64 `json:"total_spent"`
}

func (h *AdminHandler) statsFor(ids []uuid.UUID) (map[uuid.UUID]customerStats, error) {
	out := make(map[uuid.UUID]customerStats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var stats []customerStats
	if err := h.db.Model(&models.Order{}).
		Select("user_id, count(*) as order_count, COALESCE(SUM(total_amount), 0) as total_spent").
		Where("user_id IN ? AND status NOT IN ?", ids, nonRevenueStatuses).
		Group("user_id").
		Scan(&stats).Error; err != nil {
		return nil, err
	}
	for _, s := range stats {
		out[s.UserID] = s
	}
	return out, nil
}

// ListCustomers returns registered users with order counts and spend.
func (h *AdminHandler) ListCustomers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.User{})

	if role := models.Role(c.Query("role")); role != "" {
		if !role.Valid() {
			return apperr.Validation("invalid role %q", role)
		}
		query = query.Where("role = ?", role)
	} else {
		query = query.Where("role = ?", models.RoleCustomer)
	}
	if status := models.UserStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return apperr.Validation("invalid status %q", status)
		}
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := likePattern(search)
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?",
			q, q, q, q,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	stats, err := h.statsFor(ids)
	if err != nil {
		return err
	}

	result := make([]customerResponse, len(users))
	for i, u := range users {
		result[i] = customerResponse{User: u}
		if s, ok := stats[u.ID]; ok {
			result[i].OrderCount = s.OrderCount
			result[i].TotalSpent = s.TotalSpent
		}
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       result,
		"pagination": pg.Meta(total),
	})
}

// GetCustomer returns a user with order stats and recent orders.
func (h *AdminHandler) GetCustomer(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.Preload("Addresses", "user_id IS NOT NULL").First(&user, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "customer not found")
	}

	stats, err := h.statsFor([]uuid.UUID{user.ID})
	if err != nil {
		return err
	}

	var recent []models.Order
	if err := h.db.Where("user_id = ?", user.ID).Order("placed_at desc").Limit(10).Find(&recent).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"customer":      customerResponse{User: user, OrderCount: stats[user.ID].OrderCount, TotalSpent: stats[user.ID].TotalSpent},
			"recent_orders": recent,
		},
	})
}

type customerStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active inactive suspended"`
}

// UpdateCustomerStatus activates, deactivates or suspends an account.
func (h *AdminHandler) UpdateCustomerStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req customerStatusRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if self := actor(c); self != nil && *self == id && req.Status != models.UserActive {
		return apperr.Validation("you cannot deactivate your own account")
	}

	result := h.db.Model(&models.User{}).Where("id = ?", id).Update("status", req.Status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("customer not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "customer status updated", "data": fiber.Map{"id": id, "status": req.Status}})
}

type rewardAdjustRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	Points      int       `json:"points" validate:"required"`
	Description string    `json:"description" validate:"max=255"`
}

// AdjustRewards applies a manual reward point correction.
func (h *AdminHandler) AdjustRewards(c *fiber.Ctx) error {
	var req rewardAdjustRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	entry, err := h.rewards.Adjust(c.UserContext(), req.UserID, req.Points, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": entry})
}

// Review moderation

// ListReviews returns reviews for moderation, pending by default.
func (h *AdminHandler) ListReviews(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Review{})

	status := models.ReviewStatus(c.Query("status", string(models.ReviewPending)))
	if status != "all" {
		if !status.Valid() {
			return apperr.Validation("invalid review status %q", status)
		}
		query = query.Where("status = ?", status)
	}
	if v := c.Query("product_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("product_id = ?", id)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var reviews []models.Review
	if err := query.Preload("Product").Preload("User").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&reviews).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       reviews,
		"pagination": pg.Meta(total),
	})
}

type reviewStatusRequest struct {
	Status models.ReviewStatus `json:"status" validate:"required"`
}

// UpdateReviewStatus approves or rejects a review.
func (h *AdminHandler) UpdateReviewStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req reviewStatusRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	review, err := h.reviews.Moderate(c.UserContext(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "review status updated", "data": review})
}

// DeleteReview removes any review.
func (h *AdminHandler) DeleteReview(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.reviews.Delete(c.UserContext(), nil, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "review deleted"})
}

// Coupons

// ListCoupons returns coupons, optionally only active ones.
func (h *AdminHandler) ListCoupons(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Coupon{})
	if queryBool(c, "active") {
		query = query.Where("is_active = ?", true)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(code) LIKE ?", likePattern(search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var coupons []models.Coupon
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&coupons).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       coupons,
		"pagination": pg.Meta(total),
	})
}

// GetCoupon returns a coupon with its usage count.
func (h *AdminHandler) GetCoupon(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "coupon not found")
	}

	var usages []models.CouponUsage
	if err := h.db.Where("coupon_id = ?", coupon.ID).Order("created_at desc").Limit(50).Find(&usages).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"coupon": coupon, "recent_usages": usages}})
}

type couponRequest struct {
	Code              *string              `json:"code" validate:"omitempty,min=3,max=50"`
	Description       *string              `json:"description" validate:"omitempty,max=255"`
	DiscountType      *models.DiscountType `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue     *float64             `json:"discount_value" validate:"omitempty,gt=0"`
	MinPurchaseAmount *float64             `json:"min_purchase_amount" validate:"omitempty,gte=0"`
	MaxDiscountAmount *float64             `json:"max_discount_amount" validate:"omitempty,gte=0"`
	UsageLimit        *int                 `json:"usage_limit" validate:"omitempty,gte=0"`
	StartsAt          *time.Time           `json:"starts_at"`
	ExpiresAt         *time.Time           `json:"expires_at"`
	IsActive          *bool                `json:"is_active"`
}

// CreateCoupon persists a new coupon.
func (h *AdminHandler) CreateCoupon(c *fiber.Ctx) error {
	var req couponRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if req.Code == nil || req.DiscountType == nil || req.DiscountValue == nil {
		return apperr.Validation("code, discount_type and discount_value are required")
	}

	coupon := models.Coupon{IsActive: true}
	if err := h.applyCoupon(&coupon, req); err != nil {
		return err
	}
	if err := h.db.Create(&coupon).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": coupon})
}

// UpdateCoupon applies a partial update to a coupon.
func (h *AdminHandler) UpdateCoupon(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req couponRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "coupon not found")
	}
	if err := h.applyCoupon(&coupon, req); err != nil {
		return err
	}
	if err := h.db.Save(&coupon).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": coupon})
}

// DeleteCoupon removes an unused coupon and deactivates a used one.
func (h *AdminHandler) DeleteCoupon(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "coupon not found")
	}

	var usages int64
	if err := h.db.Model(&models.CouponUsage{}).Where("coupon_id = ?", id).Count(&usages).Error; err != nil {
		return err
	}
	if usages > 0 {
		if err := h.db.Model(&models.Coupon{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "coupon has been used and was deactivated"})
	}

	if err := h.db.Delete(&models.Coupon{}, "id = ?", id).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "coupon deleted"})
}

func (h *AdminHandler) applyCoupon(coupon *models.Coupon, req couponRequest) error {
	if req.Code != nil {
		coupon.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
		var clash int64
		if err := h.db.Model(&models.Coupon{}).
			Where("code = ? AND id <> ?", coupon.Code, coupon.ID).
			Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return apperr.Conflict("coupon code %s already exists", coupon.Code)
		}
	}
	if req.Description != nil {
		coupon.Description = *req.Description
	}
	if req.DiscountType != nil {
		if !req.DiscountType.Valid() {
			return apperr.Validation("discount_type must be one of [percentage fixed]")
		}
		coupon.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		coupon.DiscountValue = *req.DiscountValue
	}
	if coupon.DiscountType == models.DiscountPercentage && coupon.DiscountValue > 100 {
		return apperr.Validation("percentage discounts cannot exceed 100")
	}
	if req.MinPurchaseAmount != nil {
		coupon.MinPurchaseAmount = *req.MinPurchaseAmount
	}
	if req.MaxDiscountAmount != nil {
		if *req.MaxDiscountAmount == 0 {
			coupon.MaxDiscountAmount = nil
		} else {
			coupon.MaxDiscountAmount = req.MaxDiscountAmount
		}
	}
	if req.UsageLimit != nil {
		if *req.UsageLimit == 0 {
			coupon.UsageLimit = nil
		} else {
			coupon.UsageLimit = req.UsageLimit
		}
	}
	if req.StartsAt != nil {
		coupon.StartsAt = req.StartsAt
	}
	if req.ExpiresAt != nil {
		coupon.ExpiresAt = req.ExpiresAt
	}
	if coupon.StartsAt != nil && coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(*coupon.StartsAt) {
		return apperr.Validation("expires_at must be after starts_at")
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	return nil
}
