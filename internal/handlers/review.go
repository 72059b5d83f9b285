package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// ReviewHandler serves product reviews to shoppers.
type ReviewHandler struct {
	db      *gorm.DB
	reviews *services.ReviewService
}

// NewReviewHandler constructs ReviewHandler.
func NewReviewHandler(db *gorm.DB, reviews *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{db: db, reviews: reviews}
}

// ListProductReviews returns approved reviews of a product with its rating summary.
func (h *ReviewHandler) ListProductReviews(c *fiber.Ctx) error {
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}

	var exists int64
	if err := h.db.Model(&models.Product{}).Where("id = ?", productID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return apperr.NotFound("product not found")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Review{}).Where("product_id = ? AND status = ?", productID, models.ReviewApproved)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	order := "created_at desc"
	switch c.Query("sort") {
	case "rating_high":
		order = "rating desc, created_at desc"
	case "rating_low":
		order = "rating asc, created_at desc"
	}

	var reviews []models.Review
	if err := query.Preload("User", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "first_name", "last_name")
	}).Order(order).
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&reviews).Error; err != nil {
		return err
	}

	summary, err := services.Summary(h.db, productID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       reviews,
		"summary":    summary,
		"pagination": pg.Meta(total),
	})
}

// ListMyReviews returns the caller's reviews in any status.
func (h *ReviewHandler) ListMyReviews(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var reviews []models.Review
	if err := h.db.Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&reviews).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": reviews})
}

// CreateReview submits a review for moderation.
func (h *ReviewHandler) CreateReview(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var req services.ReviewInput
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	review, err := h.reviews.Create(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "review submitted for moderation",
		"data":    review,
	})
}

// UpdateReview edits the caller's review and sends it back to moderation.
func (h *ReviewHandler) UpdateReview(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req services.ReviewUpdate
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	review, err := h.reviews.Update(c.UserContext(), userID, id, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": review})
}

// DeleteReview removes the caller's review.
func (h *ReviewHandler) DeleteReview(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.reviews.Delete(c.UserContext(), &userID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "review deleted"})
}
