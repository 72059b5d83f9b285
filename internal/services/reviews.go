package services

import (
	"context"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
)

// ReviewService manages product reviews and the ratings derived from them.
type ReviewService struct {
	db    *gorm.DB
	cache *CatalogCache
}

// NewReviewService constructs ReviewService.
func NewReviewService(db *gorm.DB, cache *CatalogCache) *ReviewService {
	return &ReviewService{db: db, cache: cache}
}

type ReviewInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Rating    int       `json:"rating" validate:"gte=1,lte=5"`
	Title     string    `json:"title" validate:"max=255"`
	Comment   string    `json:"comment" validate:"max=5000"`
}

type ReviewUpdate struct {
	Rating  *int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Title   *string `json:"title" validate:"omitempty,max=255"`
	Comment *string `json:"comment" validate:"omitempty,max=5000"`
}

// Create stores a pending review. A user may review each product once.
func (s *ReviewService) Create(ctx context.Context, userID uuid.UUID, input ReviewInput) (models.Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return models.Review{}, apperr.Validation("rating must be between 1 and 5")
	}

	var review models.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Select("id", "status").First(&product, "id = ?", input.ProductID).Error; err != nil {
			return apperr.NotFoundOr(err, "product not found")
		}

		var existing int64
		if err := tx.Model(&models.Review{}).
			Where("product_id = ? AND user_id = ?", input.ProductID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.Conflict("you have already reviewed this product")
		}

		verified, err := HasPurchased(tx, userID, input.ProductID)
		if err != nil {
			return err
		}

		review = models.Review{
			ProductID:        input.ProductID,
			UserID:           userID,
			Rating:           input.Rating,
			Title:            input.Title,
			Comment:          input.Comment,
			Status:           models.ReviewPending,
			VerifiedPurchase: verified,
		}
		return tx.Create(&review).Error
	})
	return review, err
}

// Update edits the user's own review and sends it back to moderation.
func (s *ReviewService) Update(ctx context.Context, userID, reviewID uuid.UUID, input ReviewUpdate) (models.Review, error) {
	var review models.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&review, "id = ?", reviewID).Error; err != nil {
			return apperr.NotFoundOr(err, "review not found")
		}
		wasApproved := review.Status == models.ReviewApproved

		updates := map[string]any{"status": models.ReviewPending}
		if input.Rating != nil {
			if *input.Rating < 1 || *input.Rating > 5 {
				return apperr.Validation("rating must be between 1 and 5")
			}
			updates["rating"] = *input.Rating
			review.Rating = *input.Rating
		}
		if input.Title != nil {
			updates["title"] = *input.Title
			review.Title = *input.Title
		}
		if input.Comment != nil {
			updates["comment"] = *input.Comment
			review.Comment = *input.Comment
		}
		if err := tx.Model(&models.Review{}).Where("id = ?", review.ID).Updates(updates).Error; err != nil {
			return err
		}
		review.Status = models.ReviewPending

		if wasApproved {
			return RecalculateProductRating(tx, review.ProductID)
		}
		return nil
	})
	if err == nil {
		s.cache.Invalidate(ctx)
	}
	return review, err
}

// Delete removes a review. A nil ownerID deletes any review (staff).
func (s *ReviewService) Delete(ctx context.Context, ownerID *uuid.UUID, reviewID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if ownerID != nil {
			query = query.Where("user_id = ?", *ownerID)
		}
		var review models.Review
		if err := query.First(&review, "id = ?", reviewID).Error; err != nil {
			return apperr.NotFoundOr(err, "review not found")
		}
		if err := tx.Delete(&review).Error; err != nil {
			return err
		}
		if review.Status == models.ReviewApproved {
			return RecalculateProductRating(tx, review.ProductID)
		}
		return nil
	})
	if err == nil {
		s.cache.Invalidate(ctx)
	}
	return err
}

// Moderate approves or rejects a review and notifies its author.
func (s *ReviewService) Moderate(ctx context.Context, reviewID uuid.UUID, next models.ReviewStatus) (models.Review, error) {
	if !next.Valid() {
		return models.Review{}, apperr.Validation("invalid review status %q", next)
	}

	var review models.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Product").First(&review, "id = ?", reviewID).Error; err != nil {
			return apperr.NotFoundOr(err, "review not found")
		}
		if !review.Status.CanTransitionTo(next) {
			return apperr.Conflict("cannot change review status from %s to %s", review.Status, next)
		}
		if err := tx.Model(&models.Review{}).Where("id = ?", review.ID).Update("status", next).Error; err != nil {
			return err
		}
		review.Status = next

		if err := RecalculateProductRating(tx, review.ProductID); err != nil {
			return err
		}

		productName := "your product"
		if review.Product != nil {
			productName = review.Product.Name
		}
		return CreateNotification(tx, review.UserID, "review",
			"Review "+string(next),
			"Your review of "+productName+" was "+string(next)+".",
			"/products/"+review.ProductID.String())
	})
	if err == nil {
		s.cache.Invalidate(ctx)
	}
	return review, err
}

// RatingSummary aggregates approved reviews of a product.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// Summary computes the approved rating summary of a product.
func Summary(tx *gorm.DB, productID uuid.UUID) (RatingSummary, error) {
	var row struct {
		Average float64
		Count   int64
	}
	err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("product_id = ? AND status = ?", productID, models.ReviewApproved).
		Scan(&row).Error
	if err != nil {
		return RatingSummary{}, err
	}
	return RatingSummary{Average: math.Round(row.Average*100) / 100, Count: row.Count}, nil
}

// RecalculateProductRating stores the approved rating summary on the product.
func RecalculateProductRating(tx *gorm.DB, productID uuid.UUID) error {
	summary, err := Summary(tx, productID)
	if err != nil {
		return err
	}
	return tx.Model(&models.Product{}).Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"rating_average": summary.Average,
			"rating_count":   summary.Count,
		}).Error
}

// HasPurchased reports whether the user has a delivered order containing the product.
func HasPurchased(tx *gorm.DB, userID, productID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND order_items.product_id = ? AND orders.status IN ?",
			userID, productID, []models.OrderStatus{models.OrderDelivered, models.OrderReturned}).
		Count(&count).Error
	return count > 0, err
}
