package services

import (
	"context"
	"testing"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/testutil"
)

func TestReviewLifecycleKeepsRatingInSync(t *testing.T) {
	db := testutil.NewDB(t)
	buyer := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	browser := testutil.CreateUser(t, db, "browser@example.com", models.RoleCustomer)
	p := testutil.CreateProduct(t, db, "Serum", 20, 5)

	order := placeTestOrder(t, db, buyer, p, 1)
	advance(t, NewOrderService(db, NewRewardService(db, 0), nil, nil), order.ID,
		models.OrderConfirmed, models.OrderProcessing, models.OrderShipped, models.OrderDelivered)

	ctx := context.Background()
	svc := NewReviewService(db, nil)

	if _, err := svc.Create(ctx, buyer.ID, ReviewInput{ProductID: p.ID, Rating: 6}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for rating 6, got %v", err)
	}

	verified, err := svc.Create(ctx, buyer.ID, ReviewInput{ProductID: p.ID, Rating: 5, Title: "Love it"})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if !verified.VerifiedPurchase || verified.Status != models.ReviewPending {
		t.Fatalf("unexpected review %+v", verified)
	}
	if _, err := svc.Create(ctx, buyer.ID, ReviewInput{ProductID: p.ID, Rating: 4}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second review, got %v", err)
	}

	unverified, err := svc.Create(ctx, browser.ID, ReviewInput{ProductID: p.ID, Rating: 2})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if unverified.VerifiedPurchase {
		t.Fatal("review without a delivered order marked verified")
	}

	if got := stockOf(t, db, p.ID); got.RatingCount != 0 {
		t.Fatalf("pending reviews counted: %d", got.RatingCount)
	}

	if _, err := svc.Moderate(ctx, verified.ID, models.ReviewApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Moderate(ctx, unverified.ID, models.ReviewApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := stockOf(t, db, p.ID); got.RatingAverage != 3.5 || got.RatingCount != 2 {
		t.Fatalf("after approval: average=%v count=%d", got.RatingAverage, got.RatingCount)
	}
	if _, err := svc.Moderate(ctx, unverified.ID, models.ReviewPending); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict moving back to pending, got %v", err)
	}

	var notices int64
	db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", browser.ID, "review").Count(&notices)
	if notices != 1 {
		t.Fatalf("expected 1 moderation notice, got %d", notices)
	}

	four := 4
	updated, err := svc.Update(ctx, buyer.ID, verified.ID, ReviewUpdate{Rating: &four})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.ReviewPending || updated.Rating != 4 {
		t.Fatalf("edited review: status=%s rating=%d", updated.Status, updated.Rating)
	}
	if got := stockOf(t, db, p.ID); got.RatingAverage != 2 || got.RatingCount != 1 {
		t.Fatalf("after edit: average=%v count=%d", got.RatingAverage, got.RatingCount)
	}

	if err := svc.Delete(ctx, &buyer.ID, unverified.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found deleting another user's review, got %v", err)
	}
	if err := svc.Delete(ctx, nil, unverified.ID); err != nil {
		t.Fatalf("staff delete: %v", err)
	}
	if got := stockOf(t, db, p.ID); got.RatingAverage != 0 || got.RatingCount != 0 {
		t.Fatalf("after delete: average=%v count=%d", got.RatingAverage, got.RatingCount)
	}

	if _, err := svc.Moderate(ctx, verified.ID, models.ReviewApproved); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if got := stockOf(t, db, p.ID); got.RatingAverage != 4 || got.RatingCount != 1 {
		t.Fatalf("after re-approval: average=%v count=%d", got.RatingAverage, got.RatingCount)
	}
}
