package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/telemetry"
)

// OrderService applies lifecycle changes to placed orders.
type OrderService struct {
	db       *gorm.DB
	rewards  *RewardService
	notifier *Notifier
	cache    *CatalogCache
}

// NewOrderService constructs OrderService.
func NewOrderService(db *gorm.DB, rewards *RewardService, notifier *Notifier, cache *CatalogCache) *OrderService {
	return &OrderService{db: db, rewards: rewards, notifier: notifier, cache: cache}
}

// StatusChange requests a move of an order to a new status.
type StatusChange struct {
	OrderID uuid.UUID
	// OwnerID restricts the change to orders of this user. Nil for staff.
	OwnerID *uuid.UUID
	Next    models.OrderStatus
	Note    string
	Actor   *uuid.UUID
}

// UpdateStatus moves an order along its lifecycle. Cancelling restores stock,
// reverses earned points and releases the coupon; delivering awards points.
func (s *OrderService) UpdateStatus(ctx context.Context, change StatusChange) (order models.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "order.update_status",
		attribute.String("order.id", change.OrderID.String()),
		attribute.String("order.next_status", string(change.Next)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if !change.Next.Valid() {
		return models.Order{}, apperr.Validation("invalid order status %q", change.Next)
	}

	var previous models.OrderStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Preload("Items")
		if change.OwnerID != nil {
			query = query.Where("user_id = ?", *change.OwnerID)
		}
		if err := query.First(&order, "id = ?", change.OrderID).Error; err != nil {
			return apperr.NotFoundOr(err, "order not found")
		}

		previous = order.Status
		if change.OwnerID != nil {
			if change.Next != models.OrderCancelled {
				return apperr.Forbidden("customers may only cancel orders")
			}
			if !order.Status.Cancellable() {
				return apperr.Conflict("order in status %s can no longer be cancelled", order.Status)
			}
		} else if !order.Status.CanTransitionTo(change.Next) {
			return apperr.Conflict("cannot change order status from %s to %s", order.Status, change.Next)
		}

		updates := map[string]any{"status": change.Next}

		switch change.Next {
		case models.OrderCancelled:
			for _, item := range order.Items {
				if _, err := ApplyStockChange(tx, StockChange{
					ProductID: item.ProductID,
					Delta:     item.Quantity,
					Reason:    models.StockCancellation,
					Reference: order.OrderNumber,
					Actor:     change.Actor,
				}); err != nil && !apperr.Is(err, apperr.KindNotFound) {
					return err
				}
			}
			if err := s.rewards.Reverse(tx, order); err != nil {
				return err
			}
			if err := releaseCouponUsage(tx, order.ID); err != nil {
				return err
			}
			if order.PaymentStatus == models.PaymentPaid {
				updates["payment_status"] = models.PaymentRefunded
			}
		case models.OrderDelivered:
			if err := s.rewards.Award(tx, order); err != nil {
				return err
			}
			if order.PaymentMethod == models.PaymentCashOnDelivery && order.PaymentStatus == models.PaymentPending {
				updates["payment_status"] = models.PaymentPaid
			}
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: previous,
			ToStatus:   change.Next,
			Note:       change.Note,
			ChangedBy:  change.Actor,
		}).Error; err != nil {
			return err
		}

		if order.UserID != nil {
			if err := CreateNotification(tx, *order.UserID, "order",
				"Order "+string(change.Next),
				fmt.Sprintf("Your order %s is now %s.", order.OrderNumber, change.Next),
				"/orders/"+order.ID.String()); err != nil {
				return err
			}
		}

		return tx.Preload("Items").Preload("History").First(&order, "id = ?", order.ID).Error
	})
	if err != nil {
		return models.Order{}, err
	}

	payload := orderEvent(order)
	payload["previous_status"] = previous
	if change.Next == models.OrderCancelled {
		s.cache.Invalidate(ctx)
		s.notifier.Publish(EventOrderCancelled, payload)
	} else {
		s.notifier.Publish(EventOrderStatusChanged, payload)
	}
	return order, nil
}

// UpdatePaymentStatus moves an order's payment along its lifecycle.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, next models.PaymentStatus) (models.Order, error) {
	if !next.Valid() {
		return models.Order{}, apperr.Validation("invalid payment status %q", next)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return apperr.NotFoundOr(err, "order not found")
		}
		if !order.PaymentStatus.CanTransitionTo(next) {
			return apperr.Conflict("cannot change payment status from %s to %s", order.PaymentStatus, next)
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("payment_status", next).Error; err != nil {
			return err
		}
		order.PaymentStatus = next
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.notifier.Publish(EventOrderStatusChanged, orderEvent(order))
	return order, nil
}
