package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/utils"
)

// ReturnService handles customer return requests.
type ReturnService struct {
	db       *gorm.DB
	rewards  *RewardService
	notifier *Notifier
	cache    *CatalogCache
	now      func() time.Time
}

// NewReturnService constructs ReturnService.
func NewReturnService(db *gorm.DB, rewards *RewardService, notifier *Notifier, cache *CatalogCache) *ReturnService {
	return &ReturnService{db: db, rewards: rewards, notifier: notifier, cache: cache, now: time.Now}
}

type ReturnItemInput struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"gte=1"`
}

type ReturnInput struct {
	OrderID uuid.UUID         `json:"order_id" validate:"required"`
	Reason  string            `json:"reason" validate:"required,max=500"`
	Items   []ReturnItemInput `json:"items" validate:"required,min=1,dive"`
}

// Create opens a return for a delivered order owned by userID.
func (s *ReturnService) Create(ctx context.Context, userID uuid.UUID, input ReturnInput) (models.ReturnRequest, error) {
	if len(input.Items) == 0 {
		return models.ReturnRequest{}, apperr.Validation("items must contain at least 1 entries")
	}

	var request models.ReturnRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("Items").
			Where("user_id = ?", userID).
			First(&order, "id = ?", input.OrderID).Error; err != nil {
			return apperr.NotFoundOr(err, "order not found")
		}
		if order.Status != models.OrderDelivered {
			return apperr.Validation("only delivered orders can be returned")
		}

		returned, err := returnedQuantities(tx, order.ID)
		if err != nil {
			return err
		}

		orderItems := make(map[uuid.UUID]models.OrderItem, len(order.Items))
		for _, item := range order.Items {
			orderItems[item.ID] = item
		}

		requested := make(map[uuid.UUID]int)
		for _, in := range input.Items {
			if in.Quantity < 1 {
				return apperr.Validation("quantity must be at least 1")
			}
			requested[in.OrderItemID] += in.Quantity
		}

		refund := decimal.Zero
		items := make([]models.ReturnItem, 0, len(requested))
		for _, in := range input.Items {
			qty, pending := requested[in.OrderItemID]
			if !pending {
				continue
			}
			delete(requested, in.OrderItemID)

			item, ok := orderItems[in.OrderItemID]
			if !ok {
				return apperr.Validation("item %s is not part of this order", in.OrderItemID)
			}
			if available := item.Quantity - returned[item.ID]; qty > available {
				return apperr.Validation("cannot return %d of %s: %d eligible", qty, item.ProductName, available)
			}

			refund = refund.Add(LineTotal(item.UnitPrice, qty))
			items = append(items, models.ReturnItem{
				OrderItemID: item.ID,
				ProductID:   item.ProductID,
				Quantity:    qty,
				UnitPrice:   item.UnitPrice,
			})
		}

		number, err := utils.GenerateReference("RET", s.now())
		if err != nil {
			return err
		}

		request = models.ReturnRequest{
			ReturnNumber: number,
			OrderID:      order.ID,
			UserID:       userID,
			Reason:       input.Reason,
			Status:       models.ReturnRequested,
			RefundAmount: Float(refund),
			Items:        items,
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		return models.ReturnRequest{}, err
	}

	s.notifier.Publish(EventReturnUpdated, returnEvent(request))
	return request, nil
}

// ReturnStatusChange requests a move of a return to a new status.
type ReturnStatusChange struct {
	Status    models.ReturnStatus `json:"status" validate:"required"`
	AdminNote string              `json:"admin_note" validate:"max=500"`
}

// UpdateStatus moves a return along its lifecycle. Receiving restocks the
// items; refunding updates the order's payment and, when everything was
// returned, its status.
func (s *ReturnService) UpdateStatus(ctx context.Context, id uuid.UUID, change ReturnStatusChange, actor *uuid.UUID) (models.ReturnRequest, error) {
	if !change.Status.Valid() {
		return models.ReturnRequest{}, apperr.Validation("invalid return status %q", change.Status)
	}

	var request models.ReturnRequest
	restocked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&request, "id = ?", id).Error; err != nil {
			return apperr.NotFoundOr(err, "return request not found")
		}
		if !request.Status.CanTransitionTo(change.Status) {
			return apperr.Conflict("cannot change return status from %s to %s", request.Status, change.Status)
		}

		var order models.Order
		if err := tx.Preload("Items").First(&order, "id = ?", request.OrderID).Error; err != nil {
			return apperr.NotFoundOr(err, "order not found")
		}

		switch change.Status {
		case models.ReturnReceived:
			for _, item := range request.Items {
				if _, err := ApplyStockChange(tx, StockChange{
					ProductID: item.ProductID,
					Delta:     item.Quantity,
					Reason:    models.StockReturn,
					Reference: request.ReturnNumber,
					Actor:     actor,
				}); err != nil && !apperr.Is(err, apperr.KindNotFound) {
					return err
				}
			}
			restocked = true
		case models.ReturnRefunded:
			if err := s.settleRefund(tx, request, order, actor); err != nil {
				return err
			}
		}

		updates := map[string]any{"status": change.Status}
		if change.AdminNote != "" {
			updates["admin_note"] = change.AdminNote
			request.AdminNote = change.AdminNote
		}
		if err := tx.Model(&models.ReturnRequest{}).Where("id = ?", request.ID).Updates(updates).Error; err != nil {
			return err
		}
		request.Status = change.Status

		return CreateNotification(tx, request.UserID, "return",
			"Return "+string(change.Status),
			fmt.Sprintf("Your return %s for order %s is now %s.", request.ReturnNumber, order.OrderNumber, change.Status),
			"/returns/"+request.ID.String())
	})
	if err != nil {
		return models.ReturnRequest{}, err
	}

	if restocked {
		s.cache.Invalidate(ctx)
	}
	s.notifier.Publish(EventReturnUpdated, returnEvent(request))
	return request, nil
}

// settleRefund marks the order refunded or partially refunded depending on
// how much of it has now been refunded, and takes back the points earned on
// the refunded amount.
func (s *ReturnService) settleRefund(tx *gorm.DB, request models.ReturnRequest, order models.Order, actor *uuid.UUID) error {
	var refunded []models.ReturnItem
	if err := tx.Model(&models.ReturnItem{}).
		Joins("JOIN return_requests ON return_requests.id = return_items.return_request_id").
		Where("return_requests.order_id = ? AND return_requests.status = ? AND return_requests.id <> ?",
			order.ID, models.ReturnRefunded, request.ID).
		Find(&refunded).Error; err != nil {
		return err
	}
	refunded = append(refunded, request.Items...)

	perItem := make(map[uuid.UUID]int)
	for _, item := range refunded {
		perItem[item.OrderItemID] += item.Quantity
	}
	full := true
	for _, item := range order.Items {
		if perItem[item.ID] < item.Quantity {
			full = false
			break
		}
	}

	payment := models.PaymentPartiallyRefunded
	if full {
		payment = models.PaymentRefunded
	}

	if s.rewards != nil {
		var err error
		if full {
			err = s.rewards.Reverse(tx, order)
		} else {
			err = s.rewards.ReverseRefund(tx, order, request.RefundAmount)
		}
		if err != nil {
			return err
		}
	}
	updates := map[string]any{}
	if order.PaymentStatus != payment && order.PaymentStatus.CanTransitionTo(payment) {
		updates["payment_status"] = payment
	}
	if full && order.Status.CanTransitionTo(models.OrderReturned) {
		updates["status"] = models.OrderReturned
		if err := tx.Create(&models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: order.Status,
			ToStatus:   models.OrderReturned,
			Note:       "Return " + request.ReturnNumber + " refunded",
			ChangedBy:  actor,
		}).Error; err != nil {
			return err
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error
}

// returnedQuantities sums quantities already claimed by non-rejected
// returns, per order item.
func returnedQuantities(tx *gorm.DB, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		OrderItemID uuid.UUID
		Total       int
	}
	err := tx.Model(&models.ReturnItem{}).
		Select("return_items.order_item_id AS order_item_id, SUM(return_items.quantity) AS total").
		Joins("JOIN return_requests ON return_requests.id = return_items.return_request_id").
		Where("return_requests.order_id = ? AND return_requests.status <> ?", orderID, models.ReturnRejected).
		Group("return_items.order_item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		out[r.OrderItemID] = r.Total
	}
	return out, nil
}

func returnEvent(r models.ReturnRequest) map[string]any {
	return map[string]any{
		"return_id":     r.ID,
		"return_number": r.ReturnNumber,
		"order_id":      r.OrderID,
		"status":        r.Status,
		"refund_amount": r.RefundAmount,
	}
}
