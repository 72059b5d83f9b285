package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/models"
)

const publishTimeout = 5 * time.Second

// Notifier fans domain events out to the message broker and the admin chat.
// Delivery happens after commit in the background and never fails a request.
type Notifier struct {
	events   Publisher
	telegram *TelegramService
	currency string
}

// NewNotifier builds a Notifier. Nil arguments disable the respective channel.
func NewNotifier(events Publisher, telegram *TelegramService, currency string) *Notifier {
	if events == nil {
		events = NopPublisher{}
	}
	return &Notifier{events: events, telegram: telegram, currency: currency}
}

// Publish sends an event in the background.
func (n *Notifier) Publish(routingKey string, payload any) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.events.Publish(ctx, routingKey, payload); err != nil {
			log.Printf("[Events] publish %s failed: %v", routingKey, err)
		}
	}()
}

// OrderPlaced announces a new order.
func (n *Notifier) OrderPlaced(order models.Order, customerName string) {
	if n == nil {
		return
	}
	if order.Currency == "" {
		order.Currency = n.currency
	}

	n.Publish(EventOrderCreated, orderEvent(order))

	if n.telegram == nil {
		return
	}
	items := make([]OrderItemNotification, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemNotification{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}
	notification := OrderNotification{
		OrderNumber:   order.OrderNumber,
		Items:         items,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		CustomerName:  customerName,
		CustomerEmail: order.ContactEmail(),
		PaymentMethod: string(order.PaymentMethod),
		CouponCode:    order.CouponCode,
	}
	go func() {
		if err := n.telegram.NotifyNewOrder(notification); err != nil {
			log.Printf("[Order] Telegram notification failed: %v", err)
		}
	}()
}

// LowStock announces products at or below their reorder threshold.
func (n *Notifier) LowStock(products []models.Product) {
	if n == nil || len(products) == 0 {
		return
	}

	items := make([]LowStockNotification, 0, len(products))
	for _, p := range products {
		items = append(items, LowStockNotification{
			Name:      p.Name,
			SKU:       p.SKU,
			Stock:     p.StockQuantity,
			Threshold: p.LowStockThreshold,
		})
	}
	n.Publish(EventStockLow, items)

	if n.telegram == nil {
		return
	}
	go func() {
		if err := n.telegram.NotifyLowStock(items); err != nil {
			log.Printf("[Stock] Telegram notification failed: %v", err)
		}
	}()
}

func orderEvent(order models.Order) map[string]any {
	return map[string]any{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"user_id":        order.UserID,
		"guest_email":    order.GuestEmail,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"total_amount":   order.TotalAmount,
		"currency":       order.Currency,
	}
}

// CreateNotification stores an in-app notification for a user.
func CreateNotification(tx *gorm.DB, userID uuid.UUID, kind, title, message, link string) error {
	return tx.Create(&models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    link,
	}).Error
}
