package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/utils"
)

// NotificationHandler serves in-app notifications.
type NotificationHandler struct {
	db *gorm.DB
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// ListNotifications returns the user's notifications, newest first.
func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if queryBool(c, "unread") {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.Notification
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

// UnreadCount returns how many notifications are unread.
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var count int64
	if err := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"count": count}})
}

// MarkRead marks one notification as read.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var n models.Notification
	if err := h.db.First(&n, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return apperr.NotFoundOr(err, "notification not found")
	}
	if !n.IsRead {
		if err := h.db.Model(&models.Notification{}).Where("id = ?", n.ID).Update("is_read", true).Error; err != nil {
			return err
		}
		n.IsRead = true
	}
	return c.JSON(fiber.Map{"success": true, "data": n})
}

// MarkAllRead marks every notification of the user as read.
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	result := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"updated": result.RowsAffected}})
}

// DeleteNotification removes a notification.
func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	result := h.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("notification not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "notification deleted"})
}
