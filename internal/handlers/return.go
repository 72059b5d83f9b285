package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// ReturnHandler handles return requests for delivered orders.
type ReturnHandler struct {
	db      *gorm.DB
	returns *services.ReturnService
}

// NewReturnHandler constructs ReturnHandler.
func NewReturnHandler(db *gorm.DB, returns *services.ReturnService) *ReturnHandler {
	return &ReturnHandler{db: db, returns: returns}
}

// CreateReturn opens a return for one of the caller's delivered orders.
func (h *ReturnHandler) CreateReturn(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var req services.ReturnInput
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	request, err := h.returns.Create(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": request})
}

func (h *ReturnHandler) list(c *fiber.Ctx, query *gorm.DB) error {
	pg := utils.ParsePagination(c)

	if status := models.ReturnStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return apperr.Validation("invalid return status %q", status)
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var requests []models.ReturnRequest
	if err := query.Preload("Order").Preload("Items").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&requests).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       requests,
		"pagination": pg.Meta(total),
	})
}

// ListMyReturns returns the caller's return requests.
func (h *ReturnHandler) ListMyReturns(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	return h.list(c, h.db.Model(&models.ReturnRequest{}).Where("user_id = ?", userID))
}

// GetMyReturn returns one of the caller's return requests.
func (h *ReturnHandler) GetMyReturn(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var request models.ReturnRequest
	if err := h.db.Preload("Order.Items").Preload("Items").
		First(&request, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return apperr.NotFoundOr(err, "return request not found")
	}
	return c.JSON(fiber.Map{"success": true, "data": request})
}

// AdminListReturns returns all return requests.
func (h *ReturnHandler) AdminListReturns(c *fiber.Ctx) error {
	query := h.db.Model(&models.ReturnRequest{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(return_number) LIKE ?", likePattern(search))
	}
	return h.list(c, query)
}

// AdminGetReturn returns any return request with its order.
func (h *ReturnHandler) AdminGetReturn(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var request models.ReturnRequest
	if err := h.db.Preload("Order.Items").Preload("Order.User").Preload("Items").
		First(&request, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "return request not found")
	}
	return c.JSON(fiber.Map{"success": true, "data": request})
}

// UpdateReturnStatus moves a return request along its lifecycle.
func (h *ReturnHandler) UpdateReturnStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req services.ReturnStatusChange
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	request, err := h.returns.UpdateStatus(c.UserContext(), id, req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "return status updated", "data": request})
}
