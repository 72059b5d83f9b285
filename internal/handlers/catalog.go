package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/utils"
	"github.com/example/glowbeauty/internal/validate"
)

// CatalogHandler manages product categories.
type CatalogHandler struct {
	db    *gorm.DB
	cache *services.CatalogCache
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(db *gorm.DB, cache *services.CatalogCache) *CatalogHandler {
	return &CatalogHandler{db: db, cache: cache}
}

// ListCategories returns paginated categories. Inactive categories are only
// listed when include_inactive is set.
func (h *CatalogHandler) ListCategories(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Category{})
	if !queryBool(c, "include_inactive") {
		query = query.Where("is_active = ?", true)
	}
	if v := c.Query("parent_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("parent_id = ?", id)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var categories []models.Category
	if err := query.Limit(pg.Limit).Offset(pg.Offset).Order("name asc").
		Find(&categories).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       categories,
		"pagination": pg.Meta(total),
	})
}

// GetCategory returns a single category by ID or slug.
func (h *CatalogHandler) GetCategory(c *fiber.Ctx) error {
	var category models.Category
	query := h.db
	if id, err := uuid.Parse(c.Params("id")); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("slug = ?", c.Params("id"))
	}
	if err := query.First(&category).Error; err != nil {
		return apperr.NotFoundOr(err, "category not found")
	}

	var productCount int64
	if err := h.db.Model(&models.Product{}).
		Where("category_id = ? AND status IN ?", category.ID, publicStatuses).
		Count(&productCount).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"category":      category,
			"product_count": productCount,
		},
	})
}

type categoryRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=150"`
	Slug        *string    `json:"slug" validate:"omitempty,max=191"`
	Description *string    `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,max=500"`
	IsActive    *bool      `json:"is_active"`
}

// CreateCategory persists a new category.
func (h *CatalogHandler) CreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return apperr.Validation("name is required")
	}

	category := models.Category{Name: strings.TrimSpace(*req.Name), IsActive: true}
	if err := h.applyCategory(&category, req); err != nil {
		return err
	}
	if err := h.db.Create(&category).Error; err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": category})
}

// UpdateCategory updates an existing category.
func (h *CatalogHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var category models.Category
	if err := h.db.First(&category, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "category not found")
	}

	var req categoryRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}
	if req.Name != nil {
		category.Name = strings.TrimSpace(*req.Name)
	}
	if err := h.applyCategory(&category, req); err != nil {
		return err
	}
	if category.ParentID != nil && *category.ParentID == category.ID {
		return apperr.Validation("category cannot be its own parent")
	}

	if err := h.db.Save(&category).Error; err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext())
	return c.JSON(fiber.Map{"success": true, "data": category})
}

// DeleteCategory removes a category that no product references.
func (h *CatalogHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var category models.Category
	if err := h.db.First(&category, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "category not found")
	}

	var products int64
	if err := h.db.Model(&models.Product{}).Where("category_id = ?", id).Count(&products).Error; err != nil {
		return err
	}
	if products > 0 {
		return apperr.Conflict("category has %d products; reassign them first", products)
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Category{}).Where("parent_id = ?", id).
			Update("parent_id", category.ParentID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Category{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	h.cache.Invalidate(c.UserContext())
	return c.JSON(fiber.Map{"success": true, "message": "category deleted"})
}

func (h *CatalogHandler) applyCategory(category *models.Category, req categoryRequest) error {
	if req.Slug != nil {
		category.Slug = utils.Slugify(*req.Slug)
	}
	if category.Slug == "" {
		category.Slug = utils.Slugify(category.Name)
	}
	if category.Slug == "" {
		return apperr.Validation("slug is required")
	}

	var clash int64
	if err := h.db.Model(&models.Category{}).
		Where("slug = ? AND id <> ?", category.Slug, category.ID).
		Count(&clash).Error; err != nil {
		return err
	}
	if clash > 0 {
		return apperr.Conflict("category slug %q is already taken", category.Slug)
	}

	if req.Description != nil {
		category.Description = *req.Description
	}
	if req.ParentID != nil {
		if *req.ParentID == uuid.Nil {
			category.ParentID = nil
		} else {
			var parent int64
			if err := h.db.Model(&models.Category{}).Where("id = ?", *req.ParentID).Count(&parent).Error; err != nil {
				return err
			}
			if parent == 0 {
				return apperr.Validation("parent category does not exist")
			}
			category.ParentID = req.ParentID
		}
	}
	if req.ImageURL != nil {
		category.ImageURL = *req.ImageURL
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
	return nil
}
