package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/validate"
)

// CartHandler manages shopping carts of users and anonymous sessions.
type CartHandler struct {
	db *gorm.DB
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(db *gorm.DB) *CartHandler {
	return &CartHandler{db: db}
}

// cartOwner scopes queries to the caller's cart: the user when
// authenticated, else the X-Session-ID session.
type cartOwner struct {
	userID    *uuid.UUID
	sessionID string
}

func ownerOf(c *fiber.Ctx) (cartOwner, error) {
	if id, ok := middleware.GetCurrentUserID(c); ok {
		return cartOwner{userID: &id}, nil
	}
	if session := middleware.SessionID(c); session != "" {
		return cartOwner{sessionID: session}, nil
	}
	return cartOwner{}, apperr.Validation("sign in or send the %s header", middleware.SessionHeader)
}

func (o cartOwner) scope(db *gorm.DB) *gorm.DB {
	if o.userID != nil {
		return db.Where("user_id = ?", *o.userID)
	}
	return db.Where("session_id = ? AND user_id IS NULL", o.sessionID)
}

// GetCart returns the caller's cart lines with a computed subtotal.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	return h.respondCart(c, owner, fiber.StatusOK)
}

func (h *CartHandler) respondCart(c *fiber.Ctx, owner cartOwner, status int) error {
	var items []models.CartItem
	if err := owner.scope(h.db).Preload("Product").Order("created_at asc").Find(&items).Error; err != nil {
		return err
	}

	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		subtotal = subtotal.Add(services.LineTotal(item.Product.EffectivePrice(), item.Quantity))
		count += item.Quantity
	}

	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"items":      items,
			"item_count": count,
			"subtotal":   services.Float(subtotal),
		},
	})
}

type addToCartRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=1,lte=1000"`
}

// AddItem adds a product to the cart, merging with an existing line.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}

	req := addToCartRequest{Quantity: 1}
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		product, err := purchasableProduct(tx, req.ProductID)
		if err != nil {
			return err
		}

		var line models.CartItem
		err = owner.scope(tx).Where("product_id = ?", req.ProductID).First(&line).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if req.Quantity > product.StockQuantity {
				return apperr.Validation("only %d of %s in stock", product.StockQuantity, product.Name)
			}
			line = models.CartItem{
				UserID:    owner.userID,
				SessionID: owner.sessionID,
				ProductID: product.ID,
				Quantity:  req.Quantity,
			}
			return tx.Create(&line).Error
		case err != nil:
			return err
		}

		next := line.Quantity + req.Quantity
		if next > product.StockQuantity {
			return apperr.Validation("only %d of %s in stock", product.StockQuantity, product.Name)
		}
		return tx.Model(&models.CartItem{}).Where("id = ?", line.ID).Update("quantity", next).Error
	})
	if err != nil {
		return err
	}

	return h.respondCart(c, owner, fiber.StatusCreated)
}

type updateCartRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=1000"`
}

// UpdateItem sets the quantity of one cart line.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req updateCartRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	var line models.CartItem
	if err := owner.scope(h.db).First(&line, "id = ?", id).Error; err != nil {
		return apperr.NotFoundOr(err, "cart item not found")
	}

	product, err := purchasableProduct(h.db, line.ProductID)
	if err != nil {
		return err
	}
	if req.Quantity > product.StockQuantity {
		return apperr.Validation("only %d of %s in stock", product.StockQuantity, product.Name)
	}

	if err := h.db.Model(&models.CartItem{}).Where("id = ?", line.ID).Update("quantity", req.Quantity).Error; err != nil {
		return err
	}
	return h.respondCart(c, owner, fiber.StatusOK)
}

// RemoveItem deletes one cart line.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	result := owner.scope(h.db).Where("id = ?", id).Delete(&models.CartItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("cart item not found")
	}
	return h.respondCart(c, owner, fiber.StatusOK)
}

// ClearCart empties the caller's cart.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	if err := owner.scope(h.db).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "cart cleared"})
}

type mergeCartRequest struct {
	SessionID string `json:"session_id"`
}

// MergeCart moves a guest session cart into the authenticated user's cart.
// Quantities of products present in both are added, capped at stock.
func (h *CartHandler) MergeCart(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var req mergeCartRequest
	if len(c.Body()) > 0 {
		if err := validate.Body(c, &req); err != nil {
			return err
		}
	}
	session := req.SessionID
	if session == "" {
		session = middleware.SessionID(c)
	}
	if session == "" {
		return apperr.Validation("session_id is required")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var guest []models.CartItem
		if err := tx.Preload("Product").
			Where("session_id = ? AND user_id IS NULL", session).
			Find(&guest).Error; err != nil {
			return err
		}

		for _, item := range guest {
			if item.Product == nil || !item.Product.Status.Purchasable() {
				continue
			}

			var existing models.CartItem
			err := tx.Where("user_id = ? AND product_id = ?", userID, item.ProductID).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				qty := min(item.Quantity, item.Product.StockQuantity)
				if qty <= 0 {
					continue
				}
				if err := tx.Create(&models.CartItem{UserID: &userID, ProductID: item.ProductID, Quantity: qty}).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				qty := min(existing.Quantity+item.Quantity, item.Product.StockQuantity)
				if err := tx.Model(&models.CartItem{}).Where("id = ?", existing.ID).Update("quantity", qty).Error; err != nil {
					return err
				}
			}
		}

		return tx.Where("session_id = ? AND user_id IS NULL", session).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		return err
	}

	return h.respondCart(c, cartOwner{userID: &userID}, fiber.StatusOK)
}

func purchasableProduct(tx *gorm.DB, id uuid.UUID) (models.Product, error) {
	var product models.Product
	if err := tx.First(&product, "id = ?", id).Error; err != nil {
		return models.Product{}, apperr.NotFoundOr(err, "product not found")
	}
	if !product.Status.Purchasable() {
		return models.Product{}, apperr.Validation("%s is not available", product.Name)
	}
	return product, nil
}
