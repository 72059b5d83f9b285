package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/validate"
)

// WishlistHandler manages saved products of the authenticated user.
type WishlistHandler struct {
	db *gorm.DB
}

// NewWishlistHandler constructs WishlistHandler.
func NewWishlistHandler(db *gorm.DB) *WishlistHandler {
	return &WishlistHandler{db: db}
}

// ListWishlist returns the user's saved products.
func (h *WishlistHandler) ListWishlist(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var items []models.WishlistItem
	if err := h.db.Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&items).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": items})
}

type wishlistRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

// AddToWishlist saves a product. Saving it twice returns the existing row.
func (h *WishlistHandler) AddToWishlist(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}

	var req wishlistRequest
	if err := validate.Body(c, &req); err != nil {
		return err
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		return apperr.NotFoundOr(err, "product not found")
	}

	var item models.WishlistItem
	err = h.db.Where("user_id = ? AND product_id = ?", userID, product.ID).First(&item).Error
	if err == nil {
		item.Product = &product
		return c.JSON(fiber.Map{"success": true, "message": "product already in wishlist", "data": item})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	item = models.WishlistItem{UserID: userID, ProductID: product.ID}
	if err := h.db.Create(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("product already in wishlist")
		}
		return err
	}
	item.Product = &product

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": item})
}

// RemoveFromWishlist deletes a saved product.
func (h *WishlistHandler) RemoveFromWishlist(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}

	result := h.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.WishlistItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("product not in wishlist")
	}
	return c.JSON(fiber.Map{"success": true, "message": "removed from wishlist"})
}

// MoveToCart adds a saved product to the cart and removes it from the wishlist.
func (h *WishlistHandler) MoveToCart(c *fiber.Ctx) error {
	userID, err := middleware.MustUserID(c)
	if err != nil {
		return err
	}
	productID, err := paramID(c, "productId")
	if err != nil {
		return err
	}

	var line models.CartItem
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var item models.WishlistItem
		if err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error; err != nil {
			return apperr.NotFoundOr(err, "product not in wishlist")
		}

		product, err := purchasableProduct(tx, productID)
		if err != nil {
			return err
		}

		err = tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&line).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if product.StockQuantity < 1 {
				return apperr.Validation("%s is out of stock", product.Name)
			}
			line = models.CartItem{UserID: &userID, ProductID: productID, Quantity: 1}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if line.Quantity+1 > product.StockQuantity {
				return apperr.Validation("only %d of %s in stock", product.StockQuantity, product.Name)
			}
			line.Quantity++
			if err := tx.Model(&models.CartItem{}).Where("id = ?", line.ID).Update("quantity", line.Quantity).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.WishlistItem{}, "id = ?", item.ID).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "moved to cart", "data": line})
}
