package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/models"
)

// ActiveAccount reloads the authenticated user's status and role. Suspended
// or deactivated accounts are refused even while their token is valid, and a
// role change takes effect immediately. Anonymous requests pass through.
func ActiveAccount(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetCurrentUserID(c)
		if !ok {
			return c.Next()
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).
			Select("id", "role", "status").
			First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Unauthorized("account no longer exists")
			}
			return err
		}
		if user.Status != models.UserActive {
			return apperr.Forbidden("account is " + string(user.Status))
		}

		c.Locals(roleContextKey, user.Role)
		return c.Next()
	}
}
