package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/config"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/utils"
)

const (
	userContextKey = "currentUserID"
	roleContextKey = "currentUserRole"

	// SessionHeader identifies an anonymous shopper's cart.
	SessionHeader = "X-Session-ID"
)

// AuthMiddleware validates JWT tokens and loads the authenticated user into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperr.Unauthorized("missing authorization header")
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			return apperr.Unauthorized("invalid authorization header")
		}

		claims, err := utils.ParseToken(cfg.JWTSecret, token)
		if err != nil {
			return apperr.Unauthorized("invalid token")
		}

		setIdentity(c, claims)
		return c.Next()
	}
}

// OptionalAuth loads the user when a valid bearer token is present and lets
// anonymous requests through untouched.
func OptionalAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := bearerToken(c.Get("Authorization")); ok {
			if claims, err := utils.ParseToken(cfg.JWTSecret, token); err == nil {
				setIdentity(c, claims)
			}
		}
		return c.Next()
	}
}

// RequireRoles rejects authenticated users whose role is not listed.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := GetCurrentRole(c)
		if !ok {
			return apperr.Unauthorized("unauthorized")
		}
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}
		return apperr.Forbidden("insufficient permissions")
	}
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

// MustUserID returns the authenticated user ID or an unauthorized error.
func MustUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := GetCurrentUserID(c)
	if !ok {
		return uuid.Nil, apperr.Unauthorized("unauthorized")
	}
	return id, nil
}

// GetCurrentRole extracts the authenticated user's role from context.
func GetCurrentRole(c *fiber.Ctx) (models.Role, bool) {
	role, ok := c.Locals(roleContextKey).(models.Role)
	return role, ok
}

// SessionID returns the anonymous cart session identifier, if any.
func SessionID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(SessionHeader))
}

func setIdentity(c *fiber.Ctx, claims utils.TokenClaims) {
	c.Locals(userContextKey, claims.UserID)
	c.Locals(roleContextKey, models.Role(claims.Role))
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
