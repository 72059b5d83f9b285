package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// DefaultPageSize is used when the client omits limit.
const DefaultPageSize = 20

// MaxPageSize caps limit. It can be overridden at start-up from configuration.
var MaxPageSize = 100

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads page and limit query params with sane defaults.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(
		parseInt(c.Query("page", "1"), 1),
		parseInt(c.Query("limit", strconv.Itoa(DefaultPageSize)), DefaultPageSize),
	)
}

// NewPagination normalises page and limit.
func NewPagination(page, limit int) Pagination {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if MaxPageSize > 0 && limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Meta builds the pagination block of the response envelope.
func (p Pagination) Meta(total int64) fiber.Map {
	pages := int64(0)
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return fiber.Map{
		"current_page":   p.Page,
		"items_per_page": p.Limit,
		"total_items":    total,
		"total_pages":    pages,
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
