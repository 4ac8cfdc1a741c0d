package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// ============================================================
// Logger Middleware
// ============================================================

// Logger возвращает access-лог fiber; пробы /health/* не логируются.
func Logger() fiber.Handler {
	return logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/health/")
		},
		Format:     "[${time}] ${status} - ${latency} ${method} ${path} | Content-Type: ${reqHeader:Content-Type} ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	})
}
