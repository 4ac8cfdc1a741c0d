package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"design-studio/internal/render/cache"
)

// ============================================================
// Cache Handlers
// ============================================================

type CacheHandler struct {
	cache *cache.Cache
	log   zerolog.Logger
}

func NewCacheHandler(c *cache.Cache, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{cache: c, log: logger}
}

// Stats отдаёт счётчики кэша рендера.
func (h *CacheHandler) Stats(c fiber.Ctx) error {
	return c.JSON(h.cache.Stats())
}

// InvalidateTemplate сбрасывает все рендеры шаблона после его изменения.
func (h *CacheHandler) InvalidateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(400).JSON(fiber.Map{"error": "template id required"})
	}

	n := h.cache.InvalidateTemplate(c.Context(), id)
	h.log.Info().Str("template", id).Int("removed", n).Msg("template renders invalidated")
	return c.JSON(fiber.Map{"template_id": id, "removed": n})
}

// Purge удаляет просроченные записи, не дожидаясь фоновой очистки.
func (h *CacheHandler) Purge(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"removed": h.cache.Purge()})
}
