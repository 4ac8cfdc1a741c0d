package handlers

import (
	"context"

	"design-studio/internal/design/models"
	"design-studio/internal/design/template"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Catalog Handler
// ============================================================

type TemplateStore interface {
	ListTemplates(ctx context.Context, category string) ([]models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
}

type CatalogHandler struct {
	catalog   *template.Catalog
	templates TemplateStore
}

func NewCatalogHandler(catalog *template.Catalog, templates TemplateStore) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, templates: templates}
}

// Presets - размеры холстов для нового дизайна.
func (h *CatalogHandler) Presets(c fiber.Ctx) error {
	category := c.Query("category")
	out := make([]models.Preset, 0, len(h.catalog.Presets))
	for _, p := range h.catalog.Presets {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return c.JSON(out)
}

// Templates - список шаблонов; ?category= фильтрует.
func (h *CatalogHandler) Templates(c fiber.Ctx) error {
	list, err := h.templates.ListTemplates(c.Context(), c.Query("category"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(list)
}

func (h *CatalogHandler) Template(c fiber.Ctx) error {
	t, err := h.templates.GetTemplate(c.Context(), c.Params("templateId"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(t)
}

// Categories - категории шаблонов каталога.
func (h *CatalogHandler) Categories(c fiber.Ctx) error {
	return c.JSON(h.catalog.Categories())
}
