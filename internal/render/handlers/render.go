package handlers

import (
	"context"
	"errors"
	"strconv"

	"design-studio/internal/design/models"
	"design-studio/internal/render/cache"
	"design-studio/internal/render/export"
	"design-studio/internal/render/raster"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Render Handler
// ============================================================

const (
	HeaderCache     = "X-Cache"
	HeaderRenderKey = "X-Render-Key"
)

type RenderRequest struct {
	TemplateID string        `json:"template_id"`
	DesignID   string        `json:"design_id"`
	Canvas     models.Canvas `json:"canvas"`
}

type RenderHandler struct {
	cache    *cache.Cache
	exporter *export.Exporter
	fonts    *raster.FontRegistry
	fontsDir string
	log      zerolog.Logger
}

func NewRenderHandler(c *cache.Cache, exp *export.Exporter, fonts *raster.FontRegistry, fontsDir string, logger zerolog.Logger) *RenderHandler {
	return &RenderHandler{cache: c, exporter: exp, fonts: fonts, fontsDir: fontsDir, log: logger}
}

// Render экспортирует холст из тела запроса; повторный рендер тех же параметров берётся из кэша.
func (h *RenderHandler) Render(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "body required"})
	}

	var req RenderRequest
	if err := sonic.Unmarshal(c.Body(), &req); err != nil {
		h.log.Debug().Err(err).Msg("decode render request")
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON payload"})
	}

	params, err := parseParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Canvas.Validate(); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	snapshot, err := req.Canvas.Encode()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	key := cache.Key{
		TemplateID: req.TemplateID,
		DesignID:   req.DesignID,
		Revision:   cache.Revision(snapshot),
		Format:     string(params.Format),
		Scale:      params.Scale,
		Quality:    params.Quality,
	}
	key.Width, key.Height = raster.OutputSize(req.Canvas, params.Scale)

	ctx := c.Context()
	entry, hit, err := h.cache.GetOrRender(ctx, key, func(ctx context.Context) ([]byte, string, error) {
		h.ensureFonts(req.Canvas)
		res, err := h.exporter.Export(ctx, req.Canvas, params)
		if err != nil {
			return nil, "", err
		}
		return res.Data, res.ContentType, nil
	})
	if err != nil {
		return renderError(c, h.log, err)
	}

	status := "MISS"
	if hit {
		status = "HIT"
	}
	h.log.Info().
		Str("key", entry.Key).
		Str("format", key.Format).
		Str("cache", status).
		Str("size", humanize.IBytes(uint64(len(entry.Blob)))).
		Msg("render served")

	c.Set(HeaderCache, status)
	c.Set(HeaderRenderKey, entry.Key)
	c.Set("Content-Type", entry.ContentType)
	return c.Send(entry.Blob)
}

// ensureFonts перечитывает каталог шрифтов, если холст ссылается на неизвестное семейство.
func (h *RenderHandler) ensureFonts(canvas models.Canvas) {
	if h.fonts == nil || h.fontsDir == "" {
		return
	}
	for _, obj := range canvas.Objects {
		if obj.Type != models.ObjectText || obj.FontFamily == "" || h.fonts.Has(obj.FontFamily) {
			continue
		}
		n, err := h.fonts.LoadDir(h.fontsDir)
		if err != nil {
			h.log.Warn().Err(err).Str("dir", h.fontsDir).Msg("reload fonts")
		} else {
			h.log.Debug().Int("fonts", n).Str("family", obj.FontFamily).Msg("fonts reloaded")
		}
		return
	}
}

func parseParams(c fiber.Ctx) (export.Params, error) {
	p := export.Params{Format: export.Format(c.Query("format"))}

	if s := c.Query("scale"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, export.ErrInvalidScale
		}
		p.Scale = v
	}
	if s := c.Query("quality"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return p, export.ErrInvalidQuality
		}
		p.Quality = v
	}
	return p.Normalize()
}

func renderError(c fiber.Ctx, log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, export.ErrInvalidScale),
		errors.Is(err, export.ErrInvalidQuality),
		errors.Is(err, models.ErrInvalidCanvas),
		errors.Is(err, models.ErrInvalidColor),
		errors.Is(err, models.ErrDuplicateObject),
		errors.Is(err, models.ErrUnknownObjectType),
		errors.Is(err, raster.ErrInvalidAssetPath):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(503).JSON(fiber.Map{"error": "render cancelled"})
	}
	log.Error().Err(err).Msg("render failed")
	return c.Status(500).JSON(fiber.Map{"error": "render failed"})
}
