package handlers

import (
	"errors"
	"io"

	"design-studio/internal/render/svgimport"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Import Handler
// ============================================================

type ImportHandler struct {
	log zerolog.Logger
}

func NewImportHandler(logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{log: logger}
}

// ImportSVG превращает загруженный SVG (multipart, поле file) в холст.
func (h *ImportHandler) ImportSVG(c fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		h.log.Debug().Err(err).Str("content_type", c.Get("Content-Type")).Msg("form file")
		return c.Status(400).JSON(fiber.Map{
			"error": "file required in multipart/form-data",
		})
	}

	h.log.Info().Str("file", file.Filename).Str("size", humanize.IBytes(uint64(file.Size))).Msg("svg received")

	f, err := file.Open()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read file"})
	}

	res, err := svgimport.ParseBytes(data)
	if err != nil {
		status := 500
		if errors.Is(err, svgimport.ErrInvalidSVG) || errors.Is(err, svgimport.ErrNoSize) {
			status = 400
		}
		h.log.Warn().Err(err).Str("file", file.Filename).Msg("svg import failed")
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	h.log.Info().
		Int("objects", len(res.Canvas.Objects)).
		Int("warnings", len(res.Warnings)).
		Msg("svg imported")
	return c.JSON(res)
}
