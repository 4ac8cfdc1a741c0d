package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"

	"design-studio/internal/design/models"
	"design-studio/internal/render/raster"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// ============================================================
// Formats
// ============================================================

type Format string

const (
	PNG Format = "png"
	JPG Format = "jpg"
	PDF Format = "pdf"
	SVG Format = "svg"
)

const (
	DefaultScale   = 1.0
	DefaultQuality = 92
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrInvalidScale      = raster.ErrInvalidScale
	ErrInvalidQuality    = errors.New("quality must be in [1, 100]")
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPG, nil
	case "pdf":
		return PDF, nil
	case "svg":
		return SVG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) ContentType() string {
	switch f {
	case PNG:
		return "image/png"
	case JPG:
		return "image/jpeg"
	case PDF:
		return "application/pdf"
	case SVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

func (f Format) Ext() string {
	return "." + string(f)
}

// Raster сообщает, что формат строится из растрового рендера.
func (f Format) Raster() bool {
	return f == PNG || f == JPG || f == PDF
}

type Params struct {
	Format  Format  `json:"format"`
	Scale   float64 `json:"scale"`
	Quality int     `json:"quality"`
}

// Normalize проставляет значения по умолчанию и проверяет диапазоны.
func (p Params) Normalize() (Params, error) {
	if p.Format == "" {
		p.Format = PNG
	}
	f, err := ParseFormat(string(p.Format))
	if err != nil {
		return p, err
	}
	p.Format = f

	if p.Scale == 0 {
		p.Scale = DefaultScale
	}
	if math.IsNaN(p.Scale) || p.Scale < 0 || p.Scale > raster.MaxScale {
		return p, fmt.Errorf("%w: %g", ErrInvalidScale, p.Scale)
	}

	if p.Format != JPG {
		p.Quality = 0
	} else if p.Quality == 0 {
		p.Quality = DefaultQuality
	}
	if p.Format == JPG && (p.Quality < 1 || p.Quality > 100) {
		return p, fmt.Errorf("%w: %d", ErrInvalidQuality, p.Quality)
	}
	return p, nil
}

type Result struct {
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
}

// ============================================================
// Exporter
// ============================================================

type Exporter struct {
	raster *raster.Rasterizer
	log    zerolog.Logger
}

func New(r *raster.Rasterizer, logger zerolog.Logger) *Exporter {
	return &Exporter{raster: r, log: logger}
}

// Export сериализует холст в выбранный формат.
func (e *Exporter) Export(ctx context.Context, canvas models.Canvas, params Params) (Result, error) {
	params, err := params.Normalize()
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	res := Result{ContentType: params.Format.ContentType(), Ext: params.Format.Ext()}

	switch params.Format {
	case PNG:
		res.Width, res.Height, err = e.writePNG(ctx, &buf, canvas, params.Scale)
	case JPG:
		res.Width, res.Height, err = e.writeJPEG(ctx, &buf, canvas, params.Scale, params.Quality)
	case PDF:
		res.Width, res.Height, err = e.writePDF(ctx, &buf, canvas, params.Scale)
	case SVG:
		res.Width, res.Height, err = e.writeSVG(ctx, &buf, canvas)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, params.Format)
	}
	if err != nil {
		return Result{}, err
	}

	res.Data = buf.Bytes()
	e.log.Debug().
		Str("format", string(params.Format)).
		Float64("scale", params.Scale).
		Int("objects", len(canvas.Objects)).
		Str("size", humanize.IBytes(uint64(len(res.Data)))).
		Msg("canvas exported")
	return res, nil
}

// opaqueBackground смешивает полупрозрачный фон с белым: у JPEG нет альфа-канала.
func opaqueBackground(bg string) (string, error) {
	c, ok, err := models.ParseHexColor(bg)
	if err != nil {
		return "", err
	}
	if !ok {
		return "#ffffff", nil
	}
	if c.A == 255 {
		return bg, nil
	}

	a := float64(c.A) / 255
	blend := func(v uint8) uint8 { return uint8(float64(v)*a + 255*(1-a) + 0.5) }
	out := color.NRGBA{R: blend(c.R), G: blend(c.G), B: blend(c.B), A: 255}
	return hexColor(out), nil
}

func hexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
