package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"design-studio/internal/design/models"

	"github.com/gogpu/gg"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
)

// ============================================================
// Rasterizer
// ============================================================

const (
	MaxScale = 8.0

	// пределы итогового растра: сторона и число пикселей (RGBA, 4 байта на пиксель)
	MaxOutputSide   = 16384
	MaxOutputPixels = 1 << 27
)

var ErrInvalidScale = errors.New("scale must be in (0, 8]")

// Rasterizer рисует холст через gg: фон, затем объекты снизу вверх.
type Rasterizer struct {
	fonts  *FontRegistry
	assets AssetSource
	log    zerolog.Logger
}

func New(fonts *FontRegistry, assets AssetSource, logger zerolog.Logger) *Rasterizer {
	if assets == nil {
		assets = DirAssets{}
	}
	return &Rasterizer{fonts: fonts, assets: assets, log: logger}
}

func (r *Rasterizer) Fonts() *FontRegistry {
	return r.fonts
}

func (r *Rasterizer) Assets() AssetSource {
	return r.assets
}

// OutputSize - размер результата в пикселях для заданного масштаба.
func OutputSize(c models.Canvas, scale float64) (int, int) {
	return int(math.Round(c.Width * scale)), int(math.Round(c.Height * scale))
}

// CheckOutputSize отклоняет пустой или слишком большой растр до выделения памяти.
func CheckOutputSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: output %dx%d", models.ErrInvalidCanvas, w, h)
	}
	if w > MaxOutputSide || h > MaxOutputSide || int64(w)*int64(h) > MaxOutputPixels {
		return fmt.Errorf("%w: output %dx%d exceeds raster limit", models.ErrInvalidCanvas, w, h)
	}
	return nil
}

// Render возвращает контекст с нарисованным холстом; вызывающий закрывает его.
func (r *Rasterizer) Render(ctx context.Context, canvas models.Canvas, scale float64) (*gg.Context, error) {
	if scale <= 0 || scale > MaxScale || math.IsNaN(scale) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidScale, scale)
	}
	if err := canvas.Validate(); err != nil {
		return nil, err
	}
	canvas = canvas.Clone()
	canvas.Normalize()

	w, h := OutputSize(canvas, scale)
	if err := CheckOutputSize(w, h); err != nil {
		return nil, err
	}

	dc := gg.NewContext(w, h)
	dc.Scale(scale, scale)

	if err := r.drawBackground(dc, canvas); err != nil {
		dc.Close()
		return nil, err
	}

	for _, obj := range canvas.Objects {
		if err := ctx.Err(); err != nil {
			dc.Close()
			return nil, err
		}
		if obj.Hidden || !obj.Type.Known() {
			continue
		}
		if err := r.drawObject(ctx, dc, obj); err != nil {
			dc.Close()
			return nil, fmt.Errorf("object %s: %w", obj.ID, err)
		}
	}

	return dc, nil
}

func (r *Rasterizer) drawBackground(dc *gg.Context, canvas models.Canvas) error {
	bg, ok, err := models.ParseHexColor(canvas.Background)
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}
	if !ok {
		return nil
	}
	dc.DrawRectangle(0, 0, canvas.Width, canvas.Height)
	dc.SetColor(bg)
	return dc.Fill()
}

func (r *Rasterizer) drawObject(ctx context.Context, dc *gg.Context, obj models.Object) error {
	dc.Push()
	defer dc.Pop()

	if obj.Angle != 0 {
		pivot := Pivot(obj)
		dc.RotateAbout(obj.Angle*math.Pi/180, pivot.X, pivot.Y)
	}

	switch obj.Type {
	case models.ObjectRect:
		if obj.Radius > 0 {
			dc.DrawRoundedRectangle(obj.Left, obj.Top, obj.Width, obj.Height, obj.Radius)
		} else {
			dc.DrawRectangle(obj.Left, obj.Top, obj.Width, obj.Height)
		}
		return paint(dc, obj)
	case models.ObjectEllipse:
		dc.DrawEllipse(obj.Left+obj.Width/2, obj.Top+obj.Height/2, obj.Width/2, obj.Height/2)
		return paint(dc, obj)
	case models.ObjectLine:
		return r.drawLine(dc, obj)
	case models.ObjectPath:
		if len(obj.Points) < 2 {
			return nil
		}
		tracePoints(dc, obj)
		if obj.Fill != "" && obj.Fill != "none" {
			dc.ClosePath()
		}
		return paint(dc, obj)
	case models.ObjectImage:
		return r.drawImage(ctx, dc, obj)
	case models.ObjectText:
		return r.drawText(dc, obj)
	}
	return nil
}

// Pivot - центр вращения объекта: центр его неповёрнутого прямоугольника.
func Pivot(obj models.Object) models.Point {
	obj.Angle = 0
	b := obj.Bounds()
	return models.Point{X: b.CenterX(), Y: b.CenterY()}
}

func tracePoints(dc *gg.Context, obj models.Object) {
	for i, p := range obj.Points {
		if i == 0 {
			dc.MoveTo(obj.Left+p.X, obj.Top+p.Y)
			continue
		}
		dc.LineTo(obj.Left+p.X, obj.Top+p.Y)
	}
}

func (r *Rasterizer) drawLine(dc *gg.Context, obj models.Object) error {
	if len(obj.Points) >= 2 {
		tracePoints(dc, obj)
	} else {
		dc.DrawLine(obj.Left, obj.Top, obj.Left+obj.Width, obj.Top+obj.Height)
	}

	// у линии нет заливки: без stroke рисуем цветом fill
	if obj.Stroke == "" {
		obj.Stroke = obj.Fill
	}
	obj.Fill = ""
	if obj.StrokeWidth == 0 {
		obj.StrokeWidth = 1
	}
	return paint(dc, obj)
}

// paint заливает и обводит текущий путь цветами объекта с учётом прозрачности.
func paint(dc *gg.Context, obj models.Object) error {
	fill, hasFill, err := models.ParseHexColor(obj.Fill)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	stroke, hasStroke, err := models.ParseHexColor(obj.Stroke)
	if err != nil {
		return fmt.Errorf("stroke: %w", err)
	}
	hasStroke = hasStroke && obj.StrokeWidth > 0

	switch {
	case hasFill && hasStroke:
		dc.SetColor(models.WithOpacity(fill, obj.Opacity))
		if err := dc.FillPreserve(); err != nil {
			return err
		}
		dc.SetColor(models.WithOpacity(stroke, obj.Opacity))
		dc.SetLineWidth(obj.StrokeWidth)
		return dc.Stroke()
	case hasFill:
		dc.SetColor(models.WithOpacity(fill, obj.Opacity))
		return dc.Fill()
	case hasStroke:
		dc.SetColor(models.WithOpacity(stroke, obj.Opacity))
		dc.SetLineWidth(obj.StrokeWidth)
		return dc.Stroke()
	}
	dc.ClearPath()
	return nil
}

func (r *Rasterizer) drawImage(ctx context.Context, dc *gg.Context, obj models.Object) error {
	if obj.Src == "" {
		return nil
	}

	img, err := r.LoadImage(ctx, obj.Src)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			r.log.Warn().Str("object", obj.ID).Str("src", obj.Src).Msg("image asset missing, skipped")
			return nil
		}
		return err
	}

	dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:         obj.Left,
		Y:         obj.Top,
		DstWidth:  obj.Width,
		DstHeight: obj.Height,
		Opacity:   obj.Opacity,
	})
	return nil
}

// LoadImage читает и декодирует png/jpeg/webp из источника ассетов.
func (r *Rasterizer) LoadImage(ctx context.Context, src string) (image.Image, error) {
	data, err := r.assets.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", src, err)
	}
	return img, nil
}

func (r *Rasterizer) drawText(dc *gg.Context, obj models.Object) error {
	if obj.Text == "" {
		return nil
	}

	col, ok, err := models.ParseHexColor(obj.Fill)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	if !ok && obj.Fill == "" {
		col, ok = color.NRGBA{A: 255}, true
	}
	if !ok {
		return nil
	}

	face := r.fonts.Face(obj.FontFamily, obj.FontSize)
	if face == nil {
		return fmt.Errorf("no font for family %q", obj.FontFamily)
	}
	dc.SetFont(face)
	dc.SetColor(models.WithOpacity(col, obj.Opacity))

	ascent := face.Metrics().Ascent
	step := obj.FontSize * obj.LineHeight

	for i, line := range strings.Split(obj.Text, "\n") {
		w, _ := dc.MeasureString(line)
		x := obj.Left
		switch obj.TextAlign {
		case "center":
			x += (obj.Width - w) / 2
		case "right":
			x += obj.Width - w
		}
		dc.DrawString(line, x, obj.Top+ascent+float64(i)*step)
	}
	return nil
}
