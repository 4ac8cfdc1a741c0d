package export

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"net/http"
	"strings"

	"design-studio/internal/design/models"
	"design-studio/internal/render/raster"

	svg "github.com/ajstarks/svgo/float"
)

// writeSVG строит векторный документ: фигуры и текст остаются векторными, изображения встраиваются data URI.
func (e *Exporter) writeSVG(ctx context.Context, w io.Writer, canvas models.Canvas) (int, int, error) {
	if err := canvas.Validate(); err != nil {
		return 0, 0, err
	}
	canvas = canvas.Clone()
	canvas.Normalize()

	doc := svg.New(w)
	doc.Start(canvas.Width, canvas.Height, fmt.Sprintf(`viewBox="0 0 %g %g"`, canvas.Width, canvas.Height))

	bg, err := paintAttrs("fill", canvas.Background)
	if err != nil {
		return 0, 0, fmt.Errorf("background: %w", err)
	}
	if len(bg) > 0 && bg[0] != `fill="none"` {
		doc.Rect(0, 0, canvas.Width, canvas.Height, bg...)
	}

	for _, obj := range canvas.Objects {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		if obj.Hidden || !obj.Type.Known() {
			continue
		}
		if err := e.svgObject(ctx, doc, obj); err != nil {
			return 0, 0, fmt.Errorf("object %s: %w", obj.ID, err)
		}
	}

	doc.End()
	return int(math.Round(canvas.Width)), int(math.Round(canvas.Height)), nil
}

func (e *Exporter) svgObject(ctx context.Context, doc *svg.SVG, obj models.Object) error {
	attrs, err := objectAttrs(obj)
	if err != nil {
		return err
	}

	rotated := obj.Angle != 0
	if rotated {
		p := raster.Pivot(obj)
		doc.Gtransform(fmt.Sprintf("rotate(%g %g %g)", obj.Angle, p.X, p.Y))
	}

	switch obj.Type {
	case models.ObjectRect:
		if obj.Radius > 0 {
			doc.Roundrect(obj.Left, obj.Top, obj.Width, obj.Height, obj.Radius, obj.Radius, attrs...)
		} else {
			doc.Rect(obj.Left, obj.Top, obj.Width, obj.Height, attrs...)
		}
	case models.ObjectEllipse:
		doc.Ellipse(obj.Left+obj.Width/2, obj.Top+obj.Height/2, obj.Width/2, obj.Height/2, attrs...)
	case models.ObjectLine:
		err = svgLine(doc, obj)
	case models.ObjectPath:
		if len(obj.Points) >= 2 {
			xs, ys := absolutePoints(obj)
			if obj.Fill != "" && obj.Fill != "none" {
				doc.Polygon(xs, ys, attrs...)
			} else {
				doc.Polyline(xs, ys, attrs...)
			}
		}
	case models.ObjectImage:
		err = e.svgImage(ctx, doc, obj)
	case models.ObjectText:
		err = e.svgText(doc, obj)
	}

	if rotated {
		doc.Gend()
	}
	return err
}

func svgLine(doc *svg.SVG, obj models.Object) error {
	if obj.Stroke == "" {
		obj.Stroke = obj.Fill
	}
	obj.Fill = "none"
	if obj.StrokeWidth == 0 {
		obj.StrokeWidth = 1
	}
	attrs, err := objectAttrs(obj)
	if err != nil {
		return err
	}

	if len(obj.Points) >= 2 {
		xs, ys := absolutePoints(obj)
		doc.Polyline(xs, ys, attrs...)
		return nil
	}
	doc.Line(obj.Left, obj.Top, obj.Left+obj.Width, obj.Top+obj.Height, attrs...)
	return nil
}

func (e *Exporter) svgImage(ctx context.Context, doc *svg.SVG, obj models.Object) error {
	if obj.Src == "" {
		return nil
	}

	href := obj.Src
	if !strings.HasPrefix(href, "data:") {
		data, err := e.raster.Assets().Open(ctx, obj.Src)
		if err != nil {
			if errors.Is(err, raster.ErrAssetNotFound) {
				e.log.Warn().Str("object", obj.ID).Str("src", obj.Src).Msg("image asset missing, skipped")
				return nil
			}
			return err
		}
		href = raster.EncodeDataURI(http.DetectContentType(data), data)
	}

	attrs := []string{fmt.Sprintf(`id="%s"`, html.EscapeString(obj.ID)), `preserveAspectRatio="none"`}
	if obj.Opacity < 1 {
		attrs = append(attrs, fmt.Sprintf(`opacity="%g"`, obj.Opacity))
	}
	doc.Image(obj.Left, obj.Top, int(math.Round(obj.Width)), int(math.Round(obj.Height)), href, attrs...)
	return nil
}

func (e *Exporter) svgText(doc *svg.SVG, obj models.Object) error {
	if obj.Text == "" {
		return nil
	}
	if obj.Fill == "" {
		obj.Fill = "#000000"
	}
	attrs, err := objectAttrs(obj)
	if err != nil {
		return err
	}

	x, anchor := obj.Left, "start"
	switch obj.TextAlign {
	case "center":
		x, anchor = obj.Left+obj.Width/2, "middle"
	case "right":
		x, anchor = obj.Left+obj.Width, "end"
	}
	attrs = append(attrs,
		fmt.Sprintf(`font-family="%s"`, html.EscapeString(obj.FontFamily)),
		fmt.Sprintf(`font-size="%g"`, obj.FontSize),
		fmt.Sprintf(`text-anchor="%s"`, anchor),
	)

	ascent := obj.FontSize * 0.8
	if face := e.raster.Fonts().Face(obj.FontFamily, obj.FontSize); face != nil {
		ascent = face.Metrics().Ascent
	}
	step := obj.FontSize * obj.LineHeight

	for i, line := range strings.Split(obj.Text, "\n") {
		doc.Text(x, obj.Top+ascent+float64(i)*step, line, attrs...)
	}
	return nil
}

// objectAttrs собирает id, заливку, обводку и прозрачность в атрибуты SVG.
func objectAttrs(obj models.Object) ([]string, error) {
	attrs := []string{fmt.Sprintf(`id="%s"`, html.EscapeString(obj.ID))}

	fill, err := paintAttrs("fill", obj.Fill)
	if err != nil {
		return nil, fmt.Errorf("fill: %w", err)
	}
	attrs = append(attrs, fill...)

	if obj.StrokeWidth > 0 {
		stroke, err := paintAttrs("stroke", obj.Stroke)
		if err != nil {
			return nil, fmt.Errorf("stroke: %w", err)
		}
		attrs = append(attrs, stroke...)
		attrs = append(attrs, fmt.Sprintf(`stroke-width="%g"`, obj.StrokeWidth))
	}

	if obj.Opacity < 1 {
		attrs = append(attrs, fmt.Sprintf(`opacity="%g"`, obj.Opacity))
	}
	return attrs, nil
}

// paintAttrs переводит #rrggbbaa в пару цвет + *-opacity: в SVG 1.1 нет восьмизначной записи.
func paintAttrs(name, value string) ([]string, error) {
	c, ok, err := models.ParseHexColor(value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{fmt.Sprintf(`%s="none"`, name)}, nil
	}

	attrs := []string{fmt.Sprintf(`%s="%s"`, name, hexColor(c))}
	if c.A < 255 {
		attrs = append(attrs, fmt.Sprintf(`%s-opacity="%.3g"`, name, float64(c.A)/255))
	}
	return attrs, nil
}

func absolutePoints(obj models.Object) ([]float64, []float64) {
	xs := make([]float64, len(obj.Points))
	ys := make([]float64, len(obj.Points))
	for i, p := range obj.Points {
		xs[i] = obj.Left + p.X
		ys[i] = obj.Top + p.Y
	}
	return xs, ys
}
