package export

import (
	"context"
	"fmt"
	"io"

	"design-studio/internal/design/models"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/document"
	pdfimage "seehuhn.de/go/pdf/graphics/image"
)

func (e *Exporter) writePNG(ctx context.Context, w io.Writer, canvas models.Canvas, scale float64) (int, int, error) {
	dc, err := e.raster.Render(ctx, canvas, scale)
	if err != nil {
		return 0, 0, err
	}
	defer dc.Close()

	if err := dc.EncodePNG(w); err != nil {
		return 0, 0, fmt.Errorf("encode png: %w", err)
	}
	return dc.Width(), dc.Height(), nil
}

func (e *Exporter) writeJPEG(ctx context.Context, w io.Writer, canvas models.Canvas, scale float64, quality int) (int, int, error) {
	bg, err := opaqueBackground(canvas.Background)
	if err != nil {
		return 0, 0, fmt.Errorf("background: %w", err)
	}
	canvas.Background = bg

	dc, err := e.raster.Render(ctx, canvas, scale)
	if err != nil {
		return 0, 0, err
	}
	defer dc.Close()

	if err := dc.EncodeJPEG(w, quality); err != nil {
		return 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return dc.Width(), dc.Height(), nil
}

// writePDF кладёт растровый рендер холста на одну страницу размером с холст (в пунктах).
func (e *Exporter) writePDF(ctx context.Context, w io.Writer, canvas models.Canvas, scale float64) (int, int, error) {
	dc, err := e.raster.Render(ctx, canvas, scale)
	if err != nil {
		return 0, 0, err
	}
	defer dc.Close()

	// nil - DeviceRGB; альфа-канал уходит в soft mask
	xobj, err := pdfimage.PNG(dc.Image(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("pdf image: %w", err)
	}

	page, err := document.WriteSinglePage(w, &pdf.Rectangle{URx: canvas.Width, URy: canvas.Height}, pdf.V1_7, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create pdf: %w", err)
	}

	page.PushGraphicsState()
	page.Transform(matrix.Scale(canvas.Width, canvas.Height))
	page.DrawXObject(xobj)
	page.PopGraphicsState()

	if err := page.Close(); err != nil {
		return 0, 0, fmt.Errorf("write pdf: %w", err)
	}
	return int(canvas.Width), int(canvas.Height), nil
}
