package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"design-studio/internal/design/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func newTestRasterizer(t *testing.T, assets AssetSource) *Rasterizer {
	t.Helper()
	fonts, err := NewFontRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { fonts.Close() })
	return New(fonts, assets, zerolog.Nop())
}

func rgb(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func pngDataURI(t *testing.T, c color.Color, size int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return EncodeDataURI("image/png", buf.Bytes())
}

func TestRenderBackgroundAndRect(t *testing.T) {
	r := newTestRasterizer(t, nil)

	canvas := models.Canvas{Width: 40, Height: 40, Background: "#ff0000", Objects: []models.Object{
		{ID: "r", Type: models.ObjectRect, Left: 10, Top: 10, Width: 20, Height: 20, Fill: "#0000ff"},
	}}

	dc, err := r.Render(context.Background(), canvas, 1)
	require.NoError(t, err)
	defer dc.Close()

	img := dc.Image()
	assert.Equal(t, 40, img.Bounds().Dx())

	red, green, blue := rgb(img, 3, 3)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{red, green, blue})

	red, green, blue = rgb(img, 20, 20)
	assert.Equal(t, [3]uint8{0, 0, 255}, [3]uint8{red, green, blue})
}

func TestRenderScaleAndRotation(t *testing.T) {
	r := newTestRasterizer(t, nil)

	// горизонтальная полоса, повёрнутая на 90 градусов, становится вертикальной
	canvas := models.Canvas{Width: 20, Height: 20, Objects: []models.Object{
		{ID: "bar", Type: models.ObjectRect, Left: 0, Top: 8, Width: 20, Height: 4, Angle: 90, Fill: "#000000"},
	}}

	dc, err := r.Render(context.Background(), canvas, 2)
	require.NoError(t, err)
	defer dc.Close()

	img := dc.Image()
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())

	red, _, _ := rgb(img, 20, 4)
	assert.Equal(t, uint8(0), red, "inside the rotated bar")

	red, _, _ = rgb(img, 4, 20)
	assert.Equal(t, uint8(255), red, "outside the rotated bar")
}

func TestRenderHiddenAndOpacity(t *testing.T) {
	r := newTestRasterizer(t, nil)

	canvas := models.Canvas{Width: 20, Height: 20, Objects: []models.Object{
		{ID: "h", Type: models.ObjectRect, Width: 20, Height: 20, Fill: "#000000", Hidden: true},
		{ID: "half", Type: models.ObjectRect, Left: 10, Width: 10, Height: 20, Fill: "#000000", Opacity: 0.5},
	}}

	dc, err := r.Render(context.Background(), canvas, 1)
	require.NoError(t, err)
	defer dc.Close()

	red, _, _ := rgb(dc.Image(), 5, 10)
	assert.Equal(t, uint8(255), red)

	red, _, _ = rgb(dc.Image(), 15, 10)
	assert.InDelta(t, 127, int(red), 3)
}

func TestRenderImageFromDataURI(t *testing.T) {
	r := newTestRasterizer(t, DirAssets{})

	canvas := models.Canvas{Width: 20, Height: 20, Objects: []models.Object{
		{ID: "img", Type: models.ObjectImage, Width: 20, Height: 20, Src: pngDataURI(t, color.NRGBA{0, 255, 0, 255}, 4)},
	}}

	dc, err := r.Render(context.Background(), canvas, 1)
	require.NoError(t, err)
	defer dc.Close()

	red, green, _ := rgb(dc.Image(), 10, 10)
	assert.Less(t, red, uint8(30))
	assert.Greater(t, green, uint8(220))
}

func TestRenderMissingImageIsSkipped(t *testing.T) {
	r := newTestRasterizer(t, DirAssets{Root: t.TempDir()})

	canvas := models.Canvas{Width: 10, Height: 10, Objects: []models.Object{
		{ID: "img", Type: models.ObjectImage, Width: 10, Height: 10, Src: "missing.png"},
	}}

	dc, err := r.Render(context.Background(), canvas, 1)
	require.NoError(t, err)
	dc.Close()
}

func TestRenderText(t *testing.T) {
	r := newTestRasterizer(t, nil)

	canvas := models.Canvas{Width: 200, Height: 60, Objects: []models.Object{
		{ID: "t", Type: models.ObjectText, Left: 10, Top: 10, Width: 180, Height: 40, Text: "HHHH", FontSize: 32},
	}}

	dc, err := r.Render(context.Background(), canvas, 1)
	require.NoError(t, err)
	defer dc.Close()

	img := dc.Image()
	dark := 0
	for y := 10; y < 50; y++ {
		for x := 10; x < 190; x++ {
			if red, _, _ := rgb(img, x, y); red < 128 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 50)
}

func TestRenderErrors(t *testing.T) {
	r := newTestRasterizer(t, nil)
	canvas := models.Canvas{Width: 10, Height: 10}

	_, err := r.Render(context.Background(), canvas, 0)
	assert.ErrorIs(t, err, ErrInvalidScale)
	_, err = r.Render(context.Background(), canvas, 9)
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = r.Render(context.Background(), models.Canvas{}, 1)
	assert.ErrorIs(t, err, models.ErrInvalidCanvas)

	bad := models.Canvas{Width: 10, Height: 10, Objects: []models.Object{
		{ID: "r", Type: models.ObjectRect, Width: 5, Height: 5, Fill: "blue"},
	}}
	_, err = r.Render(context.Background(), bad, 1)
	assert.ErrorIs(t, err, models.ErrInvalidColor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Render(ctx, models.Canvas{Width: 10, Height: 10, Objects: []models.Object{{ID: "a", Type: models.ObjectRect}}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderRejectsOversizedOutput(t *testing.T) {
	r := newTestRasterizer(t, nil)

	// холст в пределах, но масштаб выводит растр за предел
	_, err := r.Render(context.Background(), models.Canvas{Width: 4000, Height: 4000}, 8)
	assert.ErrorIs(t, err, models.ErrInvalidCanvas)

	_, err = r.Render(context.Background(), models.Canvas{Width: 1e6, Height: 1e6}, 1)
	assert.ErrorIs(t, err, models.ErrInvalidCanvas)
}

func TestCheckOutputSize(t *testing.T) {
	tests := []struct {
		w, h int
		ok   bool
	}{
		{1080, 1080, true},
		{MaxOutputSide, 1024, true},
		{MaxOutputSide + 1, 10, false},
		{12000, 12000, false},
		{0, 10, false},
	}
	for _, tt := range tests {
		err := CheckOutputSize(tt.w, tt.h)
		if tt.ok {
			assert.NoError(t, err, "%dx%d", tt.w, tt.h)
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidCanvas, "%dx%d", tt.w, tt.h)
		}
	}
}

func TestFontRegistry(t *testing.T) {
	fonts, err := NewFontRegistry()
	require.NoError(t, err)
	defer fonts.Close()

	assert.Equal(t, []string{"Go", "Go Bold", "Go Mono"}, fonts.Families())
	assert.True(t, fonts.Has("go bold"))
	assert.NotNil(t, fonts.Face("Unknown Family", 12))
	assert.Same(t, fonts.Face("Go", 12), fonts.Face("go", 12))

	assert.ErrorIs(t, fonts.Register("Broken", []byte("not a font")), ErrInvalidFont)
	assert.ErrorIs(t, fonts.Register(" ", goregular.TTF), ErrInvalidFont)

	require.NoError(t, fonts.Register("Brand", goregular.TTF))
	assert.True(t, fonts.Has("Brand"))
}

func TestFontRegistryLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Corporate.ttf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	fonts, err := NewFontRegistry()
	require.NoError(t, err)
	defer fonts.Close()

	n, err := fonts.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fonts.Has("Corporate"))

	n, err = fonts.LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDirAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "u1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1", "a.png"), []byte("data"), 0o644))

	a := DirAssets{Root: dir}
	ctx := context.Background()

	data, err := a.Open(ctx, "u1/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	_, err = a.Open(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidAssetPath)

	_, err = a.Open(ctx, "u1/none.png")
	assert.ErrorIs(t, err, ErrAssetNotFound)

	data, err = a.Open(ctx, "data:text/plain,hello%20world")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	data, err = a.Open(ctx, EncodeDataURI("image/png", []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = DecodeDataURI("data:image/png;base64")
	assert.ErrorIs(t, err, ErrInvalidAssetPath)
}
