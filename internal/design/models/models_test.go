package models

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectBoundsRotation(t *testing.T) {
	obj := Object{ID: "a", Type: ObjectRect, Left: 0, Top: 0, Width: 100, Height: 50}

	b := obj.Bounds()
	assert.Equal(t, Bounds{Left: 0, Top: 0, Width: 100, Height: 50}, b)

	obj.Angle = 90
	b = obj.Bounds()
	assert.InDelta(t, 25, b.Left, 1e-9)
	assert.InDelta(t, -25, b.Top, 1e-9)
	assert.InDelta(t, 50, b.Width, 1e-9)
	assert.InDelta(t, 100, b.Height, 1e-9)

	obj.Angle = 360
	assert.Equal(t, Bounds{Left: 0, Top: 0, Width: 100, Height: 50}, obj.Bounds())
}

func TestObjectBoundsFromPoints(t *testing.T) {
	obj := Object{
		ID:     "p",
		Type:   ObjectPath,
		Left:   10,
		Top:    20,
		Points: []Point{{X: 5, Y: 5}, {X: 25, Y: 5}, {X: 15, Y: 35}},
	}

	b := obj.Bounds()
	assert.Equal(t, Bounds{Left: 15, Top: 25, Width: 20, Height: 30}, b)
}

func TestBoundsUnionIntersects(t *testing.T) {
	a := Bounds{Left: 0, Top: 0, Width: 10, Height: 10}
	b := Bounds{Left: 5, Top: 5, Width: 10, Height: 10}
	c := Bounds{Left: 20, Top: 20, Width: 1, Height: 1}

	assert.Equal(t, Bounds{Left: 0, Top: 0, Width: 15, Height: 15}, a.Union(b))
	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
	assert.Equal(t, 7.5, a.Translate(2.5, 0).CenterX())
}

func TestCanvasValidate(t *testing.T) {
	valid := Canvas{Width: 100, Height: 100, Objects: []Object{
		{ID: "a", Type: ObjectRect, Width: 10, Height: 10},
		{ID: "b", Type: ObjectText, Text: "hi"},
	}}
	require.NoError(t, valid.Validate())

	dup := valid.Clone()
	dup.Objects[1].ID = "a"
	assert.ErrorIs(t, dup.Validate(), ErrDuplicateObject)

	unknown := valid.Clone()
	unknown.Objects[0].Type = "star"
	assert.ErrorIs(t, unknown.Validate(), ErrUnknownObjectType)

	empty := Canvas{Width: 0, Height: 100}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidCanvas)
}

func TestCanvasValidateSizeLimits(t *testing.T) {
	tests := []struct {
		name          string
		width, height float64
		ok            bool
	}{
		{"poster", 2480, 3508, true},
		{"at limit", MaxCanvasSide, MaxCanvasSide, true},
		{"huge", 1e6, 1e6, false},
		{"one side over", 100, MaxCanvasSide + 1, false},
		{"infinite", math.Inf(1), 100, false},
		{"nan", math.NaN(), 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Canvas{Width: tt.width, Height: tt.height}.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidCanvas)
		})
	}
}

func TestCanvasCloneIsDeep(t *testing.T) {
	c := Canvas{Width: 10, Height: 10, Objects: []Object{
		{ID: "p", Type: ObjectPath, Points: []Point{{X: 1, Y: 1}}},
	}}
	cp := c.Clone()
	cp.Objects[0].Points[0].X = 99
	cp.Objects[0].Left = 5

	assert.Equal(t, 1.0, c.Objects[0].Points[0].X)
	assert.Equal(t, 0.0, c.Objects[0].Left)
}

func TestCanvasNormalizeAndEncode(t *testing.T) {
	c := Canvas{Width: 200, Height: 100, Objects: []Object{
		{ID: "t", Type: ObjectText, Text: "Hello"},
		{ID: "r", Type: ObjectRect, Opacity: 0.5},
	}}
	c.Normalize()

	assert.Equal(t, DefaultBackground, c.Background)
	assert.Equal(t, 1.0, c.Objects[0].Opacity)
	assert.Equal(t, DefaultFontFamily, c.Objects[0].FontFamily)
	assert.Equal(t, DefaultFontSize, c.Objects[0].FontSize)
	assert.Equal(t, 0.5, c.Objects[1].Opacity)

	data, err := c.Encode()
	require.NoError(t, err)

	back, err := DecodeCanvas(data)
	require.NoError(t, err)
	assert.Equal(t, c, back)

	obj, idx := back.Find("r")
	require.NotNil(t, obj)
	assert.Equal(t, 1, idx)

	obj, idx = back.Find("missing")
	assert.Nil(t, obj)
	assert.Equal(t, -1, idx)
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
		err  bool
	}{
		{"#fff", color.NRGBA{255, 255, 255, 255}, true, false},
		{"#FF0000", color.NRGBA{255, 0, 0, 255}, true, false},
		{"#00ff0080", color.NRGBA{0, 255, 0, 128}, true, false},
		{"transparent", color.NRGBA{}, false, false},
		{"", color.NRGBA{}, false, false},
		{"red", color.NRGBA{}, false, true},
		{"#12345", color.NRGBA{}, false, true},
		{"#zzzzzz", color.NRGBA{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := ParseHexColor(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidColor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRotatePoint(t *testing.T) {
	p := RotatePoint(Point{X: 10, Y: 0}, Point{}, 90)
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 10, p.Y, 1e-9)
	assert.False(t, math.IsNaN(p.X))

	assert.Equal(t, uint8(128), WithOpacity(color.NRGBA{A: 255}, 0.5).A)
}
