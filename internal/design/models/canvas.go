package models

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrInvalidCanvas      = errors.New("invalid canvas")
	ErrDuplicateObject    = errors.New("duplicate object id")
	ErrUnknownObjectType  = errors.New("unknown object type")
	ErrObjectNotFound     = errors.New("object not found")
	ErrInvalidColor       = errors.New("invalid color")
	errEmptyObjectID      = errors.New("empty object id")
	errNonPositiveSize    = errors.New("canvas size must be positive")
	errCanvasTooLarge     = errors.New("canvas side exceeds limit")
	errNegativeObjectSize = errors.New("object size must not be negative")
)

// ============================================================
// Defaults
// ============================================================

const (
	DefaultBackground = "#ffffff"
	DefaultFontFamily = "Go"
	DefaultFontSize   = 24.0
	DefaultLineHeight = 1.2

	// MaxCanvasSide - предел стороны холста в единицах документа.
	MaxCanvasSide = 16384.0
)

// ============================================================
// Canvas operations
// ============================================================

// Find ищет объект по id, возвращает индекс в z-order.
func (c *Canvas) Find(id string) (*Object, int) {
	for i := range c.Objects {
		if c.Objects[i].ID == id {
			return &c.Objects[i], i
		}
	}
	return nil, -1
}

// Clone делает глубокую копию холста.
func (c Canvas) Clone() Canvas {
	out := c
	out.Objects = make([]Object, len(c.Objects))
	for i, obj := range c.Objects {
		if obj.Points != nil {
			obj.Points = append([]Point(nil), obj.Points...)
		}
		out.Objects[i] = obj
	}
	return out
}

// Validate проверяет размеры холста и уникальность id объектов.
func (c Canvas) Validate() error {
	if !(c.Width > 0) || !(c.Height > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidCanvas, errNonPositiveSize)
	}
	if c.Width > MaxCanvasSide || c.Height > MaxCanvasSide {
		return fmt.Errorf("%w: %v (%gx%g, max %g)", ErrInvalidCanvas, errCanvasTooLarge, c.Width, c.Height, MaxCanvasSide)
	}

	seen := make(map[string]struct{}, len(c.Objects))
	for _, obj := range c.Objects {
		if obj.ID == "" {
			return fmt.Errorf("%w: %v", ErrInvalidCanvas, errEmptyObjectID)
		}
		if _, ok := seen[obj.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateObject, obj.ID)
		}
		seen[obj.ID] = struct{}{}

		if !obj.Type.Known() {
			return fmt.Errorf("%w: %q (object %s)", ErrUnknownObjectType, obj.Type, obj.ID)
		}
		if obj.Width < 0 || obj.Height < 0 {
			return fmt.Errorf("%w: %v (object %s)", ErrInvalidCanvas, errNegativeObjectSize, obj.ID)
		}
	}
	return nil
}

// Normalize заполняет значения по умолчанию.
func (c *Canvas) Normalize() {
	if c.Background == "" {
		c.Background = DefaultBackground
	}
	if c.Objects == nil {
		c.Objects = []Object{}
	}

	for i := range c.Objects {
		obj := &c.Objects[i]
		if obj.Opacity == 0 {
			obj.Opacity = 1
		}
		if obj.Type != ObjectText {
			continue
		}
		if obj.FontFamily == "" {
			obj.FontFamily = DefaultFontFamily
		}
		if obj.FontSize == 0 {
			obj.FontSize = DefaultFontSize
		}
		if obj.LineHeight == 0 {
			obj.LineHeight = DefaultLineHeight
		}
		if obj.TextAlign == "" {
			obj.TextAlign = "left"
		}
	}
}

// VisibleObjects возвращает объекты, которые нужно рисовать и учитывать при выравнивании.
func (c Canvas) VisibleObjects() []Object {
	out := make([]Object, 0, len(c.Objects))
	for _, obj := range c.Objects {
		if !obj.Hidden {
			out = append(out, obj)
		}
	}
	return out
}

// ============================================================
// Serialization
// ============================================================

// Encode сериализует холст в снимок для истории и кэша.
func (c Canvas) Encode() ([]byte, error) {
	data, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode canvas: %w", err)
	}
	return data, nil
}

func DecodeCanvas(data []byte) (Canvas, error) {
	var c Canvas
	if err := sonic.Unmarshal(data, &c); err != nil {
		return Canvas{}, fmt.Errorf("decode canvas: %w", err)
	}
	return c, nil
}
