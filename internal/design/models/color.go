package models

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ParseHexColor разбирает #rgb, #rrggbb, #rrggbbaa. Для "", "none" и "transparent"
// возвращает ok=false: такой цвет не рисуется.
func ParseHexColor(s string) (c color.NRGBA, ok bool, err error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "none", "transparent":
		return color.NRGBA{}, false, nil
	}

	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, false, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	hex := s[1:]

	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, false, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, false, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, true, nil
}

// WithOpacity умножает альфу цвета на opacity (0..1).
func WithOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	if opacity <= 0 || opacity >= 1 {
		return c
	}
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}
