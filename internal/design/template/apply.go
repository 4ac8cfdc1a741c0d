package template

import (
	"errors"
	"fmt"
	"math"

	"design-studio/internal/design/models"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeReplace Mode = "replace" // холст становится шаблоном целиком, размер берётся из шаблона
	ModeFit     Mode = "fit"     // объекты шаблона масштабируются и центрируются в текущем холсте
)

var ErrUnknownMode = errors.New("unknown apply mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeReplace:
		return ModeReplace, nil
	case ModeFit:
		return ModeFit, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Apply строит новый холст из шаблона. Каждый объект получает новый id.
func Apply(tpl models.Template, target models.Canvas, mode Mode) (models.Canvas, error) {
	src := tpl.Canvas.Clone()
	src.Normalize()
	if err := src.Validate(); err != nil {
		return models.Canvas{}, fmt.Errorf("template %s: %w", tpl.ID, err)
	}

	switch mode {
	case ModeReplace:
		renewIDs(src.Objects)
		return src, nil
	case ModeFit:
		if target.Width <= 0 || target.Height <= 0 {
			return models.Canvas{}, fmt.Errorf("%w: target size %gx%g", models.ErrInvalidCanvas, target.Width, target.Height)
		}
		out := fit(src, target.Width, target.Height)
		renewIDs(out.Objects)
		return out, nil
	}
	return models.Canvas{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

func fit(src models.Canvas, width, height float64) models.Canvas {
	s := math.Min(width/src.Width, height/src.Height)
	ox := (width - src.Width*s) / 2
	oy := (height - src.Height*s) / 2

	out := models.Canvas{
		Width:      width,
		Height:     height,
		Background: src.Background,
		Objects:    make([]models.Object, len(src.Objects)),
	}

	for i, obj := range src.Objects {
		obj.Left = ox + obj.Left*s
		obj.Top = oy + obj.Top*s
		obj.Width *= s
		obj.Height *= s
		obj.FontSize *= s
		obj.StrokeWidth *= s
		obj.Radius *= s
		for j := range obj.Points {
			obj.Points[j].X *= s
			obj.Points[j].Y *= s
		}
		out.Objects[i] = obj
	}
	return out
}

func renewIDs(objects []models.Object) {
	for i := range objects {
		objects[i].ID = uuid.NewString()
	}
}
