package models

import "time"

// ============================================================
// Canvas Objects
// ============================================================

type ObjectType string

const (
	ObjectRect    ObjectType = "rect"
	ObjectEllipse ObjectType = "ellipse"
	ObjectLine    ObjectType = "line"
	ObjectText    ObjectType = "text"
	ObjectImage   ObjectType = "image"
	ObjectPath    ObjectType = "path"
)

// Known сообщает, поддерживается ли тип объекта рендерером.
func (t ObjectType) Known() bool {
	switch t {
	case ObjectRect, ObjectEllipse, ObjectLine, ObjectText, ObjectImage, ObjectPath:
		return true
	}
	return false
}

type Object struct {
	ID     string     `json:"id" yaml:"id"`
	Type   ObjectType `json:"type" yaml:"type"`
	Name   string     `json:"name,omitempty" yaml:"name,omitempty"`
	Left   float64    `json:"left" yaml:"left"`
	Top    float64    `json:"top" yaml:"top"`
	Width  float64    `json:"width" yaml:"width"`
	Height float64    `json:"height" yaml:"height"`
	Angle  float64    `json:"angle,omitempty" yaml:"angle,omitempty"` // градусы, вокруг центра

	Opacity     float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	Fill        string  `json:"fill,omitempty" yaml:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty" yaml:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty" yaml:"stroke_width,omitempty"`
	Radius      float64 `json:"radius,omitempty" yaml:"radius,omitempty"`

	Text       string  `json:"text,omitempty" yaml:"text,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty" yaml:"font_family,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty" yaml:"font_size,omitempty"`
	TextAlign  string  `json:"textAlign,omitempty" yaml:"text_align,omitempty"`
	LineHeight float64 `json:"lineHeight,omitempty" yaml:"line_height,omitempty"`

	Src    string  `json:"src,omitempty" yaml:"src,omitempty"`
	Points []Point `json:"points,omitempty" yaml:"points,omitempty"` // относительно Left/Top

	Hidden bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Locked bool `json:"locked,omitempty" yaml:"locked,omitempty"`
}

// ============================================================
// Canvas & Design
// ============================================================

// Canvas - сериализуемый снимок холста. Порядок Objects задаёт z-order (первый - нижний).
type Canvas struct {
	Width      float64  `json:"width" yaml:"width"`
	Height     float64  `json:"height" yaml:"height"`
	Background string   `json:"background,omitempty" yaml:"background,omitempty"`
	Objects    []Object `json:"objects" yaml:"objects"`
}

type Design struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	TemplateID string    `json:"template_id,omitempty"`
	Canvas     Canvas    `json:"canvas"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ============================================================
// Templates & Presets
// ============================================================

type Template struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category" yaml:"category"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Canvas   Canvas   `json:"canvas" yaml:"canvas"`
}

type Preset struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Width    float64 `json:"width" yaml:"width"`
	Height   float64 `json:"height" yaml:"height"`
}
