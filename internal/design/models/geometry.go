package models

import "math"

// ============================================================
// Geometry primitives
// ============================================================

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Bounds - выровненный по осям прямоугольник.
type Bounds struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Bounds) Right() float64   { return b.Left + b.Width }
func (b Bounds) Bottom() float64  { return b.Top + b.Height }
func (b Bounds) CenterX() float64 { return b.Left + b.Width/2 }
func (b Bounds) CenterY() float64 { return b.Top + b.Height/2 }

func (b Bounds) Translate(dx, dy float64) Bounds {
	b.Left += dx
	b.Top += dy
	return b
}

// Union возвращает минимальный прямоугольник, содержащий оба.
func (b Bounds) Union(o Bounds) Bounds {
	left := math.Min(b.Left, o.Left)
	top := math.Min(b.Top, o.Top)
	right := math.Max(b.Right(), o.Right())
	bottom := math.Max(b.Bottom(), o.Bottom())
	return Bounds{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

func (b Bounds) Intersects(o Bounds) bool {
	return b.Left < o.Right() && o.Left < b.Right() && b.Top < o.Bottom() && o.Top < b.Bottom()
}

// Bounds возвращает bounding box объекта с учётом поворота вокруг центра.
func (o Object) Bounds() Bounds {
	w, h := o.Width, o.Height
	if o.Type == ObjectLine || o.Type == ObjectPath {
		if pb, ok := pointsBounds(o.Points); ok {
			return rotatedBounds(Bounds{Left: o.Left + pb.Left, Top: o.Top + pb.Top, Width: pb.Width, Height: pb.Height}, o.Angle)
		}
	}
	return rotatedBounds(Bounds{Left: o.Left, Top: o.Top, Width: w, Height: h}, o.Angle)
}

// Center - центр объекта до поворота, вокруг него вращается объект.
func (o Object) Center() Point {
	return Point{X: o.Left + o.Width/2, Y: o.Top + o.Height/2}
}

func rotatedBounds(b Bounds, angleDeg float64) Bounds {
	if math.Mod(angleDeg, 360) == 0 {
		return b
	}

	rad := angleDeg * math.Pi / 180
	sin := math.Abs(math.Sin(rad))
	cos := math.Abs(math.Cos(rad))

	w := b.Width*cos + b.Height*sin
	h := b.Width*sin + b.Height*cos
	cx, cy := b.CenterX(), b.CenterY()

	return Bounds{Left: cx - w/2, Top: cy - h/2, Width: w, Height: h}
}

func pointsBounds(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	return Bounds{Left: minX, Top: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// RotatePoint поворачивает точку p вокруг c на angleDeg градусов.
func RotatePoint(p, c Point, angleDeg float64) Point {
	if angleDeg == 0 {
		return p
	}
	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	dx, dy := p.X-c.X, p.Y-c.Y
	return Point{X: c.X + dx*cos - dy*sin, Y: c.Y + dx*sin + dy*cos}
}
