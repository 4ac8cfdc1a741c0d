package svgimport

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"design-studio/internal/design/models"

	"github.com/google/uuid"
	"golang.org/x/image/colornames"
)

var (
	ErrInvalidSVG = errors.New("invalid svg document")
	ErrNoSize     = errors.New("svg has no usable width/height or viewBox")
)

const (
	defaultFontSize = 16.0
	// доли кегля для оценки габаритов текста без шрифта
	ascentRatio  = 0.8
	advanceRatio = 0.6
	pivotEpsilon = 0.5
)

// ============================================================
// XML Structures
// ============================================================

// node - произвольный элемент документа; вложенные g разбираются рекурсивно.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []node     `xml:",any"`
}

func (n node) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func (n node) num(name string) float64 {
	return parseLength(n.attr(name))
}

// Result - холст и предупреждения о пропущенных конструкциях.
type Result struct {
	Canvas   models.Canvas `json:"canvas"`
	Warnings []string      `json:"warnings,omitempty"`
}

// ============================================================
// Parser
// ============================================================

type rotation struct {
	angle, cx, cy float64
}

// style - наследуемые от g атрибуты отрисовки и накопленный сдвиг.
type style struct {
	fill        string
	fillOpacity float64
	stroke      string
	strokeWidth float64
	opacity     float64
	fontFamily  string
	fontSize    float64
	anchor      string
	dx, dy      float64
	rot         *rotation
}

type parser struct {
	canvas   models.Canvas
	minX     float64
	minY     float64
	ids      map[string]struct{}
	warnings []string
}

// Parse разбирает SVG в холст: размер берётся из viewBox, иначе из width/height.
func Parse(r io.Reader) (Result, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidSVG, err)
	}
	if root.XMLName.Local != "svg" {
		return Result{}, fmt.Errorf("%w: root element is <%s>", ErrInvalidSVG, root.XMLName.Local)
	}

	p := &parser{ids: make(map[string]struct{})}
	p.canvas.Width, p.canvas.Height = root.num("width"), root.num("height")
	if vb := parseCoords(root.attr("viewBox")); len(vb) == 4 && vb[2] > 0 && vb[3] > 0 {
		p.minX, p.minY = vb[0], vb[1]
		p.canvas.Width, p.canvas.Height = vb[2], vb[3]
	}
	if p.canvas.Width <= 0 || p.canvas.Height <= 0 {
		return Result{}, ErrNoSize
	}
	p.canvas.Objects = []models.Object{}

	base := style{fill: "#000000", fillOpacity: 1, opacity: 1, fontFamily: models.DefaultFontFamily, fontSize: defaultFontSize}
	base = p.inherit(root, base)

	children := root.Children
	if len(children) > 0 && p.isBackground(children[0], base) {
		children = children[1:]
	}
	for _, child := range children {
		p.walk(child, base)
	}

	if err := p.canvas.Validate(); err != nil {
		return Result{}, err
	}
	return Result{Canvas: p.canvas, Warnings: p.warnings}, nil
}

// isBackground - первый rect без id во весь холст становится фоном.
func (p *parser) isBackground(n node, st style) bool {
	if n.XMLName.Local != "rect" || n.attr("id") != "" || n.attr("transform") != "" {
		return false
	}
	st = p.inherit(n, st)
	if st.fill == "none" {
		return false
	}
	x, y := n.num("x")+st.dx, n.num("y")+st.dy
	if x != p.minX || y != p.minY || n.num("width") != p.canvas.Width || n.num("height") != p.canvas.Height {
		return false
	}
	p.canvas.Background = withAlpha(st.fill, st.fillOpacity*st.opacity)
	return true
}

func (p *parser) walk(n node, parent style) {
	st := p.inherit(n, parent)
	if st.opacity <= 0 {
		return
	}

	switch n.XMLName.Local {
	case "g", "a", "switch":
		for _, child := range n.Children {
			p.walk(child, st)
		}
	case "rect":
		p.add(n, st, models.Object{
			Type:   models.ObjectRect,
			Left:   n.num("x"),
			Top:    n.num("y"),
			Width:  n.num("width"),
			Height: n.num("height"),
			Radius: math.Max(n.num("rx"), n.num("ry")),
		})
	case "circle":
		r := n.num("r")
		p.add(n, st, models.Object{
			Type: models.ObjectEllipse,
			Left: n.num("cx") - r, Top: n.num("cy") - r,
			Width: 2 * r, Height: 2 * r,
		})
	case "ellipse":
		rx, ry := n.num("rx"), n.num("ry")
		p.add(n, st, models.Object{
			Type: models.ObjectEllipse,
			Left: n.num("cx") - rx, Top: n.num("cy") - ry,
			Width: 2 * rx, Height: 2 * ry,
		})
	case "line":
		st.fill = "none"
		p.addPoints(n, st, models.ObjectLine, []models.Point{
			{X: n.num("x1"), Y: n.num("y1")},
			{X: n.num("x2"), Y: n.num("y2")},
		}, "")
	case "polyline":
		p.addPoints(n, st, models.ObjectPath, parsePoints(n.attr("points")), "")
	case "polygon":
		points := parsePoints(n.attr("points"))
		if len(points) > 0 {
			points = append(points, points[0])
		}
		p.addPoints(n, st, models.ObjectPath, points, "")
	case "path":
		subpaths, err := ParsePath(n.attr("d"))
		if err != nil {
			p.warn("path %q skipped: %v", n.attr("id"), err)
			return
		}
		for i, sp := range subpaths {
			suffix := ""
			if i > 0 {
				suffix = "-" + strconv.Itoa(i+1)
			}
			p.addPoints(n, st, models.ObjectPath, sp, suffix)
		}
	case "text":
		p.addText(n, st)
	case "image":
		href := n.attr("href")
		if href == "" {
			p.warn("image %q without href skipped", n.attr("id"))
			return
		}
		p.add(n, st, models.Object{
			Type:   models.ObjectImage,
			Left:   n.num("x"),
			Top:    n.num("y"),
			Width:  n.num("width"),
			Height: n.num("height"),
			Src:    href,
		})
	case "defs", "title", "desc", "metadata", "style", "script", "clipPath", "mask",
		"linearGradient", "radialGradient", "pattern", "symbol", "filter", "marker":
	default:
		p.warn("unsupported element <%s> skipped", n.XMLName.Local)
	}
}

func (p *parser) addPoints(n node, st style, typ models.ObjectType, points []models.Point, suffix string) {
	if len(points) < 2 {
		p.warn("<%s> %q has fewer than two points, skipped", n.XMLName.Local, n.attr("id"))
		return
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, pt := range points[1:] {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}

	rel := make([]models.Point, len(points))
	for i, pt := range points {
		rel[i] = models.Point{X: pt.X - minX, Y: pt.Y - minY}
	}

	p.addWithSuffix(n, st, models.Object{
		Type:   typ,
		Left:   minX,
		Top:    minY,
		Width:  maxX - minX,
		Height: maxY - minY,
		Points: rel,
	}, suffix)
}

func (p *parser) addText(n node, st style) {
	lines := textLines(n)
	if len(lines) == 0 {
		return
	}

	longest := 0
	for _, l := range lines {
		longest = max(longest, utf8.RuneCountInString(l))
	}
	width := float64(longest) * st.fontSize * advanceRatio
	height := float64(len(lines)) * st.fontSize * models.DefaultLineHeight

	obj := models.Object{
		Type:       models.ObjectText,
		Left:       n.num("x"),
		Top:        n.num("y") - st.fontSize*ascentRatio,
		Width:      width,
		Height:     height,
		Text:       strings.Join(lines, "\n"),
		FontFamily: st.fontFamily,
		FontSize:   st.fontSize,
		TextAlign:  "left",
	}
	switch st.anchor {
	case "middle":
		obj.Left -= width / 2
		obj.TextAlign = "center"
	case "end":
		obj.Left -= width
		obj.TextAlign = "right"
	}
	p.add(n, st, obj)
}

// textLines - содержимое text; каждый tspan считается отдельной строкой.
func textLines(n node) []string {
	var lines []string
	if s := collapseSpace(n.Content); s != "" {
		lines = append(lines, s)
	}
	for _, child := range n.Children {
		if child.XMLName.Local != "tspan" {
			continue
		}
		if s := collapseSpace(child.Content); s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (p *parser) add(n node, st style, obj models.Object) {
	p.addWithSuffix(n, st, obj, "")
}

// addWithSuffix переводит объект в координаты холста и назначает уникальный id.
func (p *parser) addWithSuffix(n node, st style, obj models.Object, suffix string) {
	if obj.Width < 0 || obj.Height < 0 {
		p.warn("<%s> %q has negative size, skipped", n.XMLName.Local, n.attr("id"))
		return
	}

	obj.Left += st.dx - p.minX
	obj.Top += st.dy - p.minY
	obj.Name = n.attr("id")
	obj.ID = p.uniqueID(n.attr("id"), suffix)

	if obj.Type != models.ObjectImage {
		obj.Fill = withAlpha(st.fill, st.fillOpacity)
		if obj.Type == models.ObjectLine {
			obj.Fill = ""
		}
		if st.stroke != "" && st.stroke != "none" && st.strokeWidth > 0 {
			obj.Stroke = st.stroke
			obj.StrokeWidth = st.strokeWidth
		}
	}
	if st.opacity < 1 {
		obj.Opacity = st.opacity
	}

	if st.rot != nil {
		pivot := models.Point{X: obj.Left + obj.Width/2, Y: obj.Top + obj.Height/2}
		cx, cy := st.rot.cx-p.minX, st.rot.cy-p.minY
		if math.Abs(pivot.X-cx) <= pivotEpsilon && math.Abs(pivot.Y-cy) <= pivotEpsilon {
			obj.Angle = st.rot.angle
		} else {
			p.warn("rotation of %q is not around its centre, ignored", obj.ID)
		}
	}

	p.canvas.Objects = append(p.canvas.Objects, obj)
}

func (p *parser) uniqueID(id, suffix string) string {
	if id != "" {
		id += suffix
		if _, dup := p.ids[id]; !dup {
			p.ids[id] = struct{}{}
			return id
		}
	}
	id = uuid.NewString()
	p.ids[id] = struct{}{}
	return id
}

func (p *parser) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// ============================================================
// Style & Transform
// ============================================================

// inherit применяет атрибуты презентации, style="" и transform элемента поверх родительских.
func (p *parser) inherit(n node, st style) style {
	decl := make(map[string]string)
	for _, a := range n.Attrs {
		decl[a.Name.Local] = strings.TrimSpace(a.Value)
	}
	for _, part := range strings.Split(n.attr("style"), ";") {
		k, v, ok := strings.Cut(part, ":")
		if ok {
			decl[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	if v, ok := decl["fill"]; ok {
		if c, ok := parseColor(v); ok {
			st.fill = c
		}
	}
	if v, ok := decl["stroke"]; ok {
		if c, ok := parseColor(v); ok {
			st.stroke = c
			if st.strokeWidth == 0 {
				st.strokeWidth = 1
			}
		}
	}
	if v, ok := decl["stroke-width"]; ok {
		st.strokeWidth = parseLength(v)
	}
	if v, ok := decl["fill-opacity"]; ok {
		st.fillOpacity = clamp01(parseLength(v))
	}
	if v, ok := decl["opacity"]; ok {
		st.opacity *= clamp01(parseLength(v))
	}
	if v, ok := decl["font-family"]; ok && v != "" {
		family, _, _ := strings.Cut(v, ",")
		st.fontFamily = strings.Trim(strings.TrimSpace(family), `'"`)
	}
	if v, ok := decl["font-size"]; ok {
		if size := parseLength(v); size > 0 {
			st.fontSize = size
		}
	}
	if v, ok := decl["text-anchor"]; ok {
		st.anchor = v
	}
	if v, ok := decl["transform"]; ok {
		p.transform(v, &st)
	}
	return st
}

var transformNames = []string{"translate", "rotate", "scale", "matrix", "skewX", "skewY"}

// transform поддерживает translate и rotate; остальное пропускается с предупреждением.
func (p *parser) transform(v string, st *style) {
	rest := v
	for {
		rest = strings.TrimLeft(rest, " ,\t\n")
		if rest == "" {
			return
		}
		open := strings.IndexByte(rest, '(')
		end := strings.IndexByte(rest, ')')
		if open < 0 || end < open {
			p.warn("malformed transform %q ignored", v)
			return
		}
		name := strings.TrimSpace(rest[:open])
		args := parseCoords(rest[open+1 : end])
		rest = rest[end+1:]

		switch name {
		case "translate":
			if st.rot != nil {
				p.warn("translate after rotate in %q ignored", v)
				continue
			}
			if len(args) > 0 {
				st.dx += args[0]
			}
			if len(args) > 1 {
				st.dy += args[1]
			}
		case "rotate":
			if len(args) == 0 {
				continue
			}
			r := rotation{angle: args[0], cx: st.dx, cy: st.dy}
			if len(args) >= 3 {
				r.cx += args[1]
				r.cy += args[2]
			}
			if st.rot != nil {
				r.angle += st.rot.angle
			}
			st.rot = &r
		default:
			known := false
			for _, t := range transformNames {
				known = known || t == name
			}
			if known {
				p.warn("transform %s is not supported, ignored", name)
			} else {
				p.warn("unknown transform %q ignored", name)
			}
		}
	}
}

// parseColor нормализует hex, rgb()/rgba() и именованные цвета к #rrggbb[aa].
func parseColor(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "none" || v == "transparent":
		return "none", true
	case strings.HasPrefix(v, "#"):
		c, ok, err := models.ParseHexColor(v)
		if err != nil || !ok {
			return "", false
		}
		return hexString(c.R, c.G, c.B, c.A), true
	case strings.HasPrefix(v, "rgb"):
		nums := parseCoords(v)
		if len(nums) < 3 {
			return "", false
		}
		if strings.Contains(v, "%") {
			for i := 0; i < 3; i++ {
				nums[i] = nums[i] * 255 / 100
			}
		}
		a := uint8(255)
		if len(nums) >= 4 {
			a = uint8(clamp01(nums[3])*255 + 0.5)
		}
		return hexString(channel(nums[0]), channel(nums[1]), channel(nums[2]), a), true
	}

	if c, ok := colornames.Map[v]; ok {
		return hexString(c.R, c.G, c.B, c.A), true
	}
	return "", false
}

func hexString(r, g, b, a uint8) string {
	if a == 255 {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", r, g, b, a)
}

// withAlpha домножает альфу цвета на opacity.
func withAlpha(hex string, opacity float64) string {
	if opacity >= 1 {
		return hex
	}
	c, ok, err := models.ParseHexColor(hex)
	if err != nil || !ok {
		return hex
	}
	c = models.WithOpacity(c, opacity)
	return hexString(c.R, c.G, c.B, c.A)
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// parseLength читает число, отбрасывая единицы (px, pt); проценты не поддерживаются.
func parseLength(s string) float64 {
	if s == "" || strings.HasSuffix(s, "%") {
		return 0
	}
	coords := parseCoords(s)
	if len(coords) == 0 {
		return 0
	}
	return coords[0]
}

func ParseBytes(data []byte) (Result, error) {
	return Parse(bytes.NewReader(data))
}
