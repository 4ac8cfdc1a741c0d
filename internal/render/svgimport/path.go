package svgimport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"design-studio/internal/design/models"
)

// ============================================================
// Path Parser
// ============================================================

// curveSteps - на сколько отрезков разбивается кривая Безье.
const curveSteps = 8

var (
	commandRe = regexp.MustCompile(`([MmLlHhVvZzCcSsQqTtAa])([^MmLlHhVvZzCcSsQqTtAa]*)`)
	numberRe  = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+\.?)(?:[eE][-+]?\d+)?`)
)

// ParsePath разбирает атрибут d в список подпутей (каждый M начинает новый).
// Кривые C/Q аппроксимируются ломаной, S/T/A сводятся к конечной точке.
func ParsePath(d string) ([][]models.Point, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return nil, fmt.Errorf("empty path")
	}

	var (
		subpaths [][]models.Point
		current  []models.Point
		x, y     float64
		startX   float64
		startY   float64
	)

	flush := func() {
		if len(current) > 0 {
			subpaths = append(subpaths, current)
		}
		current = nil
	}
	add := func(px, py float64) {
		x, y = px, py
		current = append(current, models.Point{X: x, Y: y})
	}

	matches := commandRe.FindAllStringSubmatch(d, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no path commands in %q", d)
	}

	for _, match := range matches {
		cmd := match[1]
		args := parseCoords(match[2])
		rel := cmd == strings.ToLower(cmd)
		off := func() (float64, float64) {
			if rel {
				return x, y
			}
			return 0, 0
		}

		switch strings.ToUpper(cmd) {
		case "M":
			// последующие пары после M - неявные L
			for i := 0; i+1 < len(args); i += 2 {
				ox, oy := off()
				if i == 0 {
					flush()
					startX, startY = args[0]+ox, args[1]+oy
				}
				add(args[i]+ox, args[i+1]+oy)
			}

		case "L", "T":
			for i := 0; i+1 < len(args); i += 2 {
				ox, oy := off()
				add(args[i]+ox, args[i+1]+oy)
			}

		case "H":
			for _, v := range args {
				ox, _ := off()
				add(v+ox, y)
			}

		case "V":
			for _, v := range args {
				_, oy := off()
				add(x, v+oy)
			}

		case "C":
			for i := 0; i+5 < len(args); i += 6 {
				ox, oy := off()
				p0 := models.Point{X: x, Y: y}
				p1 := models.Point{X: args[i] + ox, Y: args[i+1] + oy}
				p2 := models.Point{X: args[i+2] + ox, Y: args[i+3] + oy}
				p3 := models.Point{X: args[i+4] + ox, Y: args[i+5] + oy}
				for s := 1; s <= curveSteps; s++ {
					p := cubic(p0, p1, p2, p3, float64(s)/curveSteps)
					add(p.X, p.Y)
				}
			}

		case "Q":
			for i := 0; i+3 < len(args); i += 4 {
				ox, oy := off()
				p0 := models.Point{X: x, Y: y}
				p1 := models.Point{X: args[i] + ox, Y: args[i+1] + oy}
				p2 := models.Point{X: args[i+2] + ox, Y: args[i+3] + oy}
				for s := 1; s <= curveSteps; s++ {
					p := quadratic(p0, p1, p2, float64(s)/curveSteps)
					add(p.X, p.Y)
				}
			}

		case "S":
			for i := 0; i+3 < len(args); i += 4 {
				ox, oy := off()
				add(args[i+2]+ox, args[i+3]+oy)
			}

		case "A":
			for i := 0; i+6 < len(args); i += 7 {
				ox, oy := off()
				add(args[i+5]+ox, args[i+6]+oy)
			}

		case "Z":
			// замыкаем подпуть, возвращаясь к его первой точке
			if len(current) > 0 {
				add(startX, startY)
			}
		}
	}
	flush()

	return subpaths, nil
}

func cubic(p0, p1, p2, p3 models.Point, t float64) models.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return models.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func quadratic(p0, p1, p2 models.Point, t float64) models.Point {
	u := 1 - t
	a, b, c := u*u, 2*u*t, t*t
	return models.Point{
		X: a*p0.X + b*p1.X + c*p2.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y,
	}
}

// parseCoords извлекает числа, в том числе слитные вида "10-5" и "1e-3".
func parseCoords(s string) []float64 {
	var coords []float64
	for _, part := range numberRe.FindAllString(s, -1) {
		val, err := strconv.ParseFloat(part, 64)
		if err == nil {
			coords = append(coords, val)
		}
	}
	return coords
}

// parsePoints разбирает атрибут points у polyline/polygon.
func parsePoints(s string) []models.Point {
	coords := parseCoords(s)
	points := make([]models.Point, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		points = append(points, models.Point{X: coords[i], Y: coords[i+1]})
	}
	return points
}
