package snap

import (
	"math"
	"sort"

	"design-studio/internal/design/models"
)

// ============================================================
// Snap Cache
// ============================================================

const defaultThreshold = 6.0 // Расстояние (px), в пределах которого край притягивается к направляющей
const guideEpsilon = 0.5     // Совпадение краёв после сдвига, дающее направляющую

type Orientation string

const (
	Vertical   Orientation = "vertical"   // линия x = Position
	Horizontal Orientation = "horizontal" // линия y = Position
)

type edgeKind int

const (
	edgeStart edgeKind = iota
	edgeCenter
	edgeEnd
)

type Options struct {
	Threshold     float64 `json:"threshold"`
	GridSize      float64 `json:"grid_size"`
	SnapToCanvas  bool    `json:"snap_to_canvas"`
	SnapToObjects bool    `json:"snap_to_objects"`
	Version       int     `json:"version"` // версия дизайна, для которой построен кэш
}

func DefaultOptions() Options {
	return Options{
		Threshold:     defaultThreshold,
		SnapToCanvas:  true,
		SnapToObjects: true,
	}
}

// Guide - направляющая, которую UI рисует во время перетаскивания.
type Guide struct {
	Orientation Orientation `json:"orientation"`
	Position    float64     `json:"position"`
	Start       float64     `json:"start"`
	End         float64     `json:"end"`
	ObjectIDs   []string    `json:"object_ids"`
	Canvas      bool        `json:"canvas"`
}

type Result struct {
	Bounds   models.Bounds `json:"bounds"`
	DX       float64       `json:"dx"`
	DY       float64       `json:"dy"`
	SnappedX bool          `json:"snapped_x"`
	SnappedY bool          `json:"snapped_y"`
	Guides   []Guide       `json:"guides"`
}

// candidate - край объекта или холста на одной оси.
type candidate struct {
	pos      float64
	kind     edgeKind
	objectID string
	z        int
	canvas   bool
	lo, hi   float64 // протяжённость по другой оси
}

// Cache хранит отсортированные кандидаты для одного перетаскивания.
type Cache struct {
	opts Options
	xs   []candidate // вертикальные линии
	ys   []candidate // горизонтальные линии
}

// NewCache предвычисляет края всех видимых неподвижных объектов.
func NewCache(canvas models.Canvas, movingIDs []string, opts Options) *Cache {
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	if opts.GridSize < 0 {
		opts.GridSize = 0
	}

	moving := make(map[string]struct{}, len(movingIDs))
	for _, id := range movingIDs {
		moving[id] = struct{}{}
	}

	c := &Cache{opts: opts}

	if opts.SnapToCanvas {
		w, h := canvas.Width, canvas.Height
		c.xs = append(c.xs,
			candidate{pos: 0, kind: edgeStart, canvas: true, z: -1, lo: 0, hi: h},
			candidate{pos: w / 2, kind: edgeCenter, canvas: true, z: -1, lo: 0, hi: h},
			candidate{pos: w, kind: edgeEnd, canvas: true, z: -1, lo: 0, hi: h},
		)
		c.ys = append(c.ys,
			candidate{pos: 0, kind: edgeStart, canvas: true, z: -1, lo: 0, hi: w},
			candidate{pos: h / 2, kind: edgeCenter, canvas: true, z: -1, lo: 0, hi: w},
			candidate{pos: h, kind: edgeEnd, canvas: true, z: -1, lo: 0, hi: w},
		)
	}

	if opts.SnapToObjects {
		for z, obj := range canvas.Objects {
			if obj.Hidden {
				continue
			}
			if _, ok := moving[obj.ID]; ok {
				continue
			}
			b := obj.Bounds()
			for i, x := range []float64{b.Left, b.CenterX(), b.Right()} {
				c.xs = append(c.xs, candidate{pos: x, kind: edgeKind(i), objectID: obj.ID, z: z, lo: b.Top, hi: b.Bottom()})
			}
			for i, y := range []float64{b.Top, b.CenterY(), b.Bottom()} {
				c.ys = append(c.ys, candidate{pos: y, kind: edgeKind(i), objectID: obj.ID, z: z, lo: b.Left, hi: b.Right()})
			}
		}
	}

	sortCandidates(c.xs)
	sortCandidates(c.ys)
	return c
}

func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].pos != cs[j].pos {
			return cs[i].pos < cs[j].pos
		}
		if cs[i].canvas != cs[j].canvas {
			return cs[i].canvas
		}
		if cs[i].z != cs[j].z {
			return cs[i].z < cs[j].z
		}
		return cs[i].kind < cs[j].kind
	})
}

// Stale сообщает, что кэш построен для другой версии дизайна.
func (c *Cache) Stale(version int) bool {
	return c.opts.Version != version
}

func (c *Cache) Options() Options {
	return c.opts
}

// Len - число кандидатов на обеих осях.
func (c *Cache) Len() int {
	return len(c.xs) + len(c.ys)
}

// Snap притягивает перемещаемый прямоугольник к ближайшим направляющим.
func (c *Cache) Snap(moving models.Bounds) Result {
	res := Result{Guides: []Guide{}}

	if m, ok := c.best(c.xs, axisEdges(moving.Left, moving.Width)); ok {
		res.DX, res.SnappedX = m, true
	} else if c.opts.GridSize > 0 {
		res.DX = gridDelta(moving.Left, c.opts.GridSize)
		res.SnappedX = true
	}

	if m, ok := c.best(c.ys, axisEdges(moving.Top, moving.Height)); ok {
		res.DY, res.SnappedY = m, true
	} else if c.opts.GridSize > 0 {
		res.DY = gridDelta(moving.Top, c.opts.GridSize)
		res.SnappedY = true
	}

	res.Bounds = moving.Translate(res.DX, res.DY)
	b := res.Bounds

	res.Guides = append(res.Guides, collectGuides(c.xs, Vertical, axisEdges(b.Left, b.Width), b.Top, b.Bottom())...)
	res.Guides = append(res.Guides, collectGuides(c.ys, Horizontal, axisEdges(b.Top, b.Height), b.Left, b.Right())...)
	return res
}

func axisEdges(start, size float64) [3]float64 {
	return [3]float64{start, start + size/2, start + size}
}

func gridDelta(start, grid float64) float64 {
	return math.Round(start/grid)*grid - start
}

// match - кандидат на победу при выборе сдвига по оси.
type match struct {
	delta  float64
	c      candidate
	moving edgeKind
}

// better задаёт полный порядок: |delta|, холст, совпадение типа края, z-order, край перемещаемого.
func (m match) better(o match) bool {
	ad, od := math.Abs(m.delta), math.Abs(o.delta)
	if ad != od {
		return ad < od
	}
	if m.c.canvas != o.c.canvas {
		return m.c.canvas
	}
	ms, os := m.c.kind == m.moving, o.c.kind == o.moving
	if ms != os {
		return ms
	}
	if m.c.z != o.c.z {
		return m.c.z < o.c.z
	}
	if m.moving != o.moving {
		return m.moving < o.moving
	}
	if m.c.kind != o.c.kind {
		return m.c.kind < o.c.kind
	}
	return m.delta < o.delta
}

func (c *Cache) best(cs []candidate, edges [3]float64) (float64, bool) {
	var (
		winner match
		found  bool
	)
	t := c.opts.Threshold

	for i, e := range edges {
		for _, cand := range window(cs, e-t, e+t) {
			m := match{delta: cand.pos - e, c: cand, moving: edgeKind(i)}
			if !found || m.better(winner) {
				winner, found = m, true
			}
		}
	}
	return winner.delta, found
}

// window возвращает кандидатов с позицией в [lo, hi] бинарным поиском.
func window(cs []candidate, lo, hi float64) []candidate {
	from := sort.Search(len(cs), func(i int) bool { return cs[i].pos >= lo })
	to := from
	for to < len(cs) && cs[to].pos <= hi {
		to++
	}
	return cs[from:to]
}

func collectGuides(cs []candidate, o Orientation, edges [3]float64, lo, hi float64) []Guide {
	var guides []Guide
	index := make(map[float64]int)

	for _, e := range edges {
		for _, cand := range window(cs, e-guideEpsilon, e+guideEpsilon) {
			i, ok := index[cand.pos]
			if !ok {
				guides = append(guides, Guide{
					Orientation: o,
					Position:    cand.pos,
					Start:       lo,
					End:         hi,
					ObjectIDs:   []string{},
				})
				i = len(guides) - 1
				index[cand.pos] = i
			}

			g := &guides[i]
			g.Start = math.Min(g.Start, cand.lo)
			g.End = math.Max(g.End, cand.hi)
			if cand.canvas {
				g.Canvas = true
				continue
			}
			if !contains(g.ObjectIDs, cand.objectID) {
				g.ObjectIDs = append(g.ObjectIDs, cand.objectID)
			}
		}
	}

	sort.Slice(guides, func(i, j int) bool { return guides[i].Position < guides[j].Position })
	for i := range guides {
		sort.Strings(guides[i].ObjectIDs)
	}
	return guides
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
