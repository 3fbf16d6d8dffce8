package cachecore

import "math"

// rect is a bare axis-aligned 2-D rectangle used internally by the matcher's
// rectilinear decomposition. It carries no CRS/time/scale information;
// those are fixed for the whole decomposition (they come from the query).
type rect struct {
	X1, Y1, X2, Y2 float64
}

func (r rect) area() float64 {
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return 0
	}
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

func (r rect) intersect(o rect) (rect, bool) {
	x1 := math.Max(r.X1, o.X1)
	y1 := math.Max(r.Y1, o.Y1)
	x2 := math.Min(r.X2, o.X2)
	y2 := math.Min(r.Y2, o.Y2)
	if x2 <= x1 || y2 <= y1 {
		return rect{}, false
	}
	return rect{x1, y1, x2, y2}, true
}

// subtract removes o's overlap from r, returning up to four disjoint
// rectangles that cover r \ o. If r and o do not overlap, returns []rect{r}
// unchanged.
func (r rect) subtract(o rect) []rect {
	ix, ok := r.intersect(o)
	if !ok {
		return []rect{r}
	}
	var out []rect
	if r.Y1 < ix.Y1 {
		out = append(out, rect{r.X1, r.Y1, r.X2, ix.Y1}) // bottom strip, full width
	}
	if r.Y2 > ix.Y2 {
		out = append(out, rect{r.X1, ix.Y2, r.X2, r.Y2}) // top strip, full width
	}
	if r.X1 < ix.X1 {
		out = append(out, rect{r.X1, ix.Y1, ix.X1, ix.Y2}) // left strip, middle height
	}
	if r.X2 > ix.X2 {
		out = append(out, rect{ix.X2, ix.Y1, r.X2, ix.Y2}) // right strip, middle height
	}
	return out
}

// subtractFromAll subtracts o from every rectangle in free, dropping
// zero-area results.
func subtractFromAll(free []rect, o rect) []rect {
	out := make([]rect, 0, len(free))
	for _, f := range free {
		for _, piece := range f.subtract(o) {
			if piece.area() > 0 {
				out = append(out, piece)
			}
		}
	}
	return out
}

func totalArea(rs []rect) float64 {
	var a float64
	for _, r := range rs {
		a += r.area()
	}
	return a
}
