// Package cachecore implements the per-node result cache for the geospatial
// operator graph engine: the typed entry store, the query matcher, the
// puzzle assembler, the replacement policy, the admission strategy and the
// node cache manager that binds them.
//
// The package never parses semantic_id, never touches the operator graph's
// JSON serialization, and never looks inside an Artifact beyond the small
// Artifact interface declared in entry.go. Those are external collaborators.
package cachecore

import (
	"math"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
)

// ResultType is the closed variant set of cacheable artifact kinds.
// Operations never mix types; every store, key and ref is tagged with one.
type ResultType uint8

const (
	Raster ResultType = iota + 1
	Point
	Line
	Polygon
	Plot
)

func (t ResultType) String() string {
	switch t {
	case Raster:
		return "raster"
	case Point:
		return "point"
	case Line:
		return "line"
	case Polygon:
		return "polygon"
	case Plot:
		return "plot"
	default:
		return "unknown"
	}
}

// AllResultTypes lists every variant, in the fixed order used to build the
// five typed stores of a node cache manager.
var AllResultTypes = [...]ResultType{Raster, Point, Line, Polygon, Plot}

// ResultTypeByName parses the lowercase names used by config keys
// (nodeserver.cache.<type>.size) back into a ResultType.
func ResultTypeByName(name string) (ResultType, error) {
	switch name {
	case "raster":
		return Raster, nil
	case "point":
		return Point, nil
	case "line":
		return Line, nil
	case "polygon":
		return Polygon, nil
	case "plot":
		return Plot, nil
	default:
		return 0, cacheerr.New(cacheerr.Argument, "ResultTypeByName", nil)
	}
}

// CRSID identifies a coordinate reference system. The core never interprets
// its value beyond equality comparison.
type CRSID uint32

// TimeType enumerates how t1/t2 should be compared; the core treats time as
// an opaque ordered axis and never converts between calendars.
type TimeType uint8

const (
	TimeUnixSeconds TimeType = iota + 1
	TimeUnixMillis
)

// Resolution describes whether a query targets a raster pixel grid or a
// feature/plot result with no inherent pixel resolution.
type Resolution struct {
	Pixels bool
	XRes   uint32
	YRes   uint32
}

// NoResolution is the zero value for feature/plot queries.
var NoResolution = Resolution{}

// PixelResolution constructs a raster resolution.
func PixelResolution(xres, yres uint32) Resolution {
	return Resolution{Pixels: true, XRes: xres, YRes: yres}
}

// QueryRectangle is the spatio-temporal query envelope.
type QueryRectangle struct {
	CRS        CRSID
	X1, Y1     float64
	X2, Y2     float64
	T1, T2     float64
	TimeType   TimeType
	Resolution Resolution
}

// Validate checks x1<=x2, y1<=y2, t1<=t2.
func (q QueryRectangle) Validate() error {
	if q.X1 > q.X2 || q.Y1 > q.Y2 || q.T1 > q.T2 {
		return cacheerr.New(cacheerr.Argument, "QueryRectangle.Validate", nil)
	}
	return nil
}

// Area returns the 2-D spatial area of the rectangle. Time is not folded
// into area; coverage math is purely spatial.
func (q QueryRectangle) Area() float64 {
	return (q.X2 - q.X1) * (q.Y2 - q.Y1)
}

// ScaleXY returns the derived pixel density for a raster query. Only valid
// when Resolution.Pixels is true; callers must check first.
func (q QueryRectangle) ScaleXY() (sx, sy float64) {
	sx = (q.X2 - q.X1) / float64(q.Resolution.XRes)
	sy = (q.Y2 - q.Y1) / float64(q.Resolution.YRes)
	return
}

// ScaleInterval is an inclusive-exclusive [a, b) pixel-scale band: a<=actual<b.
type ScaleInterval struct {
	A, B float64
}

// Contains reports whether the interval contains v under the half-open
// convention a<=v<b; +Inf on B is treated as unbounded above.
func (s ScaleInterval) Contains(v float64) bool {
	return v >= s.A && (v < s.B || math.IsInf(s.B, 1))
}

// ScaleCapability states an operator's native resolution bounds, supplied
// explicitly at computation time. A result computed at or beyond a bound
// saturates it: the operator cannot produce anything finer/coarser, so the
// cached entry's scale interval may be widened to 0/+Inf on that side.
type ScaleCapability struct {
	MinScaleX, MaxScaleX float64
	MinScaleY, MaxScaleY float64
}

// Cube is the spatio-temporal extent of an entry, plus (for rasters) a
// pixel-scale interval.
type Cube struct {
	CRS        CRSID
	X1, Y1     float64
	X2, Y2     float64
	T1, T2     float64
	ScaleX     ScaleInterval // zero value unused for non-raster types
	ScaleY     ScaleInterval
}

// Area returns the spatial area of the cube.
func (c Cube) Area() float64 {
	return (c.X2 - c.X1) * (c.Y2 - c.Y1)
}

// CoversTemporal reports whether the cube spans [t1,t2] of the query.
func (c Cube) CoversTemporal(q QueryRectangle) bool {
	return c.T1 <= q.T1 && c.T2 >= q.T2
}

// FullyCovers reports whether c fully covers q's CRS, spatial extent, time
// span and (for rasters) pixel-scale.
func (c Cube) FullyCovers(q QueryRectangle, isRaster bool) bool {
	if c.CRS != q.CRS {
		return false
	}
	if !(c.X1 <= q.X1 && c.X2 >= q.X2 && c.Y1 <= q.Y1 && c.Y2 >= q.Y2) {
		return false
	}
	if !c.CoversTemporal(q) {
		return false
	}
	if isRaster {
		sx, sy := q.ScaleXY()
		if !c.ScaleX.Contains(sx) || !c.ScaleY.Contains(sy) {
			return false
		}
	}
	return true
}

// Intersection returns the 2-D rectangle intersection of the cube and the
// query's spatial extent, and whether it is non-empty.
func (c Cube) Intersection(q QueryRectangle) (x1, y1, x2, y2 float64, ok bool) {
	x1 = math.Max(c.X1, q.X1)
	y1 = math.Max(c.Y1, q.Y1)
	x2 = math.Min(c.X2, q.X2)
	y2 = math.Min(c.Y2, q.Y2)
	ok = x2 > x1 && y2 > y1
	return
}

// Coverage returns (area of cube ∩ q) / area(q) in [0,1], requiring temporal
// containment and, for rasters, scale containment; zero if disjoint or a
// requirement fails.
func (c Cube) Coverage(q QueryRectangle, isRaster bool) float64 {
	if c.CRS != q.CRS || !c.CoversTemporal(q) {
		return 0
	}
	if isRaster {
		sx, sy := q.ScaleXY()
		if !c.ScaleX.Contains(sx) || !c.ScaleY.Contains(sy) {
			return 0
		}
	}
	x1, y1, x2, y2, ok := c.Intersection(q)
	if !ok {
		return 0
	}
	qa := q.Area()
	if qa <= 0 {
		return 0
	}
	return ((x2 - x1) * (y2 - y1)) / qa
}

// coverageEqualEpsilon is the numeric tolerance for "equal" coverage scores
// used by the matcher's tie-break rules.
const coverageEqualEpsilon = 1e-9

// rasterHalfPixelOutset enlarges an inserted raster cube by half a pixel on
// each side so that adjoining tiles overlap rather than leave hairline gaps.
func rasterHalfPixelOutset(x1, y1, x2, y2 float64, xres, yres uint32) (nx1, ny1, nx2, ny2 float64) {
	hx := (x2 - x1) / float64(xres) / 2
	hy := (y2 - y1) / float64(yres) / 2
	return x1 - hx, y1 - hy, x2 + hx, y2 + hy
}

// NewRasterCube builds the Cube for a freshly computed raster artifact,
// applying the half-pixel outset and the [0.75r, 1.5r] scale interval,
// widened to 0/+Inf on a side where cap says the result saturated the
// operator's min/max resolution capability.
func NewRasterCube(crs CRSID, x1, y1, x2, y2, t1, t2 float64, q QueryRectangle, cap ScaleCapability) Cube {
	ox1, oy1, ox2, oy2 := rasterHalfPixelOutset(x1, y1, x2, y2, q.Resolution.XRes, q.Resolution.YRes)

	sx, sy := q.ScaleXY()
	scaleX := ScaleInterval{A: 0.75 * sx, B: 1.5 * sx}
	scaleY := ScaleInterval{A: 0.75 * sy, B: 1.5 * sy}

	if sx <= cap.MinScaleX {
		scaleX.A = 0
	} else if sx >= cap.MaxScaleX {
		scaleX.B = math.Inf(1)
	}
	if sy <= cap.MinScaleY {
		scaleY.A = 0
	} else if sy >= cap.MaxScaleY {
		scaleY.B = math.Inf(1)
	}

	return Cube{
		CRS: crs, X1: ox1, Y1: oy1, X2: ox2, Y2: oy2, T1: t1, T2: t2,
		ScaleX: scaleX, ScaleY: scaleY,
	}
}

// NewFeatureCube builds the Cube for a point/line/polygon/plot artifact: no
// outset, no scale interval.
func NewFeatureCube(crs CRSID, x1, y1, x2, y2, t1, t2 float64) Cube {
	return Cube{CRS: crs, X1: x1, Y1: y1, X2: x2, Y2: y2, T1: t1, T2: t2}
}
