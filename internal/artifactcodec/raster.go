// Package artifactcodec provides one concrete, minimal implementation of
// cachecore's Artifact/RasterArtifact/RasterCanvas/FeatureArtifact/
// PlotArtifact contracts, plus wire encode/decode for its three concrete
// types (Raster, FeatureSet, PlotResult), enough to
// wire puzzle assembly and peer delivery end-to-end. Real pixel formats,
// geometry encodings and colorizers live with the operator graph; this
// package exists only so the rest of the tree has something concrete to
// exercise rather than leaving every extension point unimplemented.
package artifactcodec

import "github.com/umr-dbs/mapping-cache/pkg/cachecore"

// Raster is a flat row-major float64 grid, implementing both
// cachecore.RasterArtifact (as a puzzle input) and cachecore.RasterCanvas
// (as the puzzle's output canvas).
type Raster struct {
	cube          cachecore.Cube
	width, height int
	noData        float64
	pixels        []float64
}

// DefaultNoData is the sentinel used for unset pixels when the operator
// does not specify one.
const DefaultNoData = -9999.0

// NewRasterCanvas adapts NewRaster to the cachecore.RasterCanvasFactory
// shape, filling with DefaultNoData.
func NewRasterCanvas(q cachecore.QueryRectangle) (cachecore.RasterCanvas, error) {
	return NewRaster(q, DefaultNoData)
}

// NewRaster allocates a width x height grid filled with noData.
func NewRaster(q cachecore.QueryRectangle, noData float64) (*Raster, error) {
	width := int(q.Resolution.XRes)
	height := int(q.Resolution.YRes)
	r := &Raster{
		width: width, height: height, noData: noData,
		pixels: make([]float64, width*height),
	}
	for i := range r.pixels {
		r.pixels[i] = noData
	}
	sx, sy := q.ScaleXY()
	r.cube = cachecore.Cube{
		CRS: q.CRS, X1: q.X1, Y1: q.Y1, X2: q.X2, Y2: q.Y2, T1: q.T1, T2: q.T2,
		ScaleX: cachecore.ScaleInterval{A: sx, B: sx},
		ScaleY: cachecore.ScaleInterval{A: sy, B: sy},
	}
	return r, nil
}

// NewRasterFrom constructs a raster directly from decoded wire fields.
func NewRasterFrom(cube cachecore.Cube, width, height int, noData float64, pixels []float64) *Raster {
	return &Raster{cube: cube, width: width, height: height, noData: noData, pixels: pixels}
}

func (r *Raster) ByteSize() int64 { return int64(len(r.pixels)) * 8 }

// Cut restricts to q by allocating a new raster and blitting the
// overlapping region, with the same center-of-pixel coordinate mapping
// puzzle assembly uses.
func (r *Raster) Cut(q cachecore.QueryRectangle) cachecore.Artifact {
	out, err := NewRaster(q, r.noData)
	if err != nil {
		return r
	}
	sx := (r.cube.X2 - r.cube.X1) / float64(r.width)
	sy := (r.cube.Y2 - r.cube.Y1) / float64(r.height)
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			wx := q.X1 + (float64(x)+0.5)*(q.X2-q.X1)/float64(out.width)
			wy := q.Y1 + (float64(y)+0.5)*(q.Y2-q.Y1)/float64(out.height)
			sxp := int((wx - r.cube.X1) / sx)
			syp := int((wy - r.cube.Y1) / sy)
			if sxp < 0 || sxp >= r.width || syp < 0 || syp >= r.height {
				continue
			}
			v := r.pixels[syp*r.width+sxp]
			if v != r.noData {
				out.Set(x, y, v)
			}
		}
	}
	return out
}

func (r *Raster) PixelData() (data []float64, width, height int, noData float64) {
	return r.pixels, r.width, r.height, r.noData
}
func (r *Raster) SourceCube() cachecore.Cube { return r.cube }

func (r *Raster) Set(x, y int, value float64) {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return
	}
	r.pixels[y*r.width+x] = value
}
func (r *Raster) Dims() (width, height int) { return r.width, r.height }
func (r *Raster) NoData() float64           { return r.noData }
