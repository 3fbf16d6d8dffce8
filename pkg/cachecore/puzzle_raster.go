package cachecore

// puzzle_raster.go implements the raster merge contract: blit every part's
// pixels into an output canvas sized to the query, skipping no-data pixels
// so later parts don't overwrite already-painted pixels with no-data. Every
// part is read with row 0 at its cube's Y1, the same row order as the
// canvas; flipped parts are not detected or re-oriented.

import "github.com/umr-dbs/mapping-cache/internal/cacheerr"

// RasterCanvasFactory builds the output canvas for a raster puzzle. The
// core never allocates pixel buffers itself, so the caller wires a concrete
// canvas implementation in; tests supply an in-memory one.
var RasterCanvasFactory func(q QueryRectangle) (RasterCanvas, error)

func mergeRaster(q QueryRectangle, parts []resolvedPart) (Artifact, error) {
	if RasterCanvasFactory == nil {
		return nil, cacheerr.New(cacheerr.MustNotHappen, "mergeRaster", nil)
	}
	canvas, err := RasterCanvasFactory(q)
	if err != nil {
		return nil, cacheerr.New(cacheerr.Argument, "mergeRaster", err)
	}

	width, height := canvas.Dims()

	// parts arrive highest-coverage first (matcher order, remainders
	// appended after). Blit in reverse so at overlapping edges the
	// higher-coverage part is painted last and wins.
	for i := len(parts) - 1; i >= 0; i-- {
		ra, ok := parts[i].artifact.(RasterArtifact)
		if !ok {
			return nil, cacheerr.New(cacheerr.Unsupported, "mergeRaster", nil)
		}
		blitRaster(canvas, ra, q, width, height)
	}

	return canvas, nil
}

// blitRaster copies ra's pixels that fall within the output grid, skipping
// no-data source pixels so a part never blanks out a pixel another part
// already painted.
func blitRaster(canvas RasterCanvas, ra RasterArtifact, q QueryRectangle, width, height int) {
	src := ra.SourceCube()
	pixels, srcW, srcH, srcNoData := ra.PixelData()
	if srcW <= 0 || srcH <= 0 {
		return
	}

	outScaleX := (q.X2 - q.X1) / float64(width)
	outScaleY := (q.Y2 - q.Y1) / float64(height)
	srcScaleX := (src.X2 - src.X1) / float64(srcW)
	srcScaleY := (src.Y2 - src.Y1) / float64(srcH)
	if outScaleX <= 0 || outScaleY <= 0 || srcScaleX <= 0 || srcScaleY <= 0 {
		return
	}

	for oy := 0; oy < height; oy++ {
		worldY := q.Y1 + (float64(oy)+0.5)*outScaleY
		for ox := 0; ox < width; ox++ {
			worldX := q.X1 + (float64(ox)+0.5)*outScaleX
			if worldX < src.X1 || worldX >= src.X2 || worldY < src.Y1 || worldY >= src.Y2 {
				continue
			}
			sx := int((worldX - src.X1) / srcScaleX)
			sy := int((worldY - src.Y1) / srcScaleY)
			if sx < 0 || sx >= srcW || sy < 0 || sy >= srcH {
				continue
			}
			v := pixels[sy*srcW+sx]
			if v == srcNoData {
				continue
			}
			canvas.Set(ox, oy, v)
		}
	}
}
