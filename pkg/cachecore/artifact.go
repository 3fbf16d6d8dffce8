package cachecore

// artifact.go declares the richer, per-type contracts the puzzler needs
// beyond the minimal Artifact interface. Computation of raster/feature
// results, colorizers and exports stay external; these interfaces exist
// only so the puzzler can merge already-computed artifacts without parsing
// their bit-level format.

import "github.com/paulmach/orb"

// RasterArtifact is implemented by raster results so the puzzler can blit
// pixel blocks during assembly.
type RasterArtifact interface {
	Artifact
	// PixelData exposes a flat row-major buffer, its dimensions and the
	// no-data sentinel used by this raster's pixel type.
	PixelData() (data []float64, width, height int, noData float64)
	// SourceCube returns the spatio-temporal extent this raster was computed for,
	// needed to place it within the output grid.
	SourceCube() Cube
}

// RasterCanvas is the output raster being assembled by the puzzler.
type RasterCanvas interface {
	Artifact
	// Set writes value at (x,y); implementations ignore out-of-bounds
	// writes.
	Set(x, y int, value float64)
	// Dims returns the canvas's pixel dimensions.
	Dims() (width, height int)
	// NoData returns the sentinel this canvas uses for unset pixels.
	NoData() float64
}

// Feature is one geometry record inside a point/line/polygon collection.
type Feature struct {
	Geometry      orb.Geometry
	SemanticID    string
	SourceEntryID EntryID
	FeatureIndex  int
	Attrs         map[string]any
}

// FeatureArtifact is implemented by point/line/polygon collections so the
// puzzler can concatenate and dedup features.
type FeatureArtifact interface {
	Artifact
	Features() []Feature
	// AttrSchema returns the full set of attribute names present in this
	// collection, used to union schemas across merged inputs.
	AttrSchema() []string
}

// PlotArtifact is implemented by plot results. Puzzling is defined only
// when exactly one input exists.
type PlotArtifact interface {
	Artifact
}
