package artifactcodec

import (
	"github.com/paulmach/orb"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// FeatureSet is a flat slice of features plus their attribute schema,
// implementing cachecore.FeatureArtifact for point/line/polygon results.
type FeatureSet struct {
	schema   []string
	features []cachecore.Feature
}

// NewFeatureSet is the cachecore.FeatureCollectionFactory implementation
// this package supplies for the vector merge.
func NewFeatureSet(rt cachecore.ResultType, schema []string, features []cachecore.Feature) (cachecore.FeatureArtifact, error) {
	return &FeatureSet{schema: schema, features: features}, nil
}

func (f *FeatureSet) ByteSize() int64 {
	var n int64
	for _, feat := range f.features {
		n += int64(64 + 32*len(feat.Attrs))
	}
	return n
}

// Cut keeps features whose geometry bound intersects q. Exact geometry
// intersection lives with whatever computes the artifact; the bound test is
// enough for trimming a cached superset to a query window.
func (f *FeatureSet) Cut(q cachecore.QueryRectangle) cachecore.Artifact {
	window := orb.Bound{Min: orb.Point{q.X1, q.Y1}, Max: orb.Point{q.X2, q.Y2}}
	kept := make([]cachecore.Feature, 0, len(f.features))
	for _, feat := range f.features {
		if feat.Geometry == nil {
			continue
		}
		if feat.Geometry.Bound().Intersects(window) {
			kept = append(kept, feat)
		}
	}
	return &FeatureSet{schema: f.schema, features: kept}
}

func (f *FeatureSet) Features() []cachecore.Feature { return f.features }
func (f *FeatureSet) AttrSchema() []string          { return f.schema }

// PlotResult is an opaque named byte blob, implementing cachecore.PlotArtifact.
type PlotResult struct {
	Format string
	Bytes  []byte
}

func (p *PlotResult) ByteSize() int64 { return int64(len(p.Bytes)) }
func (p *PlotResult) Cut(cachecore.QueryRectangle) cachecore.Artifact { return p }
