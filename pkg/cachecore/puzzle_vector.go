package cachecore

// puzzle_vector.go implements the point/line/polygon merge contract:
// concatenate every part's features, drop duplicates keyed by
// (semantic id, source entry id, feature index) so a feature that straddles
// two overlapping parts isn't counted twice, and union the attribute schema
// across inputs, backfilling attributes a feature's source part never
// carried.

import (
	"math"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
)

// FeatureCollectionFactory builds the output collection for a vector
// puzzle. Wired in by callers the same way RasterCanvasFactory is.
var FeatureCollectionFactory func(rt ResultType, schema []string, features []Feature) (FeatureArtifact, error)

type featureKey struct {
	semanticID string
	entryID    EntryID
	index      int
}

func mergeFeatures(rt ResultType, parts []resolvedPart) (Artifact, error) {
	if FeatureCollectionFactory == nil {
		return nil, cacheerr.New(cacheerr.MustNotHappen, "mergeFeatures", nil)
	}

	seen := make(map[featureKey]struct{})
	schemaSeen := make(map[string]struct{})
	var schema []string
	var merged []Feature

	for _, p := range parts {
		fa, ok := p.artifact.(FeatureArtifact)
		if !ok {
			return nil, cacheerr.New(cacheerr.Unsupported, "mergeFeatures", nil)
		}
		for _, attr := range fa.AttrSchema() {
			if _, ok := schemaSeen[attr]; !ok {
				schemaSeen[attr] = struct{}{}
				schema = append(schema, attr)
			}
		}
		for _, f := range fa.Features() {
			key := featureKey{semanticID: f.SemanticID, entryID: f.SourceEntryID, index: f.FeatureIndex}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, f)
		}
	}

	fillMissingAttrs(schema, merged)

	return FeatureCollectionFactory(rt, schema, merged)
}

// fillMissingAttrs gives every feature a value for every schema name its
// source part never carried: NaN where the attribute holds numbers
// elsewhere in the merge, the empty string otherwise.
func fillMissingAttrs(schema []string, features []Feature) {
	numeric := make(map[string]bool, len(schema))
	for _, f := range features {
		for k, v := range f.Attrs {
			switch v.(type) {
			case float64, float32, int, int32, int64, uint, uint32, uint64:
				numeric[k] = true
			}
		}
	}

	for i := range features {
		src := features[i].Attrs
		missing := false
		for _, name := range schema {
			if _, ok := src[name]; !ok {
				missing = true
				break
			}
		}
		if !missing {
			continue
		}
		// The source map is shared with the cached part's features; copy
		// before writing sentinels into it.
		attrs := make(map[string]any, len(schema))
		for k, v := range src {
			attrs[k] = v
		}
		for _, name := range schema {
			if _, ok := attrs[name]; ok {
				continue
			}
			if numeric[name] {
				attrs[name] = math.NaN()
			} else {
				attrs[name] = ""
			}
		}
		features[i].Attrs = attrs
	}
}
