package cachecore

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFeatureArtifact is a minimal FeatureArtifact test double.
type testFeatureArtifact struct {
	features []Feature
	schema   []string
}

func (a *testFeatureArtifact) ByteSize() int64             { return int64(len(a.features) * 64) }
func (a *testFeatureArtifact) Cut(QueryRectangle) Artifact { return a }
func (a *testFeatureArtifact) Features() []Feature         { return a.features }
func (a *testFeatureArtifact) AttrSchema() []string        { return a.schema }

func withFeatureFactory(t *testing.T) {
	t.Helper()
	prev := FeatureCollectionFactory
	FeatureCollectionFactory = func(rt ResultType, schema []string, features []Feature) (FeatureArtifact, error) {
		return &testFeatureArtifact{features: features, schema: schema}, nil
	}
	t.Cleanup(func() { FeatureCollectionFactory = prev })
}

// Puzzling a single local part that fully covers the query returns that
// part's features unchanged.
func TestPuzzleSingleLocalPartIsIdempotent(t *testing.T) {
	withFeatureFactory(t)

	feats := []Feature{
		{Geometry: orb.Point{5, 5}, SemanticID: "op1", SourceEntryID: 1, FeatureIndex: 0, Attrs: map[string]any{"a": "v"}},
	}
	src := &testFeatureArtifact{features: feats, schema: []string{"a"}}
	entry := NewEntry(Key{SemanticID: "op1", EntryID: 1}, featureCube(0, 0, 10, 10), 64, Profile{}, src)

	req := PuzzleRequest{
		ResultType: Point,
		SemanticID: "op1",
		Query:      qr(0, 0, 10, 10),
		Parts:      []PartRef{{Local: entry}},
	}

	profiler := NewProfiler()
	out, err := Puzzle(context.Background(), req, nil, nil, &WorkerContext{}, profiler)
	require.NoError(t, err)

	fa, ok := out.(*testFeatureArtifact)
	require.True(t, ok)
	assert.Equal(t, feats, fa.features)
}

// Duplicate features surfacing from two overlapping parts (same source
// entry id and feature index) are merged once.
func TestPuzzleVectorDedup(t *testing.T) {
	withFeatureFactory(t)

	shared := Feature{Geometry: orb.Point{1, 1}, SourceEntryID: 7, FeatureIndex: 0}
	a := &testFeatureArtifact{features: []Feature{shared}, schema: []string{"x"}}
	b := &testFeatureArtifact{features: []Feature{shared, {Geometry: orb.Point{2, 2}, SourceEntryID: 7, FeatureIndex: 1}}, schema: []string{"y"}}

	ea := NewEntry(Key{SemanticID: "op1", EntryID: 1}, featureCube(0, 0, 5, 5), 64, Profile{}, a)
	eb := NewEntry(Key{SemanticID: "op1", EntryID: 2}, featureCube(0, 0, 5, 5), 64, Profile{}, b)

	req := PuzzleRequest{
		ResultType: Point,
		SemanticID: "op1",
		Query:      qr(0, 0, 5, 5),
		Parts:      []PartRef{{Local: ea}, {Local: eb}},
	}

	out, err := Puzzle(context.Background(), req, nil, nil, &WorkerContext{}, NewProfiler())
	require.NoError(t, err)

	fa := out.(*testFeatureArtifact)
	assert.Len(t, fa.features, 2)
	assert.ElementsMatch(t, []string{"x", "y"}, fa.schema)
}

// Merging parts with disjoint attribute schemas unions the schema and
// backfills each feature's missing attributes: NaN where the attribute is
// numeric elsewhere, empty string otherwise. The source parts' own
// attribute maps stay untouched.
func TestPuzzleVectorSchemaBackfill(t *testing.T) {
	withFeatureFactory(t)

	fa := Feature{Geometry: orb.Point{1, 1}, SourceEntryID: 1, FeatureIndex: 0, Attrs: map[string]any{"height": 1.5}}
	fb := Feature{Geometry: orb.Point{2, 2}, SourceEntryID: 2, FeatureIndex: 0, Attrs: map[string]any{"name": "b"}}
	a := &testFeatureArtifact{features: []Feature{fa}, schema: []string{"height"}}
	b := &testFeatureArtifact{features: []Feature{fb}, schema: []string{"name"}}

	ea := NewEntry(Key{SemanticID: "op1", EntryID: 1}, featureCube(0, 0, 5, 5), 64, Profile{}, a)
	eb := NewEntry(Key{SemanticID: "op1", EntryID: 2}, featureCube(0, 0, 5, 5), 64, Profile{}, b)

	req := PuzzleRequest{
		ResultType: Point,
		SemanticID: "op1",
		Query:      qr(0, 0, 5, 5),
		Parts:      []PartRef{{Local: ea}, {Local: eb}},
	}

	out, err := Puzzle(context.Background(), req, nil, nil, &WorkerContext{}, NewProfiler())
	require.NoError(t, err)

	merged := out.(*testFeatureArtifact).features
	require.Len(t, merged, 2)
	for _, f := range merged {
		require.Contains(t, f.Attrs, "height")
		require.Contains(t, f.Attrs, "name")
	}
	switch {
	case merged[0].SourceEntryID == 1:
		assert.Equal(t, "", merged[0].Attrs["name"])
		assert.True(t, math.IsNaN(merged[1].Attrs["height"].(float64)))
	default:
		assert.Equal(t, "", merged[1].Attrs["name"])
		assert.True(t, math.IsNaN(merged[0].Attrs["height"].(float64)))
	}

	assert.NotContains(t, fa.Attrs, "name")
	assert.NotContains(t, fb.Attrs, "height")
}

// Puzzling with a nil runner and a non-empty remainder is a MustNotHappen
// programmer error, never a silent miss.
func TestPuzzleNilRunnerWithRemainderFails(t *testing.T) {
	req := PuzzleRequest{
		ResultType: Point,
		SemanticID: "op1",
		Query:      qr(0, 0, 10, 10),
		Remainder:  []QueryRectangle{qr(0, 0, 10, 10)},
	}
	_, err := Puzzle(context.Background(), req, nil, nil, &WorkerContext{}, NewProfiler())
	require.Error(t, err)
}
