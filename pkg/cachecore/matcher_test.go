package cachecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qr(x1, y1, x2, y2 float64) QueryRectangle {
	return QueryRectangle{CRS: 1, X1: x1, Y1: y1, X2: x2, Y2: y2, T1: 0, T2: 1}
}

func entryWithCube(id EntryID, x1, y1, x2, y2 float64) *Entry {
	return NewEntry(Key{SemanticID: "op1", EntryID: id}, featureCube(x1, y1, x2, y2), 0, Profile{}, fakeArtifact{0})
}

// A single entry fully covering the query is a full, single-item hit with
// no remainder.
func TestMatchFullHit(t *testing.T) {
	e := entryWithCube(1, 0, 0, 100, 100)
	res, err := Match([]*Entry{e}, qr(10, 10, 20, 20), false)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Same(t, e, res.Items[0])
	assert.Empty(t, res.Remainder)
	assert.InDelta(t, 1.0, res.HitRatio, 1e-9)
	assert.True(t, res.HasHit())
	assert.False(t, res.HasRemainder())
}

// Two entries that together cover the query but neither alone fully covers
// it yield a multi-item hit with no remainder.
func TestMatchMultiHitNoRemainder(t *testing.T) {
	left := entryWithCube(1, 0, 0, 50, 100)
	right := entryWithCube(2, 50, 0, 100, 100)
	res, err := Match([]*Entry{left, right}, qr(0, 0, 100, 100), false)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Empty(t, res.Remainder)
	assert.InDelta(t, 1.0, res.HitRatio, 1e-9)
}

// Partial coverage produces a remainder disjoint from, and complementary
// to, the selected items.
func TestMatchPartialHitRemainder(t *testing.T) {
	left := entryWithCube(1, 0, 0, 50, 100)
	res, err := Match([]*Entry{left}, qr(0, 0, 100, 100), false)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NotEmpty(t, res.Remainder)

	var remArea float64
	for _, r := range res.Remainder {
		remArea += (r.X2 - r.X1) * (r.Y2 - r.Y1)
	}
	assert.InDelta(t, 5000, remArea, 1e-6) // 50x100 uncovered half
	assert.InDelta(t, 0.5, res.HitRatio, 1e-9)
}

// No candidate with positive coverage yields a miss: empty items, remainder
// equal to the whole query.
func TestMatchMiss(t *testing.T) {
	far := entryWithCube(1, 1000, 1000, 1001, 1001)
	res, err := Match([]*Entry{far}, qr(0, 0, 10, 10), false)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.InDelta(t, 0, res.HitRatio, 1e-9)
}

func TestMatchRejectsInvalidQuery(t *testing.T) {
	_, err := Match(nil, qr(10, 0, 0, 10), false)
	require.Error(t, err)
}

// Among multiple fully-covering entries, the tie-break prefers higher
// access_count, then lower entry_id.
func TestMatchFullHitTieBreak(t *testing.T) {
	lowID := entryWithCube(1, 0, 0, 100, 100)
	highID := entryWithCube(2, 0, 0, 100, 100)
	highID.Touch()
	highID.Touch()

	res, err := Match([]*Entry{lowID, highID}, qr(10, 10, 20, 20), false)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Same(t, highID, res.Items[0])
}
