package cachecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
)

type fakeArtifact struct {
	bytes int64
}

func (f fakeArtifact) ByteSize() int64 { return f.bytes }

func (f fakeArtifact) Cut(QueryRectangle) Artifact { return f }

func featureCube(x1, y1, x2, y2 float64) Cube {
	return NewFeatureCube(1, x1, y1, x2, y2, 0, 1)
}

func TestTypedStorePutGet(t *testing.T) {
	s := NewTypedStore(Point, 1<<20, nil)

	e, err := s.Put("op1", featureCube(0, 0, 10, 10), 100, Profile{}, fakeArtifact{100})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(100), s.CurrentSize())
	assert.EqualValues(t, 0, e.AccessCount())

	got, err := s.Get(e.Key)
	require.NoError(t, err)
	assert.Equal(t, e.Key, got.Key)
	assert.EqualValues(t, 1, got.AccessCount())

	_, err = s.Get(Key{SemanticID: "op1", EntryID: e.Key.EntryID + 99})
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}

func TestTypedStoreDistinctEntryIDs(t *testing.T) {
	s := NewTypedStore(Point, 1<<20, nil)
	e1, err := s.Put("op1", featureCube(0, 0, 1, 1), 10, Profile{}, fakeArtifact{10})
	require.NoError(t, err)
	e2, err := s.Put("op1", featureCube(0, 0, 1, 1), 10, Profile{}, fakeArtifact{10})
	require.NoError(t, err)
	assert.NotEqual(t, e1.Key.EntryID, e2.Key.EntryID)
}

func TestTypedStoreRemoveIdempotent(t *testing.T) {
	s := NewTypedStore(Point, 1<<20, nil)
	e, err := s.Put("op1", featureCube(0, 0, 1, 1), 50, Profile{}, fakeArtifact{50})
	require.NoError(t, err)

	s.Remove(e.Key)
	assert.EqualValues(t, 0, s.CurrentSize())

	// second remove of the same (now-absent) key is a no-op, not an error.
	s.Remove(e.Key)
	assert.EqualValues(t, 0, s.CurrentSize())
}

func TestTypedStoreBudgetSoftMargin(t *testing.T) {
	s := NewTypedStore(Point, 1000, nil)
	_, err := s.Put("op1", featureCube(0, 0, 1, 1), 1100, Profile{}, fakeArtifact{1100})
	require.NoError(t, err) // exactly at the 10% soft margin

	_, err = s.Put("op1", featureCube(0, 0, 1, 1), 1, Profile{}, fakeArtifact{1})
	require.Error(t, err) // now over 1100
}

func TestTypedStoreGetAllHandshake(t *testing.T) {
	s := NewTypedStore(Point, 1<<20, nil)
	_, err := s.Put("op1", featureCube(0, 0, 1, 1), 10, Profile{}, fakeArtifact{10})
	require.NoError(t, err)
	_, err = s.Put("op2", featureCube(0, 0, 1, 1), 10, Profile{}, fakeArtifact{10})
	require.NoError(t, err)

	hs := s.GetAll()
	assert.Len(t, hs, 2)
	assert.Len(t, hs["op1"], 1)
	assert.Len(t, hs["op2"], 1)
}
