package cachecore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Eviction under pressure: budget 3000 bytes, LRU. Put E1..E3 1000B
// each, touch E1, then ask for room for a fourth 1000B entry; expect E2
// (least recently touched) to be the one victim.
func TestGetRemovalsLRUOrdering(t *testing.T) {
	s := NewTypedStore(Raster, 3000, nil)

	e1, err := s.Put("op1", featureCube(0, 0, 1, 1), 1000, Profile{}, fakeArtifact{1000})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	e2, err := s.Put("op1", featureCube(1, 0, 2, 1), 1000, Profile{}, fakeArtifact{1000})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	e3, err := s.Put("op1", featureCube(2, 0, 3, 1), 1000, Profile{}, fakeArtifact{1000})
	require.NoError(t, err)

	_, err = s.Get(e1.Key) // touch E1, bumping its last_access ahead of E2/E3
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	victims := GetRemovals(s, LRU{}, 1000)
	require.Len(t, victims, 1)
	assert.Equal(t, e2.Key, victims[0])

	for _, v := range victims {
		s.MarkEvicted(v)
	}

	rem := s.EntriesFor("op1")
	var keys []Key
	for _, e := range rem {
		keys = append(keys, e.Key)
	}
	assert.ElementsMatch(t, []Key{e1.Key, e3.Key}, keys)
}

func TestGetRemovalsNoneNeededWhenHeadroomSufficient(t *testing.T) {
	s := NewTypedStore(Raster, 10_000, nil)
	_, err := s.Put("op1", featureCube(0, 0, 1, 1), 1000, Profile{}, fakeArtifact{1000})
	require.NoError(t, err)

	victims := GetRemovals(s, LRU{}, 500)
	assert.Empty(t, victims)
}

func TestCostWeightedLRUClampsAtZero(t *testing.T) {
	rel := &CostWeightedLRU{}
	e := NewEntry(Key{SemanticID: "op1", EntryID: 1}, featureCube(0, 0, 1, 1), 10, Profile{CPUMillis: -100}, fakeArtifact{10})
	zero := NewEntry(Key{SemanticID: "op1", EntryID: 2}, featureCube(0, 0, 1, 1), 10, Profile{}, fakeArtifact{10})
	rel.NewTurn()
	// A negative cost profile must not produce a negative relevance score,
	// so it ranks no lower than a zero-cost entry.
	assert.False(t, rel.Less(e, zero))
}

func TestRelevanceByName(t *testing.T) {
	r, err := RelevanceByName("lru")
	require.NoError(t, err)
	assert.Equal(t, "lru", r.Name())

	r, err = RelevanceByName("costlru")
	require.NoError(t, err)
	assert.Equal(t, "costlru", r.Name())

	_, err = RelevanceByName("bogus")
	require.Error(t, err)
}
