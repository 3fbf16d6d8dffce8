package indexsrv

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

func qr(x1, y1, x2, y2 float64) cachecore.QueryRectangle {
	return cachecore.QueryRectangle{CRS: 1, X1: x1, Y1: y1, X2: x2, Y2: y2, T1: 0, T2: 1}
}

func TestCoordinatorQueryMiss(t *testing.T) {
	c := NewCoordinator(NewDirectory(), NewNodeRegistry())
	resp, err := c.Query(context.Background(), cachecore.Raster, "op1", qr(0, 0, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, cachecore.StatusMiss, resp.Status)
}

func TestCoordinatorQueryFullHit(t *testing.T) {
	dir := NewDirectory()
	node := NodeRef{NodeID: "n1", Host: "10.0.0.1", Port: 9000}
	cube := cachecore.NewFeatureCube(1, 0, 0, 100, 100, 0, 1)
	key := cachecore.Key{SemanticID: "op1", EntryID: 1}
	dir.NewEntry(node, cachecore.Polygon, cachecore.Meta{Key: key, Cube: cube})

	c := NewCoordinator(dir, NewNodeRegistry())
	resp, err := c.Query(context.Background(), cachecore.Polygon, "op1", qr(10, 10, 20, 20))
	require.NoError(t, err)
	require.Equal(t, cachecore.StatusHit, resp.Status)
	assert.Equal(t, "10.0.0.1", resp.Ref.Host)
	assert.EqualValues(t, 1, resp.Ref.EntryID)
}

func TestCoordinatorQueryPartial(t *testing.T) {
	dir := NewDirectory()
	node := NodeRef{NodeID: "n1", Host: "10.0.0.1", Port: 9000}
	cube := cachecore.NewFeatureCube(1, 0, 0, 50, 100, 0, 1)
	key := cachecore.Key{SemanticID: "op1", EntryID: 1}
	dir.NewEntry(node, cachecore.Polygon, cachecore.Meta{Key: key, Cube: cube})

	c := NewCoordinator(dir, NewNodeRegistry())
	resp, err := c.Query(context.Background(), cachecore.Polygon, "op1", qr(0, 0, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, cachecore.StatusPartial, resp.Status)
	assert.NotEmpty(t, resp.Puzzle.Remainder)
}

// N concurrent identical queries against a cold cluster (a
// miss, since batching coalesces misses too) all receive the same response
// shape when batching is enabled.
func TestCoordinatorQueryBatchingConcurrentCallersAgree(t *testing.T) {
	c := NewCoordinator(NewDirectory(), NewNodeRegistry())
	c.SetBatching(true)

	const n = 50
	var wg sync.WaitGroup
	results := make([]cachecore.IndexQueryResponse, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Query(context.Background(), cachecore.Polygon, "op1", qr(0, 0, 10, 10))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, cachecore.StatusMiss, results[i].Status)
	}
}

func TestBatchKeyStability(t *testing.T) {
	q := qr(0, 0, 10, 10)
	k1 := BatchKey(cachecore.Raster, "op1", q)
	k2 := BatchKey(cachecore.Raster, "op1", q)
	assert.Equal(t, k1, k2)

	k3 := BatchKey(cachecore.Raster, "op2", q)
	assert.NotEqual(t, k1, k3)

	k4 := BatchKey(cachecore.Point, "op1", q)
	assert.NotEqual(t, k1, k4)
}
