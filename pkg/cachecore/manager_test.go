package cachecore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
)

// fakeIndexClient records NewEntry notifications and answers Query with a
// canned response.
type fakeIndexClient struct {
	notified []Meta
	resp     IndexQueryResponse
	err      error
}

func (f *fakeIndexClient) Query(context.Context, ResultType, string, QueryRectangle) (IndexQueryResponse, error) {
	return f.resp, f.err
}

func (f *fakeIndexClient) NewEntry(_ context.Context, _ ResultType, meta Meta) error {
	f.notified = append(f.notified, meta)
	return nil
}

func TestWrapperPutSuppressedWhilePuzzling(t *testing.T) {
	m := NewManager()
	w := m.Wrapper(Point)

	wc := (&WorkerContext{}).ChildForPuzzling()
	_, stored, err := w.Put(context.Background(), wc, "op1", fakeArtifact{100}, qr(0, 0, 10, 10), ScaleCapability{}, NewProfiler())
	require.NoError(t, err)
	assert.False(t, stored)
	assert.EqualValues(t, 0, w.Store().CurrentSize())
}

func TestWrapperPutRespectsNeverAdmission(t *testing.T) {
	m := NewManager(WithAdmission(Never{}))
	w := m.Wrapper(Point)

	_, stored, err := w.Put(context.Background(), &WorkerContext{}, "op1", fakeArtifact{100}, qr(0, 0, 10, 10), ScaleCapability{}, NewProfiler())
	require.NoError(t, err)
	assert.False(t, stored)
	assert.EqualValues(t, 0, w.Store().CurrentSize())
}

func TestWrapperPutNotifiesIndex(t *testing.T) {
	m := NewManager()
	w := m.Wrapper(Point)

	idx := &fakeIndexClient{}
	wc := &WorkerContext{IndexConn: idx}
	entry, stored, err := w.Put(context.Background(), wc, "op1", fakeArtifact{100}, qr(0, 0, 10, 10), ScaleCapability{}, NewProfiler())
	require.NoError(t, err)
	require.True(t, stored)
	require.Len(t, idx.notified, 1)
	assert.Equal(t, entry.Key, idx.notified[0].Key)
}

func TestWrapperPutEvictsOnceOnPressure(t *testing.T) {
	m := NewManager(WithTypeBudget(Point, 1000))
	w := m.Wrapper(Point)

	for i := 0; i < 2; i++ {
		_, stored, err := w.Put(context.Background(), &WorkerContext{}, "op1", fakeArtifact{500}, qr(0, 0, 10, 10), ScaleCapability{}, NewProfiler())
		require.NoError(t, err)
		require.True(t, stored)
	}

	// A third 500-byte artifact needs an eviction to fit.
	_, stored, err := w.Put(context.Background(), &WorkerContext{}, "op1", fakeArtifact{500}, qr(0, 0, 10, 10), ScaleCapability{}, NewProfiler())
	require.NoError(t, err)
	assert.True(t, stored)
	assert.LessOrEqual(t, w.Store().CurrentSize(), int64(1100))
}

func TestWrapperQueryDepthZeroIsImmediateMiss(t *testing.T) {
	m := NewManager()
	w := m.Wrapper(Point)

	_, outcome, err := w.Query(context.Background(), &WorkerContext{}, 0, nil, "op1", qr(0, 0, 10, 10), NewProfiler())
	assert.Equal(t, OutcomeMiss, outcome)
	assert.ErrorIs(t, err, cacheerr.ErrMiss)
	assert.EqualValues(t, 1, w.QueryStats().Misses.Load())
}

// Miss, recompute, put, then the identical query is a local single-entry
// hit with cost attributed to the profiler.
func TestWrapperMissThenPutThenHit(t *testing.T) {
	m := NewManager()
	w := m.Wrapper(Point)

	idx := &fakeIndexClient{resp: IndexQueryResponse{Status: StatusMiss}}
	wc := &WorkerContext{IndexConn: idx}
	q := qr(0, 0, 10, 10)

	_, outcome, err := w.Query(context.Background(), wc, 2, nil, "op1", q, NewProfiler())
	assert.Equal(t, OutcomeMiss, outcome)
	assert.ErrorIs(t, err, cacheerr.ErrMiss)

	prof := NewProfiler()
	prof.AddSelf(Profile{CPUMillis: 100})
	_, stored, err := w.Put(context.Background(), wc, "op1", fakeArtifact{5000}, q, ScaleCapability{}, prof)
	require.NoError(t, err)
	require.True(t, stored)

	prof2 := NewProfiler()
	artifact, outcome, err := w.Query(context.Background(), wc, 2, nil, "op1", q, prof2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.NotNil(t, artifact)
	assert.InDelta(t, 100, prof2.Total().CPUMillis, 1e-9)
	assert.EqualValues(t, 1, w.QueryStats().SingleLocalHits.Load())
}
