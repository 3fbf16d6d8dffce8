package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

type blobArtifact struct{ n int64 }

func (b blobArtifact) ByteSize() int64                                 { return b.n }
func (b blobArtifact) Cut(cachecore.QueryRectangle) cachecore.Artifact { return b }

func TestDeliveryQueuePickupConsumes(t *testing.T) {
	q := NewDeliveryQueue(time.Minute)
	id := q.Enqueue(cachecore.Raster, blobArtifact{n: 10})
	require.NotEmpty(t, id)

	rt, artifact, err := q.Pickup(id)
	require.NoError(t, err)
	assert.Equal(t, cachecore.Raster, rt)
	assert.EqualValues(t, 10, artifact.ByteSize())

	// a delivery is consumed exactly once
	_, _, err = q.Pickup(id)
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}

func TestDeliveryQueueUnknownID(t *testing.T) {
	q := NewDeliveryQueue(time.Minute)
	_, _, err := q.Pickup("no-such-delivery")
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}

func TestDeliveryQueueDistinctIDs(t *testing.T) {
	q := NewDeliveryQueue(time.Minute)
	a := q.Enqueue(cachecore.Point, blobArtifact{n: 1})
	b := q.Enqueue(cachecore.Point, blobArtifact{n: 2})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, q.Len())
}
