package remote

// delivery.go implements the producer side of deliveries: a short-TTL
// queue keyed by a generated delivery_id, consumed by a client's PICKUP.
// Backed by hashicorp/golang-lru/v2's expirable cache so expiry is handled
// by the library rather than a hand-rolled sweeper goroutine.

import (
	"time"

	"github.com/google/uuid"
	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// DefaultDeliveryTTL is the default delivery lifetime.
const DefaultDeliveryTTL = 30 * time.Second

// pendingDelivery is one artifact awaiting a PICKUP.
type pendingDelivery struct {
	resultType cachecore.ResultType
	artifact   cachecore.Artifact
}

// DeliveryQueue holds artifacts produced for a client GET until PICKUP
// consumes them or the TTL lapses.
type DeliveryQueue struct {
	cache *expirable.LRU[string, *pendingDelivery]
}

// NewDeliveryQueue constructs a queue with the given TTL and a generous
// capacity; eviction beyond capacity is a safety valve, not the primary
// expiry mechanism (that's the TTL).
func NewDeliveryQueue(ttl time.Duration) *DeliveryQueue {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &DeliveryQueue{cache: expirable.NewLRU[string, *pendingDelivery](4096, nil, ttl)}
}

// Enqueue registers artifact under a freshly generated delivery_id, the id
// a GET reply hands the client alongside our host and port.
func (q *DeliveryQueue) Enqueue(rt cachecore.ResultType, artifact cachecore.Artifact) string {
	id := uuid.NewString()
	q.cache.Add(id, &pendingDelivery{resultType: rt, artifact: artifact})
	return id
}

// Pickup consumes and removes the delivery for id, failing with NotFound if
// it has already been consumed or has expired.
func (q *DeliveryQueue) Pickup(id string) (cachecore.ResultType, cachecore.Artifact, error) {
	pd, ok := q.cache.Get(id)
	if !ok {
		return 0, nil, cacheerr.Sentinel(cacheerr.NotFound)
	}
	q.cache.Remove(id)
	return pd.resultType, pd.artifact, nil
}

// Len reports the number of deliveries currently queued, for tests and
// stats reporting.
func (q *DeliveryQueue) Len() int { return q.cache.Len() }
