package indexsrv

// activetracker.go gives reorg.ActiveRefTracker a concrete implementation:
// a short-TTL record of keys the coordinator most recently handed out as
// Hit/Partial refs, so a reorg round can defer a victim a client might
// still be fetching rather than invalidate a ref mid-puzzle. Tracked the
// same way the delivery queue tracks pending artifacts: an expirable LRU,
// not a hand-rolled sweeper.

import (
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// DefaultActiveRefTTL bounds how long a handed-out ref is treated as
// in-flight; long enough to cover one puzzle fetch round-trip.
const DefaultActiveRefTTL = 10 * time.Second

// ActiveTracker implements reorg.ActiveRefTracker.
type ActiveTracker struct {
	cache *expirable.LRU[cachecore.Key, struct{}]
}

// NewActiveTracker constructs a tracker with the given TTL.
func NewActiveTracker(ttl time.Duration) *ActiveTracker {
	if ttl <= 0 {
		ttl = DefaultActiveRefTTL
	}
	return &ActiveTracker{cache: expirable.NewLRU[cachecore.Key, struct{}](8192, nil, ttl)}
}

// Touch marks key as referenced by a response just handed to a client.
func (t *ActiveTracker) Touch(key cachecore.Key) {
	t.cache.Add(key, struct{}{})
}

// IsActive reports whether key was touched within the tracker's TTL.
func (t *ActiveTracker) IsActive(key cachecore.Key) bool {
	_, ok := t.cache.Get(key)
	return ok
}
