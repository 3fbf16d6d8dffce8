package cachecore

// store.go implements the per-result-type typed entry store: an in-memory
// map from semantic_id to its collection of entries, plus byte accounting
// and cache-level counters. A single reader/writer lock per typed store
// guards it: query/get take the shared lock, put/remove take the exclusive
// lock.

import (
	"sync"
	"sync/atomic"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"go.uber.org/zap"
)

// softMarginFactor is the 10% transient overflow margin a Put may occupy
// before eviction restores current size to the budget.
const softMarginFactor = 1.1

// Stats are the typed store's cache-level counters.
type Stats struct {
	Puts      uint64
	Gets      uint64
	Hits      uint64
	Misses    uint64
	Removes   uint64
	Evictions uint64
	Bytes     int64
}

// Handshake is the snapshot `{semantic_id -> [entry metadata]}` sent to the
// index at node registration and on periodic stats.
type Handshake map[string][]Meta

// TypedStore is a thread-safe container for one ResultType, parameterized by
// a byte budget.
type TypedStore struct {
	resultType ResultType
	maxSize    int64
	logger     *zap.Logger

	mu      sync.RWMutex
	entries map[string]map[EntryID]*Entry
	current int64
	nextID  atomic.Uint64

	puts, gets, hits, misses, removes, evictions atomic.Uint64
}

// NewTypedStore constructs an empty store with the given byte budget.
func NewTypedStore(rt ResultType, maxSize int64, logger *zap.Logger) *TypedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypedStore{
		resultType: rt,
		maxSize:    maxSize,
		logger:     logger,
		entries:    make(map[string]map[EntryID]*Entry),
	}
}

// ResultType returns the type this store holds.
func (s *TypedStore) ResultType() ResultType { return s.resultType }

// MaxSize returns the byte budget.
func (s *TypedStore) MaxSize() int64 { return s.maxSize }

// CurrentSize returns the current accounted byte usage.
func (s *TypedStore) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Put inserts a fresh entry under semantic_id with a monotonically
// increasing EntryID, updating current_size. It does not evict; eviction is
// caller-driven. It fails only when the insert would push current size
// beyond the 10% soft margin.
func (s *TypedStore) Put(semanticID string, cube Cube, size int64, profile Profile, data Artifact) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current+size > int64(float64(s.maxSize)*softMarginFactor) {
		return nil, cacheerr.New(cacheerr.BudgetExceeded, "store.Put", nil)
	}

	id := EntryID(s.nextID.Add(1))
	key := Key{SemanticID: semanticID, EntryID: id}
	e := NewEntry(key, cube, size, profile, data)

	bucket, ok := s.entries[semanticID]
	if !ok {
		bucket = make(map[EntryID]*Entry)
		s.entries[semanticID] = bucket
	}
	bucket[id] = e
	s.current += size
	s.puts.Add(1)

	return e, nil
}

// Get returns a shared, read-only handle, updating last_access/access_count.
// Fails with NotFound if the key is unknown.
func (s *TypedStore) Get(key Key) (*Entry, error) {
	s.mu.RLock()
	bucket, ok := s.entries[key.SemanticID]
	var e *Entry
	if ok {
		e, ok = bucket[key.EntryID]
	}
	s.mu.RUnlock()

	s.gets.Add(1)
	if !ok || e == nil {
		s.misses.Add(1)
		return nil, cacheerr.New(cacheerr.NotFound, "store.Get", nil)
	}
	s.hits.Add(1)
	e.Touch()
	return e, nil
}

// Remove is idempotent; decrements current_size if the key was present.
func (s *TypedStore) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.entries[key.SemanticID]
	if !ok {
		return
	}
	e, ok := bucket[key.EntryID]
	if !ok {
		return
	}
	delete(bucket, key.EntryID)
	if len(bucket) == 0 {
		delete(s.entries, key.SemanticID)
	}
	s.current -= e.SizeBytes
	s.removes.Add(1)
}

// MarkEvicted is like Remove but additionally records an eviction count,
// for callers that distinguish capacity-driven removal from a plain
// idempotent Remove.
func (s *TypedStore) MarkEvicted(key Key) {
	s.Remove(key)
	s.evictions.Add(1)
}

// EntriesFor returns a snapshot slice of entries under semantic_id, used by
// the matcher. The slice is a copy of the pointer set; entries
// themselves are shared and must not be mutated by the caller beyond Touch.
func (s *TypedStore) EntriesFor(semanticID string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.entries[semanticID]
	if !ok {
		return nil
	}
	out := make([]*Entry, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e)
	}
	return out
}

// GetAll returns the full handshake snapshot for registration/periodic
// stats.
func (s *TypedStore) GetAll() Handshake {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hs := make(Handshake, len(s.entries))
	for sid, bucket := range s.entries {
		metas := make([]Meta, 0, len(bucket))
		for _, e := range bucket {
			metas = append(metas, e.Meta())
		}
		hs[sid] = metas
	}
	return hs
}

// Stats returns the cache-level counters.
func (s *TypedStore) Stats() Stats {
	s.mu.RLock()
	bytes := s.current
	s.mu.RUnlock()
	return Stats{
		Puts:      s.puts.Load(),
		Gets:      s.gets.Load(),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Removes:   s.removes.Load(),
		Evictions: s.evictions.Load(),
		Bytes:     bytes,
	}
}

// Query delegates to the matcher over this store's entries for semantic_id.
func (s *TypedStore) Query(semanticID string, q QueryRectangle) (QueryResult, error) {
	entries := s.EntriesFor(semanticID)
	return Match(entries, q, s.resultType == Raster)
}
