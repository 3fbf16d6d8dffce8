package cachecore

// replacement.go implements the replacement policy: a RelevanceFunc is a
// total order over entries, smallest-first-to-evict; GetRemovals walks a
// sorted snapshot until enough bytes are freed. Eviction itself is
// caller-driven; this file only picks victims.

import (
	"sort"
	"time"
)

// RelevanceFunc orders entries for eviction: Less(a, b) reports whether a is
// a better eviction candidate (more disposable) than b. NewTurn is called
// once per GetRemovals round before sorting, letting a cost-weighted
// function snapshot "now" once instead of per comparison.
type RelevanceFunc interface {
	NewTurn()
	Less(a, b *Entry) bool
	Name() string
}

// LRU evicts the entry with the smallest last_access first.
type LRU struct{}

func (LRU) NewTurn() {}
func (LRU) Name() string { return "lru" }
func (LRU) Less(a, b *Entry) bool {
	return a.LastAccess() < b.LastAccess()
}

// CostWeightedLRU evicts by cost(profile)*(1-age_minutes*0.01) ascending,
// clamped at 0.
type CostWeightedLRU struct {
	now int64 // millis, snapshotted by NewTurn
}

func (c *CostWeightedLRU) NewTurn() {
	c.now = time.Now().UnixMilli()
}

func (c *CostWeightedLRU) Name() string { return "costlru" }

func (c *CostWeightedLRU) relevance(e *Entry) float64 {
	ageMinutes := float64(c.now-e.LastAccess()) / 60000.0
	factor := 1 - ageMinutes*0.01
	if factor < 0 {
		factor = 0
	}
	v := e.Profile.Cost() * factor
	if v < 0 {
		return 0
	}
	return v
}

func (c *CostWeightedLRU) Less(a, b *Entry) bool {
	return c.relevance(a) < c.relevance(b)
}

// RelevanceByName resolves a configured relevance function name
// (nodeserver.cache.local.replacement / indexserver.reorg.relevance).
func RelevanceByName(name string) (RelevanceFunc, error) {
	switch name {
	case "", "lru":
		return LRU{}, nil
	case "costlru":
		return &CostWeightedLRU{}, nil
	default:
		return nil, unknownRelevance(name)
	}
}

// GetRemovals selects victim keys from store so that freeing their bytes
// covers bytesNeeded beyond whatever headroom the store already has.
// Eviction is the caller's responsibility, by calling store.Remove/
// MarkEvicted for each returned key; each of those takes the store's
// exclusive lock itself.
func GetRemovals(store *TypedStore, relevance RelevanceFunc, bytesNeeded int64) []Key {
	store.mu.RLock()
	avail := store.maxSize - store.current
	var all []*Entry
	if avail < bytesNeeded {
		for _, bucket := range store.entries {
			for _, e := range bucket {
				all = append(all, e)
			}
		}
	}
	store.mu.RUnlock()

	if avail >= bytesNeeded {
		return nil
	}

	relevance.NewTurn()
	sort.Slice(all, func(i, j int) bool {
		return relevance.Less(all[i], all[j])
	})

	target := bytesNeeded - avail
	var freed int64
	keys := make([]Key, 0, len(all))
	for _, e := range all {
		if freed >= target {
			break
		}
		keys = append(keys, e.Key)
		freed += e.SizeBytes
	}
	return keys
}
