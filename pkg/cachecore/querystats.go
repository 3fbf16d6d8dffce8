package cachecore

// querystats.go tracks which branch of the node cache manager's query
// dispatch a request took: a distinct counter set from TypedStore.Stats().
// Folded into the NodeStats payload sent to the index on GET_STATS; these
// counters are not exported to Prometheus.

import "sync/atomic"

// QueryStats counts queries by which branch of the node cache manager's
// dispatch they resolved through.
type QueryStats struct {
	SingleLocalHits     atomic.Uint64
	MultiLocalHits      atomic.Uint64
	MultiLocalPartials  atomic.Uint64
	SingleRemoteHits    atomic.Uint64
	MultiRemoteHits     atomic.Uint64
	MultiRemotePartials atomic.Uint64
	Misses              atomic.Uint64
}

func (s *QueryStats) AddSingleLocalHit()     { s.SingleLocalHits.Add(1) }
func (s *QueryStats) AddMultiLocalHit()      { s.MultiLocalHits.Add(1) }
func (s *QueryStats) AddMultiLocalPartial()  { s.MultiLocalPartials.Add(1) }
func (s *QueryStats) AddSingleRemoteHit()    { s.SingleRemoteHits.Add(1) }
func (s *QueryStats) AddMultiRemoteHit()     { s.MultiRemoteHits.Add(1) }
func (s *QueryStats) AddMultiRemotePartial() { s.MultiRemotePartials.Add(1) }
func (s *QueryStats) AddMiss()               { s.Misses.Add(1) }

// QueryStatsSnapshot is an immutable copy suitable for serialization over the wire.
type QueryStatsSnapshot struct {
	SingleLocalHits     uint64
	MultiLocalHits      uint64
	MultiLocalPartials  uint64
	SingleRemoteHits    uint64
	MultiRemoteHits     uint64
	MultiRemotePartials uint64
	Misses              uint64
}

// Snapshot reads every counter into a value type.
func (s *QueryStats) Snapshot() QueryStatsSnapshot {
	return QueryStatsSnapshot{
		SingleLocalHits:     s.SingleLocalHits.Load(),
		MultiLocalHits:      s.MultiLocalHits.Load(),
		MultiLocalPartials:  s.MultiLocalPartials.Load(),
		SingleRemoteHits:    s.SingleRemoteHits.Load(),
		MultiRemoteHits:     s.MultiRemoteHits.Load(),
		MultiRemotePartials: s.MultiRemotePartials.Load(),
		Misses:              s.Misses.Load(),
	}
}
