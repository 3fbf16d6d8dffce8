// Package metrics is a thin abstraction over Prometheus so the cache can run
// with or without metrics: pass a *prometheus.Registry to get labeled
// collectors, or nil for a noop sink that doesn't pay for updates on the hot
// path.
//
// All cache-manager metrics are per-result-type; cluster-wide aggregation
// happens on the Prometheus side via sum()/rate(). Metric names follow
// Prometheus conventions, counters suffixed "_total".
//
// ┌────────────────────────────────────┬───────┬──────────────┐
// │ Metric                             │ Type  │ Labels       │
// ├────────────────────────────────────┼───────┼──────────────┤
// │ mapping_cache_puts_total           │ Ctr   │ result_type  │
// │ mapping_cache_gets_total           │ Ctr   │ result_type  │
// │ mapping_cache_hits_total           │ Ctr   │ result_type  │
// │ mapping_cache_misses_total         │ Ctr   │ result_type  │
// │ mapping_cache_evictions_total      │ Ctr   │ result_type  │
// │ mapping_cache_bytes                │ Gge   │ result_type  │
// │ mapping_cache_reorg_moves_total    │ Ctr   │ (none)       │
// │ mapping_cache_reorg_removes_total  │ Ctr   │ (none)       │
// │ mapping_cache_delivery_queue_depth │ Gge   │ (none)       │
// └────────────────────────────────────┴───────┴──────────────┘
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// Sink is the abstraction Manager- and reorg-adjacent code updates; Cache
// and Engine only know about these generic methods, never the concrete
// backend.
type Sink interface {
	AddPuts(rt cachecore.ResultType, delta uint64)
	AddGets(rt cachecore.ResultType, delta uint64)
	AddHits(rt cachecore.ResultType, delta uint64)
	AddMisses(rt cachecore.ResultType, delta uint64)
	AddEvictions(rt cachecore.ResultType, delta uint64)
	SetBytes(rt cachecore.ResultType, bytes int64)
	AddReorgMoves(n int)
	AddReorgRemoves(n int)
	SetDeliveryQueueDepth(n int)
}

type noopSink struct{}

func (noopSink) AddPuts(cachecore.ResultType, uint64)     {}
func (noopSink) AddGets(cachecore.ResultType, uint64)     {}
func (noopSink) AddHits(cachecore.ResultType, uint64)     {}
func (noopSink) AddMisses(cachecore.ResultType, uint64)   {}
func (noopSink) AddEvictions(cachecore.ResultType, uint64) {}
func (noopSink) SetBytes(cachecore.ResultType, int64)     {}
func (noopSink) AddReorgMoves(int)                        {}
func (noopSink) AddReorgRemoves(int)                      {}
func (noopSink) SetDeliveryQueueDepth(int)                {}

// NewNoop returns a sink that discards every update.
func NewNoop() Sink { return noopSink{} }

type promSink struct {
	puts      *prometheus.CounterVec
	gets      *prometheus.CounterVec
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	bytes     *prometheus.GaugeVec

	reorgMoves   prometheus.Counter
	reorgRemoves prometheus.Counter
	deliveryDepth prometheus.Gauge
}

// New constructs a Prometheus-backed sink and registers its collectors. Pass
// nil to get a noop sink instead; New never panics on a nil registry, it
// just skips registration.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return NewNoop()
	}

	label := []string{"result_type"}
	ps := &promSink{
		puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "puts_total", Help: "Number of put operations accepted.",
		}, label),
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "gets_total", Help: "Number of query operations served.",
		}, label),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "hits_total", Help: "Number of query operations resolved as a hit.",
		}, label),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "misses_total", Help: "Number of query operations resolved as a miss.",
		}, label),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "evictions_total", Help: "Number of entries evicted to satisfy a budget.",
		}, label),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mapping_cache", Name: "bytes", Help: "Live bytes held per result type.",
		}, label),
		reorgMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "reorg_moves_total", Help: "Number of reorg move commands issued.",
		}),
		reorgRemoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mapping_cache", Name: "reorg_removes_total", Help: "Number of reorg remove commands issued.",
		}),
		deliveryDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mapping_cache", Name: "delivery_queue_depth", Help: "Entries currently waiting for PICKUP.",
		}),
	}

	reg.MustRegister(ps.puts, ps.gets, ps.hits, ps.misses, ps.evictions, ps.bytes,
		ps.reorgMoves, ps.reorgRemoves, ps.deliveryDepth)
	return ps
}

func label(rt cachecore.ResultType) string { return rt.String() }

func (m *promSink) AddPuts(rt cachecore.ResultType, delta uint64) {
	m.puts.WithLabelValues(label(rt)).Add(float64(delta))
}
func (m *promSink) AddGets(rt cachecore.ResultType, delta uint64) {
	m.gets.WithLabelValues(label(rt)).Add(float64(delta))
}
func (m *promSink) AddHits(rt cachecore.ResultType, delta uint64) {
	m.hits.WithLabelValues(label(rt)).Add(float64(delta))
}
func (m *promSink) AddMisses(rt cachecore.ResultType, delta uint64) {
	m.misses.WithLabelValues(label(rt)).Add(float64(delta))
}
func (m *promSink) AddEvictions(rt cachecore.ResultType, delta uint64) {
	m.evictions.WithLabelValues(label(rt)).Add(float64(delta))
}
func (m *promSink) SetBytes(rt cachecore.ResultType, bytes int64) {
	m.bytes.WithLabelValues(label(rt)).Set(float64(bytes))
}
func (m *promSink) AddReorgMoves(n int)          { m.reorgMoves.Add(float64(n)) }
func (m *promSink) AddReorgRemoves(n int)        { m.reorgRemoves.Add(float64(n)) }
func (m *promSink) SetDeliveryQueueDepth(n int)  { m.deliveryDepth.Set(float64(n)) }
