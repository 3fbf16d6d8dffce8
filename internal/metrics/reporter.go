package metrics

import (
	"context"
	"time"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// StatsSource is the subset of cachecore.Manager a Reporter polls.
type StatsSource interface {
	StatsSnapshot() []cachecore.TypeStatsSnapshot
}

// Reporter periodically copies a Manager's counters into a Sink. Counters
// are cumulative on both sides, so re-publishing the same values between
// ticks is harmless; this avoids threading Sink through every Put/Query
// call on the hot path.
type Reporter struct {
	source StatsSource
	sink   Sink
	last   map[cachecore.ResultType]cachecore.Stats
}

// NewReporter constructs a reporter; source is typically a *cachecore.Manager.
func NewReporter(source StatsSource, sink Sink) *Reporter {
	return &Reporter{source: source, sink: sink, last: make(map[cachecore.ResultType]cachecore.Stats)}
}

// Run blocks, polling every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *Reporter) poll() {
	for _, t := range r.source.StatsSnapshot() {
		prev := r.last[t.ResultType]
		r.sink.SetBytes(t.ResultType, t.Stats.Bytes)
		r.sink.AddPuts(t.ResultType, t.Stats.Puts-prev.Puts)
		r.sink.AddGets(t.ResultType, t.Stats.Gets-prev.Gets)
		r.sink.AddHits(t.ResultType, t.Stats.Hits-prev.Hits)
		r.sink.AddMisses(t.ResultType, t.Stats.Misses-prev.Misses)
		r.sink.AddEvictions(t.ResultType, t.Stats.Evictions-prev.Evictions)
		r.last[t.ResultType] = t.Stats
	}
}
