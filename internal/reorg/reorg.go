// Package reorg implements the reorganization engine: on each
// update_interval tick, recompute per-entry relevance cluster-wide and
// issue move/remove commands to co-locate puzzle parts and enforce
// cluster-wide quota. Moves and removes are best-effort; a client holding a
// ref to a removed entry sees NotFound and retries against alternates.
package reorg

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/indexsrv"
	"github.com/umr-dbs/mapping-cache/internal/metrics"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// StatsSource fetches a node's current per-type stats via GET_STATS, to
// drive relevance recomputation.
type StatsSource interface {
	GetStats(ctx context.Context, node indexsrv.NodeRef) (wire.NodeStats, error)
}

// CommandSink delivers a REORG command to a node and waits for its ack.
type CommandSink interface {
	SendReorg(ctx context.Context, node indexsrv.NodeRef, desc wire.ReorgDescription) error
}

// RemovePlan pairs a victim key with its result type and the node that must
// drop it, since quota removal is always issued to the entry's owning node.
type RemovePlan struct {
	Node       indexsrv.NodeRef
	ResultType cachecore.ResultType
	Key        cachecore.Key
}

// QuotaPolicy decides, given a snapshot of cluster-wide entry relevance,
// which entries exceed their cluster-wide quota and should be removed, and
// which should move to co-locate with the rest of a puzzle. Implementations
// are the reorg policies named by indexserver.reorg.strategy.
type QuotaPolicy interface {
	Name() string
	Plan(snapshot []EntrySnapshot) (moves []wire.ReorgMove, removes []RemovePlan)
}

// EntrySnapshot is one cluster-wide entry plus the relevance score computed
// for this reorg round.
type EntrySnapshot struct {
	Node       indexsrv.NodeRef
	ResultType cachecore.ResultType
	Key        cachecore.Key
	Cube       cachecore.Cube
	SizeBytes  int64
	Relevance  float64
}

// DirectoryRemover drops a directory entry immediately once its node has
// acknowledged the remove, rather than waiting for the next REGISTER/STATS
// refresh to notice it's gone.
type DirectoryRemover interface {
	Remove(nodeID string, rt cachecore.ResultType, key cachecore.Key)
}

// ActiveRefTracker reports whether a key is currently referenced by an
// in-flight query, so reorg can defer a victim to the next round rather
// than invalidate a ref a puzzle still holds.
type ActiveRefTracker interface {
	IsActive(key cachecore.Key) bool
}

// EntryLister enumerates the cluster-wide directory rows a reorg round
// plans over. Implemented by indexsrv.Directory.
type EntryLister interface {
	Snapshot() []indexsrv.DirEntry
}

// EngineConfig names everything a reorg engine needs. Directory may be nil,
// in which case removed entries fall out of the index's view only once the
// owning node's next handshake omits them. Metrics may be nil, equivalent
// to metrics.NewNoop().
type EngineConfig struct {
	Registry  *indexsrv.NodeRegistry
	Stats     StatsSource
	Sink      CommandSink
	Lister    EntryLister
	Relevance cachecore.RelevanceFunc
	Policy    QuotaPolicy
	Active    ActiveRefTracker
	Directory DirectoryRemover
	Metrics   metrics.Sink
	Interval  time.Duration
	Logger    *zap.Logger
}

// Engine runs the periodic reorg loop.
type Engine struct {
	registry  *indexsrv.NodeRegistry
	stats     StatsSource
	sink      CommandSink
	lister    EntryLister
	relevance cachecore.RelevanceFunc
	policy    QuotaPolicy
	active    ActiveRefTracker
	directory DirectoryRemover
	metrics   metrics.Sink
	interval  time.Duration
	logger    *zap.Logger
}

// NewEngine constructs a reorg engine ticking every cfg.Interval
// (indexserver.reorg.interval).
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return &Engine{
		registry: cfg.Registry, stats: cfg.Stats, sink: cfg.Sink, lister: cfg.Lister,
		relevance: cfg.Relevance, policy: cfg.Policy, active: cfg.Active,
		directory: cfg.Directory, metrics: cfg.Metrics, interval: cfg.Interval, logger: cfg.Logger,
	}
}

// Run blocks, ticking every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.runOnce(ctx); err != nil {
				e.logger.Warn("reorg round failed", zap.Error(err))
			}
		}
	}
}

// runOnce performs a single reorg round: collect stats, score relevance,
// plan moves/removes, apply best-effort.
func (e *Engine) runOnce(ctx context.Context) error {
	nodes := e.registry.All()
	if len(nodes) == 0 {
		return nil
	}

	if e.relevance != nil {
		e.relevance.NewTurn()
	}

	var errs error
	weights := make(map[nodeTypeKey]float64)
	for _, n := range nodes {
		ns, err := e.stats.GetStats(ctx, n)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for k, w := range nodeTypeWeights(n, ns) {
			weights[k] = w
		}
	}

	snapshot := e.score(weights)

	moves, removes := e.policy.Plan(snapshot)

	removes = e.filterActiveRemoves(removes)
	moves = e.filterActiveMoves(moves)

	byNode := groupByNode(moves, removes)
	for nodeID, desc := range byNode {
		node := findNode(nodes, nodeID)
		if node.NodeID == "" {
			continue
		}
		if err := e.sink.SendReorg(ctx, node, desc); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if e.directory != nil {
			for _, rm := range desc.Removes {
				e.directory.Remove(nodeID, rm.ResultType, rm.Key)
			}
		}
		e.metrics.AddReorgMoves(len(desc.Moves))
		e.metrics.AddReorgRemoves(len(desc.Removes))
	}
	return errs
}

func (e *Engine) filterActiveRemoves(removes []RemovePlan) []RemovePlan {
	if e.active == nil {
		return removes
	}
	out := removes[:0]
	for _, rp := range removes {
		if !e.active.IsActive(rp.Key) {
			out = append(out, rp)
		}
	}
	return out
}

// nodeTypeKey addresses one (node, result type) pair's stats weight.
type nodeTypeKey struct {
	nodeID     string
	resultType cachecore.ResultType
}

// nodeTypeWeights condenses one node's NodeStats into a hit-ratio weight
// per result type. The wire format carries aggregate counters, not
// per-entry access times, so the weight applies uniformly to every entry
// the directory lists for that (node, type) pair.
func nodeTypeWeights(node indexsrv.NodeRef, ns wire.NodeStats) map[nodeTypeKey]float64 {
	out := make(map[nodeTypeKey]float64, len(ns.Types))
	for _, t := range ns.Types {
		if t.Stats.Bytes <= 0 {
			continue
		}
		out[nodeTypeKey{nodeID: node.NodeID, resultType: t.ResultType}] =
			float64(t.Query.SingleLocalHits+t.Query.MultiLocalHits) / float64(t.Stats.Gets+1)
	}
	return out
}

// score pairs every directory row with its owning node's per-type weight.
// Rows on nodes whose stats fetch failed this round score zero and are the
// first removal candidates, matching how an unreachable node's entries are
// the least useful to keep advertising.
func (e *Engine) score(weights map[nodeTypeKey]float64) []EntrySnapshot {
	if e.lister == nil {
		return nil
	}
	rows := e.lister.Snapshot()
	out := make([]EntrySnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, EntrySnapshot{
			Node:       row.Node,
			ResultType: row.ResultType,
			Key:        row.Key,
			Cube:       row.Cube,
			SizeBytes:  row.SizeBytes,
			Relevance:  weights[nodeTypeKey{nodeID: row.Node.NodeID, resultType: row.ResultType}],
		})
	}
	return out
}

func (e *Engine) filterActiveMoves(moves []wire.ReorgMove) []wire.ReorgMove {
	if e.active == nil {
		return moves
	}
	out := moves[:0]
	for _, m := range moves {
		if !e.active.IsActive(m.Key) {
			out = append(out, m)
		}
	}
	return out
}

func groupByNode(moves []wire.ReorgMove, removes []RemovePlan) map[string]wire.ReorgDescription {
	byNode := make(map[string]wire.ReorgDescription)
	for _, m := range moves {
		d := byNode[m.FromNodeID]
		d.Moves = append(d.Moves, m)
		byNode[m.FromNodeID] = d
	}
	for _, rp := range removes {
		d := byNode[rp.Node.NodeID]
		d.Removes = append(d.Removes, wire.ReorgRemove{ResultType: rp.ResultType, Key: rp.Key})
		byNode[rp.Node.NodeID] = d
	}
	return byNode
}

func findNode(nodes []indexsrv.NodeRef, nodeID string) indexsrv.NodeRef {
	for _, n := range nodes {
		if n.NodeID == nodeID {
			return n
		}
	}
	return indexsrv.NodeRef{}
}
