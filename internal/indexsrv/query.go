package indexsrv

// query.go implements QUERY handling: run the shared matcher over
// cluster-wide candidates, classify the result as HIT/MISS/PARTIAL, and
// coalesce identical in-flight queries via singleflight so a thundering
// herd of misses only triggers one directory scan.

import (
	"context"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// Coordinator answers QUERY requests and tracks NEW_ENTRY/REGISTER
// notifications in its Directory.
type Coordinator struct {
	dir        *Directory
	registry   *NodeRegistry
	scheduler  Scheduler
	active     *ActiveTracker
	batchGroup singleflight.Group
	batching   atomic.Bool
}

// NewCoordinator constructs a coordinator with query batching enabled by
// default (indexserver.batching.enable) and the default locality scheduler
// for MISS placement.
func NewCoordinator(dir *Directory, registry *NodeRegistry) *Coordinator {
	c := &Coordinator{dir: dir, registry: registry, scheduler: NewLocalityScheduler(), active: NewActiveTracker(0)}
	c.batching.Store(true)
	return c
}

// ActiveTracker exposes the coordinator's in-flight ref tracker so it can
// be handed to reorg.NewEngine as the ActiveRefTracker.
func (c *Coordinator) ActiveTracker() *ActiveTracker { return c.active }

// SetScheduler overrides the MISS-placement scheduler
// (indexserver.scheduler).
func (c *Coordinator) SetScheduler(s Scheduler) { c.scheduler = s }

// SetBatching toggles query batching (indexserver.batching.enable).
func (c *Coordinator) SetBatching(enabled bool) { c.batching.Store(enabled) }

// clusterCandidate adapts a directoryEntry into a synthetic *cachecore.Entry
// so the same Match algorithm used by the node-local store can run over
// cluster-wide candidates: only the fields Match/Cube touch are populated,
// since no artifact data ever exists at the index.
func clusterCandidate(e *directoryEntry) *cachecore.Entry {
	return cachecore.NewEntry(e.key, e.cube, 0, cachecore.Profile{}, nil)
}

// Query answers one (result_type, semantic_id, rectangle) request.
func (c *Coordinator) Query(ctx context.Context, rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (cachecore.IndexQueryResponse, error) {
	if !c.batching.Load() {
		return c.resolve(rt, semanticID, q)
	}

	key := strconv.FormatUint(BatchKey(rt, semanticID, q), 36)
	v, err, _ := c.batchGroup.Do(key, func() (any, error) {
		return c.resolve(rt, semanticID, q)
	})
	if err != nil {
		return cachecore.IndexQueryResponse{}, err
	}
	return v.(cachecore.IndexQueryResponse), nil
}

func (c *Coordinator) resolve(rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (cachecore.IndexQueryResponse, error) {
	entries := c.dir.typeDir(rt).candidates(semanticID)
	if len(entries) == 0 {
		return cachecore.IndexQueryResponse{Status: cachecore.StatusMiss, Assigned: c.assign(cachecore.IndexQueryResponse{})}, nil
	}

	byKey := make(map[cachecore.Key]*directoryEntry, len(entries))
	candidates := make([]*cachecore.Entry, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, clusterCandidate(e))
		byKey[e.key] = e
	}

	result, err := cachecore.Match(candidates, q, rt == cachecore.Raster)
	if err != nil {
		return cachecore.IndexQueryResponse{}, err
	}

	if !result.HasHit() {
		partial := cachecore.IndexQueryResponse{Status: cachecore.StatusMiss}
		return cachecore.IndexQueryResponse{Status: cachecore.StatusMiss, Assigned: c.assign(partial)}, nil
	}

	if !result.HasRemainder() && len(result.Items) == 1 {
		de := byKey[result.Items[0].Key]
		c.active.Touch(de.key)
		return cachecore.IndexQueryResponse{
			Status: cachecore.StatusHit,
			Ref: cachecore.CacheRef{
				Host: de.node.Host, Port: de.node.Port,
				EntryID: de.key.EntryID, SemanticID: de.key.SemanticID,
			},
		}, nil
	}

	parts := make([]cachecore.PartRef, 0, len(result.Items))
	for _, item := range result.Items {
		de := byKey[item.Key]
		c.active.Touch(de.key)
		rp := cachecore.RemotePart{
			Primary: cachecore.CacheRef{
				Host: de.node.Host, Port: de.node.Port,
				EntryID: de.key.EntryID, SemanticID: de.key.SemanticID,
			},
			Alternates: alternatesFor(byKey, entries, item.Key, de.key.SemanticID),
		}
		parts = append(parts, cachecore.PartRef{Remote: &rp})
	}

	return cachecore.IndexQueryResponse{
		Status: cachecore.StatusPartial,
		Puzzle: cachecore.PuzzleRequest{
			ResultType: rt, SemanticID: semanticID, Query: q,
			Remainder: result.Remainder, Parts: parts,
		},
	}, nil
}

// assign picks the node to service a MISS recompute via the configured
// Scheduler. Returns the zero NodeLocation when no nodes are registered.
func (c *Coordinator) assign(partial cachecore.IndexQueryResponse) cachecore.NodeLocation {
	if c.registry == nil {
		return cachecore.NodeLocation{}
	}
	nodes := c.registry.All()
	if len(nodes) == 0 {
		return cachecore.NodeLocation{}
	}
	picked := c.scheduler.Pick(nodes, partial)
	return cachecore.NodeLocation{Host: picked.Host, Port: picked.Port}
}

// alternatesFor returns other nodes holding an entry with the same
// semantic_id and an equivalent cube, for the puzzler to retry against if
// the primary ref has gone stale.
func alternatesFor(byKey map[cachecore.Key]*directoryEntry, entries []*directoryEntry, primary cachecore.Key, semanticID string) []cachecore.CacheRef {
	primaryCube := byKey[primary].cube
	var alts []cachecore.CacheRef
	for _, e := range entries {
		if e.key == primary || e.key.SemanticID != semanticID {
			continue
		}
		if e.cube == primaryCube {
			alts = append(alts, cachecore.CacheRef{
				Host: e.node.Host, Port: e.node.Port,
				EntryID: e.key.EntryID, SemanticID: e.key.SemanticID,
			})
		}
	}
	return alts
}
