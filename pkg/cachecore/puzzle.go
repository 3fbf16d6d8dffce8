package cachecore

// puzzle.go implements the puzzle assembler: given cached parts plus a
// remainder of uncovered rectangles, recompute the remainder (in parallel,
// via errgroup) and fetch any remote parts (retrying against alternates),
// then dispatch the per-type merge contract.

import (
	"context"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"golang.org/x/sync/errgroup"
)

// resolvedPart is one input to the final merge: either a cached artifact
// already in hand, or the freshly recomputed remainder artifact plus the
// cube it was computed for.
type resolvedPart struct {
	artifact  Artifact
	cube      Cube
	fromLocal bool
}

// Puzzle assembles req into a single artifact covering req.Query.
// runner may be nil only when req.Remainder is empty (an all-local,
// no-recompute puzzle); a non-empty remainder with a nil runner is a
// MustNotHappen.
func Puzzle(ctx context.Context, req PuzzleRequest, runner OperatorRunner, fetcher PartFetcher, wc *WorkerContext, profiler *Profiler) (Artifact, error) {
	if len(req.Remainder) > 0 && runner == nil {
		return nil, cacheerr.New(cacheerr.MustNotHappen, "Puzzle", nil)
	}

	parts := make([]resolvedPart, len(req.Parts)+len(req.Remainder))

	g, gctx := errgroup.WithContext(ctx)

	for i, p := range req.Parts {
		i, p := i, p
		g.Go(func() error {
			resolved, err := resolvePart(gctx, req.ResultType, p, fetcher, profiler)
			if err != nil {
				return err
			}
			parts[i] = resolved
			return nil
		})
	}

	base := len(req.Parts)
	for j, rq := range req.Remainder {
		j, rq := j, rq
		g.Go(func() error {
			puzzlingWC := wc.ChildForPuzzling()
			artifact, cube, prof, err := runner.RunSubquery(gctx, puzzlingWC, req.SemanticID, rq)
			if err != nil {
				return cacheerr.New(cacheerr.Miss, "Puzzle.recompute", err)
			}
			profiler.AddTotalCosts(prof)
			parts[base+j] = resolvedPart{artifact: artifact, cube: cube}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeParts(req.ResultType, req.Query, parts)
}

// resolvePart fetches a single PartRef's artifact, retrying against
// alternates when the primary ref is stale.
func resolvePart(ctx context.Context, rt ResultType, p PartRef, fetcher PartFetcher, profiler *Profiler) (resolvedPart, error) {
	if p.Local != nil {
		e := p.Local
		profiler.AddTotalCosts(e.Profile)
		return resolvedPart{artifact: e.Data, cube: e.Cube, fromLocal: true}, nil
	}

	if p.Remote == nil {
		return resolvedPart{}, cacheerr.New(cacheerr.MustNotHappen, "Puzzle.resolvePart", nil)
	}
	if fetcher == nil {
		return resolvedPart{}, cacheerr.New(cacheerr.MustNotHappen, "Puzzle.resolvePart", nil)
	}

	refs := append([]CacheRef{p.Remote.Primary}, p.Remote.Alternates...)
	var lastErr error
	for _, ref := range refs {
		artifact, err := fetcher.Fetch(ctx, rt, ref, profiler)
		if err == nil {
			return resolvedPart{artifact: artifact}, nil
		}
		lastErr = err
	}
	return resolvedPart{}, cacheerr.New(cacheerr.Network, "Puzzle.resolvePart", lastErr)
}

// mergeParts dispatches to the per-type merge contract.
func mergeParts(rt ResultType, q QueryRectangle, parts []resolvedPart) (Artifact, error) {
	switch rt {
	case Raster:
		return mergeRaster(q, parts)
	case Point, Line, Polygon:
		return mergeFeatures(rt, parts)
	case Plot:
		return mergePlot(parts)
	default:
		return nil, cacheerr.New(cacheerr.MustNotHappen, "Puzzle.mergeParts", nil)
	}
}
