package cachecore

// matcher.go implements the query matcher: given a semantic_id's entries
// and a query rectangle, produce a hit set and the remainder rectangles
// covering whatever area those hits do not. The same algorithm is reused by
// the index coordinator over cluster-wide candidates; TypedStore.Query is
// the local-only instantiation.

import "sort"

// QueryResult is the matcher's output: the selected entries, the uncovered
// remainder, and the covered fraction of the query's area.
type QueryResult struct {
	Items     []*Entry
	Remainder []QueryRectangle
	HitRatio  float64
}

// HasHit reports whether any entry was selected.
func (r QueryResult) HasHit() bool { return len(r.Items) > 0 }

// HasRemainder reports whether any uncovered area remains.
func (r QueryResult) HasRemainder() bool { return len(r.Remainder) > 0 }

// candidateScore bundles together what the greedy selector and its
// tie-breaks need without re-deriving it from *Entry on every comparison.
type candidateScore struct {
	entry    *Entry
	cube     rect
	coverage float64
	score    float64
}

// Match runs the matching algorithm over one semantic_id's entries for
// query q. isRaster controls whether pixel-scale containment gates coverage.
func Match(entries []*Entry, q QueryRectangle, isRaster bool) (QueryResult, error) {
	if err := q.Validate(); err != nil {
		return QueryResult{}, err
	}

	// Step 1: any entry fully covering q is a single-item hit.
	var full []*Entry
	for _, e := range entries {
		if e.Cube.FullyCovers(q, isRaster) {
			full = append(full, e)
		}
	}
	if len(full) > 0 {
		best := pickBestFull(full)
		return QueryResult{Items: []*Entry{best}, HitRatio: 1}, nil
	}

	// Step 2: score candidates with positive coverage.
	qr := rect{q.X1, q.Y1, q.X2, q.Y2}
	var candidates []candidateScore
	for _, e := range entries {
		cov := e.Cube.Coverage(q, isRaster)
		if cov <= 0 {
			continue
		}
		area := e.Cube.Area()
		if area <= 0 {
			continue
		}
		candidates = append(candidates, candidateScore{
			entry:    e,
			cube:     rect{e.Cube.X1, e.Cube.Y1, e.Cube.X2, e.Cube.Y2},
			coverage: cov,
			score:    cov / area,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return lessCandidate(candidates[j], candidates[i]) // descending score
	})

	free := []rect{qr}
	var items []*Entry
	for _, c := range candidates {
		if totalArea(free) <= 0 {
			break
		}
		before := totalArea(free)
		next := subtractFromAll(free, c.cube)
		if totalArea(next) >= before {
			// No improvement: candidate does not intersect the remaining
			// uncovered region. Further candidates are sorted by a score
			// computed against the whole query, not the shrinking
			// remainder, so we must keep scanning rather than stop here.
			continue
		}
		items = append(items, c.entry)
		free = next
	}

	remainderArea := totalArea(free)
	hitRatio := 1 - remainderArea/q.Area()
	if hitRatio < 0 {
		hitRatio = 0
	}

	remainder := make([]QueryRectangle, 0, len(free))
	for _, r := range free {
		remainder = append(remainder, QueryRectangle{
			CRS: q.CRS, X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2,
			T1: q.T1, T2: q.T2, TimeType: q.TimeType, Resolution: q.Resolution,
		})
	}

	return QueryResult{Items: items, Remainder: remainder, HitRatio: hitRatio}, nil
}

// pickBestFull applies the tie-break rule (higher access_count, then lower
// entry_id) among multiple fully-covering entries.
func pickBestFull(full []*Entry) *Entry {
	best := full[0]
	for _, e := range full[1:] {
		if betterFull(e, best) {
			best = e
		}
	}
	return best
}

func betterFull(a, b *Entry) bool {
	if a.AccessCount() != b.AccessCount() {
		return a.AccessCount() > b.AccessCount()
	}
	return a.Key.EntryID < b.Key.EntryID
}

// lessCandidate reports whether a scores lower than b: equal scores (within
// epsilon) break on higher access_count, then lower entry_id.
func lessCandidate(a, b candidateScore) bool {
	d := a.score - b.score
	if d < -coverageEqualEpsilon || d > coverageEqualEpsilon {
		return a.score < b.score
	}
	if a.entry.AccessCount() != b.entry.AccessCount() {
		return a.entry.AccessCount() < b.entry.AccessCount()
	}
	return a.entry.Key.EntryID > b.entry.Key.EntryID
}
