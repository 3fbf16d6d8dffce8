package cachecore

// manager.go implements the node cache manager: one typed store per result
// type plus a wrapper exposing query/put, binding the store, matcher,
// puzzler, replacement and admission policies together. The worker context
// threaded through each call replaces what would otherwise be thread-local
// state: the puzzling flag and the index connection handle.

import (
	"context"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"go.uber.org/zap"
)

// WorkerContext is the per-worker state threaded through query/put calls: a
// puzzling flag (suppresses nested puts while a puzzle's remainders are
// recomputing) and a persistent handle to the index coordinator.
type WorkerContext struct {
	Puzzling  bool
	IndexConn IndexClient
}

// ChildForPuzzling returns a copy of wc with Puzzling forced true, used
// before invoking the operator runner for a remainder sub-query so that any
// put it performs transitively is suppressed.
func (wc *WorkerContext) ChildForPuzzling() *WorkerContext {
	if wc == nil {
		return &WorkerContext{Puzzling: true}
	}
	cp := *wc
	cp.Puzzling = true
	return &cp
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	admission AdmissionStrategy
	relevance RelevanceFunc
	logger    *zap.Logger
	fetcher   PartFetcher
	sizes     map[ResultType]int64
}

// WithAdmission sets the admission strategy shared by every type wrapper.
// Selected once at node startup; never changes mid-run.
func WithAdmission(a AdmissionStrategy) ManagerOption {
	return func(c *managerConfig) { c.admission = a }
}

// WithRelevance sets the eviction relevance function shared by every type
// wrapper (nodeserver.cache.local.replacement).
func WithRelevance(r RelevanceFunc) ManagerOption {
	return func(c *managerConfig) { c.relevance = r }
}

// WithLogger plugs an external zap.Logger; the manager never logs on the
// query path, and on the put path logs only admission rejects and failed
// new-entry notifications. Evictions are not logged.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(c *managerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPartFetcher wires the remote retriever used to fetch parts that live
// on a peer node.
func WithPartFetcher(f PartFetcher) ManagerOption {
	return func(c *managerConfig) { c.fetcher = f }
}

// WithTypeBudget sets the byte budget for one result type's store
// (nodeserver.cache.<type>.size).
func WithTypeBudget(rt ResultType, bytes int64) ManagerOption {
	return func(c *managerConfig) { c.sizes[rt] = bytes }
}

// defaultTypeBudget is used for any result type not given an explicit
// WithTypeBudget.
const defaultTypeBudget = 256 << 20 // 256 MiB

// Manager binds one typed store plus one Wrapper per ResultType.
type Manager struct {
	wrappers map[ResultType]*Wrapper
	logger   *zap.Logger
}

// NewManager constructs a Manager with a typed store for every ResultType
// in AllResultTypes.
func NewManager(opts ...ManagerOption) *Manager {
	cfg := &managerConfig{
		admission: CacheAll{},
		relevance: LRU{},
		logger:    zap.NewNop(),
		sizes:     make(map[ResultType]int64),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Manager{wrappers: make(map[ResultType]*Wrapper), logger: cfg.logger}
	for _, rt := range AllResultTypes {
		size, ok := cfg.sizes[rt]
		if !ok {
			size = defaultTypeBudget
		}
		store := NewTypedStore(rt, size, cfg.logger)
		m.wrappers[rt] = &Wrapper{
			resultType: rt,
			store:      store,
			admission:  cfg.admission,
			relevance:  cfg.relevance,
			fetcher:    cfg.fetcher,
			stats:      &QueryStats{},
			logger:     cfg.logger,
		}
	}
	return m
}

// Wrapper returns the per-type wrapper, panicking (MustNotHappen) if rt is
// not one of the five known variants: a programmer error, never a runtime
// condition reachable from valid input.
func (m *Manager) Wrapper(rt ResultType) *Wrapper {
	w, ok := m.wrappers[rt]
	if !ok {
		panic(cacheerr.New(cacheerr.MustNotHappen, "Manager.Wrapper", nil))
	}
	return w
}

// Store exposes the underlying typed store, mainly for tests and for reorg
// commands applied locally.
func (w *Wrapper) Store() *TypedStore { return w.store }

// QueryStats exposes the wrapper's per-kind counters.
func (w *Wrapper) QueryStats() *QueryStats { return w.stats }

// Wrapper binds one result type's store to the shared admission/relevance
// policy and exposes query/put.
type Wrapper struct {
	resultType ResultType
	store      *TypedStore
	admission  AdmissionStrategy
	relevance  RelevanceFunc
	fetcher    PartFetcher
	stats      *QueryStats
	logger     *zap.Logger
}

// operatorGraphDepthZero is the sentinel depth signalling a leaf operator
// with no cacheable sub-structure: querying it locally or remotely can
// never do better than recomputing directly, so it resolves to Miss without
// round-tripping the index.
const operatorGraphDepthZero = 0

// Put stores a freshly computed artifact if the puzzling flag is clear and
// admission approves, evicting once on budget pressure, then notifies the
// index of the new entry. The notification is sent only after the local
// insert completes, so the index never advertises an entry the owner does
// not have.
func (w *Wrapper) Put(ctx context.Context, wc *WorkerContext, semanticID string, artifact Artifact, q QueryRectangle, cap ScaleCapability, profiler *Profiler) (*Entry, bool, error) {
	if wc != nil && wc.Puzzling {
		return nil, false, nil
	}

	size := artifact.ByteSize()
	if !w.admission.DoCache(profiler.Self(), size) {
		w.logger.Debug("admission rejected put",
			zap.String("semantic_id", semanticID), zap.Int64("size", size))
		return nil, false, nil
	}

	cube := cubeFor(w.resultType, artifact, q, cap)

	entry, err := w.store.Put(semanticID, cube, size, profiler.Self(), artifact)
	if err != nil {
		if overflow, ok := errBudgetExceeded(err); ok {
			removals := GetRemovals(w.store, w.relevance, size)
			for _, k := range removals {
				w.store.MarkEvicted(k)
			}
			entry, err = w.store.Put(semanticID, cube, size, profiler.Self(), artifact)
			if err != nil {
				return nil, false, overflow
			}
		} else {
			return nil, false, err
		}
	}

	profiler.AddCached(profiler.Self())

	if wc != nil && wc.IndexConn != nil {
		if nerr := wc.IndexConn.NewEntry(ctx, w.resultType, entry.Meta()); nerr != nil {
			// The entry is cached and usable locally either way; the index
			// will pick it up with the next handshake.
			w.logger.Warn("new-entry notification failed",
				zap.String("semantic_id", semanticID), zap.Error(nerr))
		}
	}
	return entry, true, nil
}

func errBudgetExceeded(err error) (error, bool) {
	var kerr *cacheerr.Error
	if ok := asCacheErr(err, &kerr); ok && kerr.Kind == cacheerr.BudgetExceeded {
		return err, true
	}
	return err, false
}

// cubeFor builds the appropriate Cube for the artifact's result type. Raster
// artifacts get the half-pixel outset and scale-saturation handling; every
// other type gets a plain feature cube. Both are built from q's bounds; the
// artifact itself is not inspected, since the core never looks at
// raster/feature internals beyond the Artifact interface.
func cubeFor(rt ResultType, artifact Artifact, q QueryRectangle, cap ScaleCapability) Cube {
	if rt == Raster {
		return NewRasterCube(q.CRS, q.X1, q.Y1, q.X2, q.Y2, q.T1, q.T2, q, cap)
	}
	return NewFeatureCube(q.CRS, q.X1, q.Y1, q.X2, q.Y2, q.T1, q.T2)
}

// QueryOutcome classifies how a Query call resolved, for callers (workers)
// that need to branch on Miss to trigger recompute themselves.
type QueryOutcome uint8

const (
	OutcomeHit QueryOutcome = iota + 1
	OutcomeMiss
)

// Query runs the full dispatch: local full/multi hit, or, when the local
// store can't fully resolve it, consults the index and branches on its
// answer. operatorDepth 0 short-circuits straight to Miss without touching
// the index.
func (w *Wrapper) Query(ctx context.Context, wc *WorkerContext, operatorDepth int, runner OperatorRunner, semanticID string, q QueryRectangle, profiler *Profiler) (Artifact, QueryOutcome, error) {
	if operatorDepth == operatorGraphDepthZero {
		w.stats.AddMiss()
		return nil, OutcomeMiss, cacheerr.Sentinel(cacheerr.Miss)
	}

	result, err := w.store.Query(semanticID, q)
	if err != nil {
		return nil, OutcomeMiss, err
	}

	switch {
	case !result.HasRemainder() && len(result.Items) == 1:
		w.stats.AddSingleLocalHit()
		e := result.Items[0]
		profiler.AddTotalCosts(e.Profile)
		return e.Data.Cut(q), OutcomeHit, nil

	case !result.HasRemainder() && len(result.Items) >= 2:
		w.stats.AddMultiLocalHit()
		artifact, err := w.puzzleLocal(ctx, wc, semanticID, q, result.Items, profiler)
		if err != nil {
			return nil, OutcomeMiss, err
		}
		return artifact.Cut(q), OutcomeHit, nil

	default:
		if result.HasHit() {
			w.stats.AddMultiLocalPartial()
		}
		return w.queryViaIndex(ctx, wc, runner, semanticID, q, result, profiler)
	}
}

// puzzleLocal builds an all-local PuzzleRequest (no remainder) and invokes
// the puzzler.
func (w *Wrapper) puzzleLocal(ctx context.Context, wc *WorkerContext, semanticID string, q QueryRectangle, items []*Entry, profiler *Profiler) (Artifact, error) {
	parts := make([]PartRef, len(items))
	for i, e := range items {
		parts[i] = PartRef{Local: e}
	}
	req := PuzzleRequest{ResultType: w.resultType, SemanticID: semanticID, Query: q, Parts: parts}
	return Puzzle(ctx, req, nil, w.fetcher, wc, profiler)
}

// queryViaIndex consults the index coordinator when the local store cannot
// fully resolve the query.
func (w *Wrapper) queryViaIndex(ctx context.Context, wc *WorkerContext, runner OperatorRunner, semanticID string, q QueryRectangle, local QueryResult, profiler *Profiler) (Artifact, QueryOutcome, error) {
	if wc == nil || wc.IndexConn == nil {
		panic(cacheerr.New(cacheerr.MustNotHappen, "Wrapper.queryViaIndex", nil))
	}

	resp, err := wc.IndexConn.Query(ctx, w.resultType, semanticID, q)
	if err != nil {
		return nil, OutcomeMiss, err
	}

	switch resp.Status {
	case StatusMiss:
		w.stats.AddMiss()
		return nil, OutcomeMiss, cacheerr.Sentinel(cacheerr.Miss)

	case StatusHit:
		if len(local.Items) == 0 {
			w.stats.AddSingleRemoteHit()
		} else {
			w.stats.AddMultiRemoteHit()
		}
		artifact, err := w.fetcher.Fetch(ctx, w.resultType, resp.Ref, profiler)
		if err != nil {
			return nil, OutcomeMiss, err
		}
		return artifact.Cut(q), OutcomeHit, nil

	case StatusPartial:
		w.stats.AddMultiRemotePartial()
		artifact, err := Puzzle(ctx, resp.Puzzle, runner, w.fetcher, wc, profiler)
		if err != nil {
			return nil, OutcomeMiss, err
		}
		return artifact.Cut(q), OutcomeHit, nil

	default:
		panic(cacheerr.New(cacheerr.MustNotHappen, "Wrapper.queryViaIndex", nil))
	}
}

// Lookup resolves a peer DELIVER request to its entry's artifact,
// implementing the delivery server's EntryLookup.
func (m *Manager) Lookup(rt ResultType, semanticID string, id EntryID) (Artifact, bool) {
	w, ok := m.wrappers[rt]
	if !ok {
		return nil, false
	}
	e, err := w.store.Get(Key{SemanticID: semanticID, EntryID: id})
	if err != nil {
		return nil, false
	}
	return e.Data, true
}

// TypeStatsSnapshot pairs one result type's cache-level and query-dispatch
// counters, the payload of GET_STATS.
type TypeStatsSnapshot struct {
	ResultType ResultType
	Stats      Stats
	Query      QueryStatsSnapshot
}

// StatsSnapshot reports every type wrapper's current counters, in
// AllResultTypes order.
func (m *Manager) StatsSnapshot() []TypeStatsSnapshot {
	out := make([]TypeStatsSnapshot, 0, len(AllResultTypes))
	for _, rt := range AllResultTypes {
		w := m.wrappers[rt]
		out = append(out, TypeStatsSnapshot{
			ResultType: rt,
			Stats:      w.store.Stats(),
			Query:      w.stats.Snapshot(),
		})
	}
	return out
}

// AllMeta reports every entry currently held, grouped by result type, the
// payload of a REGISTER handshake.
func (m *Manager) AllMeta() map[ResultType]Handshake {
	out := make(map[ResultType]Handshake, len(AllResultTypes))
	for _, rt := range AllResultTypes {
		out[rt] = m.wrappers[rt].store.GetAll()
	}
	return out
}

// ApplyRemoval drops one entry by key, the node-side effect of a REORG
// remove instruction. Applied locally before the index's view drops the
// entry, so refs the index hands out stay valid modulo in-flight races.
func (m *Manager) ApplyRemoval(rt ResultType, key Key) {
	if w, ok := m.wrappers[rt]; ok {
		w.store.Remove(key)
	}
}

// asCacheErr is a small errors.As helper kept local to avoid importing
// "errors" into every call site that only wants to test the Kind.
func asCacheErr(err error, target **cacheerr.Error) bool {
	for err != nil {
		if ce, ok := err.(*cacheerr.Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
