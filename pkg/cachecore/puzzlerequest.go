package cachecore

// puzzlerequest.go declares the puzzle request shape and the external
// collaborator contracts the puzzler needs: OperatorRunner to recompute a
// remainder sub-query, and PartFetcher to obtain a remote part's artifact.
// Both are narrow function-object interfaces; the core only consumes the
// operator graph through RunSubquery.

import "context"

// CacheRef is a wire-shareable pointer to an entry owned by some node.
// SemanticID is carried alongside (rather than reconstructed
// from context) so a ref is self-describing on the wire.
type CacheRef struct {
	Host       string
	Port       uint16
	EntryID    EntryID
	SemanticID string
}

// RemotePart is a remote puzzle-request part plus the alternates the index
// offered in case the primary ref has gone stale.
type RemotePart struct {
	Primary    CacheRef
	Alternates []CacheRef
}

// PartRef is one input to a puzzle: either a local entry (read via the
// typed store) or a remote part fetched over the wire. Exactly one of
// Local/Remote is set.
type PartRef struct {
	Local  *Entry
	Remote *RemotePart
}

// PuzzleRequest names everything the puzzler needs to assemble one result:
// the query, the cached parts, and the uncovered remainder to recompute.
type PuzzleRequest struct {
	ResultType ResultType
	SemanticID string
	Query      QueryRectangle
	Remainder  []QueryRectangle
	Parts      []PartRef
}

// OperatorRunner recomputes a sub-query via the operator graph. The core
// never inspects the operator graph itself; it only calls this function
// object. wc carries the puzzling flag so any put the operator performs
// transitively while recomputing this remainder is suppressed.
type OperatorRunner interface {
	RunSubquery(ctx context.Context, wc *WorkerContext, semanticID string, q QueryRectangle) (Artifact, Cube, Profile, error)
}

// PartFetcher obtains a remote part's artifact. Implemented by the remote
// retriever; declared here so the puzzler does not import the networking
// package.
type PartFetcher interface {
	Fetch(ctx context.Context, rt ResultType, ref CacheRef, profiler *Profiler) (Artifact, error)
}
