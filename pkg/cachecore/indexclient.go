package cachecore

// indexclient.go declares the node-side contract toward the index
// coordinator, so the node cache manager can ask for a cluster-wide
// decision without importing the indexsrv/remote packages directly, keeping
// cachecore free of networking concerns.

import "context"

// QueryStatus is the index's reply classification to a QUERY request.
type QueryStatus uint8

const (
	StatusHit QueryStatus = iota + 1
	StatusMiss
	StatusPartial
)

// NodeLocation addresses a node for cluster placement decisions, without
// the entry-specific fields CacheRef carries.
type NodeLocation struct {
	Host string
	Port uint16
}

// IndexQueryResponse is the index coordinator's answer to a cluster-wide
// query.
type IndexQueryResponse struct {
	Status QueryStatus
	Ref    CacheRef      // valid when Status == StatusHit
	Puzzle PuzzleRequest // valid when Status == StatusPartial

	// Assigned names the node the scheduler picked to service a MISS
	// recompute. Zero-valued when Status != StatusMiss or no node is
	// registered; dispatching the recompute there is left to whatever
	// layer distributes operator-graph work.
	Assigned NodeLocation
}

// IndexClient is the node's persistent connection to the index coordinator.
// Implemented by the remote package's framed TCP client.
type IndexClient interface {
	Query(ctx context.Context, rt ResultType, semanticID string, q QueryRectangle) (IndexQueryResponse, error)
	NewEntry(ctx context.Context, rt ResultType, meta Meta) error
}
