// Package indexsrv implements the index coordinator: the cluster-wide
// directory of (node_id, entry_id, cube) tuples per result type, query
// routing that reruns the node-local matcher over cluster-wide candidates,
// request batching, and MISS-recompute scheduling.
package indexsrv

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// NodeRef locates a node: Port is its delivery listener (DELIVER/PICKUP),
// ControlPort its control listener (GET_STATS/REORG, delivery prep).
type NodeRef struct {
	NodeID      string
	Host        string
	Port        uint16
	ControlPort uint16
}

// directoryEntry is one cluster-wide (node, entry) tuple tracked for a
// semantic_id, sourced from REGISTER handshakes and NEW_ENTRY notifications.
type directoryEntry struct {
	node NodeRef
	key  cachecore.Key
	cube cachecore.Cube
	size int64
}

// typeDirectory is one result type's cluster-wide index: semantic_id ->
// entries. Guarded by its own reader/writer lock.
type typeDirectory struct {
	mu     sync.RWMutex
	bySID  map[string][]*directoryEntry
	byNode map[string]map[cachecore.Key]*directoryEntry
}

func newTypeDirectory() *typeDirectory {
	return &typeDirectory{
		bySID:  make(map[string][]*directoryEntry),
		byNode: make(map[string]map[cachecore.Key]*directoryEntry),
	}
}

func (d *typeDirectory) upsert(node NodeRef, key cachecore.Key, cube cachecore.Cube, size int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if nodeEntries, ok := d.byNode[node.NodeID]; ok {
		if existing, ok := nodeEntries[key]; ok {
			existing.cube = cube
			existing.size = size
			return
		}
	}

	e := &directoryEntry{node: node, key: key, cube: cube, size: size}
	d.bySID[key.SemanticID] = append(d.bySID[key.SemanticID], e)
	if d.byNode[node.NodeID] == nil {
		d.byNode[node.NodeID] = make(map[cachecore.Key]*directoryEntry)
	}
	d.byNode[node.NodeID][key] = e
}

func (d *typeDirectory) remove(nodeID string, key cachecore.Key) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodeEntries, ok := d.byNode[nodeID]
	if !ok {
		return
	}
	delete(nodeEntries, key)

	bucket := d.bySID[key.SemanticID]
	for i, e := range bucket {
		if e.node.NodeID == nodeID && e.key == key {
			d.bySID[key.SemanticID] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

func (d *typeDirectory) candidates(semanticID string) []*directoryEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bucket := d.bySID[semanticID]
	out := make([]*directoryEntry, len(bucket))
	copy(out, bucket)
	return out
}

// DirEntry is a flattened directory row: who owns which entry, with its
// extent. Consumed by the reorg engine when planning removes.
type DirEntry struct {
	Node       NodeRef
	ResultType cachecore.ResultType
	Key        cachecore.Key
	Cube       cachecore.Cube
	SizeBytes  int64
}

// Directory is the full cluster-wide index, one typeDirectory per
// ResultType.
type Directory struct {
	byType map[cachecore.ResultType]*typeDirectory
}

// NewDirectory constructs an empty directory for every known ResultType.
func NewDirectory() *Directory {
	d := &Directory{byType: make(map[cachecore.ResultType]*typeDirectory)}
	for _, rt := range cachecore.AllResultTypes {
		d.byType[rt] = newTypeDirectory()
	}
	return d
}

func (d *Directory) typeDir(rt cachecore.ResultType) *typeDirectory {
	return d.byType[rt]
}

// Register records every entry from a node's REGISTER handshake.
func (d *Directory) Register(node NodeRef, rt cachecore.ResultType, metas []cachecore.Meta) {
	td := d.typeDir(rt)
	for _, m := range metas {
		td.upsert(node, m.Key, m.Cube, m.SizeBytes)
	}
}

// NewEntry records a single NEW_ENTRY notification. The index never
// advertises an entry until after the owner's local put has completed,
// enforced by the owner sending NEW_ENTRY post-put, not here.
func (d *Directory) NewEntry(node NodeRef, rt cachecore.ResultType, meta cachecore.Meta) {
	d.typeDir(rt).upsert(node, meta.Key, meta.Cube, meta.SizeBytes)
}

// Remove drops a directory entry, used when REORG confirms a move/removal
// has landed.
func (d *Directory) Remove(nodeID string, rt cachecore.ResultType, key cachecore.Key) {
	d.typeDir(rt).remove(nodeID, key)
}

// Snapshot lists every directory row across all result types.
func (d *Directory) Snapshot() []DirEntry {
	var out []DirEntry
	for _, rt := range cachecore.AllResultTypes {
		td := d.byType[rt]
		td.mu.RLock()
		for _, bucket := range td.bySID {
			for _, e := range bucket {
				out = append(out, DirEntry{Node: e.node, ResultType: rt, Key: e.key, Cube: e.cube, SizeBytes: e.size})
			}
		}
		td.mu.RUnlock()
	}
	return out
}

// BatchKey derives the dedup key used for query batching of identical
// (type, semantic_id, rectangle) requests, hashed with xxhash so large
// QueryRectangles don't bloat the singleflight key map.
func BatchKey(rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(semanticID)
	var buf [1 + 4 + 8*6 + 1 + 4 + 4]byte
	buf[0] = byte(rt)
	putU32(buf[1:5], uint32(q.CRS))
	putF64(buf[5:13], q.X1)
	putF64(buf[13:21], q.Y1)
	putF64(buf[21:29], q.X2)
	putF64(buf[29:37], q.Y2)
	putF64(buf[37:45], q.T1)
	putF64(buf[45:53], q.T2)
	buf[53] = byte(q.TimeType)
	putU32(buf[54:58], q.Resolution.XRes)
	putU32(buf[58:62], q.Resolution.YRes)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
