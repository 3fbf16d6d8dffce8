package indexsrv

// server.go runs the index's control-stream listener: REGISTER, QUERY,
// NEW_ENTRY and STATS from nodes. One goroutine per connection; the
// request/reply contract on the wire is the same as a reactor loop would
// present.

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// NodeRegistry tracks the live control connections needed to push REORG/
// GET_STATS to nodes on a timer.
type NodeRegistry struct {
	mu    sync.RWMutex
	nodes map[string]NodeRef
}

// NewNodeRegistry constructs an empty registry.
func NewNodeRegistry() *NodeRegistry { return &NodeRegistry{nodes: make(map[string]NodeRef)} }

// Put registers or updates a node's address.
func (r *NodeRegistry) Put(n NodeRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.NodeID] = n
}

// Get returns the registered NodeRef for nodeID.
func (r *NodeRegistry) Get(nodeID string) (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	return n, ok
}

// FindByDelivery resolves a (host, delivery port) pair, the address form a
// CacheRef carries, back to the full NodeRef.
func (r *NodeRegistry) FindByDelivery(host string, port uint16) (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Host == host && n.Port == port {
			return n, true
		}
	}
	return NodeRef{}, false
}

// Remove drops a node, e.g. on control connection loss.
func (r *NodeRegistry) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, nodeID)
}

// All returns a snapshot of every registered node.
func (r *NodeRegistry) All() []NodeRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeRef, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Server is the index coordinator's control-stream listener.
type Server struct {
	coord    *Coordinator
	registry *NodeRegistry
	logger   *zap.Logger
}

// NewServer constructs an index control server.
func NewServer(coord *Coordinator, registry *NodeRegistry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{coord: coord, registry: registry, logger: logger}
}

// Serve accepts control connections on ln until it errors.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return cacheerr.New(cacheerr.Network, "Server.Serve", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	var nodeID string

	for {
		frame, err := wire.ReadFrame(rd, wire.MagicControl)
		if err != nil {
			if nodeID != "" {
				s.registry.Remove(nodeID)
			}
			return
		}

		switch frame.Cmd {
		case wire.CmdRegister:
			r := wire.NewReader(frame.Payload)
			reg, err := r.GetRegisterRequest()
			if err != nil {
				return
			}
			nodeID = uuid.NewString()
			nref := NodeRef{NodeID: nodeID, Host: host, Port: reg.Port, ControlPort: reg.ControlPort}
			s.registry.Put(nref)
			byType := make(map[cachecore.ResultType][]cachecore.Meta)
			for _, e := range reg.Entries {
				byType[e.ResultType] = append(byType[e.ResultType], cachecore.Meta{
					Key: e.Key, Cube: e.Cube, SizeBytes: e.SizeBytes,
					Profile: e.Profile, LastAccess: e.LastAccess, AccessCount: e.AccessCount,
				})
			}
			for rt, metas := range byType {
				s.coord.dir.Register(nref, rt, metas)
			}
			w := wire.NewWriter()
			w.PutString(nodeID)
			_ = wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyNodeID, w.Bytes())

		case wire.CmdQuery:
			r := wire.NewReader(frame.Payload)
			req, err := r.GetIndexQueryRequest()
			if err != nil {
				return
			}
			resp, err := s.coord.Query(context.Background(), req.ResultType, req.SemanticID, req.Query)
			if err != nil {
				return
			}
			s.writeQueryResponse(conn, resp)

		case wire.CmdNewEntry:
			r := wire.NewReader(frame.Payload)
			me, err := r.GetMetaEntry()
			if err != nil {
				return
			}
			nref, ok := s.registry.Get(nodeID)
			if !ok {
				// NEW_ENTRY before REGISTER on this connection; without a
				// registered delivery port the ref would be undialable.
				s.logger.Warn("new-entry from unregistered node", zap.String("host", host))
				continue
			}
			s.coord.dir.NewEntry(nref, me.ResultType, cachecore.Meta{
				Key: me.Key, Cube: me.Cube, SizeBytes: me.SizeBytes,
				Profile: me.Profile, LastAccess: me.LastAccess, AccessCount: me.AccessCount,
			})

		case wire.CmdStats:
			// Accepted and discarded here; a full deployment persists this
			// into the reorg engine's relevance inputs (internal/reorg).

		default:
			s.logger.Warn("unexpected control command", zap.Uint8("cmd", uint8(frame.Cmd)))
			return
		}
	}
}

func (s *Server) writeQueryResponse(conn net.Conn, resp cachecore.IndexQueryResponse) {
	w := wire.NewWriter()
	switch resp.Status {
	case cachecore.StatusHit:
		w.PutCacheRef(resp.Ref)
		_ = wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyHit, w.Bytes())
	case cachecore.StatusMiss:
		w.PutNodeLocation(resp.Assigned)
		_ = wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyMiss, w.Bytes())
	case cachecore.StatusPartial:
		w.PutPuzzleRequest(resp.Puzzle)
		_ = wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyPartial, w.Bytes())
	}
}
