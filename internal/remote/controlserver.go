package remote

// controlserver.go runs a node's half of the control stream: answering
// GET_STATS and REORG from the index. It is the symmetrical
// counterpart of indexsrv.Server, letting NodeControlClient and IndexConn
// share the same magic/framing implementation in both directions.

import (
	"bufio"
	"net"

	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// StatsProvider reports a node's current per-type counters for GET_STATS.
type StatsProvider interface {
	StatsSnapshot() []cachecore.TypeStatsSnapshot
}

// ReorgApplier applies a REORG description locally: drop removed entries.
// Moves are realized by the destination node's own next put rather than by
// this node copying bytes, so only removes apply here.
type ReorgApplier interface {
	ApplyRemoval(rt cachecore.ResultType, key cachecore.Key)
}

// DeliveryPreparer queues a locally owned artifact resolving (rt,
// semantic_id, rectangle) for client pickup, returning the delivery id. ok
// is false when no local entry fully covers the rectangle.
type DeliveryPreparer interface {
	PrepareDelivery(rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (string, bool)
}

// ControlServer is a node's listener for the index's control connection.
type ControlServer struct {
	stats    StatsProvider
	applier  ReorgApplier
	preparer DeliveryPreparer
	logger   *zap.Logger
}

// NewControlServer constructs a node control server. preparer may be nil on
// a node that never serves client deliveries; GET then answers NotFound.
func NewControlServer(stats StatsProvider, applier ReorgApplier, preparer DeliveryPreparer, logger *zap.Logger) *ControlServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlServer{stats: stats, applier: applier, preparer: preparer, logger: logger}
}

// Serve accepts control connections from the index on ln.
func (s *ControlServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return cacheerr.New(cacheerr.Network, "ControlServer.Serve", err)
		}
		go s.handleConn(conn)
	}
}

func (s *ControlServer) handleConn(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)

	for {
		frame, err := wire.ReadFrame(rd, wire.MagicControl)
		if err != nil {
			return
		}

		switch frame.Cmd {
		case wire.CmdGetStats:
			ns := wire.NodeStats{}
			for _, t := range s.stats.StatsSnapshot() {
				ns.Types = append(ns.Types, wire.TypeStats{
					ResultType: t.ResultType,
					Stats:      t.Stats,
					Query:      t.Query,
				})
			}
			w := wire.NewWriter()
			w.PutNodeStats(ns)
			if err := wire.WriteFrame(conn, wire.MagicControl, wire.CmdStats, w.Bytes()); err != nil {
				return
			}

		case wire.CmdReorg:
			r := wire.NewReader(frame.Payload)
			desc, err := r.GetReorgDescription()
			if err != nil {
				return
			}
			for _, rm := range desc.Removes {
				s.applier.ApplyRemoval(rm.ResultType, rm.Key)
			}
			// Moves carry no payload the destination can act on directly;
			// the index's MISS scheduler achieves co-location by steering
			// the next recompute to the target node instead.
			if err := wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyAck, nil); err != nil {
				return
			}

		case wire.CmdGet:
			r := wire.NewReader(frame.Payload)
			req, err := r.GetIndexQueryRequest()
			if err != nil {
				return
			}
			var id string
			var ok bool
			if s.preparer != nil {
				id, ok = s.preparer.PrepareDelivery(req.ResultType, req.SemanticID, req.Query)
			}
			if !ok {
				if err := wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyNotFound, nil); err != nil {
					return
				}
				continue
			}
			w := wire.NewWriter()
			w.PutString(id)
			if err := wire.WriteFrame(conn, wire.MagicControl, wire.CmdReplyDeliveryInfo, w.Bytes()); err != nil {
				return
			}

		default:
			s.logger.Warn("unexpected control command", zap.Uint8("cmd", uint8(frame.Cmd)))
			return
		}
	}
}
