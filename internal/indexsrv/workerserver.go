package indexsrv

// workerserver.go serves the client-facing worker stream: a client sends
// GET with (result_type, semantic_id, rectangle) and receives a
// DeliveryResponse naming the node and delivery_id to PICKUP from. The
// index itself never touches artifact bytes; it asks the owning node to
// queue a delivery and relays the pickup coordinates.

import (
	"bufio"
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// DeliveryPrep asks a node, over its control listener, to queue one of its
// entries for client pickup and return the delivery id. Implemented by the
// remote package's node control client.
type DeliveryPrep interface {
	PrepareDelivery(ctx context.Context, node NodeRef, rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (string, error)
}

// WorkerServer is the index's listener for client GET requests.
type WorkerServer struct {
	coord    *Coordinator
	registry *NodeRegistry
	prep     DeliveryPrep
	logger   *zap.Logger
}

// NewWorkerServer constructs a worker-stream listener.
func NewWorkerServer(coord *Coordinator, registry *NodeRegistry, prep DeliveryPrep, logger *zap.Logger) *WorkerServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerServer{coord: coord, registry: registry, prep: prep, logger: logger}
}

// Serve accepts client connections on ln until it errors.
func (s *WorkerServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return cacheerr.New(cacheerr.Network, "WorkerServer.Serve", err)
		}
		go s.handleConn(conn)
	}
}

func (s *WorkerServer) handleConn(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)

	for {
		frame, err := wire.ReadFrame(rd, wire.MagicWorker)
		if err != nil {
			return
		}
		if frame.Cmd != wire.CmdGet {
			s.logger.Warn("unexpected worker command", zap.Uint8("cmd", uint8(frame.Cmd)))
			return
		}

		req, err := wire.NewReader(frame.Payload).GetIndexQueryRequest()
		if err != nil {
			return
		}
		if !s.answerGet(conn, req) {
			return
		}
	}
}

// answerGet resolves one GET; only a cluster-wide full hit yields a
// delivery, everything else is reported as a miss and the client falls
// back to its own recompute path.
func (s *WorkerServer) answerGet(conn net.Conn, req wire.IndexQueryRequest) bool {
	resp, err := s.coord.Query(context.Background(), req.ResultType, req.SemanticID, req.Query)
	if err != nil || resp.Status != cachecore.StatusHit {
		return wire.WriteFrame(conn, wire.MagicWorker, wire.CmdReplyMiss, nil) == nil
	}

	node, ok := s.registry.FindByDelivery(resp.Ref.Host, resp.Ref.Port)
	if !ok {
		return wire.WriteFrame(conn, wire.MagicWorker, wire.CmdReplyMiss, nil) == nil
	}

	deliveryID, err := s.prep.PrepareDelivery(context.Background(), node, req.ResultType, req.SemanticID, req.Query)
	if err != nil {
		s.logger.Warn("delivery prep failed",
			zap.String("node_id", node.NodeID), zap.Error(err))
		return wire.WriteFrame(conn, wire.MagicWorker, wire.CmdReplyMiss, nil) == nil
	}

	w := wire.NewWriter()
	w.PutDeliveryResponse(wire.DeliveryResponse{Host: node.Host, Port: node.Port, DeliveryID: deliveryID})
	return wire.WriteFrame(conn, wire.MagicWorker, wire.CmdReplyDeliveryInfo, w.Bytes()) == nil
}
