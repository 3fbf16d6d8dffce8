package remote

// server.go implements the node's serving side of the delivery stream:
// accepting DELIVER requests from peers wanting one of our entries, and
// PICKUP requests from clients consuming a GET delivery. One goroutine per
// connection.

import (
	"bufio"
	"context"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// EntryLookup resolves a DELIVER request to its entry's artifact. The node
// cache manager implements this by consulting the appropriate typed store.
type EntryLookup interface {
	Lookup(rt cachecore.ResultType, semanticID string, id cachecore.EntryID) (cachecore.Artifact, bool)
}

// Server accepts peer DELIVER and client PICKUP connections on one TCP
// listener; both use the delivery magic and are told apart by the command
// byte. Concurrency is capped
// by a weighted semaphore standing in for a fixed-size handler pool.
type Server struct {
	lookup EntryLookup
	queue  *DeliveryQueue
	codec  ArtifactCodec
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewServer constructs a delivery server handling at most workers
// connections concurrently; workers <= 0 selects the default of 4.
func NewServer(lookup EntryLookup, queue *DeliveryQueue, codec ArtifactCodec, workers int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Server{
		lookup: lookup, queue: queue, codec: codec,
		sem: semaphore.NewWeighted(int64(workers)), logger: logger,
	}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed by the caller during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return cacheerr.New(cacheerr.Network, "Server.Serve", err)
		}
		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			conn.Close()
			return cacheerr.New(cacheerr.Network, "Server.Serve", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.sem.Release(1)
	defer conn.Close()
	rd := bufio.NewReader(conn)

	// Peers keep one connection per address and send many DELIVERs down it;
	// read frames until the remote side closes or misbehaves.
	for {
		frame, err := wire.ReadFrame(rd, wire.MagicDelivery)
		if err != nil {
			return
		}

		switch frame.Cmd {
		case wire.CmdDeliver:
			s.handleDeliver(conn, frame)
		case wire.CmdPickup:
			s.handlePickup(conn, frame)
		default:
			s.logger.Warn("unexpected command on delivery stream", zap.Uint8("cmd", uint8(frame.Cmd)))
			return
		}
	}
}

func (s *Server) handleDeliver(conn net.Conn, frame wire.Frame) {
	r := wire.NewReader(frame.Payload)
	rtRaw, err := r.GetU8()
	if err != nil {
		return
	}
	rt := cachecore.ResultType(rtRaw)
	semanticID, err := r.GetString()
	if err != nil {
		return
	}
	idRaw, err := r.GetU64()
	if err != nil {
		return
	}
	id := cachecore.EntryID(idRaw)

	artifact, ok := s.lookup.Lookup(rt, semanticID, id)
	if !ok {
		_ = wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdReplyNotFound, nil)
		return
	}

	raw, err := s.codec.Encode(rt, artifact)
	if err != nil {
		s.logger.Warn("artifact encode failed", zap.Error(err))
		_ = wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdReplyNotFound, nil)
		return
	}

	w := wire.NewWriter()
	w.PutBytes(raw)
	_ = wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdReplyArtifact, w.Bytes())
}

func (s *Server) handlePickup(conn net.Conn, frame wire.Frame) {
	r := wire.NewReader(frame.Payload)
	deliveryID, err := r.GetString()
	if err != nil {
		return
	}

	rt, artifact, err := s.queue.Pickup(deliveryID)
	if err != nil {
		_ = wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdReplyNotFound, nil)
		return
	}

	raw, err := s.codec.Encode(rt, artifact)
	if err != nil {
		_ = wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdReplyNotFound, nil)
		return
	}

	w := wire.NewWriter()
	w.PutBytes(raw)
	_ = wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdReplyArtifact, w.Bytes())
}
