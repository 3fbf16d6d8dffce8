package remote

// indexside.go implements the index's outbound half of the control
// protocol: GET_STATS and REORG, both index→node. The index
// dials a dedicated control listener on each node (the same listener a
// node's own IndexConn presents, symmetrical to keep one magic/framing
// implementation) rather than multiplexing replies back down the node's
// original outbound connection.

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/indexsrv"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// NodeControlClient is the index's outbound connection to one node's
// control listener, implementing reorg.StatsSource and reorg.CommandSink.
type NodeControlClient struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*bufio.ReadWriter
	raw   map[string]net.Conn
}

// NewNodeControlClient constructs a client shared across every node the
// reorg engine talks to.
func NewNodeControlClient(logger *zap.Logger) *NodeControlClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NodeControlClient{
		logger: logger,
		conns:  make(map[string]*bufio.ReadWriter),
		raw:    make(map[string]net.Conn),
	}
}

func nodeControlAddr(n indexsrv.NodeRef) string {
	return net.JoinHostPort(n.Host, strconv.Itoa(int(n.ControlPort)))
}

func (c *NodeControlClient) connFor(ctx context.Context, n indexsrv.NodeRef) (*bufio.ReadWriter, error) {
	addr := nodeControlAddr(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if rw, ok := c.conns[addr]; ok {
		return rw, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cacheerr.New(cacheerr.Network, "NodeControlClient.connFor", err)
	}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	c.conns[addr] = rw
	c.raw[addr] = conn
	return rw, nil
}

func (c *NodeControlClient) invalidate(n indexsrv.NodeRef) {
	addr := nodeControlAddr(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.raw[addr]; ok {
		conn.Close()
	}
	delete(c.conns, addr)
	delete(c.raw, addr)
}

// GetStats implements reorg.StatsSource.
func (c *NodeControlClient) GetStats(ctx context.Context, n indexsrv.NodeRef) (wire.NodeStats, error) {
	rw, err := c.connFor(ctx, n)
	if err != nil {
		return wire.NodeStats{}, err
	}
	if err := wire.WriteFrame(rw.Writer, wire.MagicControl, wire.CmdGetStats, nil); err != nil {
		c.invalidate(n)
		return wire.NodeStats{}, err
	}
	if err := rw.Writer.Flush(); err != nil {
		c.invalidate(n)
		return wire.NodeStats{}, cacheerr.New(cacheerr.Network, "NodeControlClient.GetStats", err)
	}
	frame, err := wire.ReadFrame(rw.Reader, wire.MagicControl)
	if err != nil {
		c.invalidate(n)
		return wire.NodeStats{}, err
	}
	if frame.Cmd != wire.CmdStats {
		c.invalidate(n)
		return wire.NodeStats{}, cacheerr.New(cacheerr.ProtocolState, "NodeControlClient.GetStats", nil)
	}
	return wire.NewReader(frame.Payload).GetNodeStats()
}

// PrepareDelivery implements indexsrv.DeliveryPrep: ask node to queue the
// entry resolving (rt, semanticID, q) for client pickup, returning the
// delivery id its queue assigned.
func (c *NodeControlClient) PrepareDelivery(ctx context.Context, n indexsrv.NodeRef, rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (string, error) {
	rw, err := c.connFor(ctx, n)
	if err != nil {
		return "", err
	}
	w := wire.NewWriter()
	w.PutIndexQueryRequest(wire.IndexQueryRequest{ResultType: rt, SemanticID: semanticID, Query: q})
	if err := wire.WriteFrame(rw.Writer, wire.MagicControl, wire.CmdGet, w.Bytes()); err != nil {
		c.invalidate(n)
		return "", err
	}
	if err := rw.Writer.Flush(); err != nil {
		c.invalidate(n)
		return "", cacheerr.New(cacheerr.Network, "NodeControlClient.PrepareDelivery", err)
	}
	frame, err := wire.ReadFrame(rw.Reader, wire.MagicControl)
	if err != nil {
		c.invalidate(n)
		return "", err
	}
	switch frame.Cmd {
	case wire.CmdReplyDeliveryInfo:
		return wire.NewReader(frame.Payload).GetString()
	case wire.CmdReplyNotFound:
		return "", cacheerr.Sentinel(cacheerr.NotFound)
	default:
		c.invalidate(n)
		return "", cacheerr.New(cacheerr.ProtocolState, "NodeControlClient.PrepareDelivery", nil)
	}
}

// SendReorg implements reorg.CommandSink.
func (c *NodeControlClient) SendReorg(ctx context.Context, n indexsrv.NodeRef, desc wire.ReorgDescription) error {
	rw, err := c.connFor(ctx, n)
	if err != nil {
		return err
	}
	w := wire.NewWriter()
	w.PutReorgDescription(desc)
	if err := wire.WriteFrame(rw.Writer, wire.MagicControl, wire.CmdReorg, w.Bytes()); err != nil {
		c.invalidate(n)
		return err
	}
	if err := rw.Writer.Flush(); err != nil {
		c.invalidate(n)
		return cacheerr.New(cacheerr.Network, "NodeControlClient.SendReorg", err)
	}
	frame, err := wire.ReadFrame(rw.Reader, wire.MagicControl)
	if err != nil {
		c.invalidate(n)
		return err
	}
	if frame.Cmd != wire.CmdReplyAck {
		c.invalidate(n)
		return cacheerr.New(cacheerr.ProtocolState, "NodeControlClient.SendReorg", nil)
	}
	return nil
}
