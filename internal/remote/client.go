// Package remote implements the networking layer: the node's persistent
// framed connection to the index coordinator, the peer-to-peer
// DELIVER/PICKUP retriever, and a short-TTL delivery queue for artifacts
// awaiting pickup.
package remote

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
	"go.uber.org/zap"
)

// maxBackoff is the exponential-backoff ceiling for reconnects.
const maxBackoff = 10 * time.Second

// IndexConn is a node's persistent control connection to the index
// coordinator, implementing cachecore.IndexClient. One instance is created
// per worker and lives in that worker's context.
type IndexConn struct {
	addr   string
	dial   func(ctx context.Context, addr string) (net.Conn, error)
	logger *zap.Logger

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// NewIndexConn constructs a control connection to the index at addr. The
// socket is opened lazily on first use.
func NewIndexConn(addr string, logger *zap.Logger) *IndexConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexConn{
		addr: addr,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		logger: logger,
	}
}

func (c *IndexConn) ensureConn(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, c.rd, nil
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		conn, err := c.dial(ctx, c.addr)
		if err == nil {
			c.conn = conn
			c.rd = bufio.NewReader(conn)
			return c.conn, c.rd, nil
		}
		lastErr = err
		c.logger.Warn("index connect failed, retrying",
			zap.String("addr", c.addr), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, nil, cacheerr.New(cacheerr.Network, "IndexConn.ensureConn", ctx.Err())
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, nil, cacheerr.New(cacheerr.Network, "IndexConn.ensureConn", lastErr)
}

func (c *IndexConn) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.rd = nil
	}
}

// roundTrip sends one framed request and reads one framed reply, tearing
// down and invalidating the connection on any Network error so the next
// call reconnects.
func (c *IndexConn) roundTrip(ctx context.Context, cmd wire.Cmd, payload []byte) (wire.Frame, error) {
	conn, rd, err := c.ensureConn(ctx)
	if err != nil {
		return wire.Frame{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := wire.WriteFrame(conn, wire.MagicControl, cmd, payload); err != nil {
		c.invalidate()
		return wire.Frame{}, err
	}
	frame, err := wire.ReadFrame(rd, wire.MagicControl)
	if err != nil {
		c.invalidate()
		return wire.Frame{}, err
	}
	return frame, nil
}

// Query implements cachecore.IndexClient.
func (c *IndexConn) Query(ctx context.Context, rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (cachecore.IndexQueryResponse, error) {
	w := wire.NewWriter()
	w.PutIndexQueryRequest(wire.IndexQueryRequest{ResultType: rt, SemanticID: semanticID, Query: q})

	frame, err := c.roundTrip(ctx, wire.CmdQuery, w.Bytes())
	if err != nil {
		return cachecore.IndexQueryResponse{}, err
	}

	r := wire.NewReader(frame.Payload)
	switch frame.Cmd {
	case wire.CmdReplyHit:
		ref, err := r.GetCacheRef()
		if err != nil {
			return cachecore.IndexQueryResponse{}, err
		}
		return cachecore.IndexQueryResponse{Status: cachecore.StatusHit, Ref: ref}, nil
	case wire.CmdReplyMiss:
		assigned, err := r.GetNodeLocation()
		if err != nil {
			return cachecore.IndexQueryResponse{}, err
		}
		return cachecore.IndexQueryResponse{Status: cachecore.StatusMiss, Assigned: assigned}, nil
	case wire.CmdReplyPartial:
		puzzle, err := r.GetPuzzleRequest()
		if err != nil {
			return cachecore.IndexQueryResponse{}, err
		}
		return cachecore.IndexQueryResponse{Status: cachecore.StatusPartial, Puzzle: puzzle}, nil
	default:
		c.invalidate()
		return cachecore.IndexQueryResponse{}, cacheerr.New(cacheerr.ProtocolState, "IndexConn.Query", nil)
	}
}

// NewEntry implements cachecore.IndexClient. NEW_ENTRY has no reply: the
// frame is written and the call returns without reading from the index.
func (c *IndexConn) NewEntry(ctx context.Context, rt cachecore.ResultType, meta cachecore.Meta) error {
	w := wire.NewWriter()
	w.PutMetaEntry(wire.MetaEntry{
		ResultType:  rt,
		Key:         meta.Key,
		Cube:        meta.Cube,
		SizeBytes:   meta.SizeBytes,
		Profile:     meta.Profile,
		LastAccess:  meta.LastAccess,
		AccessCount: meta.AccessCount,
	})
	conn, _, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := wire.WriteFrame(conn, wire.MagicControl, wire.CmdNewEntry, w.Bytes()); err != nil {
		c.invalidate()
		return err
	}
	return nil
}

// Register sends the REGISTER handshake (listening delivery and control
// ports plus every entry already held, for a warm restart) and returns the
// node ID the index assigned.
func (c *IndexConn) Register(ctx context.Context, deliveryPort, controlPort uint16, entries []wire.MetaEntry) (string, error) {
	w := wire.NewWriter()
	w.PutRegisterRequest(wire.RegisterRequest{Port: deliveryPort, ControlPort: controlPort, Entries: entries})

	frame, err := c.roundTrip(ctx, wire.CmdRegister, w.Bytes())
	if err != nil {
		return "", err
	}
	if frame.Cmd != wire.CmdReplyNodeID {
		c.invalidate()
		return "", cacheerr.New(cacheerr.ProtocolState, "IndexConn.Register", nil)
	}
	return wire.NewReader(frame.Payload).GetString()
}

// ArtifactCodec decodes/encodes a result type's artifact to/from wire
// bytes. The core never interprets artifact bytes itself; callers wire in
// the concrete raster/feature/plot (de)serializers.
type ArtifactCodec interface {
	Encode(rt cachecore.ResultType, a cachecore.Artifact) ([]byte, error)
	Decode(rt cachecore.ResultType, b []byte) (cachecore.Artifact, error)
}

// Fetcher implements cachecore.PartFetcher over DELIVER. It keeps one
// connection per peer address, reused across fetches.
type Fetcher struct {
	codec  ArtifactCodec
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*bufio.ReadWriter
	raw   map[string]net.Conn
}

// NewFetcher constructs a part fetcher using codec to deserialize delivered
// artifact bytes.
func NewFetcher(codec ArtifactCodec, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		codec:  codec,
		logger: logger,
		conns:  make(map[string]*bufio.ReadWriter),
		raw:    make(map[string]net.Conn),
	}
}

func peerAddr(ref cachecore.CacheRef) string {
	return fmt.Sprintf("%s:%d", ref.Host, ref.Port)
}

func (f *Fetcher) connFor(ctx context.Context, addr string) (*bufio.ReadWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rw, ok := f.conns[addr]; ok {
		return rw, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cacheerr.New(cacheerr.Network, "Fetcher.connFor", err)
	}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	f.conns[addr] = rw
	f.raw[addr] = conn
	return rw, nil
}

func (f *Fetcher) invalidate(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn, ok := f.raw[addr]; ok {
		conn.Close()
	}
	delete(f.conns, addr)
	delete(f.raw, addr)
}

// Fetch implements cachecore.PartFetcher: opens (or reuses) a connection to
// ref's host:port, sends DELIVER, deserializes the reply, and attributes
// I/O cost proportional to bytes transferred.
func (f *Fetcher) Fetch(ctx context.Context, rt cachecore.ResultType, ref cachecore.CacheRef, profiler *cachecore.Profiler) (cachecore.Artifact, error) {
	addr := peerAddr(ref)
	rw, err := f.connFor(ctx, addr)
	if err != nil {
		return nil, err
	}

	w := wire.NewWriter()
	w.PutU8(uint8(rt))
	w.PutString(ref.SemanticID)
	w.PutU64(uint64(ref.EntryID))

	if err := wire.WriteFrame(rw.Writer, wire.MagicDelivery, wire.CmdDeliver, w.Bytes()); err != nil {
		f.invalidate(addr)
		return nil, err
	}
	if err := rw.Writer.Flush(); err != nil {
		f.invalidate(addr)
		return nil, cacheerr.New(cacheerr.Network, "Fetcher.Fetch", err)
	}

	frame, err := wire.ReadFrame(rw.Reader, wire.MagicDelivery)
	if err != nil {
		f.invalidate(addr)
		return nil, err
	}

	switch frame.Cmd {
	case wire.CmdReplyNotFound:
		return nil, cacheerr.Sentinel(cacheerr.NotFound)
	case wire.CmdReplyArtifact:
		r := wire.NewReader(frame.Payload)
		raw, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		profiler.AddSelf(cachecore.Profile{IOBytes: int64(len(raw))})
		artifact, err := f.codec.Decode(rt, raw)
		if err != nil {
			return nil, cacheerr.New(cacheerr.Network, "Fetcher.Fetch", err)
		}
		return artifact, nil
	default:
		f.invalidate(addr)
		return nil, cacheerr.New(cacheerr.ProtocolState, "Fetcher.Fetch", nil)
	}
}
