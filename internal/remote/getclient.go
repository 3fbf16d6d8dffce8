package remote

// getclient.go is the client's side of the worker stream: GET against the
// index, then PICKUP against the node the DeliveryResponse names. Used by
// out-of-cluster consumers that want a cached artifact without speaking the
// node-internal control protocol.

import (
	"bufio"
	"context"
	"net"
	"strconv"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// GetClient fetches cached artifacts through the index's worker stream.
type GetClient struct {
	indexAddr string
	codec     ArtifactCodec
}

// NewGetClient constructs a client against the index's worker listener.
func NewGetClient(indexAddr string, codec ArtifactCodec) *GetClient {
	return &GetClient{indexAddr: indexAddr, codec: codec}
}

// Get resolves (rt, semanticID, q) to an artifact: GET against the index,
// PICKUP against the owning node. A cluster that cannot serve the query
// from cache answers Miss; the caller recomputes.
func (c *GetClient) Get(ctx context.Context, rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (cachecore.Artifact, error) {
	d, err := c.get(ctx, rt, semanticID, q)
	if err != nil {
		return nil, err
	}
	return c.pickup(ctx, rt, d)
}

func (c *GetClient) get(ctx context.Context, rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (wire.DeliveryResponse, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.indexAddr)
	if err != nil {
		return wire.DeliveryResponse{}, cacheerr.New(cacheerr.Network, "GetClient.get", err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.PutIndexQueryRequest(wire.IndexQueryRequest{ResultType: rt, SemanticID: semanticID, Query: q})
	if err := wire.WriteFrame(conn, wire.MagicWorker, wire.CmdGet, w.Bytes()); err != nil {
		return wire.DeliveryResponse{}, err
	}

	frame, err := wire.ReadFrame(bufio.NewReader(conn), wire.MagicWorker)
	if err != nil {
		return wire.DeliveryResponse{}, err
	}
	switch frame.Cmd {
	case wire.CmdReplyDeliveryInfo:
		return wire.NewReader(frame.Payload).GetDeliveryResponse()
	case wire.CmdReplyMiss:
		return wire.DeliveryResponse{}, cacheerr.Sentinel(cacheerr.Miss)
	default:
		return wire.DeliveryResponse{}, cacheerr.New(cacheerr.ProtocolState, "GetClient.get", nil)
	}
}

func (c *GetClient) pickup(ctx context.Context, rt cachecore.ResultType, resp wire.DeliveryResponse) (cachecore.Artifact, error) {
	addr := net.JoinHostPort(resp.Host, strconv.Itoa(int(resp.Port)))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cacheerr.New(cacheerr.Network, "GetClient.pickup", err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.PutString(resp.DeliveryID)
	if err := wire.WriteFrame(conn, wire.MagicDelivery, wire.CmdPickup, w.Bytes()); err != nil {
		return nil, err
	}

	frame, err := wire.ReadFrame(bufio.NewReader(conn), wire.MagicDelivery)
	if err != nil {
		return nil, err
	}
	switch frame.Cmd {
	case wire.CmdReplyArtifact:
		raw, err := wire.NewReader(frame.Payload).GetBytes()
		if err != nil {
			return nil, err
		}
		return c.codec.Decode(rt, raw)
	case wire.CmdReplyNotFound:
		return nil, cacheerr.Sentinel(cacheerr.NotFound)
	default:
		return nil, cacheerr.New(cacheerr.ProtocolState, "GetClient.pickup", nil)
	}
}
