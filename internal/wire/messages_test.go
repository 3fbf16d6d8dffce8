package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// decode(encode(M)) == M for every wire message, and encode
// is length-honest.

func TestQueryRectangleRoundTrip(t *testing.T) {
	q := cachecore.QueryRectangle{
		CRS: 4326, X1: -10, Y1: -20, X2: 30, Y2: 40, T1: 0, T2: 100,
		TimeType:   cachecore.TimeUnixMillis,
		Resolution: cachecore.PixelResolution(256, 256),
	}
	w := NewWriter()
	w.PutQueryRectangle(q)

	r := NewReader(w.Bytes())
	got, err := r.GetQueryRectangle()
	require.NoError(t, err)
	assert.Equal(t, q, got)
	assert.Zero(t, r.Remaining())
}

func TestCubeRoundTrip(t *testing.T) {
	c := cachecore.Cube{
		CRS: 4326, X1: 0, Y1: 0, X2: 100, Y2: 100, T1: 0, T2: 1,
		ScaleX: cachecore.ScaleInterval{A: 0.75, B: math.Inf(1)},
		ScaleY: cachecore.ScaleInterval{A: 0, B: 1.5},
	}
	w := NewWriter()
	w.PutCube(c)

	r := NewReader(w.Bytes())
	got, err := r.GetCube()
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestMetaEntryRoundTrip(t *testing.T) {
	m := MetaEntry{
		NodeID:      "node-1",
		ResultType:  cachecore.Raster,
		Key:         cachecore.Key{SemanticID: "op1", EntryID: 42},
		Cube:        cachecore.NewFeatureCube(1, 0, 0, 1, 1, 0, 1),
		SizeBytes:   1024,
		Profile:     cachecore.Profile{CPUMillis: 12.5, GPUMillis: 0, IOBytes: 100, IOMillis: 1},
		LastAccess:  1700000000000,
		AccessCount: 7,
	}
	w := NewWriter()
	w.PutMetaEntry(m)

	r := NewReader(w.Bytes())
	got, err := r.GetMetaEntry()
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestCacheRefRoundTrip(t *testing.T) {
	ref := cachecore.CacheRef{Host: "10.0.0.1", Port: 9000, EntryID: 5, SemanticID: "op7"}
	w := NewWriter()
	w.PutCacheRef(ref)

	r := NewReader(w.Bytes())
	got, err := r.GetCacheRef()
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestPuzzleRequestRoundTrip(t *testing.T) {
	req := cachecore.PuzzleRequest{
		ResultType: cachecore.Polygon,
		SemanticID: "op9",
		Query:      cachecore.QueryRectangle{CRS: 1, X1: 0, Y1: 0, X2: 10, Y2: 10, T1: 0, T2: 1},
		Remainder: []cachecore.QueryRectangle{
			{CRS: 1, X1: 0, Y1: 0, X2: 5, Y2: 10, T1: 0, T2: 1},
		},
		Parts: []cachecore.PartRef{
			{Remote: &cachecore.RemotePart{
				Primary:    cachecore.CacheRef{Host: "h1", Port: 1, EntryID: 1, SemanticID: "op9"},
				Alternates: []cachecore.CacheRef{{Host: "h2", Port: 2, EntryID: 2, SemanticID: "op9"}},
			}},
		},
	}
	w := NewWriter()
	w.PutPuzzleRequest(req)

	r := NewReader(w.Bytes())
	got, err := r.GetPuzzleRequest()
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestRegisterRequestRoundTrip(t *testing.T) {
	req := RegisterRequest{
		Port:        9100,
		ControlPort: 9101,
		Entries: []MetaEntry{{
			NodeID:     "",
			ResultType: cachecore.Point,
			Key:        cachecore.Key{SemanticID: "op3", EntryID: 2},
			Cube:       cachecore.NewFeatureCube(1, 0, 0, 5, 5, 0, 1),
			SizeBytes:  64,
		}},
	}
	w := NewWriter()
	w.PutRegisterRequest(req)

	r := NewReader(w.Bytes())
	got, err := r.GetRegisterRequest()
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDeliveryResponseRoundTrip(t *testing.T) {
	d := DeliveryResponse{Host: "10.0.0.2", Port: 9100, DeliveryID: "d-1234"}
	w := NewWriter()
	w.PutDeliveryResponse(d)

	r := NewReader(w.Bytes())
	got, err := r.GetDeliveryResponse()
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestNodeStatsRoundTrip(t *testing.T) {
	ns := NodeStats{
		NodeID: "node-2",
		Types: []TypeStats{{
			ResultType: cachecore.Line,
			Stats:      cachecore.Stats{Puts: 3, Gets: 9, Hits: 6, Misses: 3, Removes: 1, Evictions: 1, Bytes: 2048},
			Query:      cachecore.QueryStatsSnapshot{SingleLocalHits: 4, Misses: 2},
		}},
	}
	w := NewWriter()
	w.PutNodeStats(ns)

	r := NewReader(w.Bytes())
	got, err := r.GetNodeStats()
	require.NoError(t, err)
	assert.Equal(t, ns, got)
}

func TestReorgDescriptionRoundTrip(t *testing.T) {
	rd := ReorgDescription{
		Moves: []ReorgMove{{
			ResultType: cachecore.Raster,
			Key:        cachecore.Key{SemanticID: "op1", EntryID: 3},
			FromNodeID: "node-1",
			ToNodeID:   "node-2",
		}},
		Removes: []ReorgRemove{{
			ResultType: cachecore.Plot,
			Key:        cachecore.Key{SemanticID: "op2", EntryID: 4},
		}},
	}
	w := NewWriter()
	w.PutReorgDescription(rd)

	r := NewReader(w.Bytes())
	got, err := r.GetReorgDescription()
	require.NoError(t, err)
	assert.Equal(t, rd, got)
}

func TestWriteFrameIsLengthHonest(t *testing.T) {
	w := NewWriter()
	w.PutString("payload")
	payload := w.Bytes()

	var buf writerBuf
	err := WriteFrame(&buf, MagicControl, CmdRegister, payload)
	require.NoError(t, err)

	// 4 bytes magic + 1 byte cmd + 4 bytes length + payload.
	assert.Len(t, buf.data, 4+1+4+len(payload))
}

// writerBuf is a minimal io.Writer sink for WriteFrame tests.
type writerBuf struct {
	data []byte
}

func (b *writerBuf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
