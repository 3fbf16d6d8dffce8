// Package wire implements the framed binary protocol for node↔index,
// peer↔peer and client↔index traffic: little-endian, length-prefixed
// messages with a fixed field order per message type. Changing a field
// order or primitive width is a protocol-breaking change.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/unsafehelpers"
)

// Magic distinguishes the three stream kinds so a receiver rejects a
// connection speaking the wrong protocol outright.
type Magic uint32

const (
	MagicControl  Magic = 0x4d435431 // node <-> index control stream
	MagicWorker   Magic = 0x4d575231 // client <-> index worker stream
	MagicDelivery Magic = 0x4d445631 // peer <-> peer delivery stream
)

// Cmd is the 1-byte command following the magic header.
type Cmd uint8

const (
	CmdRegister Cmd = iota + 1
	CmdQuery
	CmdNewEntry
	CmdStats
	CmdGetStats
	CmdReorg
	CmdDeliver
	CmdGet
	CmdPickup

	// Replies share the command byte; their codes continue the same
	// numbering after the request codes, so no reply code equals a request
	// code.
	CmdReplyHit
	CmdReplyMiss
	CmdReplyPartial
	CmdReplyNodeID
	CmdReplyAck
	CmdReplyArtifact
	CmdReplyNotFound
	CmdReplyDeliveryInfo
)

const maxPayloadLen = 256 << 20 // guards against a corrupt/hostile length prefix

// Writer encodes primitives into a payload buffer in each message's fixed
// field order; the buffer is framed and flushed by WriteFrame.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer ready to accumulate one message's
// payload.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// PutU8 appends a single byte.
func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

// PutBool appends a bool as one byte.
func (w *Writer) PutBool(v bool) {
	if v {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
}

// PutU32 appends a little-endian u32.
func (w *Writer) PutU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutU64 appends a little-endian u64.
func (w *Writer) PutU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutF64 appends a little-endian-bit-pattern f64.
func (w *Writer) PutF64(v float64) {
	w.PutU64(math.Float64bits(v))
}

// PutString appends a u64 byte length followed by the raw utf8 bytes.
func (w *Writer) PutString(s string) {
	w.PutU64(uint64(len(s)))
	w.buf = append(w.buf, unsafehelpers.StringToBytes(s)...)
}

// PutBytes appends a u64 byte length followed by the raw bytes, used for
// artifact payloads that are not themselves framed messages.
func (w *Writer) PutBytes(b []byte) {
	w.PutU64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// PutVectorHeader appends a vector's u64 element count; callers then
// Put-encode each element themselves.
func (w *Writer) PutVectorHeader(count int) { w.PutU64(uint64(count)) }

// PutOptionPresent appends the presence byte for an option<T>; callers
// follow with the encoded T only when present is true.
func (w *Writer) PutOptionPresent(present bool) { w.PutBool(present) }

// WriteFrame writes magic|cmd|payload_len|payload to wr in one call.
func WriteFrame(wr io.Writer, magic Magic, cmd Cmd, payload []byte) error {
	var header [9]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(magic))
	header[4] = byte(cmd)
	binary.LittleEndian.PutUint32(header[5:9], uint32(len(payload)))
	if _, err := wr.Write(header[:]); err != nil {
		return cacheerr.New(cacheerr.Network, "wire.WriteFrame", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := wr.Write(payload); err != nil {
		return cacheerr.New(cacheerr.Network, "wire.WriteFrame", err)
	}
	return nil
}

// Frame is a fully read magic|cmd|payload_len|payload message.
type Frame struct {
	Magic   Magic
	Cmd     Cmd
	Payload []byte
}

// ReadFrame reads one frame from r, rejecting a magic mismatch and an
// unreasonable payload_len before allocating.
func ReadFrame(r *bufio.Reader, want Magic) (Frame, error) {
	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, cacheerr.New(cacheerr.Network, "wire.ReadFrame", err)
	}
	magic := Magic(binary.LittleEndian.Uint32(header[0:4]))
	if magic != want {
		return Frame{}, cacheerr.New(cacheerr.Network, "wire.ReadFrame", errMagicMismatch)
	}
	cmd := Cmd(header[4])
	length := binary.LittleEndian.Uint32(header[5:9])
	if length > maxPayloadLen {
		return Frame{}, cacheerr.New(cacheerr.Network, "wire.ReadFrame", errPayloadTooLarge)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, cacheerr.New(cacheerr.Network, "wire.ReadFrame", err)
		}
	}
	return Frame{Magic: magic, Cmd: cmd, Payload: payload}, nil
}

// Reader decodes primitives from a payload buffer in the same fixed order
// they were written.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a received payload for sequential decoding.
func NewReader(payload []byte) *Reader { return &Reader{buf: payload} }

// Remaining reports how many bytes are left undecoded.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return cacheerr.New(cacheerr.Network, "wire.Reader", errShortPayload)
	}
	return nil
}

// GetU8 decodes one byte.
func (r *Reader) GetU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// GetBool decodes a one-byte bool.
func (r *Reader) GetBool() (bool, error) {
	v, err := r.GetU8()
	return v != 0, err
}

// GetU32 decodes a little-endian u32.
func (r *Reader) GetU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// GetU64 decodes a little-endian u64.
func (r *Reader) GetU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// GetF64 decodes a little-endian-bit-pattern f64.
func (r *Reader) GetF64() (float64, error) {
	bits, err := r.GetU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// GetString decodes a u64 length plus utf8 bytes, returning a zero-copy view
// over the reader's own backing buffer. The returned string is only valid
// for as long as the caller keeps the decoded payload alive and never
// mutates it.
func (r *Reader) GetString() (string, error) {
	n, err := r.GetU64()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return unsafehelpers.BytesToString(b), nil
}

// GetBytes decodes a u64 length plus raw bytes, copying them out so the
// result outlives the payload buffer.
func (r *Reader) GetBytes() ([]byte, error) {
	n, err := r.GetU64()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// GetVectorHeader decodes a vector's u64 element count.
func (r *Reader) GetVectorHeader() (int, error) {
	n, err := r.GetU64()
	if err != nil {
		return 0, err
	}
	if n > uint64(maxPayloadLen) {
		return 0, cacheerr.New(cacheerr.Network, "wire.Reader.GetVectorHeader", errShortPayload)
	}
	return int(n), nil
}

// GetOptionPresent decodes an option<T>'s presence byte.
func (r *Reader) GetOptionPresent() (bool, error) { return r.GetBool() }

var (
	errMagicMismatch   = errors.New("magic mismatch")
	errPayloadTooLarge = errors.New("payload length exceeds limit")
	errShortPayload    = errors.New("payload shorter than declared fields")
)
