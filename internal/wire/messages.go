package wire

// messages.go encodes/decodes the fixed-field-order message payloads:
// QueryRectangle, Cube, MetaEntry, CacheRef, PuzzleRequest, NodeStats,
// ReorgDescription, RegisterRequest. Artifact bytes themselves are opaque
// to this package; callers supply/consume them as []byte via
// PutBytes/GetBytes.

import "github.com/umr-dbs/mapping-cache/pkg/cachecore"

// PutQueryRectangle encodes a QueryRectangle in field order: crs, x1, y1,
// x2, y2, t1, t2, time_type, resolution(pixels, xres, yres).
func (w *Writer) PutQueryRectangle(q cachecore.QueryRectangle) {
	w.PutU32(uint32(q.CRS))
	w.PutF64(q.X1)
	w.PutF64(q.Y1)
	w.PutF64(q.X2)
	w.PutF64(q.Y2)
	w.PutF64(q.T1)
	w.PutF64(q.T2)
	w.PutU8(uint8(q.TimeType))
	w.PutBool(q.Resolution.Pixels)
	w.PutU32(q.Resolution.XRes)
	w.PutU32(q.Resolution.YRes)
}

// GetQueryRectangle decodes a QueryRectangle in the same field order.
func (r *Reader) GetQueryRectangle() (cachecore.QueryRectangle, error) {
	var q cachecore.QueryRectangle
	crs, err := r.GetU32()
	if err != nil {
		return q, err
	}
	q.CRS = cachecore.CRSID(crs)
	if q.X1, err = r.GetF64(); err != nil {
		return q, err
	}
	if q.Y1, err = r.GetF64(); err != nil {
		return q, err
	}
	if q.X2, err = r.GetF64(); err != nil {
		return q, err
	}
	if q.Y2, err = r.GetF64(); err != nil {
		return q, err
	}
	if q.T1, err = r.GetF64(); err != nil {
		return q, err
	}
	if q.T2, err = r.GetF64(); err != nil {
		return q, err
	}
	tt, err := r.GetU8()
	if err != nil {
		return q, err
	}
	q.TimeType = cachecore.TimeType(tt)
	pixels, err := r.GetBool()
	if err != nil {
		return q, err
	}
	xres, err := r.GetU32()
	if err != nil {
		return q, err
	}
	yres, err := r.GetU32()
	if err != nil {
		return q, err
	}
	q.Resolution = cachecore.Resolution{Pixels: pixels, XRes: xres, YRes: yres}
	return q, nil
}

// PutCube encodes a Cube: crs, x1, y1, x2, y2, t1, t2, scale_x(a,b), scale_y(a,b).
func (w *Writer) PutCube(c cachecore.Cube) {
	w.PutU32(uint32(c.CRS))
	w.PutF64(c.X1)
	w.PutF64(c.Y1)
	w.PutF64(c.X2)
	w.PutF64(c.Y2)
	w.PutF64(c.T1)
	w.PutF64(c.T2)
	w.PutF64(c.ScaleX.A)
	w.PutF64(c.ScaleX.B)
	w.PutF64(c.ScaleY.A)
	w.PutF64(c.ScaleY.B)
}

// GetCube decodes a Cube in the same field order.
func (r *Reader) GetCube() (cachecore.Cube, error) {
	var c cachecore.Cube
	crs, err := r.GetU32()
	if err != nil {
		return c, err
	}
	c.CRS = cachecore.CRSID(crs)
	for _, f := range []*float64{&c.X1, &c.Y1, &c.X2, &c.Y2, &c.T1, &c.T2} {
		v, err := r.GetF64()
		if err != nil {
			return c, err
		}
		*f = v
	}
	a, err := r.GetF64()
	if err != nil {
		return c, err
	}
	b, err := r.GetF64()
	if err != nil {
		return c, err
	}
	c.ScaleX = cachecore.ScaleInterval{A: a, B: b}
	if a, err = r.GetF64(); err != nil {
		return c, err
	}
	if b, err = r.GetF64(); err != nil {
		return c, err
	}
	c.ScaleY = cachecore.ScaleInterval{A: a, B: b}
	return c, nil
}

// PutProfile encodes a Profile: cpu_millis, gpu_millis, io_bytes, io_millis.
func (w *Writer) PutProfile(p cachecore.Profile) {
	w.PutF64(p.CPUMillis)
	w.PutF64(p.GPUMillis)
	w.PutU64(uint64(p.IOBytes))
	w.PutF64(p.IOMillis)
}

// GetProfile decodes a Profile in the same field order.
func (r *Reader) GetProfile() (cachecore.Profile, error) {
	var p cachecore.Profile
	var err error
	if p.CPUMillis, err = r.GetF64(); err != nil {
		return p, err
	}
	if p.GPUMillis, err = r.GetF64(); err != nil {
		return p, err
	}
	ioBytes, err := r.GetU64()
	if err != nil {
		return p, err
	}
	p.IOBytes = int64(ioBytes)
	if p.IOMillis, err = r.GetF64(); err != nil {
		return p, err
	}
	return p, nil
}

// PutKey encodes a Key: semantic_id, entry_id.
func (w *Writer) PutKey(k cachecore.Key) {
	w.PutString(k.SemanticID)
	w.PutU64(uint64(k.EntryID))
}

// GetKey decodes a Key in the same field order.
func (r *Reader) GetKey() (cachecore.Key, error) {
	var k cachecore.Key
	sid, err := r.GetString()
	if err != nil {
		return k, err
	}
	k.SemanticID = sid
	id, err := r.GetU64()
	if err != nil {
		return k, err
	}
	k.EntryID = cachecore.EntryID(id)
	return k, nil
}

// MetaEntry is the wire projection of cachecore.Meta plus the node that
// owns it, used by NEW_ENTRY and REGISTER.
type MetaEntry struct {
	NodeID      string
	ResultType  cachecore.ResultType
	Key         cachecore.Key
	Cube        cachecore.Cube
	SizeBytes   int64
	Profile     cachecore.Profile
	LastAccess  int64
	AccessCount uint64
}

// PutMetaEntry encodes a MetaEntry: node_id, result_type, key, cube,
// size_bytes, profile, last_access, access_count.
func (w *Writer) PutMetaEntry(m MetaEntry) {
	w.PutString(m.NodeID)
	w.PutU8(uint8(m.ResultType))
	w.PutKey(m.Key)
	w.PutCube(m.Cube)
	w.PutU64(uint64(m.SizeBytes))
	w.PutProfile(m.Profile)
	w.PutU64(uint64(m.LastAccess))
	w.PutU64(m.AccessCount)
}

// GetMetaEntry decodes a MetaEntry in the same field order.
func (r *Reader) GetMetaEntry() (MetaEntry, error) {
	var m MetaEntry
	nodeID, err := r.GetString()
	if err != nil {
		return m, err
	}
	m.NodeID = nodeID
	rt, err := r.GetU8()
	if err != nil {
		return m, err
	}
	m.ResultType = cachecore.ResultType(rt)
	if m.Key, err = r.GetKey(); err != nil {
		return m, err
	}
	if m.Cube, err = r.GetCube(); err != nil {
		return m, err
	}
	size, err := r.GetU64()
	if err != nil {
		return m, err
	}
	m.SizeBytes = int64(size)
	if m.Profile, err = r.GetProfile(); err != nil {
		return m, err
	}
	lastAccess, err := r.GetU64()
	if err != nil {
		return m, err
	}
	m.LastAccess = int64(lastAccess)
	if m.AccessCount, err = r.GetU64(); err != nil {
		return m, err
	}
	return m, nil
}

// CacheRef is the wire projection of cachecore.CacheRef: host, port, key.
func (w *Writer) PutCacheRef(ref cachecore.CacheRef) {
	w.PutString(ref.Host)
	w.PutU32(uint32(ref.Port))
	w.PutU64(uint64(ref.EntryID))
	w.PutString(ref.SemanticID)
}

// GetCacheRef decodes a CacheRef in the same field order.
func (r *Reader) GetCacheRef() (cachecore.CacheRef, error) {
	var ref cachecore.CacheRef
	host, err := r.GetString()
	if err != nil {
		return ref, err
	}
	ref.Host = host
	port, err := r.GetU32()
	if err != nil {
		return ref, err
	}
	ref.Port = uint16(port)
	id, err := r.GetU64()
	if err != nil {
		return ref, err
	}
	ref.EntryID = cachecore.EntryID(id)
	sid, err := r.GetString()
	if err != nil {
		return ref, err
	}
	ref.SemanticID = sid
	return ref, nil
}

// PutNodeLocation encodes a NodeLocation: host, port.
func (w *Writer) PutNodeLocation(n cachecore.NodeLocation) {
	w.PutString(n.Host)
	w.PutU32(uint32(n.Port))
}

// GetNodeLocation decodes a NodeLocation in the same field order.
func (r *Reader) GetNodeLocation() (cachecore.NodeLocation, error) {
	var n cachecore.NodeLocation
	host, err := r.GetString()
	if err != nil {
		return n, err
	}
	n.Host = host
	port, err := r.GetU32()
	if err != nil {
		return n, err
	}
	n.Port = uint16(port)
	return n, nil
}

// PutRemotePart encodes a RemotePart: primary ref, vector of alternate refs.
func (w *Writer) PutRemotePart(p cachecore.RemotePart) {
	w.PutCacheRef(p.Primary)
	w.PutVectorHeader(len(p.Alternates))
	for _, alt := range p.Alternates {
		w.PutCacheRef(alt)
	}
}

// GetRemotePart decodes a RemotePart in the same field order.
func (r *Reader) GetRemotePart() (cachecore.RemotePart, error) {
	var p cachecore.RemotePart
	primary, err := r.GetCacheRef()
	if err != nil {
		return p, err
	}
	p.Primary = primary
	n, err := r.GetVectorHeader()
	if err != nil {
		return p, err
	}
	if n > 0 {
		p.Alternates = make([]cachecore.CacheRef, n)
		for i := 0; i < n; i++ {
			alt, err := r.GetCacheRef()
			if err != nil {
				return p, err
			}
			p.Alternates[i] = alt
		}
	}
	return p, nil
}

// PutPuzzleRequest encodes a PuzzleRequest: result_type, semantic_id, query,
// vector of remainder rectangles, vector of remote parts. Local parts never
// cross the wire: only the remote index sends a PuzzleRequest, and it names
// every part as a remote ref, including parts the recipient owns itself.
func (w *Writer) PutPuzzleRequest(req cachecore.PuzzleRequest) {
	w.PutU8(uint8(req.ResultType))
	w.PutString(req.SemanticID)
	w.PutQueryRectangle(req.Query)
	w.PutVectorHeader(len(req.Remainder))
	for _, rq := range req.Remainder {
		w.PutQueryRectangle(rq)
	}
	remoteParts := make([]cachecore.RemotePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Remote != nil {
			remoteParts = append(remoteParts, *p.Remote)
		}
	}
	w.PutVectorHeader(len(remoteParts))
	for _, rp := range remoteParts {
		w.PutRemotePart(rp)
	}
}

// GetPuzzleRequest decodes a PuzzleRequest in the same field order. Decoded
// parts are all Remote; the receiving node puzzles the request as decoded,
// fetching every part by reference, including any it owns itself.
func (r *Reader) GetPuzzleRequest() (cachecore.PuzzleRequest, error) {
	var req cachecore.PuzzleRequest
	rt, err := r.GetU8()
	if err != nil {
		return req, err
	}
	req.ResultType = cachecore.ResultType(rt)
	sid, err := r.GetString()
	if err != nil {
		return req, err
	}
	req.SemanticID = sid
	q, err := r.GetQueryRectangle()
	if err != nil {
		return req, err
	}
	req.Query = q

	nRemainder, err := r.GetVectorHeader()
	if err != nil {
		return req, err
	}
	req.Remainder = make([]cachecore.QueryRectangle, nRemainder)
	for i := 0; i < nRemainder; i++ {
		rq, err := r.GetQueryRectangle()
		if err != nil {
			return req, err
		}
		req.Remainder[i] = rq
	}

	nParts, err := r.GetVectorHeader()
	if err != nil {
		return req, err
	}
	req.Parts = make([]cachecore.PartRef, nParts)
	for i := 0; i < nParts; i++ {
		rp, err := r.GetRemotePart()
		if err != nil {
			return req, err
		}
		rpCopy := rp
		req.Parts[i] = cachecore.PartRef{Remote: &rpCopy}
	}
	return req, nil
}

// NodeStats is the wire payload for STATS/GET_STATS.
type NodeStats struct {
	NodeID string
	Types  []TypeStats
}

// TypeStats is one result type's counters within a NodeStats message.
type TypeStats struct {
	ResultType cachecore.ResultType
	Stats      cachecore.Stats
	Query      cachecore.QueryStatsSnapshot
}

// PutNodeStats encodes a NodeStats message: node_id, vector of per-type
// stats (result_type, then the store Stats fields, then the QueryStats
// fields), in that fixed order.
func (w *Writer) PutNodeStats(ns NodeStats) {
	w.PutString(ns.NodeID)
	w.PutVectorHeader(len(ns.Types))
	for _, t := range ns.Types {
		w.PutU8(uint8(t.ResultType))
		w.PutU64(t.Stats.Puts)
		w.PutU64(t.Stats.Gets)
		w.PutU64(t.Stats.Hits)
		w.PutU64(t.Stats.Misses)
		w.PutU64(t.Stats.Removes)
		w.PutU64(t.Stats.Evictions)
		w.PutU64(uint64(t.Stats.Bytes))
		w.PutU64(t.Query.SingleLocalHits)
		w.PutU64(t.Query.MultiLocalHits)
		w.PutU64(t.Query.MultiLocalPartials)
		w.PutU64(t.Query.SingleRemoteHits)
		w.PutU64(t.Query.MultiRemoteHits)
		w.PutU64(t.Query.MultiRemotePartials)
		w.PutU64(t.Query.Misses)
	}
}

// GetNodeStats decodes a NodeStats message in the same field order.
func (r *Reader) GetNodeStats() (NodeStats, error) {
	var ns NodeStats
	nodeID, err := r.GetString()
	if err != nil {
		return ns, err
	}
	ns.NodeID = nodeID
	n, err := r.GetVectorHeader()
	if err != nil {
		return ns, err
	}
	ns.Types = make([]TypeStats, n)
	for i := 0; i < n; i++ {
		var t TypeStats
		rt, err := r.GetU8()
		if err != nil {
			return ns, err
		}
		t.ResultType = cachecore.ResultType(rt)

		u64s := make([]uint64, 7)
		for j := range u64s {
			v, err := r.GetU64()
			if err != nil {
				return ns, err
			}
			u64s[j] = v
		}
		t.Stats = cachecore.Stats{
			Puts: u64s[0], Gets: u64s[1], Hits: u64s[2], Misses: u64s[3],
			Removes: u64s[4], Evictions: u64s[5], Bytes: int64(u64s[6]),
		}

		qs := make([]uint64, 7)
		for j := range qs {
			v, err := r.GetU64()
			if err != nil {
				return ns, err
			}
			qs[j] = v
		}
		t.Query = cachecore.QueryStatsSnapshot{
			SingleLocalHits: qs[0], MultiLocalHits: qs[1], MultiLocalPartials: qs[2],
			SingleRemoteHits: qs[3], MultiRemoteHits: qs[4], MultiRemotePartials: qs[5],
			Misses: qs[6],
		}
		ns.Types[i] = t
	}
	return ns, nil
}

// ReorgMove is one relocate-entry command within a ReorgDescription.
type ReorgMove struct {
	ResultType cachecore.ResultType
	Key        cachecore.Key
	FromNodeID string
	ToNodeID   string
}

// ReorgRemove is one drop-entry command within a ReorgDescription; it
// carries ResultType alongside Key since a bare Key doesn't name its store.
type ReorgRemove struct {
	ResultType cachecore.ResultType
	Key        cachecore.Key
}

// ReorgDescription is the REORG command payload: entries to move and
// entries to remove for cluster-wide quota.
type ReorgDescription struct {
	Moves   []ReorgMove
	Removes []ReorgRemove
}

// PutReorgDescription encodes a ReorgDescription: vector of moves
// (result_type, key, from_node_id, to_node_id), then vector of removes
// (result_type, key).
func (w *Writer) PutReorgDescription(rd ReorgDescription) {
	w.PutVectorHeader(len(rd.Moves))
	for _, m := range rd.Moves {
		w.PutU8(uint8(m.ResultType))
		w.PutKey(m.Key)
		w.PutString(m.FromNodeID)
		w.PutString(m.ToNodeID)
	}
	w.PutVectorHeader(len(rd.Removes))
	for _, rm := range rd.Removes {
		w.PutU8(uint8(rm.ResultType))
		w.PutKey(rm.Key)
	}
}

// GetReorgDescription decodes a ReorgDescription in the same field order.
func (r *Reader) GetReorgDescription() (ReorgDescription, error) {
	var rd ReorgDescription
	nMoves, err := r.GetVectorHeader()
	if err != nil {
		return rd, err
	}
	rd.Moves = make([]ReorgMove, nMoves)
	for i := 0; i < nMoves; i++ {
		var m ReorgMove
		rt, err := r.GetU8()
		if err != nil {
			return rd, err
		}
		m.ResultType = cachecore.ResultType(rt)
		if m.Key, err = r.GetKey(); err != nil {
			return rd, err
		}
		from, err := r.GetString()
		if err != nil {
			return rd, err
		}
		m.FromNodeID = from
		to, err := r.GetString()
		if err != nil {
			return rd, err
		}
		m.ToNodeID = to
		rd.Moves[i] = m
	}

	nRemoves, err := r.GetVectorHeader()
	if err != nil {
		return rd, err
	}
	rd.Removes = make([]ReorgRemove, nRemoves)
	for i := 0; i < nRemoves; i++ {
		rtRaw, err := r.GetU8()
		if err != nil {
			return rd, err
		}
		k, err := r.GetKey()
		if err != nil {
			return rd, err
		}
		rd.Removes[i] = ReorgRemove{ResultType: cachecore.ResultType(rtRaw), Key: k}
	}
	return rd, nil
}

// RegisterRequest is the REGISTER handshake payload a node sends the index
// on startup: the port it listens for DELIVER on, the port its control
// listener answers GET_STATS/REORG on, plus every entry it already holds
// (an empty list on a cold start).
type RegisterRequest struct {
	Port        uint16
	ControlPort uint16
	Entries     []MetaEntry
}

// PutRegisterRequest encodes a RegisterRequest: port, control_port, vector
// of MetaEntry.
func (w *Writer) PutRegisterRequest(req RegisterRequest) {
	w.PutU32(uint32(req.Port))
	w.PutU32(uint32(req.ControlPort))
	w.PutVectorHeader(len(req.Entries))
	for _, e := range req.Entries {
		w.PutMetaEntry(e)
	}
}

// GetRegisterRequest decodes a RegisterRequest in the same field order.
func (r *Reader) GetRegisterRequest() (RegisterRequest, error) {
	var req RegisterRequest
	port, err := r.GetU32()
	if err != nil {
		return req, err
	}
	req.Port = uint16(port)
	controlPort, err := r.GetU32()
	if err != nil {
		return req, err
	}
	req.ControlPort = uint16(controlPort)
	n, err := r.GetVectorHeader()
	if err != nil {
		return req, err
	}
	req.Entries = make([]MetaEntry, n)
	for i := 0; i < n; i++ {
		e, err := r.GetMetaEntry()
		if err != nil {
			return req, err
		}
		req.Entries[i] = e
	}
	return req, nil
}

// DeliveryResponse is the reply to a client GET: where to PICKUP the
// prepared artifact.
type DeliveryResponse struct {
	Host       string
	Port       uint16
	DeliveryID string
}

// PutDeliveryResponse encodes a DeliveryResponse: host, port, delivery_id.
func (w *Writer) PutDeliveryResponse(d DeliveryResponse) {
	w.PutString(d.Host)
	w.PutU32(uint32(d.Port))
	w.PutString(d.DeliveryID)
}

// GetDeliveryResponse decodes a DeliveryResponse in the same field order.
func (r *Reader) GetDeliveryResponse() (DeliveryResponse, error) {
	var d DeliveryResponse
	host, err := r.GetString()
	if err != nil {
		return d, err
	}
	d.Host = host
	port, err := r.GetU32()
	if err != nil {
		return d, err
	}
	d.Port = uint16(port)
	id, err := r.GetString()
	if err != nil {
		return d, err
	}
	d.DeliveryID = id
	return d, nil
}

// IndexQueryRequest is the node→index QUERY payload: result_type,
// semantic_id, query rectangle.
type IndexQueryRequest struct {
	ResultType cachecore.ResultType
	SemanticID string
	Query      cachecore.QueryRectangle
}

// PutIndexQueryRequest encodes an IndexQueryRequest in field order.
func (w *Writer) PutIndexQueryRequest(req IndexQueryRequest) {
	w.PutU8(uint8(req.ResultType))
	w.PutString(req.SemanticID)
	w.PutQueryRectangle(req.Query)
}

// GetIndexQueryRequest decodes an IndexQueryRequest in the same field order.
func (r *Reader) GetIndexQueryRequest() (IndexQueryRequest, error) {
	var req IndexQueryRequest
	rt, err := r.GetU8()
	if err != nil {
		return req, err
	}
	req.ResultType = cachecore.ResultType(rt)
	sid, err := r.GetString()
	if err != nil {
		return req, err
	}
	req.SemanticID = sid
	q, err := r.GetQueryRectangle()
	if err != nil {
		return req, err
	}
	req.Query = q
	return req, nil
}
