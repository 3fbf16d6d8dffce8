package cachecore

import (
	"sync/atomic"
	"time"
)

// Artifact is the external collaborator contract for a computed result.
// The core never looks inside an artifact beyond these two operations; it
// never parses, colorizes or exports one.
type Artifact interface {
	// ByteSize reports the artifact's memory footprint for budget accounting.
	ByteSize() int64
	// Cut restricts the artifact to q's spatial/temporal extent, returning a
	// new artifact. Used by the node cache manager to trim every hit, single-
	// entry or puzzled, to the query window.
	Cut(q QueryRectangle) Artifact
}

// Profile carries accumulated computation cost, measured by the operator
// graph runner.
type Profile struct {
	CPUMillis float64
	GPUMillis float64
	IOBytes   int64
	IOMillis  float64
}

// Add merges child costs into the receiver.
func (p *Profile) Add(other Profile) {
	p.CPUMillis += other.CPUMillis
	p.GPUMillis += other.GPUMillis
	p.IOBytes += other.IOBytes
	p.IOMillis += other.IOMillis
}

// Cost returns the scalar cost used by cost-weighted replacement and
// CostThreshold admission: the sum of CPU+GPU+I/O time. I/O bytes do not
// contribute to the scalar; only IOMillis (the time actually spent) does.
func (p Profile) Cost() float64 {
	c := p.CPUMillis + p.GPUMillis + p.IOMillis
	if c < 0 {
		return 0
	}
	return c
}

// EntryID uniquely identifies an entry within one semantic_id's collection.
// It is never reused within the typed store's lifetime.
type EntryID uint64

// Key identifies a single entry across the whole process.
type Key struct {
	SemanticID string
	EntryID    EntryID
}

// Entry is a cached result artifact plus its metadata.
// Mutated only by last-access bookkeeping during reads; created on put,
// destroyed by eviction or a reorg-issued remove.
type Entry struct {
	Key       Key
	Cube      Cube
	SizeBytes int64
	Profile   Profile
	Data      Artifact

	lastAccessMillis atomic.Int64
	accessCount      atomic.Uint64
}

// NewEntry constructs an Entry with last-access set to the creation time and
// access count 0; the put itself does not count as an access.
func NewEntry(key Key, cube Cube, size int64, profile Profile, data Artifact) *Entry {
	e := &Entry{Key: key, Cube: cube, SizeBytes: size, Profile: profile, Data: data}
	e.lastAccessMillis.Store(nowMillis())
	return e
}

// Touch updates last_access to now and increments access_count.
func (e *Entry) Touch() {
	e.lastAccessMillis.Store(nowMillis())
	e.accessCount.Add(1)
}

// LastAccess returns the last-access timestamp in epoch milliseconds.
func (e *Entry) LastAccess() int64 { return e.lastAccessMillis.Load() }

// AccessCount returns the number of times Touch has been called.
func (e *Entry) AccessCount() uint64 { return e.accessCount.Load() }

// Meta is the metadata-only projection of an Entry, used for handshakes
// and NEW_ENTRY notifications where the artifact bytes themselves must not
// cross the wire.
type Meta struct {
	Key         Key
	Cube        Cube
	SizeBytes   int64
	Profile     Profile
	LastAccess  int64
	AccessCount uint64
}

// Meta snapshots the entry's metadata.
func (e *Entry) Meta() Meta {
	return Meta{
		Key:         e.Key,
		Cube:        e.Cube,
		SizeBytes:   e.SizeBytes,
		Profile:     e.Profile,
		LastAccess:  e.LastAccess(),
		AccessCount: e.AccessCount(),
	}
}

// nowMillis is the single clock read point so tests can see monotonic,
// process-wall-clock timestamps without reaching into time.Now() scattered
// across the package.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
