// Package bench provides reproducible micro-benchmarks for the node-side
// typed entry store. Run via:
//
//	go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks intentionally use a single artifact shape so results are
// comparable across versions: a fixed-size opaque blob standing in for a
// small raster tile, sized to matter without dominating allocation noise.
//
// We measure:
//  1. Put         - write-only workload
//  2. Get         - read-only workload (after warm-up)
//  3. GetParallel - highly concurrent reads (b.RunParallel)
//  4. Query       - matcher lookups against a populated store
//
// Results are printed in ns/op + alloc/op so CI can diff via benchstat.
package bench

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

type blobArtifact struct {
	bytes int64
}

func (b blobArtifact) ByteSize() int64 { return b.bytes }

func (b blobArtifact) Cut(cachecore.QueryRectangle) cachecore.Artifact { return b }

const (
	capBytes = 64 << 20 // 64 MiB budget
	keys     = 1 << 14  // distinct semantic ids
	tileSize = 64 * 64  // bytes per artifact, 64x64 u8 tile
)

func newTestStore() *cachecore.TypedStore {
	return cachecore.NewTypedStore(cachecore.Point, capBytes, nil)
}

func cubeFor(i int) cachecore.Cube {
	x := float64(i % 1000)
	y := float64(i / 1000)
	return cachecore.NewFeatureCube(1, x, y, x+1, y+1, 0, 1)
}

var ds = func() []string {
	arr := make([]string, keys)
	for i := range arr {
		arr[i] = fmt.Sprintf("op-%d", i)
	}
	return arr
}()

func BenchmarkPut(b *testing.B) {
	s := newTestStore()
	art := blobArtifact{bytes: tileSize}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := ds[i%keys]
		_, _ = s.Put(id, cubeFor(i%keys), tileSize, cachecore.Profile{}, art)
	}
}

func BenchmarkGet(b *testing.B) {
	s := newTestStore()
	art := blobArtifact{bytes: tileSize}
	entries := make([]*cachecore.Entry, keys)
	for i, id := range ds {
		e, err := s.Put(id, cubeFor(i), tileSize, cachecore.Profile{}, art)
		if err != nil {
			b.Fatal(err)
		}
		entries[i] = e
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := entries[i%keys]
		_, _ = s.Get(e.Key)
	}
}

func BenchmarkGetParallel(b *testing.B) {
	s := newTestStore()
	art := blobArtifact{bytes: tileSize}
	entries := make([]*cachecore.Entry, keys)
	for i, id := range ds {
		e, err := s.Put(id, cubeFor(i), tileSize, cachecore.Profile{}, art)
		if err != nil {
			b.Fatal(err)
		}
		entries[i] = e
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(42))
		idx := r.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) % keys
			_, _ = s.Get(entries[idx].Key)
		}
	})
}

func BenchmarkQuery(b *testing.B) {
	s := newTestStore()
	art := blobArtifact{bytes: tileSize}
	for i, id := range ds {
		if _, err := s.Put(id, cubeFor(i), tileSize, cachecore.Profile{}, art); err != nil {
			b.Fatal(err)
		}
	}
	q := cachecore.QueryRectangle{CRS: 1, X1: 0, Y1: 0, X2: 1, Y2: 1, T1: 0, T2: 1}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := ds[i%keys]
		_, _ = s.Query(id, q)
	}
}
