package artifactcodec

// codec.go implements remote.ArtifactCodec for the Raster/FeatureSet/
// PlotResult artifacts above, reusing internal/wire's primitive encodings so
// DELIVER/PICKUP payloads share one little-endian framing discipline with
// the rest of the wire protocol. Attribute values are stringified rather
// than type-preserved; attribute typing is part of the operator graph's
// schema, out of scope here.

import (
	"fmt"

	"github.com/paulmach/orb/encoding/wkb"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

const (
	tagRaster byte = iota + 1
	tagFeatureSet
	tagPlot
)

// Codec is the default remote.ArtifactCodec implementation, wired into the
// remote fetcher and the delivery server.
type Codec struct{}

// Encode serializes artifact per its concrete type, tagging the payload so
// Decode can dispatch on the tag alone; Decode does not consult rt.
func (Codec) Encode(rt cachecore.ResultType, artifact cachecore.Artifact) ([]byte, error) {
	w := wire.NewWriter()
	switch a := artifact.(type) {
	case *Raster:
		w.PutU8(tagRaster)
		w.PutCube(a.cube)
		w.PutU32(uint32(a.width))
		w.PutU32(uint32(a.height))
		w.PutF64(a.noData)
		w.PutVectorHeader(len(a.pixels))
		for _, p := range a.pixels {
			w.PutF64(p)
		}
	case *FeatureSet:
		w.PutU8(tagFeatureSet)
		w.PutVectorHeader(len(a.schema))
		for _, s := range a.schema {
			w.PutString(s)
		}
		w.PutVectorHeader(len(a.features))
		for _, f := range a.features {
			geom, err := wkb.Marshal(f.Geometry)
			if err != nil {
				return nil, cacheerr.New(cacheerr.Argument, "Codec.Encode", err)
			}
			w.PutBytes(geom)
			w.PutString(f.SemanticID)
			w.PutU64(uint64(f.SourceEntryID))
			w.PutU32(uint32(f.FeatureIndex))
			w.PutVectorHeader(len(f.Attrs))
			for k, v := range f.Attrs {
				w.PutString(k)
				w.PutString(fmt.Sprint(v))
			}
		}
	case *PlotResult:
		w.PutU8(tagPlot)
		w.PutString(a.Format)
		w.PutBytes(a.Bytes)
	default:
		return nil, cacheerr.New(cacheerr.Unsupported, "Codec.Encode", nil)
	}
	return w.Bytes(), nil
}

// Decode reverses Encode.
func (Codec) Decode(rt cachecore.ResultType, data []byte) (cachecore.Artifact, error) {
	r := wire.NewReader(data)
	tag, err := r.GetU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagRaster:
		cube, err := r.GetCube()
		if err != nil {
			return nil, err
		}
		width, err := r.GetU32()
		if err != nil {
			return nil, err
		}
		height, err := r.GetU32()
		if err != nil {
			return nil, err
		}
		noData, err := r.GetF64()
		if err != nil {
			return nil, err
		}
		n, err := r.GetVectorHeader()
		if err != nil {
			return nil, err
		}
		pixels := make([]float64, n)
		for i := range pixels {
			if pixels[i], err = r.GetF64(); err != nil {
				return nil, err
			}
		}
		return NewRasterFrom(cube, int(width), int(height), noData, pixels), nil

	case tagFeatureSet:
		nSchema, err := r.GetVectorHeader()
		if err != nil {
			return nil, err
		}
		schema := make([]string, nSchema)
		for i := range schema {
			if schema[i], err = r.GetString(); err != nil {
				return nil, err
			}
		}
		nFeat, err := r.GetVectorHeader()
		if err != nil {
			return nil, err
		}
		features := make([]cachecore.Feature, nFeat)
		for i := range features {
			geomBytes, err := r.GetBytes()
			if err != nil {
				return nil, err
			}
			geom, err := wkb.Unmarshal(geomBytes)
			if err != nil {
				return nil, cacheerr.New(cacheerr.Argument, "Codec.Decode", err)
			}
			semanticID, err := r.GetString()
			if err != nil {
				return nil, err
			}
			entryID, err := r.GetU64()
			if err != nil {
				return nil, err
			}
			idx, err := r.GetU32()
			if err != nil {
				return nil, err
			}
			nAttrs, err := r.GetVectorHeader()
			if err != nil {
				return nil, err
			}
			attrs := make(map[string]any, nAttrs)
			for j := 0; j < nAttrs; j++ {
				k, err := r.GetString()
				if err != nil {
					return nil, err
				}
				v, err := r.GetString()
				if err != nil {
					return nil, err
				}
				attrs[k] = v
			}
			features[i] = cachecore.Feature{
				Geometry: geom, SemanticID: semanticID,
				SourceEntryID: cachecore.EntryID(entryID), FeatureIndex: int(idx), Attrs: attrs,
			}
		}
		return &FeatureSet{schema: schema, features: features}, nil

	case tagPlot:
		format, err := r.GetString()
		if err != nil {
			return nil, err
		}
		b, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		return &PlotResult{Format: format, Bytes: b}, nil

	default:
		return nil, cacheerr.New(cacheerr.ProtocolState, "Codec.Decode", nil)
	}
}
