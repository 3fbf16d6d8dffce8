package indexsrv

import (
	"encoding/binary"
	"math"
)

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

func putF64(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
