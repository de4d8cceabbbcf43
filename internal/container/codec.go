package container

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Dtype identifies the element type of a stored dataset. Values are stored as
// little-endian bytes regardless of host order.
type Dtype string

const (
	Uint8   Dtype = "uint8"
	Uint16  Dtype = "uint16"
	Int64   Dtype = "int64"
	Float64 Dtype = "float64"
)

func (d Dtype) itemSize() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (d Dtype) valid() bool { return d.itemSize() > 0 }

func shapeLen(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0
		}
		n *= dim
	}
	return n
}

func encodeUint8(values []uint8) []byte {
	out := make([]byte, len(values))
	copy(out, values)
	return out
}

func decodeUint8(data []byte) []uint8 {
	out := make([]uint8, len(data))
	copy(out, data)
	return out
}

func encodeUint16(values []uint16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func decodeUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return out
}

func encodeInt64(values []int64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func decodeInt64(data []byte) []int64 {
	out := make([]int64, len(data)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

func encodeFloat64(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func decodeFloat64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

func checkPayload(path string, dtype Dtype, shape []int, byteLen int) error {
	want := shapeLen(shape) * dtype.itemSize()
	if want == 0 {
		return fmt.Errorf("dataset %s: invalid shape %v", path, shape)
	}
	if byteLen != want {
		return fmt.Errorf("dataset %s: payload is %d bytes, shape %v requires %d", path, byteLen, shape, want)
	}
	return nil
}
