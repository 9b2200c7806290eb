package fallback

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/justinsb/mxinvoke/pkg/ndarray"
	"github.com/x448/float16"
)

// tensor stores its elements as little-endian bytes of its dtype.
type tensor struct {
	shape []uint32
	dtype ndarray.DType
	data  []byte
}

// maxTensorBytes bounds a single tensor's storage.
const maxTensorBytes = 1 << 30

func newTensor(shape []uint32, dtype ndarray.DType) (*tensor, error) {
	n, err := tensorBytes(shape, dtype)
	if err != nil {
		return nil, err
	}
	return &tensor{
		shape: slices.Clone(shape),
		dtype: dtype,
		data:  make([]byte, n),
	}, nil
}

// tensorBytes returns the storage size of a tensor, or an error if it
// exceeds maxTensorBytes.
func tensorBytes(shape []uint32, dtype ndarray.DType) (int, error) {
	if !dtype.Valid() {
		return 0, fmt.Errorf("unknown dtype code %d", int32(dtype))
	}
	n := uint64(dtype.Size())
	for _, dim := range shape {
		if dim == 0 {
			return 0, nil
		}
		if n > maxTensorBytes/uint64(dim) {
			return 0, fmt.Errorf("tensor of shape %v and dtype %s exceeds the %d byte limit", shape, dtype, maxTensorBytes)
		}
		n *= uint64(dim)
	}
	return int(n), nil
}

func (t *tensor) numElements() int {
	return numElements(t.shape)
}

// numElements is only meaningful for shapes that passed tensorBytes.
func numElements(shape []uint32) int {
	n := 1
	for _, dim := range shape {
		n *= int(dim)
	}
	return n
}

func sameShape(a, b *tensor) bool {
	return slices.Equal(a.shape, b.shape)
}

// at returns element i converted to float64.
func (t *tensor) at(i int) float64 {
	b := t.data[i*t.dtype.Size():]
	switch t.dtype {
	case ndarray.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case ndarray.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case ndarray.Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
	case ndarray.Uint8:
		return float64(b[0])
	case ndarray.Int8:
		return float64(int8(b[0]))
	case ndarray.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case ndarray.Int64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	default:
		panic(fmt.Sprintf("unhandled dtype %v", t.dtype))
	}
}

// setAt stores v as element i, truncating toward zero for integer types.
func (t *tensor) setAt(i int, v float64) {
	b := t.data[i*t.dtype.Size():]
	switch t.dtype {
	case ndarray.Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case ndarray.Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case ndarray.Float16:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case ndarray.Uint8:
		b[0] = uint8(int64(v))
	case ndarray.Int8:
		b[0] = byte(int8(int64(v)))
	case ndarray.Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(int64(v))))
	case ndarray.Int64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	default:
		panic(fmt.Sprintf("unhandled dtype %v", t.dtype))
	}
}

// copyFrom copies src's elements into t, converting the dtype if needed.
// The element counts must match.
func (t *tensor) copyFrom(src *tensor) {
	if t.dtype == src.dtype {
		copy(t.data, src.data)
		return
	}
	for i := 0; i < t.numElements(); i++ {
		t.setAt(i, src.at(i))
	}
}
