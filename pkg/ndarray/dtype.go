package ndarray

import "fmt"

// DType is an element type, valued by the code the engine understands.
type DType int32

const (
	Float32 DType = 0
	Float64 DType = 1
	Float16 DType = 2
	Uint8   DType = 3
	Int32   DType = 4
	Int8    DType = 5
	Int64   DType = 6
)

var dtypeNames = map[string]DType{
	"float32": Float32,
	"float64": Float64,
	"float16": Float16,
	"uint8":   Uint8,
	"int32":   Int32,
	"int8":    Int8,
	"int64":   Int64,
}

// ParseDType encodes an element type name. There is no default: unknown names fail.
func ParseDType(name string) (DType, error) {
	dtype, ok := dtypeNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDType, name)
	}
	return dtype, nil
}

// Code returns the engine's integer code for the type.
func (d DType) Code() int32 {
	return int32(d)
}

// Valid reports whether d is one of the known codes.
func (d DType) Valid() bool {
	return d >= Float32 && d <= Int64
}

// Size returns the width of one element in bytes, or 0 for an unknown code.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16:
		return 2
	case Uint8, Int8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Int8:
		return "int8"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("dtype(%d)", int32(d))
	}
}
