package ndarray

import (
	"errors"
	"testing"
)

func TestParseDType(t *testing.T) {
	want := map[string]int32{
		"float32": 0,
		"float64": 1,
		"float16": 2,
		"uint8":   3,
		"int32":   4,
		"int8":    5,
		"int64":   6,
	}

	seen := make(map[int32]string)
	for name, code := range want {
		dtype, err := ParseDType(name)
		if err != nil {
			t.Fatalf("ParseDType(%q) failed: %v", name, err)
		}
		if dtype.Code() != code {
			t.Errorf("ParseDType(%q) = %d, want %d", name, dtype.Code(), code)
		}
		if dtype.String() != name {
			t.Errorf("DType(%d).String() = %q, want %q", code, dtype.String(), name)
		}
		if prev, dup := seen[code]; dup {
			t.Errorf("code %d used by both %q and %q", code, prev, name)
		}
		seen[code] = name
	}
	if len(seen) != 7 {
		t.Errorf("expected 7 distinct codes, got %d", len(seen))
	}
}

func TestParseDTypeUnknown(t *testing.T) {
	for _, name := range []string{"", "float", "Float32", "uint16", "bool"} {
		if _, err := ParseDType(name); !errors.Is(err, ErrUnknownDType) {
			t.Errorf("ParseDType(%q): expected ErrUnknownDType, got %v", name, err)
		}
	}
}

func TestDTypeSize(t *testing.T) {
	sizes := map[DType]int{Float32: 4, Float64: 8, Float16: 2, Uint8: 1, Int32: 4, Int8: 1, Int64: 8, DType(99): 0}
	for dtype, want := range sizes {
		if got := dtype.Size(); got != want {
			t.Errorf("%v.Size() = %d, want %d", dtype, got, want)
		}
	}
}
