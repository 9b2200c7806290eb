package fallback

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

// params are an invocation's string parameters, keyed by argument name.
type params map[string]string

func (p params) getInt(name string, def int) (int, error) {
	s, found := p[name]
	if !found {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected an integer", name, s)
	}
	return v, nil
}

func (p params) getFloat(name string, def float64) (float64, error) {
	s, found := p[name]
	if !found {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected a number", name, s)
	}
	return v, nil
}

func (p params) getBool(name string, def bool) (bool, error) {
	s, found := p[name]
	if !found {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: expected a boolean", name, s)
	}
	return v, nil
}

// getShape parses a tuple such as "(2,3)", "[2, 3]", "(4,)" or "5".
func (p params) getShape(name string) ([]int, bool, error) {
	s, found := p[name]
	if !found {
		return nil, false, nil
	}
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")

	var dims []int
	for _, field := range strings.Split(trimmed, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		dim, err := strconv.Atoi(field)
		if err != nil {
			return nil, true, fmt.Errorf("invalid %s %q: expected a tuple of integers", name, s)
		}
		dims = append(dims, dim)
	}
	return dims, true, nil
}

func (p params) getDType(name string, def ndarray.DType) (ndarray.DType, error) {
	s, found := p[name]
	if !found {
		return def, nil
	}
	return ndarray.ParseDType(strings.Trim(strings.TrimSpace(s), "'\""))
}

func toDims(shape []int) ([]uint32, error) {
	dims := make([]uint32, len(shape))
	for i, dim := range shape {
		if dim < 0 || uint64(dim) > math.MaxUint32 {
			return nil, fmt.Errorf("invalid shape %v: dimension %d is outside [0, %d]", shape, dim, uint64(math.MaxUint32))
		}
		dims[i] = uint32(dim)
	}
	return dims, nil
}
