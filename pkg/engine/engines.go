package engine

import (
	"fmt"

	"github.com/justinsb/mxinvoke/pkg/engine/fallback"
	"github.com/justinsb/mxinvoke/pkg/engine/mxnet"
	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

// EngineNames lists the values accepted by NewEngine.
var EngineNames = []string{"fallback", "mxnet"}

// NewEngine returns the named ndarray engine.
func NewEngine(name string) (ndarray.Engine, error) {
	switch name {
	case "fallback":
		return fallback.New(), nil
	case "mxnet":
		e, err := mxnet.New(mxnet.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("creating mxnet engine: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (valid engines: %v)", name, EngineNames)
	}
}
