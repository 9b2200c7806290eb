//go:build !mxnet

package mxnet

import (
	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

// New always fails in builds without the mxnet tag.
func New(opts Options) (ndarray.Engine, error) {
	return nil, ErrNotCompiled
}
