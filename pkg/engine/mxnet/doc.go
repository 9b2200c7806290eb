// Package mxnet adapts the MXNet C API to ndarray.Engine. Binaries built
// without the mxnet build tag get a stub whose New returns ErrNotCompiled.
package mxnet

import "errors"

// ErrNotCompiled is returned by New when MXNet support was not built in.
var ErrNotCompiled = errors.New("mxnet support not compiled in (build with -tags mxnet)")

// Options configures the native engine.
type Options struct {
	// DeviceType is 1 for CPU, 2 for GPU.
	DeviceType int
	DeviceID   int
}

// DefaultOptions places tensors on the first CPU.
func DefaultOptions() Options {
	return Options{DeviceType: 1}
}
