// Package mxnet is a thin cgo binding to the MXNet C API. It is only built
// with the mxnet build tag, and links against libmxnet.
package mxnet
