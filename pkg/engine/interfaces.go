// Package engine evaluates a graph of tensors, given as inline data or
// operator computations, against an ndarray.Runtime.
package engine

import (
	"context"
	"io"

	api "github.com/justinsb/mxinvoke/pkg/api/v1alpha1"
)

type TensorID int32

type Scope interface {
	io.Closer

	RegisterTensors(tensors []*api.Tensor) error
	AllTensors() map[TensorID]Tensor
	Evaluate(ctx context.Context, wantTensors []TensorID) error
}

type Tensor interface {
	TensorID() TensorID
	Dependencies() []TensorID
	CopyDataTo(ctx context.Context, result *api.Tensor) error
}
