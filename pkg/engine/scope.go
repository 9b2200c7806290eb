package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	api "github.com/justinsb/mxinvoke/pkg/api/v1alpha1"
	"github.com/justinsb/mxinvoke/pkg/ndarray"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// CalculationScope holds the tensors of one request. Handles created while
// evaluating are released by Close.
type CalculationScope struct {
	rt      *ndarray.Runtime
	tensors map[TensorID]*tensor
}

var _ Scope = (*CalculationScope)(nil)

type tensor struct {
	rt           *ndarray.Runtime
	id           TensorID
	definition   *api.Tensor
	dependencies []TensorID

	handle *ndarray.Handle
}

func NewCalculationScope(rt *ndarray.Runtime) *CalculationScope {
	return &CalculationScope{
		rt:      rt,
		tensors: make(map[TensorID]*tensor),
	}
}

func (c *CalculationScope) Close() error {
	var errs []error
	for _, t := range c.tensors {
		if t.handle == nil {
			continue
		}
		if err := t.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("releasing tensor %d: %w", t.id, err))
		}
		t.handle = nil
	}
	return errors.Join(errs...)
}

func (c *CalculationScope) AllTensors() map[TensorID]Tensor {
	tensors := make(map[TensorID]Tensor, len(c.tensors))
	for _, tensor := range c.tensors {
		tensors[tensor.id] = tensor
	}
	return tensors
}

func (c *CalculationScope) RegisterTensors(tensors []*api.Tensor) error {
	for _, definition := range tensors {
		id := TensorID(definition.GetId())
		if _, ok := c.tensors[id]; ok {
			return status.Errorf(codes.InvalidArgument, "tensor %d already registered", id)
		}

		inlineData := definition.GetInlineData()
		computation := definition.GetComputation()
		if (inlineData == nil) == (computation == nil) {
			return status.Errorf(codes.InvalidArgument, "tensor %d must have exactly one of inline data or computation", id)
		}

		t := &tensor{
			rt:         c.rt,
			id:         id,
			definition: definition,
		}
		if computation != nil {
			if computation.GetOperator() == "" {
				return status.Errorf(codes.InvalidArgument, "tensor %d: computation has no operator", id)
			}
			t.dependencies = GetDependencies(computation)
		}
		c.tensors[id] = t
	}
	return nil
}

func (c *CalculationScope) Evaluate(ctx context.Context, wantTensors []TensorID) error {
	evaluationOrder, err := BuildDAG(c, wantTensors)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	for _, tensorID := range evaluationOrder {
		tensor, ok := c.tensors[tensorID]
		if !ok {
			return fmt.Errorf("tensor %d not found", tensorID)
		}
		if err := c.evaluateTensor(ctx, tensor); err != nil {
			return fmt.Errorf("evaluating tensor %d: %w", tensorID, err)
		}
	}

	return nil
}

func (c *CalculationScope) evaluateTensor(ctx context.Context, t *tensor) error {
	if t.handle != nil {
		return nil
	}

	if inlineData := t.definition.GetInlineData(); inlineData != nil {
		return t.loadInlineData(ctx, inlineData)
	}

	computation := t.definition.GetComputation()
	var args []ndarray.Argument
	for _, source := range computation.GetSources() {
		sourceTensor, found := c.tensors[TensorID(source)]
		if !found || sourceTensor.handle == nil {
			return fmt.Errorf("source tensor %d not evaluated", source)
		}
		args = append(args, sourceTensor.handle)
	}
	for i, v := range computation.GetArgs() {
		if v == nil {
			return status.Errorf(codes.InvalidArgument, "argument %d is empty", i)
		}
		arg, err := toArgument(v)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "argument %d: %v", i, err)
		}
		args = append(args, arg)
	}
	kwargs := make(map[string]ndarray.Argument, len(computation.GetKwargs()))
	for k, v := range computation.GetKwargs() {
		if v == nil {
			return status.Errorf(codes.InvalidArgument, "argument %q is empty", k)
		}
		arg, err := toArgument(v)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "argument %q: %v", k, err)
		}
		kwargs[k] = arg
	}

	h, err := c.rt.Call(ctx, computation.GetOperator(), args, kwargs, nil)
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("operator %q produced no output", computation.GetOperator())
	}
	klog.FromContext(ctx).V(4).Info("computed tensor", "id", t.id, "operator", computation.GetOperator(), "handle", h)
	t.handle = h
	return nil
}

func (t *tensor) loadInlineData(ctx context.Context, inlineData *api.InlineData) error {
	dtype, err := ndarray.ParseDType(inlineData.GetDType())
	if err != nil {
		return err
	}

	dims := inlineData.GetDimensions()
	shape := make([]int, len(dims))
	for i, dim := range dims {
		shape[i] = int(dim)
	}
	if len(shape) == 0 && inlineData.GetData() == nil {
		// A bare list of values is a vector.
		shape = []int{len(inlineData.GetValues())}
	}

	data := inlineData.GetData()
	if values := inlineData.GetValues(); values != nil {
		if data != nil {
			return status.Errorf(codes.InvalidArgument, "tensor %d has both data and values", t.id)
		}
		if dtype != ndarray.Float32 {
			return status.Errorf(codes.InvalidArgument, "tensor %d: values require dtype float32, got %s", t.id, dtype)
		}
		data = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
		}
	}

	n := dtype.Size()
	for _, dim := range shape {
		n *= dim
	}
	if n != len(data) {
		return status.Errorf(codes.InvalidArgument, "tensor %d: shape %v of %s needs %d bytes, got %d", t.id, shape, dtype, n, len(data))
	}

	h, err := t.rt.Create(ctx, shape, dtype.String())
	if err != nil {
		return err
	}
	if err := h.CopyFromHost(ctx, data); err != nil {
		h.Close()
		return err
	}
	t.handle = h
	return nil
}

func (t *tensor) CopyDataTo(ctx context.Context, result *api.Tensor) error {
	if t.handle == nil {
		return fmt.Errorf("tensor %d has not been evaluated", t.id)
	}
	shape, err := t.handle.Shape(ctx)
	if err != nil {
		return err
	}
	dtype, err := t.handle.DType(ctx)
	if err != nil {
		return err
	}
	data, err := t.handle.CopyToHost(ctx)
	if err != nil {
		return err
	}

	inlineData := &api.InlineData{
		DType: dtype.String(),
		Data:  data,
	}
	for _, dim := range shape {
		inlineData.Dimensions = append(inlineData.Dimensions, int32(dim))
	}
	if dtype == ndarray.Float32 {
		inlineData.Values = make([]float32, len(data)/4)
		for i := range inlineData.Values {
			inlineData.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	}
	result.InlineData = inlineData
	return nil
}

func (t *tensor) Dependencies() []TensorID {
	return t.dependencies
}

func (t *tensor) TensorID() TensorID {
	return t.id
}
