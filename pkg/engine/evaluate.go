package engine

import (
	"context"
	"fmt"

	api "github.com/justinsb/mxinvoke/pkg/api/v1alpha1"
	"github.com/justinsb/mxinvoke/pkg/ndarray"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

func Evaluate(ctx context.Context, scope Scope, req *api.CalculateRequest) (*api.CalculateResponse, error) {
	log := klog.FromContext(ctx)

	if err := scope.RegisterTensors(req.GetTensors()); err != nil {
		return nil, err
	}

	response := &api.CalculateResponse{}

	wantTensors := make([]TensorID, len(req.GetOutputTensors()))
	for i, id := range req.GetOutputTensors() {
		wantTensors[i] = TensorID(id)
	}
	if err := scope.Evaluate(ctx, wantTensors); err != nil {
		return nil, err
	}

	allTensors := scope.AllTensors()
	for _, outputTensorID := range req.GetOutputTensors() {
		tensor, found := allTensors[TensorID(outputTensorID)]
		if !found {
			return nil, status.Errorf(codes.InvalidArgument, "tensor %d not found", outputTensorID)
		}
		result := &api.Tensor{
			Id: outputTensorID,
		}
		if err := tensor.CopyDataTo(ctx, result); err != nil {
			return nil, err
		}
		response.Results = append(response.Results, result)
	}

	log.V(2).Info("evaluated request", "tensors", len(req.GetTensors()), "outputs", len(response.Results))
	return response, nil
}

func GetDependencies(computation *api.TensorOperation) []TensorID {
	return protoToTensorIDs(computation.GetSources())
}

func protoToTensorIDs(ids []int32) []TensorID {
	tensorIDs := make([]TensorID, len(ids))
	for i, id := range ids {
		tensorIDs[i] = TensorID(id)
	}
	return tensorIDs
}

// toArgument converts a wire value into a scalar argument.
func toArgument(v *api.Value) (ndarray.Argument, error) {
	var args []ndarray.Argument
	if v.String != nil {
		args = append(args, ndarray.Text(*v.String))
	}
	if v.Int != nil {
		args = append(args, ndarray.Int(*v.Int))
	}
	if v.Float != nil {
		args = append(args, ndarray.Float(*v.Float))
	}
	if v.Bool != nil {
		args = append(args, ndarray.Bool(*v.Bool))
	}
	if v.Shape != nil {
		shape := make(ndarray.Shape, len(v.Shape))
		for i, dim := range v.Shape {
			shape[i] = int(dim)
		}
		args = append(args, shape)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("value must set exactly one field, got %d", len(args))
	}
	return args[0], nil
}
