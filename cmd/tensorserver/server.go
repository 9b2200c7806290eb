package main

import (
	"context"
	"errors"
	"strings"

	api "github.com/justinsb/mxinvoke/pkg/api/v1alpha1"
	"github.com/justinsb/mxinvoke/pkg/engine"
	"github.com/justinsb/mxinvoke/pkg/ndarray"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

type CalcServer struct {
	api.UnimplementedCalculatorServer

	rt *ndarray.Runtime
}

func NewCalcServer(rt *ndarray.Runtime) *CalcServer {
	return &CalcServer{rt: rt}
}

func (s *CalcServer) Calculate(ctx context.Context, req *api.CalculateRequest) (*api.CalculateResponse, error) {
	log := klog.FromContext(ctx)

	scope := engine.NewCalculationScope(s.rt)
	defer func() {
		if err := scope.Close(); err != nil {
			log.Error(err, "releasing calculation scope")
		}
	}()

	response, err := engine.Evaluate(ctx, scope, req)
	if err != nil {
		return nil, toStatus(err)
	}

	return response, nil
}

func (s *CalcServer) ListOperators(ctx context.Context, req *api.ListOperatorsRequest) (*api.ListOperatorsResponse, error) {
	catalog := s.rt.Catalog()
	names, err := catalog.Names(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	response := &api.ListOperatorsResponse{}
	for _, name := range names {
		if !strings.HasPrefix(name, req.Prefix) {
			continue
		}
		op, err := catalog.Lookup(ctx, name)
		if err != nil {
			return nil, toStatus(err)
		}
		response.Operators = append(response.Operators, &api.Operator{
			Name:        op.Name,
			Parameters:  op.Parameters,
			Description: op.Description,
		})
	}
	return response, nil
}

// toStatus maps evaluation errors onto gRPC status codes. Errors that
// already carry a status keep it.
func toStatus(err error) error {
	switch {
	case errors.Is(err, ndarray.ErrUnknownOperator),
		errors.Is(err, ndarray.ErrUnknownDType),
		errors.Is(err, ndarray.ErrTooManyArguments),
		errors.Is(err, ndarray.ErrHandleClosed),
		errors.Is(err, ndarray.ErrNilArgument),
		errors.Is(err, ndarray.ErrInvalidShape):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ndarray.ErrUnsupportedOutputArity):
		return status.Error(codes.Unimplemented, err.Error())
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return status.Error(st.Code(), err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
