package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	api "github.com/justinsb/mxinvoke/pkg/api/v1alpha1"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"k8s.io/klog/v2"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	klog.InitFlags(nil)
	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	log := klog.FromContext(ctx)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}

	conn, err := grpc.NewClient(cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to server %q: %w", cfg.Server, err)
	}
	defer conn.Close()
	client := api.NewCalculatorClient(conn)

	log.Info("Starting tensorclient", "server", cfg.Server)

	if cfg.Operators {
		response, err := client.ListOperators(ctx, &api.ListOperatorsRequest{Prefix: cfg.Prefix})
		if err != nil {
			return fmt.Errorf("failed to list operators: %w", err)
		}
		for _, op := range response.Operators {
			fmt.Printf("%s(%v)\n", op.Name, op.Parameters)
		}
		return nil
	}

	response, err := client.Calculate(ctx, sampleRequest())
	if err != nil {
		return fmt.Errorf("failed to calculate: %w", err)
	}
	for _, result := range response.Results {
		log.Info("Result", "id", result.Id, "dtype", result.InlineData.GetDType(), "dimensions", result.InlineData.GetDimensions(), "values", result.InlineData.GetValues())
	}

	return nil
}

// sampleRequest computes (x * 2) + x for a small float32 vector.
func sampleRequest() *api.CalculateRequest {
	return &api.CalculateRequest{
		Tensors: []*api.Tensor{
			{Id: 1, InlineData: &api.InlineData{Dimensions: []int32{3}, Values: []float32{1, 2, 3}}},
			{Id: 2, Computation: &api.TensorOperation{
				Operator: "_mul_scalar",
				Sources:  []int32{1},
				Kwargs:   map[string]*api.Value{"scalar": api.FloatValue(2)},
			}},
			{Id: 3, Computation: &api.TensorOperation{
				Operator: "elemwise_add",
				Sources:  []int32{2, 1},
			}},
		},
		OutputTensors: []int32{3},
	}
}
