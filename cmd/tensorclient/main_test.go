package main

import (
	"context"
	"flag"
	"reflect"
	"testing"

	"github.com/justinsb/mxinvoke/pkg/engine"
	"github.com/justinsb/mxinvoke/pkg/engine/fallback"
	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

func TestSampleRequest(t *testing.T) {
	ctx := context.Background()
	scope := engine.NewCalculationScope(ndarray.NewRuntime(fallback.New()))
	defer scope.Close()

	response, err := engine.Evaluate(ctx, scope, sampleRequest())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if got, want := response.Results[0].InlineData.Values, []float32{3, 6, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseConfig(t *testing.T) {
	t.Setenv("TENSOR_SERVER", "tensorserver:9876")

	cfg, err := ParseConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--operators"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Server != "tensorserver:9876" || !cfg.Operators {
		t.Errorf("unexpected config %+v", cfg)
	}
}
