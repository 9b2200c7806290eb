package v1alpha1

import (
	"strings"
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	if codec == nil {
		t.Fatalf("codec %q not registered", CodecName)
	}
	if codec.Name() != "json" {
		t.Errorf("unexpected codec name %q", codec.Name())
	}
}

func TestCodecRequest(t *testing.T) {
	req := &CalculateRequest{
		Tensors: []*Tensor{
			{Id: 1, InlineData: &InlineData{DType: "uint8", Dimensions: []int32{2}, Data: []byte{7, 9}}},
			{Id: 2, Computation: &TensorOperation{
				Operator: "_plus_scalar",
				Sources:  []int32{1},
				Kwargs:   map[string]*Value{"scalar": FloatValue(1.5)},
			}},
		},
		OutputTensors: []int32{2},
	}

	b, err := Codec{}.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	// Bytes travel as base64.
	if !strings.Contains(string(b), `"data":"Bwk="`) {
		t.Errorf("expected base64 data in %s", b)
	}

	got := &CalculateRequest{}
	if err := (Codec{}).Unmarshal(b, got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	op := got.GetTensors()[1].GetComputation()
	if op.GetOperator() != "_plus_scalar" || *op.GetKwargs()["scalar"].Float != 1.5 {
		t.Errorf("unexpected computation %+v", op)
	}
}

func TestCodecRejectsMalformed(t *testing.T) {
	if err := (Codec{}).Unmarshal([]byte("{"), &CalculateRequest{}); err == nil {
		t.Fatalf("expected malformed JSON to fail")
	}
}

func TestNilGetters(t *testing.T) {
	var tensor *Tensor
	if tensor.GetInlineData() != nil || tensor.GetComputation() != nil {
		t.Errorf("expected nil getters on nil tensor")
	}
	var data *InlineData
	if data.GetDType() != "float32" {
		t.Errorf("expected float32 default dtype, got %q", data.GetDType())
	}
}
