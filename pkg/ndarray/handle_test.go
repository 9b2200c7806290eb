package ndarray

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strconv"
	"testing"
)

func TestHandleFencing(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, copyOperator())
	engine.resetCalls()

	h, err := rt.Create(ctx, []int{2, 2}, "uint8")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer h.Close()
	if want := []string{"WaitAll", "CreateTensor"}; !reflect.DeepEqual(engine.callLog(), want) {
		t.Errorf("create: expected calls %v, got %v", want, engine.callLog())
	}

	engine.resetCalls()
	if err := h.CopyFromHost(ctx, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("copy from host failed: %v", err)
	}
	if want := []string{"WaitAll", "CopyFromHost", "WaitAll"}; !reflect.DeepEqual(engine.callLog(), want) {
		t.Errorf("copy from host: expected calls %v, got %v", want, engine.callLog())
	}

	engine.resetCalls()
	shape, err := h.Shape(ctx)
	if err != nil {
		t.Fatalf("shape failed: %v", err)
	}
	if !reflect.DeepEqual(shape, []int{2, 2}) {
		t.Errorf("expected shape [2 2], got %v", shape)
	}
	if want := []string{"WaitAll", "GetShape"}; !reflect.DeepEqual(engine.callLog(), want) {
		t.Errorf("shape: expected calls %v, got %v", want, engine.callLog())
	}
}

func TestHandleCreateUnknownDType(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t)
	engine.resetCalls()

	if _, err := rt.Create(ctx, []int{1}, "complex64"); !errors.Is(err, ErrUnknownDType) {
		t.Fatalf("expected ErrUnknownDType, got %v", err)
	}
	if calls := engine.callLog(); len(calls) != 0 {
		t.Errorf("expected no engine calls, got %v", calls)
	}
}

func TestHandleForeignFailures(t *testing.T) {
	ctx := context.Background()

	for _, call := range []string{"WaitAll", "CreateTensor"} {
		rt, engine := newTestRuntime(t)
		engine.failures[call] = 3
		_, err := rt.Create(ctx, []int{1}, "float32")
		var foreignErr *ForeignCallError
		if !errors.As(err, &foreignErr) {
			t.Fatalf("%s: expected ForeignCallError, got %v", call, err)
		}
		if foreignErr.Status != 3 || foreignErr.LastError != call+" failed" {
			t.Errorf("%s: unexpected error %+v", call, foreignErr)
		}
	}

	rt, engine := newTestRuntime(t)
	h := mustCreate(t, rt, []int{4}, "uint8")
	if err := h.CopyFromHost(ctx, []byte{1, 2, 3}); err == nil {
		t.Errorf("expected a length mismatch to fail")
	} else {
		var foreignErr *ForeignCallError
		if !errors.As(err, &foreignErr) || foreignErr.LastError != "size mismatch" {
			t.Errorf("expected size mismatch from engine, got %v", err)
		}
	}

	engine.failures["GetShape"] = 1
	if _, err := h.Shape(ctx); err == nil {
		t.Errorf("expected shape to fail")
	}
}

func TestHandleCloseOnce(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, copyOperator())

	h, err := rt.Create(ctx, []int{1}, "float64")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if n := engine.count("FreeTensor"); n != 1 {
		t.Errorf("expected 1 FreeTensor call, got %d", n)
	}
	if h.String() != "<closed>" {
		t.Errorf("expected closed handle to render as <closed>, got %q", h.String())
	}

	if _, err := h.Shape(ctx); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("shape: expected ErrHandleClosed, got %v", err)
	}
	if err := h.CopyFromHost(ctx, []byte{0}); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("copy from host: expected ErrHandleClosed, got %v", err)
	}
	other := mustCreate(t, rt, []int{1}, "float64")
	if err := h.CopyTo(ctx, other); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("copy to: expected ErrHandleClosed, got %v", err)
	}
	if err := other.CopyTo(ctx, h); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("copy into closed: expected ErrHandleClosed, got %v", err)
	}
}

func TestHandleCopyTo(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, copyOperator())

	src := mustCreate(t, rt, []int{3}, "int8")
	if err := src.CopyFromHost(ctx, []byte{7, 8, 9}); err != nil {
		t.Fatalf("copy from host failed: %v", err)
	}
	dst := mustCreate(t, rt, []int{3}, "int8")
	engine.resetCalls()

	if err := src.CopyTo(ctx, dst); err != nil {
		t.Fatalf("copy to failed: %v", err)
	}
	if n := engine.count("Invoke"); n != 1 {
		t.Errorf("expected one Invoke call, got %d", n)
	}
	data, err := dst.CopyToHost(ctx)
	if err != nil {
		t.Fatalf("copy to host failed: %v", err)
	}
	if !reflect.DeepEqual(data, []byte{7, 8, 9}) {
		t.Errorf("expected [7 8 9], got %v", data)
	}
}

func TestHandleCreateRejectsUnrepresentableShape(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t)
	engine.resetCalls()

	shapes := [][]int{{-1}, {2, -3}}
	if strconv.IntSize == 64 {
		tooWide := uint64(math.MaxUint32) + 2
		shapes = append(shapes, []int{int(tooWide)}, []int{1, int(tooWide)})
	}
	for _, shape := range shapes {
		if _, err := rt.Create(ctx, shape, "uint8"); !errors.Is(err, ErrInvalidShape) {
			t.Errorf("create %v: expected ErrInvalidShape, got %v", shape, err)
		}
	}
	if calls := engine.callLog(); len(calls) != 0 {
		t.Errorf("expected no engine calls, got %v", calls)
	}
}
