package ndarray

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestRuntime(t *testing.T, operators ...fakeOperator) (*Runtime, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine(operators...)
	rt := NewRuntime(engine)
	if err := rt.Catalog().Build(context.Background()); err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return rt, engine
}

func mustCreate(t *testing.T, rt *Runtime, shape []int, dtype string) *Handle {
	t.Helper()
	h, err := rt.Create(context.Background(), shape, dtype)
	if err != nil {
		t.Fatalf("creating tensor: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestInvokeAllocatesOutput(t *testing.T) {
	ctx := context.Background()
	rt, _ := newTestRuntime(t, copyOperator())

	src := mustCreate(t, rt, []int{2, 3}, "float32")
	out, err := rt.Invoke(ctx, CopyOperator, []*Handle{src}, nil, nil)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a new output handle")
	}
	defer out.Close()

	shape, err := out.Shape(ctx)
	if err != nil {
		t.Fatalf("shape failed: %v", err)
	}
	if !reflect.DeepEqual(shape, []int{2, 3}) {
		t.Errorf("expected shape [2 3], got %v", shape)
	}
}

func TestInvokeInPlace(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, copyOperator())

	src := mustCreate(t, rt, []int{4}, "uint8")
	if err := src.CopyFromHost(ctx, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("copy from host failed: %v", err)
	}
	dst := mustCreate(t, rt, []int{4}, "uint8")

	out, err := rt.Invoke(ctx, CopyOperator, []*Handle{src}, nil, dst)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if out != nil {
		t.Fatalf("expected in-place invocation to return nil, got %v", out)
	}

	data, err := dst.CopyToHost(ctx)
	if err != nil {
		t.Fatalf("copy to host failed: %v", err)
	}
	if !reflect.DeepEqual(data, []byte{1, 2, 3, 4}) {
		t.Errorf("expected output filled in place, got %v", data)
	}
	if len(engine.tensors) != 2 {
		t.Errorf("expected no extra tensors, engine holds %d", len(engine.tensors))
	}
}

func TestInvokeMarshalsParams(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, sumOperator())

	src := mustCreate(t, rt, []int{2}, "float32")
	out, err := rt.Call(ctx, "sum", []Argument{src, Shape{0}}, map[string]Argument{"exclude": Bool(true), "axis": Int(5)}, nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	defer out.Close()

	if want := []string{"axis", "exclude"}; !reflect.DeepEqual(engine.lastKeys, want) {
		t.Errorf("expected keys %v, got %v", want, engine.lastKeys)
	}
	if want := []string{"(0)", "true"}; !reflect.DeepEqual(engine.lastVals, want) {
		t.Errorf("expected vals %v, got %v", want, engine.lastVals)
	}
}

func TestInvokeUnsupportedOutputArity(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, splitOperator())

	src := mustCreate(t, rt, []int{2}, "float32")
	out, err := rt.Call(ctx, "split", []Argument{src, Int(2)}, nil, nil)
	if !errors.Is(err, ErrUnsupportedOutputArity) {
		t.Fatalf("expected ErrUnsupportedOutputArity, got %v (out %v)", err, out)
	}
	if len(engine.freed) != 2 {
		t.Errorf("expected both unowned outputs to be released, freed %v", engine.freed)
	}
}

func TestInvokeNullOutput(t *testing.T) {
	ctx := context.Background()
	rt, _ := newTestRuntime(t, nullOperator())

	if _, err := rt.Invoke(ctx, "null", nil, nil, nil); !errors.Is(err, ErrNullHandle) {
		t.Fatalf("expected ErrNullHandle, got %v", err)
	}
}

func TestInvokeForeignFailure(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, sumOperator())
	engine.failures["Invoke"] = 7

	src := mustCreate(t, rt, []int{2}, "float32")
	_, err := rt.Call(ctx, "sum", []Argument{src}, map[string]Argument{"keepdims": Bool(true)}, nil)

	var foreignErr *ForeignCallError
	if !errors.As(err, &foreignErr) {
		t.Fatalf("expected ForeignCallError, got %v", err)
	}
	if foreignErr.Status != 7 {
		t.Errorf("expected status 7, got %d", foreignErr.Status)
	}
	msg := err.Error()
	for _, want := range []string{"7", `sum(0x1, keepdims="true")`, "Invoke failed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error %q to contain %q", msg, want)
		}
	}
}

func TestInvokeUnknownOperatorMakesNoCall(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, copyOperator())
	engine.resetCalls()

	_, err := rt.Call(ctx, "_does_not_exist", nil, nil, nil)
	if !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
	if calls := engine.callLog(); len(calls) != 0 {
		t.Errorf("expected no engine calls, got %v", calls)
	}
}

func TestInvokeClosedInput(t *testing.T) {
	ctx := context.Background()
	rt, engine := newTestRuntime(t, copyOperator())

	src, err := rt.Create(ctx, []int{1}, "int8")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	engine.resetCalls()

	if _, err := rt.Invoke(ctx, CopyOperator, []*Handle{src}, nil, nil); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed, got %v", err)
	}
	if n := engine.count("Invoke"); n != 0 {
		t.Errorf("expected no Invoke call, got %d", n)
	}
}

type recordingObserver struct {
	mu          sync.Mutex
	calls       map[string]int
	invocations map[string]int
	handles     int
}

func (o *recordingObserver) ObserveForeignCall(call string, elapsed time.Duration, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[call]++
}

func (o *recordingObserver) ObserveInvocation(operator string, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invocations[operator+"/"+outcome]++
}

func (o *recordingObserver) ObserveHandles(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handles += delta
}

func TestInvokeObserver(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{calls: map[string]int{}, invocations: map[string]int{}}
	engine := newFakeEngine(copyOperator())
	rt := NewRuntime(engine, WithObserver(observer))

	src, err := rt.Create(ctx, []int{3}, "float32")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	out, err := rt.Invoke(ctx, CopyOperator, []*Handle{src}, nil, nil)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if err := src.CopyTo(ctx, out); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if observer.handles != 2 {
		t.Errorf("expected 2 live handles, got %d", observer.handles)
	}
	src.Close()
	out.Close()

	if observer.handles != 0 {
		t.Errorf("expected 0 live handles, got %d", observer.handles)
	}
	if got := observer.invocations["_copyto/allocated"]; got != 1 {
		t.Errorf("expected 1 allocated invocation, got %d", got)
	}
	if got := observer.invocations["_copyto/in_place"]; got != 1 {
		t.Errorf("expected 1 in-place invocation, got %d", got)
	}
	if got := observer.calls["Invoke"]; got != 2 {
		t.Errorf("expected 2 Invoke calls, got %d", got)
	}
	if got := observer.calls["FreeTensor"]; got != 2 {
		t.Errorf("expected 2 FreeTensor calls, got %d", got)
	}
}

func TestSharedCatalog(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine(copyOperator())
	catalog := NewCatalog(engine)

	a := NewRuntime(engine, WithCatalog(catalog))
	b := NewRuntime(engine, WithCatalog(catalog))

	var wg sync.WaitGroup
	for _, rt := range []*Runtime{a, b, a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rt.Catalog().Lookup(ctx, CopyOperator); err != nil {
				t.Errorf("lookup failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := engine.count("ListOperatorCreators"); n != 1 {
		t.Errorf("expected one catalog build, got %d", n)
	}
}
