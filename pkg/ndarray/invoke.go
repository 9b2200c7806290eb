package ndarray

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"k8s.io/klog/v2"
)

// Call binds args and kwargs against the operator and invokes it. See Bind
// and Invoke.
func (r *Runtime) Call(ctx context.Context, name string, args []Argument, kwargs map[string]Argument, out *Handle) (*Handle, error) {
	op, err := r.catalog.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	bound, err := Bind(args, kwargs, op)
	if err != nil {
		return nil, err
	}
	return r.invoke(ctx, op, bound.Inputs, bound.Params, out)
}

// Invoke runs an operator on tensor inputs with string parameters.
//
// If out is nil and the operator allocates a single output, the new tensor is
// returned. If out is non-nil the operator writes into it and Invoke returns
// nil. The two cases are told apart only by whether the engine's output count
// changed from the count passed in (1 with out, 0 without); a changed count
// other than 1 is ErrUnsupportedOutputArity.
func (r *Runtime) Invoke(ctx context.Context, name string, inputs []*Handle, params map[string]string, out *Handle) (*Handle, error) {
	op, err := r.catalog.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.invoke(ctx, op, inputs, params, out)
}

func (r *Runtime) invoke(ctx context.Context, op *OperatorDescriptor, inputs []*Handle, params map[string]string, out *Handle) (*Handle, error) {
	log := klog.FromContext(ctx)

	result, err := r.dispatch(ctx, op, inputs, params, out)
	if err != nil {
		r.observer.ObserveInvocation(op.Name, OutcomeError)
		return nil, err
	}
	if result != nil {
		r.observer.ObserveInvocation(op.Name, OutcomeAllocated)
		log.V(4).Info("operator allocated output", "operator", op.Name, "output", result)
	} else {
		r.observer.ObserveInvocation(op.Name, OutcomeInPlace)
	}
	return result, nil
}

func (r *Runtime) dispatch(ctx context.Context, op *OperatorDescriptor, inputs []*Handle, params map[string]string, out *Handle) (*Handle, error) {
	log := klog.FromContext(ctx)

	in := make([]TensorHandle, len(inputs))
	for i, input := range inputs {
		p, err := input.handle()
		if err != nil {
			return nil, fmt.Errorf("input %d of %q: %w", i, op.Name, err)
		}
		in[i] = p
	}

	keys, vals := marshalParams(params)

	var outputs []TensorHandle
	if out != nil {
		p, err := out.handle()
		if err != nil {
			return nil, fmt.Errorf("output of %q: %w", op.Name, err)
		}
		outputs = []TensorHandle{p}
	}
	expected := len(outputs)

	log.V(4).Info("invoking operator", "operator", op.Name, "inputs", inputs, "params", params, "output", out)

	// The raw handles above are only valid while their owners are reachable.
	defer runtime.KeepAlive(inputs)
	defer runtime.KeepAlive(out)

	r.mu.Lock()
	defer r.mu.Unlock()

	var results []TensorHandle
	if err := r.call("Invoke", renderCall(op.Name, in, keys, vals, outputs), func() int {
		var rc int
		results, rc = r.engine.Invoke(op.Creator, in, outputs, keys, vals)
		return rc
	}); err != nil {
		return nil, err
	}

	if len(results) == expected {
		return nil, nil
	}
	if len(results) == 1 {
		return r.wrap(results[0])
	}

	// Nothing else will ever own these.
	for _, p := range results {
		if p != 0 && (expected == 0 || p != outputs[0]) {
			if rc := r.engine.FreeTensor(p); rc != 0 {
				log.Error(&ForeignCallError{Status: rc, Call: "FreeTensor(" + formatTensorHandle(p) + ")", LastError: r.engine.LastError()}, "releasing unsupported output")
			}
		}
	}
	return nil, fmt.Errorf("%w: operator %q returned %d outputs, expected %d", ErrUnsupportedOutputArity, op.Name, len(results), expected)
}

// marshalParams flattens params into parallel key and value slices, sorted by key.
func marshalParams(params map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, key := range keys {
		vals[i] = params[key]
	}
	return keys, vals
}

// renderCall formats an invocation for error messages, e.g.
// "_copyto(0x1; out=0x2)".
func renderCall(name string, inputs []TensorHandle, keys, vals []string, outputs []TensorHandle) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatTensorHandle(p))
	}
	for i, key := range keys {
		if i > 0 || len(inputs) > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%q", key, vals[i])
	}
	if len(outputs) != 0 {
		b.WriteString("; out=")
		b.WriteString(formatTensorHandle(outputs[0]))
	}
	b.WriteByte(')')
	return b.String()
}
