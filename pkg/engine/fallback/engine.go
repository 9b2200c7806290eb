package fallback

import (
	"fmt"
	"sync"

	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

// Status codes returned by the fallback engine.
const (
	statusOK    = 0
	statusError = -1
)

// Engine is a pure-Go ndarray.Engine. Like a native engine it runs kernels
// asynchronously: invocations and host writes are queued and only take
// effect on WaitAll. With strict fencing (the default), reading or writing
// tensors from the host while work is queued fails, which catches callers
// that forget to fence.
type Engine struct {
	mu sync.Mutex

	operators []*operator
	tensors   map[ndarray.TensorHandle]*tensor
	next      ndarray.TensorHandle

	// queue holds pending work in submission order.
	queue []func() error

	strict    bool
	lastError string

	waitAllCalls int
}

var _ ndarray.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithStrictFencing controls whether host access with queued work is an error.
func WithStrictFencing(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// New returns an engine with the built-in operators.
func New(opts ...Option) *Engine {
	e := &Engine{
		operators: builtinOperators(),
		tensors:   make(map[ndarray.TensorHandle]*tensor),
		strict:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// fail records msg as the last error and returns the error status.
func (e *Engine) fail(format string, args ...any) int {
	e.lastError = fmt.Sprintf(format, args...)
	return statusError
}

// checkFenced fails if work is queued and strict fencing is on.
func (e *Engine) checkFenced(call string) int {
	if e.strict && len(e.queue) != 0 {
		return e.fail("%s: %d operations pending; WaitAll must be called first", call, len(e.queue))
	}
	return statusOK
}

func (e *Engine) lookup(h ndarray.TensorHandle) (*tensor, int) {
	t, found := e.tensors[h]
	if !found {
		return nil, e.fail("invalid tensor handle %#x", uintptr(h))
	}
	return t, statusOK
}

func (e *Engine) register(t *tensor) ndarray.TensorHandle {
	e.next++
	e.tensors[e.next] = t
	return e.next
}

func (e *Engine) ListOperatorCreators() ([]ndarray.CreatorHandle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	creators := make([]ndarray.CreatorHandle, len(e.operators))
	for i := range e.operators {
		creators[i] = ndarray.CreatorHandle(i + 1)
	}
	return creators, statusOK
}

func (e *Engine) operator(creator ndarray.CreatorHandle) (*operator, int) {
	i := int(creator) - 1
	if i < 0 || i >= len(e.operators) {
		return nil, e.fail("invalid operator creator %#x", uintptr(creator))
	}
	return e.operators[i], statusOK
}

func (e *Engine) DescribeOperator(creator ndarray.CreatorHandle) (ndarray.OperatorInfo, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op, rc := e.operator(creator)
	if rc != statusOK {
		return ndarray.OperatorInfo{}, rc
	}
	return op.info(), statusOK
}

func (e *Engine) CreateTensor(shape []uint32, dtype int32) (ndarray.TensorHandle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rc := e.checkFenced("CreateTensor"); rc != statusOK {
		return 0, rc
	}
	t, err := newTensor(shape, ndarray.DType(dtype))
	if err != nil {
		return 0, e.fail("CreateTensor: %v", err)
	}
	return e.register(t), statusOK
}

func (e *Engine) FreeTensor(h ndarray.TensorHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, rc := e.lookup(h); rc != statusOK {
		return rc
	}
	// Queued kernels hold their own references.
	delete(e.tensors, h)
	return statusOK
}

func (e *Engine) CopyFromHost(h ndarray.TensorHandle, data []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rc := e.checkFenced("CopyFromHost"); rc != statusOK {
		return rc
	}
	t, rc := e.lookup(h)
	if rc != statusOK {
		return rc
	}
	if len(data) != len(t.data) {
		return e.fail("CopyFromHost: size mismatch, tensor holds %d bytes but %d were provided", len(t.data), len(data))
	}
	staged := make([]byte, len(data))
	copy(staged, data)
	e.queue = append(e.queue, func() error {
		copy(t.data, staged)
		return nil
	})
	return statusOK
}

func (e *Engine) CopyToHost(h ndarray.TensorHandle, data []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rc := e.checkFenced("CopyToHost"); rc != statusOK {
		return rc
	}
	t, rc := e.lookup(h)
	if rc != statusOK {
		return rc
	}
	if len(data) != len(t.data) {
		return e.fail("CopyToHost: size mismatch, tensor holds %d bytes but buffer has %d", len(t.data), len(data))
	}
	copy(data, t.data)
	return statusOK
}

func (e *Engine) GetShape(h ndarray.TensorHandle) ([]uint32, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rc := e.checkFenced("GetShape"); rc != statusOK {
		return nil, rc
	}
	t, rc := e.lookup(h)
	if rc != statusOK {
		return nil, rc
	}
	return append([]uint32(nil), t.shape...), statusOK
}

func (e *Engine) GetDType(h ndarray.TensorHandle) (int32, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rc := e.checkFenced("GetDType"); rc != statusOK {
		return 0, rc
	}
	t, rc := e.lookup(h)
	if rc != statusOK {
		return 0, rc
	}
	return t.dtype.Code(), statusOK
}

func (e *Engine) WaitAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.waitAllCalls++
	return e.drain()
}

// drain runs all queued work. The first failing kernel's error is reported;
// the remaining work still runs, as it would on a native engine.
func (e *Engine) drain() int {
	queue := e.queue
	e.queue = nil
	rc := statusOK
	for _, work := range queue {
		if err := work(); err != nil && rc == statusOK {
			rc = e.fail("%v", err)
		}
	}
	return rc
}

func (e *Engine) Invoke(creator ndarray.CreatorHandle, inputs []ndarray.TensorHandle, outputs []ndarray.TensorHandle, keys []string, vals []string) ([]ndarray.TensorHandle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op, rc := e.operator(creator)
	if rc != statusOK {
		return nil, rc
	}
	if len(keys) != len(vals) {
		return nil, e.fail("%s: %d parameter keys but %d values", op.name, len(keys), len(vals))
	}
	params, err := op.parseParams(keys, vals)
	if err != nil {
		return nil, e.fail("%s: %v", op.name, err)
	}

	in := make([]*tensor, len(inputs))
	for i, h := range inputs {
		t, rc := e.lookup(h)
		if rc != statusOK {
			return nil, rc
		}
		in[i] = t
	}
	if op.numInputs >= 0 && len(in) != op.numInputs {
		return nil, e.fail("%s: expected %d inputs, got %d", op.name, op.numInputs, len(in))
	}

	if op.readsInputs {
		// Output shapes depend on input contents, so queued writes must land first.
		if rc := e.drain(); rc != statusOK {
			return nil, rc
		}
	}

	specs, kernel, err := op.prepare(in, params)
	if err != nil {
		return nil, e.fail("%s: %v", op.name, err)
	}
	for _, spec := range specs {
		if _, err := tensorBytes(spec.shape, spec.dtype); err != nil {
			return nil, e.fail("%s: %v", op.name, err)
		}
	}

	var out []*tensor
	if len(outputs) != 0 {
		if len(outputs) != len(specs) {
			return nil, e.fail("%s: produces %d outputs, but %d were provided", op.name, len(specs), len(outputs))
		}
		for i, h := range outputs {
			t, rc := e.lookup(h)
			if rc != statusOK {
				return nil, rc
			}
			if numElements(t.shape) != numElements(specs[i].shape) {
				return nil, e.fail("%s: output %d has shape %v, expected %v", op.name, i, t.shape, specs[i].shape)
			}
			out = append(out, t)
		}
	} else {
		for _, spec := range specs {
			t, err := newTensor(spec.shape, spec.dtype)
			if err != nil {
				return nil, e.fail("%s: %v", op.name, err)
			}
			out = append(out, t)
			outputs = append(outputs, e.register(t))
		}
	}

	e.queue = append(e.queue, func() error {
		return kernel(out)
	})
	return outputs, statusOK
}

func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

// Stats reports engine counters, for tests and diagnostics.
type Stats struct {
	LiveTensors  int
	Pending      int
	WaitAllCalls int
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		LiveTensors:  len(e.tensors),
		Pending:      len(e.queue),
		WaitAllCalls: e.waitAllCalls,
	}
}
