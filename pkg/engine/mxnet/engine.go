//go:build mxnet

package mxnet

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/justinsb/mxinvoke/pkg/ndarray"
	native "github.com/justinsb/mxinvoke/third_party/mxnet"
)

// statusInvalidHandle is reported for handles the table does not know.
const statusInvalidHandle = -1

// Engine forwards to libmxnet. Native pointers never leave this package:
// callers see small integer handles that index a table.
type Engine struct {
	opts Options

	mu       sync.Mutex
	creators []native.Creator
	tensors  map[ndarray.TensorHandle]native.NDArray
	next     ndarray.TensorHandle

	lastError string
}

var _ ndarray.Engine = (*Engine)(nil)

// New returns an engine that places tensors on the configured device.
func New(opts Options) (ndarray.Engine, error) {
	return &Engine{
		opts:    opts,
		tensors: make(map[ndarray.TensorHandle]native.NDArray),
	}, nil
}

func (e *Engine) invalid(h ndarray.TensorHandle) int {
	e.lastError = fmt.Sprintf("invalid tensor handle %#x", uintptr(h))
	return statusInvalidHandle
}

func (e *Engine) lookup(h ndarray.TensorHandle) (native.NDArray, int) {
	a, found := e.tensors[h]
	if !found {
		return native.NDArray{}, e.invalid(h)
	}
	return a, 0
}

func (e *Engine) register(a native.NDArray) ndarray.TensorHandle {
	e.next++
	e.tensors[e.next] = a
	return e.next
}

// enter locks the engine and pins the goroutine to its OS thread until the
// returned func runs. The native last-error message is thread-local, so a
// call and the status read that follows it must share a thread.
func (e *Engine) enter() func() {
	runtime.LockOSThread()
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		runtime.UnlockOSThread()
	}
}

// status captures the library's message for a failed call. It must run on
// the thread that made the call, inside enter.
func (e *Engine) status(rc int) int {
	if rc != 0 {
		e.lastError = native.LastError()
	}
	return rc
}

func (e *Engine) ListOperatorCreators() ([]ndarray.CreatorHandle, int) {
	defer e.enter()()

	creators, rc := native.ListAtomicSymbolCreators()
	if rc != 0 {
		return nil, e.status(rc)
	}
	e.creators = creators
	handles := make([]ndarray.CreatorHandle, len(creators))
	for i := range creators {
		handles[i] = ndarray.CreatorHandle(i + 1)
	}
	return handles, 0
}

func (e *Engine) creator(h ndarray.CreatorHandle) (native.Creator, int) {
	i := int(h) - 1
	if i < 0 || i >= len(e.creators) {
		e.lastError = fmt.Sprintf("invalid operator creator %#x", uintptr(h))
		return native.Creator{}, statusInvalidHandle
	}
	return e.creators[i], 0
}

func (e *Engine) DescribeOperator(h ndarray.CreatorHandle) (ndarray.OperatorInfo, int) {
	defer e.enter()()

	creator, rc := e.creator(h)
	if rc != 0 {
		return ndarray.OperatorInfo{}, rc
	}
	info, rc := native.GetAtomicSymbolInfo(creator)
	if rc != 0 {
		return ndarray.OperatorInfo{}, e.status(rc)
	}
	return ndarray.OperatorInfo(info), 0
}

func (e *Engine) CreateTensor(shape []uint32, dtype int32) (ndarray.TensorHandle, int) {
	defer e.enter()()

	a, rc := native.CreateNDArray(shape, e.opts.DeviceType, e.opts.DeviceID, dtype)
	if rc != 0 {
		return 0, e.status(rc)
	}
	return e.register(a), 0
}

func (e *Engine) FreeTensor(h ndarray.TensorHandle) int {
	defer e.enter()()

	a, rc := e.lookup(h)
	if rc != 0 {
		return rc
	}
	delete(e.tensors, h)
	return e.status(a.Free())
}

// elements converts a byte count into an element count for a's dtype.
func (e *Engine) elements(a native.NDArray, n int) (int, int) {
	code, rc := a.DType()
	if rc != 0 {
		return 0, e.status(rc)
	}
	dtype := ndarray.DType(code)
	if !dtype.Valid() {
		e.lastError = fmt.Sprintf("unknown dtype code %d", code)
		return 0, statusInvalidHandle
	}
	if n%dtype.Size() != 0 {
		e.lastError = fmt.Sprintf("%d bytes is not a whole number of %s elements", n, dtype)
		return 0, statusInvalidHandle
	}
	return n / dtype.Size(), 0
}

func (e *Engine) CopyFromHost(h ndarray.TensorHandle, data []byte) int {
	defer e.enter()()

	a, rc := e.lookup(h)
	if rc != 0 {
		return rc
	}
	n, rc := e.elements(a, len(data))
	if rc != 0 {
		return rc
	}
	return e.status(a.SyncCopyFromCPU(data, n))
}

func (e *Engine) CopyToHost(h ndarray.TensorHandle, data []byte) int {
	defer e.enter()()

	a, rc := e.lookup(h)
	if rc != 0 {
		return rc
	}
	n, rc := e.elements(a, len(data))
	if rc != 0 {
		return rc
	}
	return e.status(a.SyncCopyToCPU(data, n))
}

func (e *Engine) GetShape(h ndarray.TensorHandle) ([]uint32, int) {
	defer e.enter()()

	a, rc := e.lookup(h)
	if rc != 0 {
		return nil, rc
	}
	shape, rc := a.Shape()
	return shape, e.status(rc)
}

func (e *Engine) GetDType(h ndarray.TensorHandle) (int32, int) {
	defer e.enter()()

	a, rc := e.lookup(h)
	if rc != 0 {
		return 0, rc
	}
	dtype, rc := a.DType()
	return dtype, e.status(rc)
}

func (e *Engine) WaitAll() int {
	defer e.enter()()

	return e.status(native.WaitAll())
}

func (e *Engine) Invoke(h ndarray.CreatorHandle, inputs []ndarray.TensorHandle, outputs []ndarray.TensorHandle, keys []string, vals []string) ([]ndarray.TensorHandle, int) {
	defer e.enter()()

	creator, rc := e.creator(h)
	if rc != 0 {
		return nil, rc
	}
	in := make([]native.NDArray, len(inputs))
	for i, t := range inputs {
		if in[i], rc = e.lookup(t); rc != 0 {
			return nil, rc
		}
	}
	out := make([]native.NDArray, len(outputs))
	for i, t := range outputs {
		if out[i], rc = e.lookup(t); rc != 0 {
			return nil, rc
		}
	}

	results, rc := native.ImperativeInvoke(creator, in, out, keys, vals)
	if rc != 0 {
		return nil, e.status(rc)
	}
	if len(outputs) != 0 && len(results) == len(outputs) {
		return outputs, 0
	}
	handles := make([]ndarray.TensorHandle, len(results))
	for i, a := range results {
		handles[i] = e.register(a)
	}
	return handles, 0
}

func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}
