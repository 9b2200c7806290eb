package ndarray

import (
	"sync"
)

// fakeEngine is a scripted Engine that records every call.
type fakeEngine struct {
	mu sync.Mutex

	operators []fakeOperator
	tensors   map[TensorHandle]*fakeTensor
	next      TensorHandle
	lastError string

	calls []string
	freed []TensorHandle

	// failures maps a method name to the status it should return.
	failures map[string]int

	lastKeys []string
	lastVals []string
}

type fakeOperator struct {
	info OperatorInfo
	run  func(e *fakeEngine, inputs, outputs []TensorHandle, params map[string]string) []TensorHandle
}

type fakeTensor struct {
	shape []uint32
	dtype int32
	data  []byte
}

func newFakeEngine(operators ...fakeOperator) *fakeEngine {
	return &fakeEngine{
		operators: operators,
		tensors:   make(map[TensorHandle]*fakeTensor),
		failures:  make(map[string]int),
	}
}

func (e *fakeEngine) record(call string) int {
	e.calls = append(e.calls, call)
	if rc := e.failures[call]; rc != 0 {
		e.lastError = call + " failed"
		return rc
	}
	return 0
}

func (e *fakeEngine) count(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (e *fakeEngine) resetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

func (e *fakeEngine) callLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) alloc(shape []uint32, dtype int32) TensorHandle {
	e.next++
	n := DType(dtype).Size()
	for _, dim := range shape {
		n *= int(dim)
	}
	e.tensors[e.next] = &fakeTensor{shape: append([]uint32(nil), shape...), dtype: dtype, data: make([]byte, n)}
	return e.next
}

func (e *fakeEngine) ListOperatorCreators() ([]CreatorHandle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("ListOperatorCreators"); rc != 0 {
		return nil, rc
	}
	creators := make([]CreatorHandle, len(e.operators))
	for i := range e.operators {
		creators[i] = CreatorHandle(i + 1)
	}
	return creators, 0
}

func (e *fakeEngine) DescribeOperator(creator CreatorHandle) (OperatorInfo, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("DescribeOperator"); rc != 0 {
		return OperatorInfo{}, rc
	}
	return e.operators[creator-1].info, 0
}

func (e *fakeEngine) CreateTensor(shape []uint32, dtype int32) (TensorHandle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("CreateTensor"); rc != 0 {
		return 0, rc
	}
	return e.alloc(shape, dtype), 0
}

func (e *fakeEngine) FreeTensor(h TensorHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("FreeTensor"); rc != 0 {
		return rc
	}
	delete(e.tensors, h)
	e.freed = append(e.freed, h)
	return 0
}

func (e *fakeEngine) CopyFromHost(h TensorHandle, data []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("CopyFromHost"); rc != 0 {
		return rc
	}
	t := e.tensors[h]
	if len(data) != len(t.data) {
		e.lastError = "size mismatch"
		return -1
	}
	copy(t.data, data)
	return 0
}

func (e *fakeEngine) CopyToHost(h TensorHandle, data []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("CopyToHost"); rc != 0 {
		return rc
	}
	copy(data, e.tensors[h].data)
	return 0
}

func (e *fakeEngine) GetShape(h TensorHandle) ([]uint32, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("GetShape"); rc != 0 {
		return nil, rc
	}
	return e.tensors[h].shape, 0
}

func (e *fakeEngine) GetDType(h TensorHandle) (int32, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("GetDType"); rc != 0 {
		return 0, rc
	}
	return e.tensors[h].dtype, 0
}

func (e *fakeEngine) WaitAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record("WaitAll")
}

func (e *fakeEngine) Invoke(creator CreatorHandle, inputs []TensorHandle, outputs []TensorHandle, keys []string, vals []string) ([]TensorHandle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc := e.record("Invoke"); rc != 0 {
		return nil, rc
	}
	e.lastKeys = keys
	e.lastVals = vals
	params := make(map[string]string, len(keys))
	for i, key := range keys {
		params[key] = vals[i]
	}
	return e.operators[creator-1].run(e, inputs, outputs, params), 0
}

func (e *fakeEngine) LastError() string {
	return e.lastError
}

// copyOperator copies its input into the preallocated output, or allocates one.
func copyOperator() fakeOperator {
	return fakeOperator{
		info: OperatorInfo{Name: CopyOperator, ArgNames: []string{"data"}, ArgTypes: []string{"NDArray"}},
		run: func(e *fakeEngine, inputs, outputs []TensorHandle, params map[string]string) []TensorHandle {
			src := e.tensors[inputs[0]]
			if len(outputs) == 0 {
				outputs = []TensorHandle{e.alloc(src.shape, src.dtype)}
			}
			dst := e.tensors[outputs[0]]
			dst.shape = append([]uint32(nil), src.shape...)
			copy(dst.data, src.data)
			return outputs
		},
	}
}

// splitOperator always allocates two outputs.
func splitOperator() fakeOperator {
	return fakeOperator{
		info: OperatorInfo{Name: "split", ArgNames: []string{"data", "num_outputs"}, ArgTypes: []string{"NDArray-or-Symbol", "int, required"}},
		run: func(e *fakeEngine, inputs, outputs []TensorHandle, params map[string]string) []TensorHandle {
			src := e.tensors[inputs[0]]
			return []TensorHandle{e.alloc(src.shape, src.dtype), e.alloc(src.shape, src.dtype)}
		},
	}
}

// nullOperator claims to allocate an output but returns a zero handle.
func nullOperator() fakeOperator {
	return fakeOperator{
		info: OperatorInfo{Name: "null"},
		run: func(e *fakeEngine, inputs, outputs []TensorHandle, params map[string]string) []TensorHandle {
			return []TensorHandle{0}
		},
	}
}

// sumOperator has mixed tensor and scalar arguments.
func sumOperator() fakeOperator {
	return fakeOperator{
		info: OperatorInfo{
			Name:     "sum",
			ArgNames: []string{"data", "axis", "keepdims", "exclude"},
			ArgTypes: []string{"NDArray-or-Symbol", "Shape or None, optional, default=None", "boolean, optional, default=0", "boolean, optional, default=0"},
		},
		run: func(e *fakeEngine, inputs, outputs []TensorHandle, params map[string]string) []TensorHandle {
			if len(outputs) != 0 {
				return outputs
			}
			return []TensorHandle{e.alloc([]uint32{1}, int32(Float32))}
		},
	}
}
