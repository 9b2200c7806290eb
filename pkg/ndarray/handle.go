package ndarray

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync/atomic"
)

// CopyOperator is the engine operator used by Handle.CopyTo.
const CopyOperator = "_copyto"

// Handle owns one engine tensor. The tensor is released by Close, or by a
// finalizer if the Handle becomes unreachable first; either way exactly once.
// A Handle must not be copied.
type Handle struct {
	rt *Runtime
	p  atomic.Uintptr
}

// wrap takes ownership of an engine tensor.
func (r *Runtime) wrap(p TensorHandle) (*Handle, error) {
	if p == 0 {
		return nil, ErrNullHandle
	}
	h := &Handle{rt: r}
	h.p.Store(uintptr(p))
	runtime.SetFinalizer(h, func(h *Handle) {
		h.Close()
	})
	r.observer.ObserveHandles(1)
	return h, nil
}

// engineShape converts a shape to the engine's unsigned 32-bit dimensions.
func engineShape(shape []int) ([]uint32, error) {
	dims := make([]uint32, len(shape))
	for i, n := range shape {
		if n < 0 || uint64(n) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: dimension %d of %v is outside [0, %d]", ErrInvalidShape, i, shape, uint64(math.MaxUint32))
		}
		dims[i] = uint32(n)
	}
	return dims, nil
}

// Create allocates a tensor of the given shape and element type.
func (r *Runtime) Create(ctx context.Context, shape []int, dtype string) (*Handle, error) {
	d, err := ParseDType(dtype)
	if err != nil {
		return nil, err
	}
	dims, err := engineShape(shape)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fence(); err != nil {
		return nil, err
	}
	var p TensorHandle
	args := fmt.Sprintf("%v, %s", shape, d)
	if err := r.call("CreateTensor", args, func() int {
		var rc int
		p, rc = r.engine.CreateTensor(dims, d.Code())
		return rc
	}); err != nil {
		return nil, err
	}
	return r.wrap(p)
}

// handle returns the engine tensor, or ErrHandleClosed. The caller must keep
// h reachable until the engine is done with the result.
func (h *Handle) handle() (TensorHandle, error) {
	if h == nil {
		return 0, ErrNullHandle
	}
	p := TensorHandle(h.p.Load())
	if p == 0 {
		return 0, ErrHandleClosed
	}
	return p, nil
}

// CopyFromHost overwrites the tensor with data, which must match its size in
// bytes exactly. Pending engine work is fenced before and after the copy.
func (h *Handle) CopyFromHost(ctx context.Context, data []byte) error {
	p, err := h.handle()
	if err != nil {
		return err
	}
	defer runtime.KeepAlive(h)

	r := h.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fence(); err != nil {
		return err
	}
	if err := r.call("CopyFromHost", fmt.Sprintf("%s, %d bytes", h, len(data)), func() int {
		return r.engine.CopyFromHost(p, data)
	}); err != nil {
		return err
	}
	return r.fence()
}

// CopyToHost returns the tensor's contents as bytes of its element type.
func (h *Handle) CopyToHost(ctx context.Context) ([]byte, error) {
	p, err := h.handle()
	if err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(h)

	r := h.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fence(); err != nil {
		return nil, err
	}
	shape, err := h.shape(p)
	if err != nil {
		return nil, err
	}
	dtype, err := h.dtype(p)
	if err != nil {
		return nil, err
	}
	n := dtype.Size()
	for _, dim := range shape {
		n *= dim
	}
	data := make([]byte, n)
	if err := r.call("CopyToHost", fmt.Sprintf("%s, %d bytes", h, n), func() int {
		return r.engine.CopyToHost(p, data)
	}); err != nil {
		return nil, err
	}
	return data, nil
}

// Shape returns the extent of each axis.
func (h *Handle) Shape(ctx context.Context) ([]int, error) {
	p, err := h.handle()
	if err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(h)

	r := h.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fence(); err != nil {
		return nil, err
	}
	return h.shape(p)
}

// shape queries the engine; r.mu must be held and pending work fenced.
func (h *Handle) shape(p TensorHandle) ([]int, error) {
	var dims []uint32
	if err := h.rt.call("GetShape", h.String(), func() int {
		var rc int
		dims, rc = h.rt.engine.GetShape(p)
		return rc
	}); err != nil {
		return nil, err
	}
	shape := make([]int, len(dims))
	for i, dim := range dims {
		shape[i] = int(dim)
	}
	return shape, nil
}

// DType returns the tensor's element type.
func (h *Handle) DType(ctx context.Context) (DType, error) {
	p, err := h.handle()
	if err != nil {
		return 0, err
	}
	defer runtime.KeepAlive(h)

	r := h.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fence(); err != nil {
		return 0, err
	}
	return h.dtype(p)
}

// dtype queries the engine; r.mu must be held and pending work fenced.
func (h *Handle) dtype(p TensorHandle) (DType, error) {
	var code int32
	if err := h.rt.call("GetDType", h.String(), func() int {
		var rc int
		code, rc = h.rt.engine.GetDType(p)
		return rc
	}); err != nil {
		return 0, err
	}
	dtype := DType(code)
	if !dtype.Valid() {
		return 0, fmt.Errorf("%w: engine reported code %d", ErrUnknownDType, code)
	}
	return dtype, nil
}

// CopyTo copies this tensor's contents into other, converting the element
// type if they differ. The shapes must match.
func (h *Handle) CopyTo(ctx context.Context, other *Handle) error {
	if _, err := h.handle(); err != nil {
		return err
	}
	_, err := h.rt.Call(ctx, CopyOperator, []Argument{h}, nil, other)
	return err
}

// Close releases the engine tensor. Calls after the first are no-ops.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	p := TensorHandle(h.p.Swap(0))
	if p == 0 {
		return nil
	}
	runtime.SetFinalizer(h, nil)
	r := h.rt
	r.observer.ObserveHandles(-1)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.call("FreeTensor", formatTensorHandle(p), func() int {
		return r.engine.FreeTensor(p)
	})
}

func (h *Handle) String() string {
	if h == nil {
		return "<nil>"
	}
	p := TensorHandle(h.p.Load())
	if p == 0 {
		return "<closed>"
	}
	return formatTensorHandle(p)
}

func formatTensorHandle(p TensorHandle) string {
	return "0x" + strconv.FormatUint(uint64(p), 16)
}
