//go:build mxnet

package mxnet

// #cgo LDFLAGS: -lmxnet
// #include <stdlib.h>
// #include <mxnet/c_api.h>
import "C"

import (
	"unsafe"
)

// Device types accepted by CreateNDArray.
const (
	DeviceCPU = 1
	DeviceGPU = 2
)

// Creator is an operator creator, owned by the library.
type Creator struct {
	p C.AtomicSymbolCreator
}

// NDArray is a native array handle. It must be released with Free.
type NDArray struct {
	p C.NDArrayHandle
}

// OperatorInfo is the result of MXSymbolGetAtomicSymbolInfo.
type OperatorInfo struct {
	Name            string
	Description     string
	ArgNames        []string
	ArgTypes        []string
	ArgDescriptions []string
	KeyVarNumArgs   string
	ReturnType      string
}

// LastError returns the message of the last failed call on this thread.
func LastError() string {
	return C.GoString(C.MXGetLastError())
}

func ListAtomicSymbolCreators() ([]Creator, int) {
	var n C.mx_uint
	var array *C.AtomicSymbolCreator
	if rc := C.MXSymbolListAtomicSymbolCreators(&n, &array); rc != 0 {
		return nil, int(rc)
	}
	creators := make([]Creator, int(n))
	for i, p := range unsafe.Slice(array, int(n)) {
		creators[i] = Creator{p: p}
	}
	return creators, 0
}

func GetAtomicSymbolInfo(creator Creator) (OperatorInfo, int) {
	var name, description, keyVarNumArgs, returnType *C.char
	var numArgs C.mx_uint
	var argNames, argTypes, argDescriptions **C.char
	rc := C.MXSymbolGetAtomicSymbolInfo(creator.p, &name, &description, &numArgs,
		&argNames, &argTypes, &argDescriptions, &keyVarNumArgs, &returnType)
	if rc != 0 {
		return OperatorInfo{}, int(rc)
	}
	n := int(numArgs)
	return OperatorInfo{
		Name:            C.GoString(name),
		Description:     C.GoString(description),
		ArgNames:        goStrings(argNames, n),
		ArgTypes:        goStrings(argTypes, n),
		ArgDescriptions: goStrings(argDescriptions, n),
		KeyVarNumArgs:   C.GoString(keyVarNumArgs),
		ReturnType:      C.GoString(returnType),
	}, 0
}

func goStrings(p **C.char, n int) []string {
	if n == 0 || p == nil {
		return nil
	}
	out := make([]string, n)
	for i, s := range unsafe.Slice(p, n) {
		out[i] = C.GoString(s)
	}
	return out
}

// CreateNDArray allocates an array on the given device.
func CreateNDArray(shape []uint32, devType, devID int, dtype int32) (NDArray, int) {
	dims := make([]C.mx_uint, len(shape))
	for i, d := range shape {
		dims[i] = C.mx_uint(d)
	}
	var dimsPtr *C.mx_uint
	if len(dims) != 0 {
		dimsPtr = &dims[0]
	}
	var out C.NDArrayHandle
	rc := C.MXNDArrayCreateEx(dimsPtr, C.mx_uint(len(dims)), C.int(devType), C.int(devID), 0, C.int(dtype), &out)
	if rc != 0 {
		return NDArray{}, int(rc)
	}
	return NDArray{p: out}, 0
}

func (a NDArray) IsNil() bool {
	return a.p == nil
}

// Free releases the array.
func (a NDArray) Free() int {
	return int(C.MXNDArrayFree(a.p))
}

// SyncCopyFromCPU copies numElements elements from data into the array.
func (a NDArray) SyncCopyFromCPU(data []byte, numElements int) int {
	var p unsafe.Pointer
	if len(data) != 0 {
		p = unsafe.Pointer(&data[0])
	}
	return int(C.MXNDArraySyncCopyFromCPU(a.p, p, C.size_t(numElements)))
}

// SyncCopyToCPU copies numElements elements of the array into data.
func (a NDArray) SyncCopyToCPU(data []byte, numElements int) int {
	var p unsafe.Pointer
	if len(data) != 0 {
		p = unsafe.Pointer(&data[0])
	}
	return int(C.MXNDArraySyncCopyToCPU(a.p, p, C.size_t(numElements)))
}

func (a NDArray) Shape() ([]uint32, int) {
	var ndim C.mx_uint
	var pdata *C.mx_uint
	if rc := C.MXNDArrayGetShape(a.p, &ndim, &pdata); rc != 0 {
		return nil, int(rc)
	}
	shape := make([]uint32, int(ndim))
	if ndim != 0 {
		for i, d := range unsafe.Slice(pdata, int(ndim)) {
			shape[i] = uint32(d)
		}
	}
	return shape, 0
}

func (a NDArray) DType() (int32, int) {
	var dtype C.int
	if rc := C.MXNDArrayGetDType(a.p, &dtype); rc != 0 {
		return 0, int(rc)
	}
	return int32(dtype), 0
}

// WaitAll blocks until all pending asynchronous operations are complete.
func WaitAll() int {
	return int(C.MXNDArrayWaitAll())
}

// ImperativeInvoke runs an operator. If outputs is empty the library
// allocates the results; the returned arrays are then owned by the caller.
func ImperativeInvoke(creator Creator, inputs []NDArray, outputs []NDArray, keys []string, vals []string) ([]NDArray, int) {
	in := make([]C.NDArrayHandle, len(inputs))
	for i, a := range inputs {
		in[i] = a.p
	}
	var inPtr *C.NDArrayHandle
	if len(in) != 0 {
		inPtr = &in[0]
	}

	// The output array is passed by reference, so it must live in C memory.
	var outPtr *C.NDArrayHandle
	if len(outputs) != 0 {
		outPtr = (*C.NDArrayHandle)(C.malloc(C.size_t(len(outputs)) * C.size_t(unsafe.Sizeof(C.NDArrayHandle(nil)))))
		defer C.free(unsafe.Pointer(outPtr))
		for i, a := range outputs {
			unsafe.Slice(outPtr, len(outputs))[i] = a.p
		}
	}
	numOutputs := C.int(len(outputs))

	cKeys := cStrings(keys)
	defer freeCStrings(cKeys)
	cVals := cStrings(vals)
	defer freeCStrings(cVals)
	var keysPtr, valsPtr **C.char
	if len(cKeys) != 0 {
		keysPtr = &cKeys[0]
		valsPtr = &cVals[0]
	}

	var outStypes *C.int
	rc := C.MXImperativeInvokeEx(creator.p, C.int(len(in)), inPtr, &numOutputs, &outPtr,
		C.int(len(cKeys)), keysPtr, valsPtr, &outStypes)
	if rc != 0 {
		return nil, int(rc)
	}

	results := make([]NDArray, int(numOutputs))
	if numOutputs != 0 {
		for i, p := range unsafe.Slice(outPtr, int(numOutputs)) {
			results[i] = NDArray{p: p}
		}
	}
	return results, 0
}

func cStrings(values []string) []*C.char {
	out := make([]*C.char, len(values))
	for i, s := range values {
		out[i] = C.CString(s)
	}
	return out
}

func freeCStrings(values []*C.char) {
	for _, p := range values {
		C.free(unsafe.Pointer(p))
	}
}
