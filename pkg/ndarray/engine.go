package ndarray

// CreatorHandle identifies one operator on the engine side.
type CreatorHandle uintptr

// TensorHandle identifies one engine tensor. Zero is never a valid tensor.
type TensorHandle uintptr

// OperatorInfo is the metadata the engine reports for one operator.
type OperatorInfo struct {
	Name            string
	Description     string
	ArgNames        []string
	ArgTypes        []string
	ArgDescriptions []string
	KeyVarNumArgs   string
	ReturnType      string
}

// Engine is the native engine surface used by the runtime. It mirrors a
// C-style API: every method returns a status code where 0 means success, and
// LastError describes the most recent failure.
//
// Invoke takes the caller's preallocated outputs (len(outputs) is the
// expected output count) and returns the outputs the engine ended up with;
// when the engine allocates new tensors the returned slice differs in length.
// Keys and vals are parallel.
type Engine interface {
	ListOperatorCreators() ([]CreatorHandle, int)
	DescribeOperator(creator CreatorHandle) (OperatorInfo, int)

	CreateTensor(shape []uint32, dtype int32) (TensorHandle, int)
	FreeTensor(h TensorHandle) int
	CopyFromHost(h TensorHandle, data []byte) int
	CopyToHost(h TensorHandle, data []byte) int
	GetShape(h TensorHandle) ([]uint32, int)
	GetDType(h TensorHandle) (int32, int)

	// WaitAll blocks until all queued asynchronous work has completed.
	WaitAll() int

	Invoke(creator CreatorHandle, inputs []TensorHandle, outputs []TensorHandle, keys []string, vals []string) ([]TensorHandle, int)

	LastError() string
}
