// Package v1alpha1 is the wire API of the tensor server. Messages are plain
// structs carried as JSON over gRPC.
package v1alpha1

// Tensor is either inline data or the result of a computation.
type Tensor struct {
	Id          int32            `json:"id"`
	InlineData  *InlineData      `json:"inlineData,omitempty"`
	Computation *TensorOperation `json:"computation,omitempty"`
}

func (t *Tensor) GetId() int32 {
	if t == nil {
		return 0
	}
	return t.Id
}

func (t *Tensor) GetInlineData() *InlineData {
	if t == nil {
		return nil
	}
	return t.InlineData
}

func (t *Tensor) GetComputation() *TensorOperation {
	if t == nil {
		return nil
	}
	return t.Computation
}

// InlineData holds tensor contents. Data is the raw little-endian bytes of
// DType; for float32 tensors Values may be given instead.
type InlineData struct {
	DType      string    `json:"dtype,omitempty"`
	Dimensions []int32   `json:"dimensions,omitempty"`
	Data       []byte    `json:"data,omitempty"`
	Values     []float32 `json:"values,omitempty"`
}

func (d *InlineData) GetDType() string {
	if d == nil || d.DType == "" {
		return "float32"
	}
	return d.DType
}

func (d *InlineData) GetDimensions() []int32 {
	if d == nil {
		return nil
	}
	return d.Dimensions
}

func (d *InlineData) GetData() []byte {
	if d == nil {
		return nil
	}
	return d.Data
}

func (d *InlineData) GetValues() []float32 {
	if d == nil {
		return nil
	}
	return d.Values
}

// TensorOperation invokes an engine operator. Sources are tensor inputs, in
// order; Args are positional scalars and Kwargs keyword scalars.
type TensorOperation struct {
	Operator string            `json:"operator"`
	Sources  []int32           `json:"sources,omitempty"`
	Args     []*Value          `json:"args,omitempty"`
	Kwargs   map[string]*Value `json:"kwargs,omitempty"`
}

func (o *TensorOperation) GetOperator() string {
	if o == nil {
		return ""
	}
	return o.Operator
}

func (o *TensorOperation) GetSources() []int32 {
	if o == nil {
		return nil
	}
	return o.Sources
}

func (o *TensorOperation) GetArgs() []*Value {
	if o == nil {
		return nil
	}
	return o.Args
}

func (o *TensorOperation) GetKwargs() map[string]*Value {
	if o == nil {
		return nil
	}
	return o.Kwargs
}

// Value is a scalar argument. Exactly one field should be set.
type Value struct {
	String *string  `json:"string,omitempty"`
	Int    *int64   `json:"int,omitempty"`
	Float  *float64 `json:"float,omitempty"`
	Bool   *bool    `json:"bool,omitempty"`
	Shape  []int64  `json:"shape,omitempty"`
}

func StringValue(v string) *Value  { return &Value{String: &v} }
func IntValue(v int64) *Value      { return &Value{Int: &v} }
func FloatValue(v float64) *Value  { return &Value{Float: &v} }
func BoolValue(v bool) *Value      { return &Value{Bool: &v} }
func ShapeValue(v ...int64) *Value { return &Value{Shape: v} }

type CalculateRequest struct {
	Tensors       []*Tensor `json:"tensors,omitempty"`
	OutputTensors []int32   `json:"outputTensors,omitempty"`
}

func (r *CalculateRequest) GetTensors() []*Tensor {
	if r == nil {
		return nil
	}
	return r.Tensors
}

func (r *CalculateRequest) GetOutputTensors() []int32 {
	if r == nil {
		return nil
	}
	return r.OutputTensors
}

type CalculateResponse struct {
	Results []*Tensor `json:"results,omitempty"`
}

type ListOperatorsRequest struct {
	// Prefix, if set, restricts the listing to operators whose name starts with it.
	Prefix string `json:"prefix,omitempty"`
}

type ListOperatorsResponse struct {
	Operators []*Operator `json:"operators,omitempty"`
}

type Operator struct {
	Name        string   `json:"name"`
	Parameters  []string `json:"parameters,omitempty"`
	Description string   `json:"description,omitempty"`
}
