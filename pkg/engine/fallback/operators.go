package fallback

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

const (
	typeNDArray         = "NDArray"
	typeNDArrayOrSymbol = "NDArray-or-Symbol"
)

type argSpec struct {
	name        string
	typ         string
	description string
}

type outputSpec struct {
	shape []uint32
	dtype ndarray.DType
}

// kernelFunc computes an operator's outputs. It runs from the engine queue.
type kernelFunc func(out []*tensor) error

type operator struct {
	name        string
	description string
	args        []argSpec

	// numInputs is the number of tensor inputs, or -1 if variadic.
	numInputs int

	// readsInputs is set when output shapes depend on input contents.
	readsInputs bool

	// prepare validates the call and returns the outputs it will produce.
	// It must not modify any tensor; that is the kernel's job.
	prepare func(in []*tensor, p params) ([]outputSpec, kernelFunc, error)
}

func (op *operator) info() ndarray.OperatorInfo {
	info := ndarray.OperatorInfo{
		Name:        op.name,
		Description: op.description,
		ReturnType:  typeNDArrayOrSymbol,
	}
	for _, arg := range op.args {
		info.ArgNames = append(info.ArgNames, arg.name)
		info.ArgTypes = append(info.ArgTypes, arg.typ)
		info.ArgDescriptions = append(info.ArgDescriptions, arg.description)
	}
	return info
}

// parseParams rejects parameters the operator does not declare. Keys
// wrapped in double underscores are attributes and are ignored.
func (op *operator) parseParams(keys, vals []string) (params, error) {
	p := make(params, len(keys))
	for i, key := range keys {
		if strings.HasPrefix(key, "__") && strings.HasSuffix(key, "__") {
			continue
		}
		if !op.declares(key) {
			return nil, fmt.Errorf("cannot find argument %q", key)
		}
		p[key] = vals[i]
	}
	return p, nil
}

func (op *operator) declares(key string) bool {
	for _, arg := range op.args {
		if arg.name == key && arg.typ != typeNDArray && arg.typ != typeNDArrayOrSymbol {
			return true
		}
	}
	return false
}

func builtinOperators() []*operator {
	return []*operator{
		copyTo(),
		imdecode(),
		scalarOp("_plus_scalar", "Adds a scalar to every element.", func(x, s float64) float64 { return x + s }),
		scalarOp("_mul_scalar", "Multiplies every element by a scalar.", func(x, s float64) float64 { return x * s }),
		elemwiseAdd(),
		reshape(),
		zeros(),
		cast(),
		sliceChannel(),
	}
}

func copyTo() *operator {
	return &operator{
		name:        ndarray.CopyOperator,
		description: "Copies the input into the output, converting the element type if they differ.",
		args: []argSpec{
			{"data", typeNDArray, "input data"},
		},
		numInputs: 1,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			src := in[0]
			return []outputSpec{{shape: src.shape, dtype: src.dtype}}, func(out []*tensor) error {
				out[0].copyFrom(src)
				return nil
			}, nil
		},
	}
}

func imdecode() *operator {
	return &operator{
		name:        "_cvimdecode",
		description: "Decodes an image held in a uint8 buffer into an HWC uint8 array.",
		args: []argSpec{
			{"buf", typeNDArray, "buffer containing the encoded image"},
			{"flag", "int, optional, default='1'", "1: 3 channels, 0: grayscale, -1: as stored"},
			{"to_rgb", "boolean, optional, default='1'", "whether to produce RGB instead of BGR channel order"},
		},
		numInputs:   1,
		readsInputs: true,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			buf := in[0]
			if buf.dtype != ndarray.Uint8 {
				return nil, nil, fmt.Errorf("buffer must be uint8, got %v", buf.dtype)
			}
			flag, err := p.getInt("flag", 1)
			if err != nil {
				return nil, nil, err
			}
			toRGB, err := p.getBool("to_rgb", true)
			if err != nil {
				return nil, nil, err
			}

			img, _, err := image.Decode(bytes.NewReader(buf.data))
			if err != nil {
				return nil, nil, fmt.Errorf("decoding image: %w", err)
			}
			channels, err := imageChannels(img, flag)
			if err != nil {
				return nil, nil, err
			}
			pixels := imagePixels(img, channels, toRGB)

			bounds := img.Bounds()
			shape := []uint32{uint32(bounds.Dy()), uint32(bounds.Dx()), uint32(channels)}
			return []outputSpec{{shape: shape, dtype: ndarray.Uint8}}, func(out []*tensor) error {
				copy(out[0].data, pixels)
				return nil
			}, nil
		},
	}
}

func imageChannels(img image.Image, flag int) (int, error) {
	switch flag {
	case 0:
		return 1, nil
	case 1:
		return 3, nil
	case -1:
		switch img.(type) {
		case *image.Gray, *image.Gray16:
			return 1, nil
		case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Paletted:
			return 4, nil
		default:
			return 3, nil
		}
	default:
		return 0, fmt.Errorf("unsupported flag %d", flag)
	}
}

// imagePixels flattens img into HWC bytes.
func imagePixels(img image.Image, channels int, toRGB bool) []byte {
	bounds := img.Bounds()
	pixels := make([]byte, 0, bounds.Dx()*bounds.Dy()*channels)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.At(x, y)
			if channels == 1 {
				pixels = append(pixels, color.GrayModel.Convert(c).(color.Gray).Y)
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			if toRGB {
				pixels = append(pixels, n.R, n.G, n.B)
			} else {
				pixels = append(pixels, n.B, n.G, n.R)
			}
			if channels == 4 {
				pixels = append(pixels, n.A)
			}
		}
	}
	return pixels
}

func scalarOp(name, description string, fn func(x, s float64) float64) *operator {
	return &operator{
		name:        name,
		description: description,
		args: []argSpec{
			{"data", typeNDArrayOrSymbol, "source input"},
			{"scalar", "double, optional, default=1", "scalar input value"},
		},
		numInputs: 1,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			src := in[0]
			scalar, err := p.getFloat("scalar", 1)
			if err != nil {
				return nil, nil, err
			}
			return []outputSpec{{shape: src.shape, dtype: src.dtype}}, func(out []*tensor) error {
				dst := out[0]
				// Read everything first so in-place use (dst == src) is safe.
				values := make([]float64, src.numElements())
				for i := range values {
					values[i] = fn(src.at(i), scalar)
				}
				for i, v := range values {
					dst.setAt(i, v)
				}
				return nil
			}, nil
		},
	}
}

func elemwiseAdd() *operator {
	return &operator{
		name:        "elemwise_add",
		description: "Adds two arrays of the same shape element by element.",
		args: []argSpec{
			{"lhs", typeNDArrayOrSymbol, "first input"},
			{"rhs", typeNDArrayOrSymbol, "second input"},
		},
		numInputs: 2,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			lhs, rhs := in[0], in[1]
			if !sameShape(lhs, rhs) {
				return nil, nil, fmt.Errorf("shape mismatch: %v vs %v", lhs.shape, rhs.shape)
			}
			if lhs.dtype != rhs.dtype {
				return nil, nil, fmt.Errorf("dtype mismatch: %v vs %v", lhs.dtype, rhs.dtype)
			}
			return []outputSpec{{shape: lhs.shape, dtype: lhs.dtype}}, func(out []*tensor) error {
				values := make([]float64, lhs.numElements())
				for i := range values {
					values[i] = lhs.at(i) + rhs.at(i)
				}
				for i, v := range values {
					out[0].setAt(i, v)
				}
				return nil
			}, nil
		},
	}
}

func reshape() *operator {
	return &operator{
		name:        "Reshape",
		description: "Reshapes the input. 0 copies a dimension from the input, -1 is inferred.",
		args: []argSpec{
			{"data", typeNDArrayOrSymbol, "input data"},
			{"shape", "Shape(tuple), optional, default=[]", "the target shape"},
		},
		numInputs: 1,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			src := in[0]
			target, found, err := p.getShape("shape")
			if err != nil {
				return nil, nil, err
			}
			if !found {
				return nil, nil, fmt.Errorf("shape is required")
			}
			shape, err := inferReshape(src.shape, target)
			if err != nil {
				return nil, nil, err
			}
			return []outputSpec{{shape: shape, dtype: src.dtype}}, func(out []*tensor) error {
				copy(out[0].data, src.data)
				return nil
			}, nil
		},
	}
}

func inferReshape(from []uint32, target []int) ([]uint32, error) {
	shape := make([]int, len(target))
	infer := -1
	known := 1
	for i, dim := range target {
		switch {
		case dim == 0:
			if i >= len(from) {
				return nil, fmt.Errorf("cannot copy dimension %d from shape %v", i, from)
			}
			shape[i] = int(from[i])
		case dim == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("only one dimension can be inferred in %v", target)
			}
			infer = i
			continue
		case dim < 0:
			return nil, fmt.Errorf("invalid dimension %d in %v", dim, target)
		default:
			shape[i] = dim
		}
		known *= shape[i]
	}

	total := numElements(from)
	if infer >= 0 {
		if known == 0 || total%known != 0 {
			return nil, fmt.Errorf("cannot reshape %v into %v", from, target)
		}
		shape[infer] = total / known
		known = total
	}
	if known != total {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) into %v", from, total, target)
	}
	return toDims(shape)
}

func zeros() *operator {
	return &operator{
		name:        "_zeros",
		description: "Returns an array filled with zeros.",
		args: []argSpec{
			{"shape", "Shape(tuple), optional, default=[]", "the shape of the output"},
			{"ctx", "string, optional, default=''", "ignored"},
			{"dtype", "{'float16', 'float32', 'float64', 'int32', 'int64', 'int8', 'uint8'},optional, default='float32'", "element type"},
		},
		numInputs: 0,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			shape, _, err := p.getShape("shape")
			if err != nil {
				return nil, nil, err
			}
			dims, err := toDims(shape)
			if err != nil {
				return nil, nil, err
			}
			dtype, err := p.getDType("dtype", ndarray.Float32)
			if err != nil {
				return nil, nil, err
			}
			return []outputSpec{{shape: dims, dtype: dtype}}, func(out []*tensor) error {
				clear(out[0].data)
				return nil
			}, nil
		},
	}
}

func cast() *operator {
	return &operator{
		name:        "Cast",
		description: "Converts every element to the given type.",
		args: []argSpec{
			{"data", typeNDArrayOrSymbol, "input"},
			{"dtype", "{'float16', 'float32', 'float64', 'int32', 'int64', 'int8', 'uint8'}, required", "output type"},
		},
		numInputs: 1,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			src := in[0]
			if _, found := p["dtype"]; !found {
				return nil, nil, fmt.Errorf("dtype is required")
			}
			dtype, err := p.getDType("dtype", src.dtype)
			if err != nil {
				return nil, nil, err
			}
			return []outputSpec{{shape: src.shape, dtype: dtype}}, func(out []*tensor) error {
				out[0].copyFrom(src)
				return nil
			}, nil
		},
	}
}

func sliceChannel() *operator {
	return &operator{
		name:        "SliceChannel",
		description: "Splits an array along an axis into equal parts.",
		args: []argSpec{
			{"data", typeNDArrayOrSymbol, "the input"},
			{"num_outputs", "int, required", "number of splits"},
			{"axis", "int, optional, default='1'", "axis along which to split"},
			{"squeeze_axis", "boolean, optional, default=0", "remove the split axis when each part has size 1"},
		},
		numInputs: 1,
		prepare: func(in []*tensor, p params) ([]outputSpec, kernelFunc, error) {
			src := in[0]
			if _, found := p["num_outputs"]; !found {
				return nil, nil, fmt.Errorf("num_outputs is required")
			}
			n, err := p.getInt("num_outputs", 1)
			if err != nil {
				return nil, nil, err
			}
			axis, err := p.getInt("axis", 1)
			if err != nil {
				return nil, nil, err
			}
			squeeze, err := p.getBool("squeeze_axis", false)
			if err != nil {
				return nil, nil, err
			}
			if axis < 0 {
				axis += len(src.shape)
			}
			if axis < 0 || axis >= len(src.shape) {
				return nil, nil, fmt.Errorf("axis %d out of range for shape %v", axis, src.shape)
			}
			dim := int(src.shape[axis])
			if n <= 0 || dim%n != 0 {
				return nil, nil, fmt.Errorf("cannot split axis of size %d into %d parts", dim, n)
			}
			part := dim / n

			shape := append([]uint32(nil), src.shape...)
			shape[axis] = uint32(part)
			if squeeze {
				if part != 1 {
					return nil, nil, fmt.Errorf("squeeze_axis requires parts of size 1, got %d", part)
				}
				shape = append(shape[:axis], shape[axis+1:]...)
			}
			specs := make([]outputSpec, n)
			for i := range specs {
				specs[i] = outputSpec{shape: shape, dtype: src.dtype}
			}

			outer := numElements(src.shape[:axis])
			inner := numElements(src.shape[axis+1:]) * src.dtype.Size()
			return specs, func(out []*tensor) error {
				for k, dst := range out {
					for o := 0; o < outer; o++ {
						for j := 0; j < part; j++ {
							from := ((o * dim) + (k*part + j)) * inner
							to := (o*part + j) * inner
							copy(dst.data[to:to+inner], src.data[from:from+inner])
						}
					}
				}
				return nil
			}, nil
		},
	}
}
