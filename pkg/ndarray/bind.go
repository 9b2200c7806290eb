package ndarray

import "fmt"

// BoundCall is a call after argument binding: ordered tensor inputs and the
// string parameters to pass by name.
type BoundCall struct {
	Inputs []*Handle
	Params map[string]string
}

// Bind merges positional and keyword arguments against an operator's
// declared parameters.
//
// Tensor positionals become inputs, in order. Scalar positionals bind by
// index to op.Parameters and override a keyword of the same name. Keyword
// tensors are dropped: tensors can only be passed positionally. A nil
// argument, or a nil *Handle passed positionally, is ErrNilArgument.
func Bind(positional []Argument, keyword map[string]Argument, op *OperatorDescriptor) (*BoundCall, error) {
	var inputs []*Handle
	var scalars []string
	for i, arg := range positional {
		switch arg := arg.(type) {
		case nil:
			return nil, fmt.Errorf("%w: positional argument %d of %q", ErrNilArgument, i, op.Name)
		case *Handle:
			if arg == nil {
				return nil, fmt.Errorf("%w: positional argument %d of %q is a nil tensor", ErrNilArgument, i, op.Name)
			}
			inputs = append(inputs, arg)
		case Scalar:
			scalars = append(scalars, arg.Render())
		}
	}

	if len(scalars) > len(op.Parameters) {
		return nil, fmt.Errorf("%w: operator %q takes %d, got %d", ErrTooManyArguments, op.Name, len(op.Parameters), len(scalars))
	}

	params := make(map[string]string, len(keyword)+len(scalars))
	for key, arg := range keyword {
		if arg == nil {
			return nil, fmt.Errorf("%w: keyword argument %q of %q", ErrNilArgument, key, op.Name)
		}
		if scalar, ok := arg.(Scalar); ok {
			params[key] = scalar.Render()
		}
	}
	for i, value := range scalars {
		params[op.Parameters[i]] = value
	}

	return &BoundCall{Inputs: inputs, Params: params}, nil
}
