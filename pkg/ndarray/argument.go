package ndarray

import (
	"strconv"
	"strings"
)

// Argument is one argument to an operator call: either a Scalar or a *Handle.
// The set of kinds is closed.
type Argument interface {
	argument()
}

// Scalar is a non-tensor argument with a canonical string rendering, which is
// what the engine receives.
type Scalar interface {
	Argument
	Render() string
}

// Text is a string argument, passed through unchanged.
type Text string

// Int is an integer argument.
type Int int64

// Float is a floating point argument, rendered in the shortest form that
// round-trips.
type Float float64

// Bool is rendered as "true" or "false".
type Bool bool

// Shape is a tuple argument, rendered as "(2,3)".
type Shape []int

func (Text) argument()    {}
func (Int) argument()     {}
func (Float) argument()   {}
func (Bool) argument()    {}
func (Shape) argument()   {}
func (*Handle) argument() {}

func (v Text) Render() string  { return string(v) }
func (v Int) Render() string   { return strconv.FormatInt(int64(v), 10) }
func (v Float) Render() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Bool) Render() string  { return strconv.FormatBool(bool(v)) }

func (v Shape) Render() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, dim := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(dim))
	}
	b.WriteByte(')')
	return b.String()
}
