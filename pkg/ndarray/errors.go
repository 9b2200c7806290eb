package ndarray

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownOperator is returned when an operator name is not in the catalog.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrUnknownDType is returned for element type names outside the codec table.
	ErrUnknownDType = errors.New("unknown dtype")

	// ErrTooManyArguments is returned when a call has more positional scalars
	// than the operator declares parameters.
	ErrTooManyArguments = errors.New("too many positional arguments")

	// ErrUnsupportedOutputArity is returned when an invocation allocates more
	// than one new output.
	ErrUnsupportedOutputArity = errors.New("unsupported output arity")

	// ErrNullHandle is returned when the engine hands back a zero tensor handle.
	ErrNullHandle = errors.New("null tensor handle")

	// ErrHandleClosed is returned when a released Handle is used.
	ErrHandleClosed = errors.New("handle is closed")

	// ErrNilArgument is returned when a call is passed a nil argument.
	ErrNilArgument = errors.New("nil argument")

	// ErrInvalidShape is returned for dimensions the engine cannot represent.
	ErrInvalidShape = errors.New("invalid shape")
)

// ForeignCallError reports a non-zero status from the engine.
type ForeignCallError struct {
	// Status is the engine's return code.
	Status int
	// Call renders the attempted call.
	Call string
	// LastError is the engine's description of the failure, if any.
	LastError string
}

func (e *ForeignCallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine error (%d != 0): %s", e.Status, e.Call)
	if e.LastError != "" {
		b.WriteString(": ")
		b.WriteString(e.LastError)
	}
	return b.String()
}

// CatalogError reports a failure to build the operator catalog.
type CatalogError struct {
	// Creator is the index of the operator being described, or -1 while listing.
	Creator int
	Cause   error
}

func (e *CatalogError) Error() string {
	if e.Creator >= 0 {
		return fmt.Sprintf("building operator catalog (creator %d): %v", e.Creator, e.Cause)
	}
	return fmt.Sprintf("building operator catalog: %v", e.Cause)
}

func (e *CatalogError) Unwrap() error {
	return e.Cause
}
