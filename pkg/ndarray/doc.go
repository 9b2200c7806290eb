// Package ndarray invokes the operators of a native tensor engine by name.
//
// The engine is reached through the Engine interface, which mirrors a C API:
// opaque handles, status codes and string parameters. A Catalog discovers the
// engine's operators once; Bind maps Go arguments onto an operator's declared
// parameters; Runtime.Invoke performs the call and wraps any newly allocated
// output in a Handle, which owns and eventually releases the engine tensor.
//
// The engine executes work asynchronously. Every operation that touches host
// memory or tensor metadata waits for pending work first (and a host write
// waits again afterwards), so callers never observe a half-finished tensor.
package ndarray
