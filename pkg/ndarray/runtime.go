package ndarray

import (
	"context"
	"sync"
	"time"
)

// Observer receives notifications about engine traffic. Implementations must
// be safe for concurrent use: handle releases can happen on finalizer goroutines.
type Observer interface {
	// ObserveForeignCall is called after each engine call with its status.
	ObserveForeignCall(call string, elapsed time.Duration, status int)
	// ObserveInvocation is called once per Invoke; outcome is one of the
	// Outcome constants.
	ObserveInvocation(operator string, outcome string)
	// ObserveHandles is called with +1 when a Handle is created and -1 when released.
	ObserveHandles(delta int)
}

const (
	OutcomeAllocated = "allocated"
	OutcomeInPlace   = "in_place"
	OutcomeError     = "error"
)

type nopObserver struct{}

func (nopObserver) ObserveForeignCall(string, time.Duration, int) {}
func (nopObserver) ObserveInvocation(string, string)              {}
func (nopObserver) ObserveHandles(int)                            {}

// Runtime invokes operators and owns the tensors it creates. It has no
// goroutines of its own and is safe for concurrent use: its engine calls are
// serialized, so a fence and the host access it guards cannot be split by
// another goroutine's invocation, and LastError always belongs to the call
// that failed. Engines shared between Runtimes get no such ordering.
type Runtime struct {
	engine   Engine
	catalog  *Catalog
	observer Observer

	// mu is held across each engine call sequence.
	mu sync.Mutex
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCatalog shares an existing catalog, which must belong to the same engine.
func WithCatalog(catalog *Catalog) Option {
	return func(r *Runtime) {
		r.catalog = catalog
	}
}

// WithObserver reports engine traffic to o.
func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		r.observer = o
	}
}

// NewRuntime returns a runtime for engine. Without WithCatalog it gets a
// catalog of its own, built on first use.
func NewRuntime(engine Engine, opts ...Option) *Runtime {
	r := &Runtime{
		engine:   engine,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.catalog == nil {
		r.catalog = NewCatalog(engine)
	}
	return r
}

// Catalog returns the runtime's operator catalog.
func (r *Runtime) Catalog() *Catalog {
	return r.catalog
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() Engine {
	return r.engine
}

// Fence waits for all pending engine work.
func (r *Runtime) Fence(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fence()
}

func (r *Runtime) fence() error {
	return r.call("WaitAll", "", func() int {
		return r.engine.WaitAll()
	})
}

// call runs one engine call, reports it under label, and turns a non-zero
// status into a *ForeignCallError rendering the call as label(args). r.mu
// must be held.
func (r *Runtime) call(label string, args string, fn func() int) error {
	startedAt := time.Now()
	rc := fn()
	r.observer.ObserveForeignCall(label, time.Since(startedAt), rc)
	if rc != 0 {
		return &ForeignCallError{Status: rc, Call: label + "(" + args + ")", LastError: r.engine.LastError()}
	}
	return nil
}
