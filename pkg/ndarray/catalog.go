package ndarray

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// OperatorDescriptor describes one callable operator. It is immutable once
// the catalog has been built.
type OperatorDescriptor struct {
	Name    string
	Creator CreatorHandle

	// Parameters are the operator's non-tensor argument names, in declared order.
	// Positional scalar arguments bind to these by index.
	Parameters []string

	Description   string
	KeyVarNumArgs string
}

// Catalog maps operator names to descriptors. It is built at most once, on
// first use, and is read-only afterwards; one Catalog may be shared by any
// number of goroutines and runtimes using the same engine.
type Catalog struct {
	engine Engine

	once      sync.Once
	operators map[string]*OperatorDescriptor
	err       error
}

// NewCatalog returns an unbuilt catalog for the engine.
func NewCatalog(engine Engine) *Catalog {
	return &Catalog{engine: engine}
}

// Build queries the engine for every operator. Only the first call does any
// work; later calls return the cached outcome, including a failure.
func (c *Catalog) Build(ctx context.Context) error {
	c.once.Do(func() {
		c.operators, c.err = c.build(ctx)
	})
	return c.err
}

func (c *Catalog) build(ctx context.Context) (map[string]*OperatorDescriptor, error) {
	log := klog.FromContext(ctx)

	creators, rc := c.engine.ListOperatorCreators()
	if rc != 0 {
		return nil, &CatalogError{Creator: -1, Cause: c.foreignError(rc, "ListOperatorCreators()")}
	}

	operators := make(map[string]*OperatorDescriptor, len(creators))
	for i, creator := range creators {
		info, rc := c.engine.DescribeOperator(creator)
		if rc != 0 {
			return nil, &CatalogError{Creator: i, Cause: c.foreignError(rc, fmt.Sprintf("DescribeOperator(%#x)", uintptr(creator)))}
		}
		if len(info.ArgTypes) != len(info.ArgNames) {
			return nil, &CatalogError{Creator: i, Cause: fmt.Errorf("operator %q declares %d argument names but %d types", info.Name, len(info.ArgNames), len(info.ArgTypes))}
		}

		var parameters []string
		for j, name := range info.ArgNames {
			if isTensorType(info.ArgTypes[j]) {
				continue
			}
			parameters = append(parameters, name)
		}

		if _, found := operators[info.Name]; found {
			log.V(2).Info("ignoring duplicate operator", "operator", info.Name, "creator", i)
			continue
		}
		operators[info.Name] = &OperatorDescriptor{
			Name:          info.Name,
			Creator:       creator,
			Parameters:    parameters,
			Description:   info.Description,
			KeyVarNumArgs: info.KeyVarNumArgs,
		}
	}

	log.V(2).Info("built operator catalog", "operators", len(operators))
	return operators, nil
}

func (c *Catalog) foreignError(rc int, call string) error {
	return &ForeignCallError{Status: rc, Call: call, LastError: c.engine.LastError()}
}

// Lookup returns the descriptor for name, building the catalog if needed.
func (c *Catalog) Lookup(ctx context.Context, name string) (*OperatorDescriptor, error) {
	if err := c.Build(ctx); err != nil {
		return nil, err
	}
	op, found := c.operators[name]
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return op, nil
}

// Names returns every operator name in sorted order.
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	if err := c.Build(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.operators))
	for name := range c.operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// isTensorType reports whether an argument type tag denotes a tensor-valued
// argument, which is always passed positionally.
func isTensorType(tag string) bool {
	return strings.HasPrefix(tag, "NDArray") ||
		strings.HasPrefix(tag, "Symbol") ||
		strings.HasPrefix(tag, "NDArray-or-Symbol")
}
