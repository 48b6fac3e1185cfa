package marketdata

import (
	"fmt"
	"sync"

	"github.com/quantfabric/calcgrid/internal/result"
)

// Function is a pluggable builder for one ID type. It declares the ids its
// own output depends on, and constructs the value once those ids have
// Results in the environment. Implementations must be stateless with respect
// to a run: the same Function is shared across concurrent builds.
type Function interface {
	// Requirements declares the sub-requirements needed to build id. It is
	// pure: no I/O, no environment access.
	Requirements(id ID) Requirements
	// Build constructs the value for id against a partial environment in
	// which every declared sub-requirement already has a Result.
	Build(id ID, env *Environment) result.Result
}

// Registry maps ID types to their builder Functions. It is populated at
// startup and read-only afterwards; reads are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[Type]Function
}

// NewRegistry creates an empty function registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[Type]Function)}
}

// Register binds a builder to an ID type. Registering the same type twice is
// a configuration defect and returns an error.
func (r *Registry) Register(t Type, fn Function) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[t]; exists {
		return fmt.Errorf("market data function already registered for type %q", t)
	}
	r.funcs[t] = fn
	return nil
}

// MustRegister is Register that panics on a duplicate, for static wiring.
func (r *Registry) MustRegister(t Type, fn Function) {
	if err := r.Register(t, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the builder for an ID type.
func (r *Registry) Lookup(t Type) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[t]
	return fn, ok
}

// Types lists the registered ID types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.funcs))
	for t := range r.funcs {
		out = append(out, t)
	}
	return out
}
