package parameter

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps parameter names to parameters. Entries are inserted once
// and never overwritten; the whole registry is cleared at teardown.
type Registry struct {
	mu     sync.RWMutex
	params map[string]Parameter
}

func NewRegistry() *Registry {
	return &Registry{params: make(map[string]Parameter)}
}

// Add inserts p. An existing entry with the same name is left untouched and
// ErrDuplicate is returned.
func (r *Registry) Add(p Parameter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.params[p.Name()]; ok {
		return fmt.Errorf("%q: %w", p.Name(), ErrDuplicate)
	}
	r.params[p.Name()] = p
	return nil
}

// AddAll inserts ps as a batch. If any name collides with the registry or
// with another member of the batch, nothing is inserted.
func (r *Registry) AddAll(ps ...Parameter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		name := p.Name()
		if _, ok := r.params[name]; ok {
			return fmt.Errorf("%q: %w", name, ErrDuplicate)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%q repeated in batch: %w", name, ErrDuplicate)
		}
		seen[name] = struct{}{}
	}
	for _, p := range ps {
		r.params[p.Name()] = p
	}
	return nil
}

// Get returns the named parameter. Absence is a normal outcome.
func (r *Registry) Get(name string) (Parameter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.params[name]
	return p, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.params))
	for n := range r.params {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.params)
}

// Clear drops every entry. Only used at camera teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.params)
}

// Snapshot returns the cached value of every parameter, keyed by name.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.params))
	for n, p := range r.params {
		out[n] = p.Value()
	}
	return out
}

// Lookup returns the named parameter as type P.
func Lookup[P Parameter](r *Registry, name string) (P, error) {
	var zero P
	p, ok := r.Get(name)
	if !ok {
		return zero, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	typed, ok := p.(P)
	if !ok {
		return zero, fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
	return typed, nil
}

func GetBool(r *Registry, name string) (bool, error) {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return false, err
	case *BoolParameter:
		return x.Get()
	case *VirtualParameter[bool]:
		return x.Get()
	default:
		return false, fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func SetBool(r *Registry, name string, v bool) error {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return err
	case *BoolParameter:
		return x.Set(v)
	case *VirtualParameter[bool]:
		return x.Set(v)
	default:
		return fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

// GetUint reads an unsigned or enumerated parameter.
func GetUint(r *Registry, name string) (uint32, error) {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return 0, err
	case *UintParameter:
		return x.Get()
	case *EnumParameter:
		return x.Get()
	case *VirtualParameter[uint32]:
		return x.Get()
	default:
		return 0, fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func SetUint(r *Registry, name string, v uint32) error {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return err
	case *UintParameter:
		return x.Set(v)
	case *EnumParameter:
		return x.Set(v)
	case *VirtualParameter[uint32]:
		return x.Set(v)
	default:
		return fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func GetInt(r *Registry, name string) (int32, error) {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return 0, err
	case *IntParameter:
		return x.Get()
	case *VirtualParameter[int32]:
		return x.Get()
	default:
		return 0, fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func SetInt(r *Registry, name string, v int32) error {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return err
	case *IntParameter:
		return x.Set(v)
	case *VirtualParameter[int32]:
		return x.Set(v)
	default:
		return fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func GetFloat(r *Registry, name string) (float64, error) {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return 0, err
	case *FloatParameter:
		return x.Get()
	case *VirtualParameter[float64]:
		return x.Get()
	default:
		return 0, fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func SetFloat(r *Registry, name string, v float64) error {
	switch p, err := lookupAny(r, name); x := p.(type) {
	case nil:
		return err
	case *FloatParameter:
		return x.Set(v)
	case *VirtualParameter[float64]:
		return x.Set(v)
	default:
		return fmt.Errorf("%q is %T: %w", name, p, ErrWrongType)
	}
}

func lookupAny(r *Registry, name string) (Parameter, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return p, nil
}
