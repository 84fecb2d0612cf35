package parameter

import (
	"fmt"
	"sync"
)

// VirtualParameter has no register of its own. Its value is computed by
// getter and stored by setter, usually in terms of other parameters.
type VirtualParameter[T any] struct {
	info   Info
	getter func() (T, error)
	setter func(T) error

	mu    sync.Mutex
	value T
}

// NewVirtual creates a derived parameter. A nil setter makes it read-only;
// a nil getter returns the last value written.
func NewVirtual[T any](s Info, getter func() (T, error), setter func(T) error) *VirtualParameter[T] {
	if setter == nil {
		s.IO = IORead
	}
	return &VirtualParameter[T]{info: s, getter: getter, setter: setter}
}

func (p *VirtualParameter[T]) Name() string { return p.info.Name }

func (p *VirtualParameter[T]) DisplayName() string {
	if p.info.DisplayName == "" {
		return p.info.Name
	}
	return p.info.DisplayName
}

func (p *VirtualParameter[T]) Description() string { return p.info.Description }
func (p *VirtualParameter[T]) Unit() string        { return p.info.Unit }
func (p *VirtualParameter[T]) IOType() IOType      { return p.info.IO }

func (p *VirtualParameter[T]) Get() (T, error) {
	if p.getter == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, nil
	}
	v, err := p.getter()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parameter %s: %w", p.info.Name, err)
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return v, nil
}

func (p *VirtualParameter[T]) Set(v T) error {
	if p.setter == nil {
		return fmt.Errorf("parameter %s: %w", p.info.Name, ErrReadOnly)
	}
	if err := p.setter(v); err != nil {
		return fmt.Errorf("parameter %s: %w", p.info.Name, err)
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return nil
}

func (p *VirtualParameter[T]) Refresh() error { _, err := p.Get(); return err }

func (p *VirtualParameter[T]) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *VirtualParameter[T]) SetAny(v any) error {
	if x, ok := v.(T); ok {
		return p.Set(x)
	}
	// Numeric configuration values arrive as float64 (JSON) or int (YAML).
	if f, ok := toFloat(v); ok {
		var target any = *new(T)
		switch target.(type) {
		case float64:
			return p.SetAny(any(f))
		case uint32:
			if f >= 0 && f <= float64(^uint32(0)) && f == float64(uint32(f)) {
				return p.SetAny(any(uint32(f)))
			}
		case int32:
			if f == float64(int32(f)) {
				return p.SetAny(any(int32(f)))
			}
		}
	}
	return fmt.Errorf("parameter %s: cannot use %T: %w", p.info.Name, v, ErrWrongType)
}
