// Package bufferpool provides a fixed-capacity arena of reusable frame
// buffers handed out through generation-stamped handles.
//
// Every slot is allocated when the pool is created, so Get never allocates.
// A Handle is the only way to reach a checked-out buffer; once it has been
// released, the handle (and every copy of it) is stale and cannot be
// released again or dereferenced.
package bufferpool

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrExhausted means every slot is checked out. The pool is sized for one
	// buffer per live pipeline stage plus one in flight, so this is a bug in
	// the caller's sizing or release discipline.
	ErrExhausted = errors.New("buffer pool exhausted")
	// ErrNotCheckedOut is returned when releasing a handle that is stale.
	ErrNotCheckedOut = errors.New("buffer not checked out")
	// ErrForeignHandle is returned when releasing a handle from another pool
	// or the zero Handle.
	ErrForeignHandle = errors.New("handle does not belong to this pool")
	// ErrInFlight is returned by Clear while buffers are checked out.
	ErrInFlight = errors.New("buffers still in flight")
	// ErrCleared is returned by Get after Clear.
	ErrCleared = errors.New("buffer pool cleared")
)

type slot[T any] struct {
	value *T
	gen   uint64
	out   bool
}

// Pool is a fixed set of reusable *T buffers. It is safe for concurrent use.
type Pool[T any] struct {
	name string

	mu      sync.Mutex
	slots   []slot[T]
	free    []int // LIFO: the most recently released slot is reused first
	inUse   int
	cleared bool

	gets      uint64
	releases  uint64
	exhausted uint64
}

// Handle is an owning reference to one checked-out buffer.
type Handle[T any] struct {
	pool  *Pool[T]
	index int
	gen   uint64
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	InUse     int    `json:"in_use"`
	Gets      uint64 `json:"gets"`
	Releases  uint64 `json:"releases"`
	Exhausted uint64 `json:"exhausted"`
}

// New creates a pool holding capacity buffers built by newFn.
func New[T any](name string, capacity int, newFn func() *T) (*Pool[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("pool %s: capacity must be at least 1, got %d", name, capacity)
	}
	if newFn == nil {
		newFn = func() *T { return new(T) }
	}
	p := &Pool[T]{
		name:  name,
		slots: make([]slot[T], capacity),
		free:  make([]int, capacity),
	}
	for i := range p.slots {
		p.slots[i].value = newFn()
		// Pop order hands out slot 0 first.
		p.free[i] = capacity - 1 - i
	}
	return p, nil
}

// Name returns the pool name used in errors and stats.
func (p *Pool[T]) Name() string { return p.name }

// Get checks out a buffer. The buffer keeps whatever contents it had when it
// was last released; callers reset it before writing.
func (p *Pool[T]) Get() (Handle[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleared {
		return Handle[T]{}, fmt.Errorf("pool %s: %w", p.name, ErrCleared)
	}
	if len(p.free) == 0 {
		p.exhausted++
		return Handle[T]{}, fmt.Errorf("pool %s (capacity %d): %w", p.name, len(p.slots), ErrExhausted)
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	s := &p.slots[idx]
	s.out = true
	p.inUse++
	p.gets++
	return Handle[T]{pool: p, index: idx, gen: s.gen}, nil
}

// Release returns a checked-out buffer to the pool. Releasing the same
// checkout twice, or a handle from another pool, is rejected and leaves the
// pool untouched.
func (p *Pool[T]) Release(h Handle[T]) error {
	if h.pool != p {
		return fmt.Errorf("pool %s: %w", p.name, ErrForeignHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleared {
		return fmt.Errorf("pool %s: %w", p.name, ErrCleared)
	}
	s := &p.slots[h.index]
	if !s.out || s.gen != h.gen {
		return fmt.Errorf("pool %s slot %d: %w", p.name, h.index, ErrNotCheckedOut)
	}
	s.out = false
	s.gen++
	p.free = append(p.free, h.index)
	p.inUse--
	p.releases++
	return nil
}

// Clear drops all storage. It fails with ErrInFlight while any buffer is
// checked out.
func (p *Pool[T]) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleared {
		return nil
	}
	if p.inUse > 0 {
		return fmt.Errorf("pool %s: %d %w", p.name, p.inUse, ErrInFlight)
	}
	p.slots = nil
	p.free = nil
	p.cleared = true
	return nil
}

// InUse returns the number of checked-out buffers.
func (p *Pool[T]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Free returns the number of buffers available to Get.
func (p *Pool[T]) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Cap returns the reserved capacity. It is zero after Clear.
func (p *Pool[T]) Cap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Stats returns a snapshot of pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:      p.name,
		Capacity:  len(p.slots),
		InUse:     p.inUse,
		Gets:      p.gets,
		Releases:  p.releases,
		Exhausted: p.exhausted,
	}
}

// Value returns the buffer behind h. It panics if h is stale: touching a
// buffer after giving it back is a programming error.
func (h Handle[T]) Value() *T {
	if h.pool == nil {
		panic("bufferpool: Value on zero Handle")
	}
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cleared {
		panic(fmt.Sprintf("bufferpool: %s: Value after Clear", p.name))
	}
	s := &p.slots[h.index]
	if !s.out || s.gen != h.gen {
		panic(fmt.Sprintf("bufferpool: %s slot %d: Value on released handle", p.name, h.index))
	}
	return s.value
}

// Valid reports whether h still refers to a checked-out buffer.
func (h Handle[T]) Valid() bool {
	if h.pool == nil {
		return false
	}
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cleared {
		return false
	}
	s := &p.slots[h.index]
	return s.out && s.gen == h.gen
}
