package regio

import (
	"errors"
	"maps"
	"sync"
)

var ErrClosed = errors.New("programmer closed")

// MemoryProgrammer is an in-memory register file. It backs the simulated
// camera and the tests.
type MemoryProgrammer struct {
	mu       sync.Mutex
	id       DeviceID
	defaults map[uint32]uint32
	regs     map[uint32]uint32
	closed   bool

	// OnWrite, when set, runs after every successful write. Simulated
	// devices use it to model self-clearing bits.
	OnWrite func(m *MemoryProgrammer, addr, value uint32)

	// FailReads makes every read of the listed addresses fail.
	FailReads map[uint32]error

	reads, writes, resets int
}

// NewMemoryProgrammer creates a register file reporting id, preloaded with
// defaults. Reset restores the defaults.
func NewMemoryProgrammer(id DeviceID, defaults map[uint32]uint32) *MemoryProgrammer {
	if defaults == nil {
		defaults = map[uint32]uint32{}
	}
	return &MemoryProgrammer{
		id:       id,
		defaults: maps.Clone(defaults),
		regs:     maps.Clone(defaults),
	}
}

func (m *MemoryProgrammer) ReadRegister(addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if err := m.FailReads[addr]; err != nil {
		return 0, err
	}
	m.reads++
	return m.regs[addr], nil
}

func (m *MemoryProgrammer) WriteRegister(addr, value uint32) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.regs[addr] = value
	m.writes++
	hook := m.OnWrite
	m.mu.Unlock()

	if hook != nil {
		hook(m, addr, value)
	}
	return nil
}

// Poke sets a register without counting a write or running OnWrite.
func (m *MemoryProgrammer) Poke(addr, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = value
}

// Peek returns a register without counting a read.
func (m *MemoryProgrammer) Peek(addr uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[addr]
}

func (m *MemoryProgrammer) Identify() (DeviceID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return DeviceID{}, ErrClosed
	}
	return m.id, nil
}

func (m *MemoryProgrammer) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.regs = maps.Clone(m.defaults)
	m.resets++
	return nil
}

func (m *MemoryProgrammer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Counts returns the number of reads, writes and resets performed.
func (m *MemoryProgrammer) Counts() (reads, writes, resets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes, m.resets
}
