// Package regio is the register transport boundary of the camera driver.
//
// A Programmer reads and writes 32-bit device registers; the physical link
// behind it (serial control port, USB vendor requests, or an in-memory
// register file for simulation) is not the concern of the capture core.
// Bus adds bit-field access with read-modify-write made atomic per bus.
package regio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidField = errors.New("invalid register field")
	ErrFieldRange   = errors.New("value does not fit register field")
	ErrDevice       = errors.New("device reported error")
)

// DeviceID identifies the attached hardware.
type DeviceID struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Serial    string `json:"serial"`
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%04x:%04x (%s)", d.VendorID, d.ProductID, d.Serial)
}

// Programmer reads and writes device registers.
type Programmer interface {
	ReadRegister(addr uint32) (uint32, error)
	WriteRegister(addr, value uint32) error
	// Identify returns the vendor/product identity of the attached device.
	Identify() (DeviceID, error)
	// Reset issues a software reset of the device.
	Reset() error
	Close() error
}

// Register is a bit field [MSB:LSB] within a 32-bit register.
type Register struct {
	Address uint32
	MSB     uint8
	LSB     uint8
}

// Width returns the field width in bits.
func (r Register) Width() uint8 { return r.MSB - r.LSB + 1 }

// Mask returns the field mask in register position.
func (r Register) Mask() uint32 {
	w := r.Width()
	if w >= 32 {
		return 0xFFFFFFFF
	}
	return ((uint32(1) << w) - 1) << r.LSB
}

// Max returns the largest value the field can hold.
func (r Register) Max() uint32 { return r.Mask() >> r.LSB }

func (r Register) valid() bool { return r.MSB < 32 && r.LSB <= r.MSB }

func (r Register) String() string {
	return fmt.Sprintf("0x%04x[%d:%d]", r.Address, r.MSB, r.LSB)
}

// Bus serialises field access on one Programmer.
type Bus struct {
	mu sync.Mutex
	p  Programmer
}

// NewBus wraps p.
func NewBus(p Programmer) *Bus { return &Bus{p: p} }

// Programmer returns the wrapped programmer.
func (b *Bus) Programmer() Programmer { return b.p }

// Read returns the value of field r.
func (b *Bus) Read(r Register) (uint32, error) {
	if !r.valid() {
		return 0, fmt.Errorf("%s: %w", r, ErrInvalidField)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	v, err := b.p.ReadRegister(r.Address)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", r, err)
	}
	return (v & r.Mask()) >> r.LSB, nil
}

// Write stores value into field r, preserving the other bits of the
// register. Whole-register fields skip the read.
func (b *Bus) Write(r Register, value uint32) error {
	if !r.valid() {
		return fmt.Errorf("%s: %w", r, ErrInvalidField)
	}
	if value > r.Max() {
		return fmt.Errorf("%s value %d: %w", r, value, ErrFieldRange)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := value << r.LSB
	if r.Width() < 32 {
		cur, err := b.p.ReadRegister(r.Address)
		if err != nil {
			return fmt.Errorf("read %s: %w", r, err)
		}
		next = (cur &^ r.Mask()) | next
	}
	if err := b.p.WriteRegister(r.Address, next); err != nil {
		return fmt.Errorf("write %s: %w", r, err)
	}
	return nil
}

// Identify forwards to the programmer.
func (b *Bus) Identify() (DeviceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p.Identify()
}

// Reset forwards to the programmer.
func (b *Bus) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p.Reset()
}
