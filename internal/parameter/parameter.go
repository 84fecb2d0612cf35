// Package parameter models the named, typed configuration quantities of a
// camera (frame geometry, binning, integration time, modulation frequencies,
// calibration coefficients, debug toggles) and the registry that holds them.
//
// Most parameters are views onto a register field reached through a
// regio.Bus; Virtual parameters compute their value from other parameters.
// Names are the wire contract with client configuration data and are never
// rewritten.
package parameter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/banshee-data/depthcam/internal/regio"
)

var (
	ErrDuplicate  = errors.New("parameter already registered")
	ErrNotFound   = errors.New("parameter not found")
	ErrWrongType  = errors.New("wrong parameter type")
	ErrOutOfRange = errors.New("value out of range")
	ErrReadOnly   = errors.New("parameter is read-only")
	ErrWriteOnly  = errors.New("parameter is write-only")
)

// IOType says whether a parameter may be read, written, or both.
type IOType int

const (
	IOReadWrite IOType = iota
	IORead
	IOWrite
)

func (t IOType) String() string {
	switch t {
	case IORead:
		return "r"
	case IOWrite:
		return "w"
	default:
		return "rw"
	}
}

// Parameter is one named, hardware-tunable quantity.
type Parameter interface {
	Name() string
	DisplayName() string
	Description() string
	Unit() string
	IOType() IOType
	// Refresh re-reads the value from the device into the cache.
	Refresh() error
	// Value returns the cached value (bool, uint32, int32, float64 or string).
	Value() any
	// SetAny converts v to the parameter's type and writes it.
	SetAny(v any) error
}

// Info carries the descriptive fields shared by all parameters.
type Info struct {
	Name        string
	DisplayName string
	Description string
	Unit        string
	IO          IOType
	Register    regio.Register
}

type base struct {
	info Info
	bus  *regio.Bus
	mu   sync.Mutex
}

func (b *base) Name() string { return b.info.Name }

func (b *base) DisplayName() string {
	if b.info.DisplayName == "" {
		return b.info.Name
	}
	return b.info.DisplayName
}

func (b *base) Description() string { return b.info.Description }
func (b *base) Unit() string        { return b.info.Unit }
func (b *base) IOType() IOType      { return b.info.IO }

func (b *base) readable() bool { return b.info.IO != IOWrite }
func (b *base) writable() bool { return b.info.IO != IORead }

func (b *base) readRaw() (uint32, error) {
	v, err := b.bus.Read(b.info.Register)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", b.info.Name, err)
	}
	return v, nil
}

func (b *base) writeRaw(v uint32) error {
	if !b.writable() {
		return fmt.Errorf("parameter %s: %w", b.info.Name, ErrReadOnly)
	}
	if err := b.bus.Write(b.info.Register, v); err != nil {
		return fmt.Errorf("parameter %s: %w", b.info.Name, err)
	}
	return nil
}

func (b *base) outOfRange(v any, lower, upper any) error {
	return fmt.Errorf("parameter %s: %v not in [%v, %v]: %w", b.info.Name, v, lower, upper, ErrOutOfRange)
}

func (b *base) wrongType(v any) error {
	return fmt.Errorf("parameter %s: cannot use %T: %w", b.info.Name, v, ErrWrongType)
}

// BoolParameter is a single-bit flag. Inverted parameters store 0 for true.
type BoolParameter struct {
	base
	inverted bool
	value    bool
}

// NewBool creates a flag bound to s.Register.
func NewBool(bus *regio.Bus, s Info, inverted bool) *BoolParameter {
	return &BoolParameter{base: base{info: s, bus: bus}, inverted: inverted}
}

func (p *BoolParameter) Get() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readable() {
		return p.value, nil
	}
	raw, err := p.readRaw()
	if err != nil {
		return false, err
	}
	p.value = (raw != 0) != p.inverted
	return p.value, nil
}

func (p *BoolParameter) Set(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw := uint32(0)
	if v != p.inverted {
		raw = 1
	}
	if err := p.writeRaw(raw); err != nil {
		return err
	}
	p.value = v
	return nil
}

func (p *BoolParameter) Refresh() error { _, err := p.Get(); return err }

func (p *BoolParameter) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *BoolParameter) SetAny(v any) error {
	switch x := v.(type) {
	case bool:
		return p.Set(x)
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return p.wrongType(v)
		}
		return p.Set(b)
	}
	return p.wrongType(v)
}

// UintParameter is an unsigned integer field with an inclusive range.
type UintParameter struct {
	base
	lower, upper uint32
	value        uint32
}

// NewUint creates an unsigned parameter limited to [lower, upper].
func NewUint(bus *regio.Bus, s Info, lower, upper uint32) *UintParameter {
	return &UintParameter{base: base{info: s, bus: bus}, lower: lower, upper: upper}
}

// Range returns the inclusive bounds.
func (p *UintParameter) Range() (uint32, uint32) { return p.lower, p.upper }

func (p *UintParameter) Get() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readable() {
		return p.value, nil
	}
	raw, err := p.readRaw()
	if err != nil {
		return 0, err
	}
	p.value = raw
	return raw, nil
}

func (p *UintParameter) Set(v uint32) error {
	if v < p.lower || v > p.upper {
		return p.outOfRange(v, p.lower, p.upper)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writeRaw(v); err != nil {
		return err
	}
	p.value = v
	return nil
}

func (p *UintParameter) Refresh() error { _, err := p.Get(); return err }

func (p *UintParameter) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *UintParameter) SetAny(v any) error {
	f, ok := toFloat(v)
	if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxUint32 {
		return p.wrongType(v)
	}
	return p.Set(uint32(f))
}

// IntParameter is a signed two's-complement field with an inclusive range.
type IntParameter struct {
	base
	lower, upper int32
	value        int32
}

// NewInt creates a signed parameter limited to [lower, upper].
func NewInt(bus *regio.Bus, s Info, lower, upper int32) *IntParameter {
	return &IntParameter{base: base{info: s, bus: bus}, lower: lower, upper: upper}
}

func (p *IntParameter) Get() (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readable() {
		return p.value, nil
	}
	raw, err := p.readRaw()
	if err != nil {
		return 0, err
	}
	p.value = signExtend(raw, p.info.Register.Width())
	return p.value, nil
}

func (p *IntParameter) Set(v int32) error {
	if v < p.lower || v > p.upper {
		return p.outOfRange(v, p.lower, p.upper)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writeRaw(uint32(v) & p.info.Register.Max()); err != nil {
		return err
	}
	p.value = v
	return nil
}

func (p *IntParameter) Refresh() error { _, err := p.Get(); return err }

func (p *IntParameter) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *IntParameter) SetAny(v any) error {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return p.wrongType(v)
	}
	return p.Set(int32(f))
}

// FloatParameter is a fixed-point field: value = raw * Scale.
type FloatParameter struct {
	base
	scale        float64
	signed       bool
	lower, upper float64
	value        float64
}

// NewFloat creates a fixed-point parameter. Signed fields are two's
// complement within the register width.
func NewFloat(bus *regio.Bus, s Info, scale, lower, upper float64, signed bool) *FloatParameter {
	return &FloatParameter{base: base{info: s, bus: bus}, scale: scale, signed: signed, lower: lower, upper: upper}
}

func (p *FloatParameter) Range() (float64, float64) { return p.lower, p.upper }

// InRange reports whether Set would accept v.
func (p *FloatParameter) InRange(v float64) error {
	if math.IsNaN(v) || v < p.lower || v > p.upper {
		return p.outOfRange(v, p.lower, p.upper)
	}
	return nil
}

func (p *FloatParameter) Get() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readable() {
		return p.value, nil
	}
	raw, err := p.readRaw()
	if err != nil {
		return 0, err
	}
	if p.signed {
		p.value = float64(signExtend(raw, p.info.Register.Width())) * p.scale
	} else {
		p.value = float64(raw) * p.scale
	}
	return p.value, nil
}

func (p *FloatParameter) Set(v float64) error {
	if err := p.InRange(v); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	steps := int64(math.Round(v / p.scale))
	raw := uint32(steps) & p.info.Register.Max()
	if err := p.writeRaw(raw); err != nil {
		return err
	}
	p.value = float64(steps) * p.scale
	return nil
}

func (p *FloatParameter) Refresh() error { _, err := p.Get(); return err }

func (p *FloatParameter) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *FloatParameter) SetAny(v any) error {
	f, ok := toFloat(v)
	if !ok {
		return p.wrongType(v)
	}
	return p.Set(f)
}

// EnumParameter is an unsigned field restricted to a set of named values.
type EnumParameter struct {
	base
	values []uint32
	names  []string
	value  uint32
}

// NewEnum creates an enumerated parameter. values and names are parallel.
func NewEnum(bus *regio.Bus, s Info, values []uint32, names []string) *EnumParameter {
	return &EnumParameter{base: base{info: s, bus: bus}, values: values, names: names}
}

func (p *EnumParameter) Get() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readable() {
		return p.value, nil
	}
	raw, err := p.readRaw()
	if err != nil {
		return 0, err
	}
	p.value = raw
	return raw, nil
}

func (p *EnumParameter) Set(v uint32) error {
	if p.index(v) < 0 {
		return p.outOfRange(v, p.names, "")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writeRaw(v); err != nil {
		return err
	}
	p.value = v
	return nil
}

// ValueName returns the name of the cached value.
func (p *EnumParameter) ValueName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.index(p.value); i >= 0 && i < len(p.names) {
		return p.names[i]
	}
	return strconv.FormatUint(uint64(p.value), 10)
}

func (p *EnumParameter) index(v uint32) int {
	for i, x := range p.values {
		if x == v {
			return i
		}
	}
	return -1
}

func (p *EnumParameter) Refresh() error { _, err := p.Get(); return err }

func (p *EnumParameter) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *EnumParameter) SetAny(v any) error {
	if s, ok := v.(string); ok {
		for i, n := range p.names {
			if n == s && i < len(p.values) {
				return p.Set(p.values[i])
			}
		}
		return p.wrongType(v)
	}
	f, ok := toFloat(v)
	if !ok || f < 0 || f != math.Trunc(f) {
		return p.wrongType(v)
	}
	return p.Set(uint32(f))
}

func signExtend(raw uint32, width uint8) int32 {
	if width >= 32 {
		return int32(raw)
	}
	shift := 32 - width
	return int32(raw<<shift) >> shift
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
