package regio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultQueryTimeout bounds every register transaction on the control link.
const DefaultQueryTimeout = 500 * time.Millisecond

// Querier sends one command line and returns the first reply line.
// serialmux.SerialMux implements it.
type Querier interface {
	Query(ctx context.Context, command string) (string, error)
	Close() error
}

// SerialProgrammer speaks the line protocol of the camera control port:
//
//	R <addr>          -> OK <value>
//	W <addr> <value>  -> OK
//	I                 -> OK <vendor> <product> <serial>
//	X                 -> OK            (software reset)
//
// Numbers are hexadecimal. Any failure is answered with "ERR <reason>".
type SerialProgrammer struct {
	q       Querier
	timeout time.Duration
}

// NewSerialProgrammer wraps q. A zero timeout selects DefaultQueryTimeout.
func NewSerialProgrammer(q Querier, timeout time.Duration) *SerialProgrammer {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &SerialProgrammer{q: q, timeout: timeout}
}

func (s *SerialProgrammer) transact(command string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	reply, err := s.q.Query(ctx, command)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%q: empty reply", command)
	}
	switch fields[0] {
	case "OK":
		return fields[1:], nil
	case "ERR":
		return nil, fmt.Errorf("%q: %w: %s", command, ErrDevice, strings.Join(fields[1:], " "))
	default:
		return nil, fmt.Errorf("%q: unexpected reply %q", command, reply)
	}
}

func (s *SerialProgrammer) ReadRegister(addr uint32) (uint32, error) {
	fields, err := s.transact(fmt.Sprintf("R %04x", addr))
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("read 0x%04x: malformed reply %v", addr, fields)
	}
	v, err := strconv.ParseUint(fields[0], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("read 0x%04x: %w", addr, err)
	}
	return uint32(v), nil
}

func (s *SerialProgrammer) WriteRegister(addr, value uint32) error {
	_, err := s.transact(fmt.Sprintf("W %04x %08x", addr, value))
	return err
}

func (s *SerialProgrammer) Identify() (DeviceID, error) {
	fields, err := s.transact("I")
	if err != nil {
		return DeviceID{}, err
	}
	if len(fields) < 2 {
		return DeviceID{}, fmt.Errorf("identify: malformed reply %v", fields)
	}
	vid, err := strconv.ParseUint(fields[0], 16, 16)
	if err != nil {
		return DeviceID{}, fmt.Errorf("identify vendor: %w", err)
	}
	pid, err := strconv.ParseUint(fields[1], 16, 16)
	if err != nil {
		return DeviceID{}, fmt.Errorf("identify product: %w", err)
	}
	id := DeviceID{VendorID: uint16(vid), ProductID: uint16(pid)}
	if len(fields) > 2 {
		id.Serial = fields[2]
	}
	return id, nil
}

func (s *SerialProgrammer) Reset() error {
	_, err := s.transact("X")
	return err
}

func (s *SerialProgrammer) Close() error { return s.q.Close() }
