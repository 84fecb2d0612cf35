package regio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/serialmux"
)

var testID = DeviceID{VendorID: 0x0451, ProductID: 0x9105, Serial: "TST001"}

func TestRegister_MaskAndWidth(t *testing.T) {
	r := Register{Address: 0x10, MSB: 7, LSB: 4}
	assert.Equal(t, uint8(4), r.Width())
	assert.Equal(t, uint32(0xF0), r.Mask())
	assert.Equal(t, uint32(0xF), r.Max())

	full := Register{Address: 0x10, MSB: 31, LSB: 0}
	assert.Equal(t, uint32(0xFFFFFFFF), full.Mask())
}

func TestBus_ReadModifyWrite(t *testing.T) {
	m := NewMemoryProgrammer(testID, map[uint32]uint32{0x20: 0xAB00_00CD})
	bus := NewBus(m)

	r := Register{Address: 0x20, MSB: 15, LSB: 8}
	require.NoError(t, bus.Write(r, 0x5A))
	assert.Equal(t, uint32(0xAB00_5ACD), m.Peek(0x20), "other bits must be preserved")

	v, err := bus.Read(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5A), v)

	require.ErrorIs(t, bus.Write(r, 0x100), ErrFieldRange)
	_, err = bus.Read(Register{Address: 0x20, MSB: 2, LSB: 5})
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestBus_ReadFailure(t *testing.T) {
	m := NewMemoryProgrammer(testID, nil)
	m.FailReads = map[uint32]error{0x30: errors.New("nak")}
	bus := NewBus(m)

	_, err := bus.Read(Register{Address: 0x30, MSB: 3, LSB: 0})
	require.Error(t, err)
	require.Error(t, bus.Write(Register{Address: 0x30, MSB: 3, LSB: 0}, 1))
}

func TestMemoryProgrammer_ResetRestoresDefaults(t *testing.T) {
	m := NewMemoryProgrammer(testID, map[uint32]uint32{0x1: 7})
	require.NoError(t, m.WriteRegister(0x1, 9))
	require.NoError(t, m.Reset())
	assert.Equal(t, uint32(7), m.Peek(0x1))

	_, writes, resets := m.Counts()
	assert.Equal(t, 1, writes)
	assert.Equal(t, 1, resets)

	require.NoError(t, m.Close())
	_, err := m.ReadRegister(0x1)
	require.ErrorIs(t, err, ErrClosed)
}

// deviceResponder emulates the camera end of the control link on top of a
// register file.
func deviceResponder(m *MemoryProgrammer) func(string) string {
	return func(cmd string) string {
		f := strings.Fields(cmd)
		if len(f) == 0 {
			return "ERR empty"
		}
		switch f[0] {
		case "R":
			addr, _ := strconv.ParseUint(f[1], 16, 32)
			return fmt.Sprintf("OK %08x", m.Peek(uint32(addr)))
		case "W":
			addr, _ := strconv.ParseUint(f[1], 16, 32)
			val, _ := strconv.ParseUint(f[2], 16, 32)
			m.Poke(uint32(addr), uint32(val))
			return "OK"
		case "I":
			return "OK 0451 9105 TST001"
		case "X":
			return "OK"
		}
		return "ERR unknown command"
	}
}

func newSerialProgrammer(t *testing.T) (*SerialProgrammer, *MemoryProgrammer) {
	t.Helper()
	regs := NewMemoryProgrammer(testID, map[uint32]uint32{0x5c40: 0x12345678})
	port := serialmux.NewTestableSerialPort()
	port.Responder = deviceResponder(regs)
	mux := serialmux.NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()

	sp := NewSerialProgrammer(mux, 0)
	t.Cleanup(func() {
		cancel()
		sp.Close()
		<-done
	})
	return sp, regs
}

func TestSerialProgrammer_ReadWrite(t *testing.T) {
	sp, regs := newSerialProgrammer(t)

	v, err := sp.ReadRegister(0x5c40)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)

	require.NoError(t, sp.WriteRegister(0x5c44, 0xBEEF))
	assert.Equal(t, uint32(0xBEEF), regs.Peek(0x5c44))

	bus := NewBus(sp)
	require.NoError(t, bus.Write(Register{Address: 0x5c40, MSB: 3, LSB: 0}, 0xA))
	assert.Equal(t, uint32(0x1234567A), regs.Peek(0x5c40))
}

func TestSerialProgrammer_IdentifyAndReset(t *testing.T) {
	sp, _ := newSerialProgrammer(t)

	id, err := sp.Identify()
	require.NoError(t, err)
	assert.Equal(t, testID, id)
	require.NoError(t, sp.Reset())
}

type stubQuerier struct{ reply string }

func (s stubQuerier) Query(context.Context, string) (string, error) { return s.reply, nil }
func (s stubQuerier) Close() error                                  { return nil }

func TestSerialProgrammer_DeviceErrors(t *testing.T) {
	sp := NewSerialProgrammer(stubQuerier{reply: "ERR bad address"}, 0)
	_, err := sp.ReadRegister(0xFFFF)
	require.ErrorIs(t, err, ErrDevice)

	sp = NewSerialProgrammer(stubQuerier{reply: "HUH"}, 0)
	require.Error(t, sp.WriteRegister(1, 1))

	sp = NewSerialProgrammer(stubQuerier{reply: "OK zz"}, 0)
	_, err = sp.ReadRegister(1)
	require.Error(t, err)

	sp = NewSerialProgrammer(stubQuerier{reply: ""}, 0)
	_, err = sp.Identify()
	require.Error(t, err)
}
