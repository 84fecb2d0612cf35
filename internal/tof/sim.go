package tof

import (
	"github.com/banshee-data/depthcam/internal/regio"
)

// Simulated sensor limits.
const (
	simMaxDutyCycle = 50
	simSerial       = "SIM0001"
)

// simDefaults is the power-on register file of a simulated sensor: 30 fps
// at a 60 MHz clock, full QVGA frame, 4-byte interleaved phase/amplitude
// output, 24 and 18 MHz modulation with dealiasing on.
func simDefaults(gen Generation) map[uint32]uint32 {
	size := gen.SensorSize()
	regs := map[uint32]uint32{}
	set := func(name string, v uint32) {
		f := registerMap[name]
		regs[f.Address] |= v << f.LSB
	}
	set(PixCntMax, 500000)
	set(QuadCntMax, 4)
	set(SubFrameCntMax, 1)
	set(SysClkFreq, 60)
	set(BlkSize, 2048)
	set(ConfidenceThreshold, 8)
	set(BinRowsToMerge, 1)
	set(BinColsToMerge, 1)
	set(BinRowCount, size.Height)
	set(BinColumnCount, size.Width)
	set(RowEnd, size.Height-1)
	set(ColEnd, size.Width-1)
	set(PixelDataSize, 1)
	set(IntgDutyCycle, 20)
	set(ModFreq1, 24*16)
	set(ModFreq2, 18*16)
	set(VCOFreq, 600*16)
	set(ModM, 25)
	set(ModN, 1)
	set(MA, 4)
	set(MB, 3)
	set(DealiasEn, 1)
	set(ToFFrameType, 1)
	set(IllumPower, 200)
	return regs
}

// NewSimulatedProgrammer returns a register file that behaves like a TI
// sensor of generation gen: software_reset restores the power-on state,
// and the timing and duty-cycle registers flag values the sensor would
// reject.
func NewSimulatedProgrammer(gen Generation) *regio.MemoryProgrammer {
	m := regio.NewMemoryProgrammer(
		regio.DeviceID{VendorID: VendorID, ProductID: gen.ProductID(), Serial: simSerial},
		simDefaults(gen),
	)
	m.OnWrite = simulateWrite
	return m
}

func field(m *regio.MemoryProgrammer, name string) uint32 {
	f := registerMap[name]
	return (m.Peek(f.Address) & f.Mask()) >> f.LSB
}

func setFlag(m *regio.MemoryProgrammer, name string, on bool) {
	f := registerMap[name]
	v := m.Peek(f.Address) &^ f.Mask()
	if on {
		v |= f.Mask()
	}
	m.Poke(f.Address, v)
}

func simulateWrite(m *regio.MemoryProgrammer, addr, value uint32) {
	switch addr {
	case registerMap[SoftwareReset].Address:
		if value&registerMap[SoftwareReset].Mask() != 0 {
			tracef("sim: software reset")
			_ = m.Reset()
		}
	case registerMap[PixCntMax].Address:
		pix := field(m, PixCntMax)
		rejected := pix < simFramePixels(m)+blankingCycles
		if rejected {
			tracef("sim: pix_cnt_max %d rejected", pix)
		}
		setFlag(m, PixCntMaxSetFailed, rejected)
	case registerMap[IntgDutyCycle].Address:
		d := field(m, IntgDutyCycle)
		rejected := d > simMaxDutyCycle
		if rejected {
			tracef("sim: intg_duty_cycle %d rejected", d)
		}
		setFlag(m, IntgDutyCycleSetFailed, rejected)
	case registerMap[ModPLLUpdate].Address:
		setFlag(m, ModPLLUpdate, false)
	}
}

// simFramePixels is the number of output pixels read per quad.
func simFramePixels(m *regio.MemoryProgrammer) uint32 {
	if field(m, BinningEn) != 0 {
		return field(m, BinRowCount) * field(m, BinColumnCount)
	}
	rows := field(m, RowEnd) - field(m, RowStart) + 1
	cols := field(m, ColEnd) - field(m, ColStart) + 1
	return rows * cols
}
