package tof

import (
	"github.com/banshee-data/depthcam/internal/parameter"
	"github.com/banshee-data/depthcam/internal/regio"
)

func reg(addr uint32, msb, lsb uint8) regio.Register {
	return regio.Register{Address: addr, MSB: msb, LSB: lsb}
}

// registerMap locates every register-backed parameter.
var registerMap = map[string]regio.Register{
	PixCntMax:              reg(0x5c00, 21, 0),
	PixCntMaxSetFailed:     reg(0x5c00, 24, 24),
	QuadCntMax:             reg(0x5c04, 5, 0),
	SubFrameCntMax:         reg(0x5c04, 11, 6),
	SysClkFreq:             reg(0x5c08, 7, 0),
	TGEn:                   reg(0x5c0c, 0, 0),
	BlkSize:                reg(0x5c10, 11, 0),
	BlkHeaderEn:            reg(0x5c10, 12, 12),
	OpCSPol:                reg(0x5c10, 13, 13),
	FBReadyEn:              reg(0x5c10, 14, 14),
	ConfidenceThreshold:    reg(0x5c14, 11, 0),
	IllumEnPol:             reg(0x5c18, 0, 0),
	BinRowsToMerge:         reg(0x5c1c, 3, 0),
	BinColsToMerge:         reg(0x5c1c, 7, 4),
	BinRowCount:            reg(0x5c20, 8, 0),
	BinColumnCount:         reg(0x5c20, 18, 9),
	BinningEn:              reg(0x5c20, 24, 24),
	RowStart:               reg(0x5c24, 8, 0),
	RowEnd:                 reg(0x5c24, 24, 16),
	ColStart:               reg(0x5c28, 8, 0),
	ColEnd:                 reg(0x5c28, 24, 16),
	DebugEn:                reg(0x5c2c, 0, 0),
	PixelDataSize:          reg(0x5c2c, 2, 1),
	OpDataArrangeMode:      reg(0x5c2c, 4, 3),
	HistogramEn:            reg(0x5c2c, 5, 5),
	IntgDutyCycle:          reg(0x5c30, 5, 0),
	IntgDutyCycleSetFailed: reg(0x5c30, 6, 6),
	ModFreq1:               reg(0x5c34, 15, 0),
	ModFreq2:               reg(0x5c38, 15, 0),
	VCOFreq:                reg(0x5c3c, 15, 0),
	ModPS1:                 reg(0x5c40, 3, 0),
	ModPS2:                 reg(0x5c40, 7, 4),
	ModM:                   reg(0x5c44, 7, 0),
	ModN:                   reg(0x5c44, 15, 8),
	ModPLLUpdate:           reg(0x5c48, 0, 0),
	MA:                     reg(0x5c4c, 3, 0),
	MB:                     reg(0x5c4c, 7, 4),
	K0:                     reg(0x5c4c, 15, 8),
	DealiasEn:              reg(0x5c50, 0, 0),
	Dealias16BitOpEnable:   reg(0x5c50, 1, 1),
	DealiasedPhaseMask:     reg(0x5c50, 5, 2),
	PhaseCorr1:             reg(0x5c54, 11, 0),
	PhaseCorr2:             reg(0x5c54, 27, 16),
	TIllumCalib:            reg(0x5c58, 7, 0),
	TSensorCalib:           reg(0x5c58, 15, 8),
	CoeffIllum1:            reg(0x5c5c, 11, 0),
	CoeffIllum2:            reg(0x5c5c, 27, 16),
	CoeffSensor1:           reg(0x5c60, 11, 0),
	CoeffSensor2:           reg(0x5c60, 27, 16),
	DisableOffsetCorr:      reg(0x5c64, 0, 0),
	DisableTempCorr:        reg(0x5c64, 1, 1),
	CalibPrec:              reg(0x5c64, 2, 2),
	ToFFrameType:           reg(0x5c68, 1, 0),
	SoftwareReset:          reg(0x5c6c, 0, 0),
	IllumPower:             reg(0x5c70, 7, 0),
}

// Fixed-point steps.
const (
	freqStep  = 1.0 / 16 // MHz
	coeffStep = 1.0 / 64
)

type paramKind int

const (
	kindBool paramKind = iota
	kindUint
	kindInt
	kindFloat
	kindEnum
)

type paramDef struct {
	name     string
	kind     paramKind
	io       parameter.IOType
	lo, hi   float64
	scale    float64
	inverted bool
	unit     string
	desc     string
	values   []uint32
	labels   []string
}

func (d paramDef) build(bus *regio.Bus) parameter.Parameter {
	s := parameter.Info{
		Name:        d.name,
		Description: d.desc,
		Unit:        d.unit,
		IO:          d.io,
		Register:    registerMap[d.name],
	}
	switch d.kind {
	case kindBool:
		return parameter.NewBool(bus, s, d.inverted)
	case kindInt:
		return parameter.NewInt(bus, s, int32(d.lo), int32(d.hi))
	case kindFloat:
		return parameter.NewFloat(bus, s, d.scale, d.lo, d.hi, d.lo < 0)
	case kindEnum:
		return parameter.NewEnum(bus, s, d.values, d.labels)
	default:
		return parameter.NewUint(bus, s, uint32(d.lo), uint32(d.hi))
	}
}

func buildAll(bus *regio.Bus, defs []paramDef) []parameter.Parameter {
	out := make([]parameter.Parameter, len(defs))
	for i, d := range defs {
		out[i] = d.build(bus)
	}
	return out
}

// commonParams exist on every generation.
var commonParams = []paramDef{
	{name: PixCntMax, kind: kindUint, lo: 1, hi: 1<<22 - 1, unit: "cycles", desc: "Clock cycles per quad"},
	{name: PixCntMaxSetFailed, kind: kindBool, io: parameter.IORead, desc: "Last pix_cnt_max write was rejected"},
	{name: QuadCntMax, kind: kindUint, lo: 1, hi: 63, desc: "Quads per sub-frame"},
	{name: SubFrameCntMax, kind: kindUint, lo: 1, hi: 63, desc: "Sub-frames per frame"},
	{name: TGEn, kind: kindBool, desc: "Timing generator enable"},
	{name: BlkSize, kind: kindUint, lo: 1, hi: 4095, desc: "Output block size"},
	{name: BlkHeaderEn, kind: kindBool, desc: "Emit block headers"},
	{name: OpCSPol, kind: kindBool, inverted: true, desc: "Output chip-select polarity (active low)"},
	{name: FBReadyEn, kind: kindBool, desc: "Frame buffer ready signal"},
	{name: ConfidenceThreshold, kind: kindUint, lo: 0, hi: 4095, desc: "Minimum amplitude for a valid depth sample"},
	{name: IllumEnPol, kind: kindBool, desc: "Illumination enable polarity"},
	{name: BinRowsToMerge, kind: kindUint, lo: 1, hi: 8, desc: "Rows merged per binned row"},
	{name: BinColsToMerge, kind: kindUint, lo: 1, hi: 8, desc: "Columns merged per binned column"},
	{name: BinRowCount, kind: kindUint, lo: 1, hi: 511, desc: "Rows after binning"},
	{name: BinColumnCount, kind: kindUint, lo: 1, hi: 1023, desc: "Columns after binning"},
	{name: BinningEn, kind: kindBool, desc: "Binning enable"},
	{name: RowStart, kind: kindUint, lo: 0, hi: 511, desc: "First ROI row"},
	{name: RowEnd, kind: kindUint, lo: 0, hi: 511, desc: "Last ROI row"},
	{name: ColStart, kind: kindUint, lo: 0, hi: 511, desc: "First ROI column"},
	{name: ColEnd, kind: kindUint, lo: 0, hi: 511, desc: "Last ROI column"},
	{name: DebugEn, kind: kindBool, desc: "Sensor debug output"},
	{name: PixelDataSize, kind: kindEnum, values: []uint32{0, 1}, labels: []string{"2_bytes", "4_bytes"}, desc: "Bytes per output pixel"},
	{name: OpDataArrangeMode, kind: kindEnum, values: []uint32{0, 1, 2}, labels: []string{"interleaved", "rows", "planes"}, desc: "Output data arrangement"},
	{name: IntgDutyCycle, kind: kindUint, lo: 0, hi: 63, desc: "Integration duty cycle steps"},
	{name: IntgDutyCycleSetFailed, kind: kindBool, io: parameter.IORead, desc: "Last duty cycle write was rejected"},
	{name: ModFreq1, kind: kindFloat, scale: freqStep, lo: 1, hi: 100, unit: "MHz", desc: "Modulation frequency of the first source"},
	{name: VCOFreq, kind: kindFloat, scale: freqStep, lo: 300, hi: 1200, unit: "MHz", desc: "Modulation PLL VCO frequency"},
	{name: ModPS1, kind: kindUint, lo: 0, hi: 15, desc: "First source post-scaler"},
	{name: ModM, kind: kindUint, lo: 1, hi: 255, desc: "PLL feedback divider"},
	{name: ModN, kind: kindUint, lo: 1, hi: 255, desc: "PLL input divider"},
	{name: ModPLLUpdate, kind: kindBool, io: parameter.IOWrite, desc: "Latch new PLL settings"},
	{name: PhaseCorr1, kind: kindInt, lo: -2048, hi: 2047, desc: "Phase offset correction, first frequency"},
	{name: TIllumCalib, kind: kindUint, lo: 0, hi: 255, unit: "C", desc: "Illumination temperature at calibration"},
	{name: TSensorCalib, kind: kindUint, lo: 0, hi: 255, unit: "C", desc: "Sensor temperature at calibration"},
	{name: CoeffIllum1, kind: kindFloat, scale: coeffStep, lo: -32, hi: 31.984375, desc: "Illumination temperature coefficient, first frequency"},
	{name: CoeffSensor1, kind: kindFloat, scale: coeffStep, lo: -32, hi: 31.984375, desc: "Sensor temperature coefficient, first frequency"},
	{name: DisableOffsetCorr, kind: kindBool, desc: "Bypass phase offset correction"},
	{name: DisableTempCorr, kind: kindBool, desc: "Bypass temperature correction"},
	{name: CalibPrec, kind: kindEnum, values: []uint32{0, 1}, labels: []string{"low", "high"}, desc: "Calibration coefficient precision"},
	{name: ToFFrameType, kind: kindEnum, values: []uint32{0, 1, 2}, labels: []string{"quad", "phase_amplitude", "depth"}, desc: "Sensor output mode"},
	{name: SoftwareReset, kind: kindBool, io: parameter.IOWrite, desc: "Software reset trigger"},
	{name: IllumPower, kind: kindUint, lo: 0, hi: 255, desc: "Illumination drive strength"},
}

// dealiasParams exist on generations with two illumination sources.
var dealiasParams = []paramDef{
	{name: SysClkFreq, kind: kindUint, io: parameter.IORead, lo: 0, hi: 255, unit: "MHz", desc: "Sensor system clock"},
	{name: HistogramEn, kind: kindBool, desc: "Histogram output enable"},
	{name: ModFreq2, kind: kindFloat, scale: freqStep, lo: 1, hi: 100, unit: "MHz", desc: "Modulation frequency of the second source"},
	{name: ModPS2, kind: kindUint, lo: 0, hi: 15, desc: "Second source post-scaler"},
	{name: MA, kind: kindUint, lo: 1, hi: 15, desc: "First frequency ratio term"},
	{name: MB, kind: kindUint, lo: 1, hi: 15, desc: "Second frequency ratio term"},
	{name: K0, kind: kindUint, lo: 0, hi: 255, desc: "Dealiasing phase constant"},
	{name: DealiasEn, kind: kindBool, desc: "Dual-frequency dealiasing enable"},
	{name: Dealias16BitOpEnable, kind: kindBool, desc: "16-bit dealiased output"},
	{name: DealiasedPhaseMask, kind: kindUint, lo: 0, hi: 15, desc: "Dealiased phase mask bits"},
	{name: PhaseCorr2, kind: kindInt, lo: -2048, hi: 2047, desc: "Phase offset correction, second frequency"},
	{name: CoeffIllum2, kind: kindFloat, scale: coeffStep, lo: -32, hi: 31.984375, desc: "Illumination temperature coefficient, second frequency"},
	{name: CoeffSensor2, kind: kindFloat, scale: coeffStep, lo: -32, hi: 31.984375, desc: "Sensor temperature coefficient, second frequency"},
}
