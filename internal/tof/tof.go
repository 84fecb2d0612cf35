// Package tof drives Texas Instruments time-of-flight depth sensors.
//
// Camera implements camera.Device on top of a register bus and a raw
// streamer. The register protocol is shared by every sensor generation;
// what differs (system clock, histogram, dealiasing, calibration layout,
// point-cloud support) comes from a Generation.
package tof

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
	"github.com/banshee-data/depthcam/internal/regio"
	"github.com/banshee-data/depthcam/internal/streamer"
)

var (
	ErrVendorMismatch = errors.New("unexpected device vendor")
	ErrFrameSize      = errors.New("invalid frame size")
	ErrFrameRate      = errors.New("invalid frame rate")
	ErrBinning        = errors.New("invalid binning")
	ErrROI            = errors.New("invalid region of interest")
	ErrFrequency      = errors.New("invalid modulation frequency")
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrNotInitialised = errors.New("device not initialised")
)

// blankingCycles is the readout overhead added to every quad.
const blankingCycles = 2000

// Options configures a Camera.
type Options struct {
	Calibration Calibration
	Lens        Lens
	// ResetSettle is how long Reset waits for the sensor to come back.
	ResetSettle time.Duration
}

// Camera is the TI ToF device shared by all generations.
type Camera struct {
	gen  Generation
	bus  *regio.Bus
	strm streamer.Streamer
	opts Options

	mu  sync.Mutex
	reg *parameter.Registry
	cfg conversion
}

// conversion is the per-frame configuration latched from the registers so
// the capture goroutine does not touch the bus for every frame.
type conversion struct {
	layout     streamer.Layout
	rangeM     float64
	threshold  uint16
	pointCloud bool
	ampFactor  float64
	depthScale float64
}

var _ camera.Device = (*Camera)(nil)

// New creates a device. Nothing touches the hardware until Init.
func New(gen Generation, bus *regio.Bus, s streamer.Streamer, opts Options) *Camera {
	if opts.Lens == (Lens{}) {
		opts.Lens = DefaultLens
	}
	return &Camera{gen: gen, bus: bus, strm: s, opts: opts}
}

func (c *Camera) Name() string { return "ti-" + c.gen.Name() }

// Generation returns the sensor family.
func (c *Camera) Generation() Generation { return c.gen }

// Init verifies the vendor, registers every parameter, applies calibration
// and programs the start-up defaults.
func (c *Camera) Init(reg *parameter.Registry) error {
	id, err := c.bus.Identify()
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if id.VendorID != VendorID {
		return fmt.Errorf("%w: %s, want vendor %04x", ErrVendorMismatch, id, VendorID)
	}

	params := buildAll(c.bus, commonParams)
	params = append(params, c.gen.Parameters(c.bus)...)
	params = append(params, c.virtualParameters(reg)...)
	if err := reg.AddAll(params...); err != nil {
		return err
	}

	c.mu.Lock()
	c.reg = reg
	c.mu.Unlock()

	if err := c.gen.ApplyCalibration(reg, c.opts.Calibration); err != nil {
		return err
	}
	if err := c.initStartParams(); err != nil {
		return err
	}
	diagf("%s: initialised %s with %d parameters", c.Name(), id, reg.Len())
	return nil
}

func (c *Camera) registry() (*parameter.Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reg == nil {
		return nil, ErrNotInitialised
	}
	return c.reg, nil
}

// initStartParams puts the sensor in a known state: timing generator off,
// block headers on, full-sensor frame, no binning.
func (c *Camera) initStartParams() error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	for _, set := range []func() error{
		func() error { return parameter.SetBool(reg, TGEn, false) },
		func() error { return parameter.SetBool(reg, BlkHeaderEn, true) },
		func() error { return parameter.SetBool(reg, FBReadyEn, true) },
		func() error { return parameter.SetBool(reg, OpCSPol, true) },
	} {
		if err := set(); err != nil {
			return fmt.Errorf("init start params: %w", err)
		}
	}
	if err := c.SetFrameSize(c.gen.SensorSize(), true); err != nil {
		return err
	}
	return c.latch()
}

// latch refreshes the conversion settings from the registers and pushes
// the pixel layout to the streamer.
func (c *Camera) latch() error {
	bpp, err := c.BytesPerPixel()
	if err != nil {
		return err
	}
	mode, err := c.OpDataArrangeMode()
	if err != nil {
		return err
	}
	f, err := c.IlluminationFrequency()
	if err != nil {
		return err
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	th, err := parameter.GetUint(reg, ConfidenceThreshold)
	if err != nil {
		return err
	}
	layout := streamer.Layout{BytesPerPixel: bpp, ArrangeMode: mode}
	if layout.Validate() == nil {
		if err := c.strm.SetLayout(layout); err != nil {
			return err
		}
	}

	rangeM := unambiguousRange(f)
	c.mu.Lock()
	c.cfg = conversion{
		layout:     layout,
		rangeM:     rangeM,
		threshold:  uint16(th),
		pointCloud: c.gen.PointCloud(),
		ampFactor:  c.gen.AmplitudeNormalizingFactor(),
		depthScale: c.gen.DepthScalingFactor(rangeM),
	}
	c.mu.Unlock()
	diagf("%s: latched %d bpp mode %d, range %.3f m, threshold %d", c.Name(), bpp, mode, rangeM, th)
	return nil
}

func (c *Camera) conversion() conversion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// AmplitudeNormalizingFactor returns the latched factor that maps raw
// amplitude codes onto [0, 1].
func (c *Camera) AmplitudeNormalizingFactor() (float64, error) {
	if _, err := c.registry(); err != nil {
		return 0, err
	}
	return c.conversion().ampFactor, nil
}

// DepthScalingFactor returns the latched metres per phase code.
func (c *Camera) DepthScalingFactor() (float64, error) {
	if _, err := c.registry(); err != nil {
		return 0, err
	}
	return c.conversion().depthScale, nil
}

func (c *Camera) Start() error {
	if err := c.latch(); err != nil {
		return err
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	if err := parameter.SetBool(reg, TGEn, true); err != nil {
		return err
	}
	if err := c.strm.Start(); err != nil {
		_ = parameter.SetBool(reg, TGEn, false)
		return fmt.Errorf("start streamer: %w", err)
	}
	return nil
}

func (c *Camera) Stop() error {
	serr := c.strm.Stop()
	reg, err := c.registry()
	if err != nil {
		return errors.Join(serr, err)
	}
	return errors.Join(serr, parameter.SetBool(reg, TGEn, false))
}

// Reset pulses software_reset, waits for the sensor and reprograms
// calibration and start-up defaults.
func (c *Camera) Reset() error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	if err := parameter.SetBool(reg, SoftwareReset, true); err != nil {
		return err
	}
	if c.opts.ResetSettle > 0 {
		time.Sleep(c.opts.ResetSettle)
	}
	if err := c.gen.ApplyCalibration(reg, c.opts.Calibration); err != nil {
		return err
	}
	opsf("%s: software reset", c.Name())
	return c.initStartParams()
}

func (c *Camera) CaptureRawUnprocessedFrame(out *frame.RawFrame) error {
	return c.strm.Capture(out)
}

func (c *Camera) SystemClockFrequency() (uint32, error) {
	reg, err := c.registry()
	if err != nil {
		return 0, err
	}
	return c.gen.SystemClockFrequency(reg)
}

func (c *Camera) HistogramEnabled() (bool, error) {
	reg, err := c.registry()
	if err != nil {
		return false, err
	}
	return c.gen.HistogramEnabled(reg)
}

func (c *Camera) IlluminationFrequency() (float64, error) {
	reg, err := c.registry()
	if err != nil {
		return 0, err
	}
	return c.gen.IlluminationFrequency(reg)
}

func (c *Camera) BytesPerPixel() (uint32, error) {
	reg, err := c.registry()
	if err != nil {
		return 0, err
	}
	v, err := parameter.GetUint(reg, PixelDataSize)
	if err != nil {
		return 0, err
	}
	return 2 * (v + 1), nil
}

func (c *Camera) SetBytesPerPixel(bpp uint32) error {
	if bpp != 2 && bpp != 4 {
		return fmt.Errorf("%d bytes per pixel: %w", bpp, streamer.ErrLayout)
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	if err := parameter.SetUint(reg, PixelDataSize, bpp/2-1); err != nil {
		return err
	}
	return c.latch()
}

// Is16BitModeEnabled reports dealiased 16-bit output on generations that
// have it, and 2-byte pixels otherwise.
func (c *Camera) Is16BitModeEnabled() (bool, error) {
	reg, err := c.registry()
	if err != nil {
		return false, err
	}
	if reg.Has(Dealias16BitOpEnable) {
		return parameter.GetBool(reg, Dealias16BitOpEnable)
	}
	bpp, err := c.BytesPerPixel()
	return bpp == 2, err
}

func (c *Camera) OpDataArrangeMode() (int, error) {
	reg, err := c.registry()
	if err != nil {
		return 0, err
	}
	v, err := parameter.GetUint(reg, OpDataArrangeMode)
	return int(v), err
}

func (c *Camera) ToFFrameType() (camera.ToFFrameType, error) {
	reg, err := c.registry()
	if err != nil {
		return 0, err
	}
	v, err := parameter.GetUint(reg, ToFFrameType)
	return camera.ToFFrameType(v), err
}

func (c *Camera) ROI() (frame.RegionOfInterest, error) {
	reg, err := c.registry()
	if err != nil {
		return frame.RegionOfInterest{}, err
	}
	var roi frame.RegionOfInterest
	for _, f := range []struct {
		name string
		dst  *uint32
	}{{RowStart, &roi.RowStart}, {RowEnd, &roi.RowEnd}, {ColStart, &roi.ColStart}, {ColEnd, &roi.ColEnd}} {
		if *f.dst, err = parameter.GetUint(reg, f.name); err != nil {
			return frame.RegionOfInterest{}, err
		}
	}
	return roi, nil
}

// SetROI programs the readout window and recomputes binning for it.
func (c *Camera) SetROI(roi frame.RegionOfInterest) error {
	if err := c.writeROI(roi); err != nil {
		return err
	}
	rows, cols, err := c.Binning()
	if err != nil {
		return err
	}
	return c.SetBinning(rows, cols, frame.FrameSize{Width: roi.Cols() / cols, Height: roi.Rows() / rows})
}

func (c *Camera) writeROI(roi frame.RegionOfInterest) error {
	sensor := c.gen.SensorSize()
	if roi.Rows() == 0 || roi.Cols() == 0 || roi.RowEnd >= sensor.Height || roi.ColEnd >= sensor.Width {
		return fmt.Errorf("%w: rows %d-%d cols %d-%d on %s sensor", ErrROI, roi.RowStart, roi.RowEnd, roi.ColStart, roi.ColEnd, sensor)
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    uint32
	}{{RowStart, roi.RowStart}, {RowEnd, roi.RowEnd}, {ColStart, roi.ColStart}, {ColEnd, roi.ColEnd}} {
		if err := parameter.SetUint(reg, f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Camera) Binning() (rows, cols uint32, err error) {
	reg, err := c.registry()
	if err != nil {
		return 0, 0, err
	}
	en, err := parameter.GetBool(reg, BinningEn)
	if err != nil || !en {
		return 1, 1, err
	}
	if rows, err = parameter.GetUint(reg, BinRowsToMerge); err != nil {
		return 0, 0, err
	}
	if cols, err = parameter.GetUint(reg, BinColsToMerge); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}

// SetBinning merges rows x cols sensor pixels into one output pixel. s is
// the output frame size the binned ROI must produce.
func (c *Camera) SetBinning(rows, cols uint32, s frame.FrameSize) error {
	if rows == 0 || cols == 0 || s.IsZero() {
		return fmt.Errorf("%w: %dx%d for %s", ErrBinning, rows, cols, s)
	}
	roi, err := c.ROI()
	if err != nil {
		return err
	}
	if s.Height*rows > roi.Rows() || s.Width*cols > roi.Cols() {
		return fmt.Errorf("%w: %dx%d merge of %s exceeds roi %dx%d", ErrBinning, rows, cols, s, roi.Cols(), roi.Rows())
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	if err := parameter.SetUint(reg, BinRowsToMerge, rows); err != nil {
		return err
	}
	if err := parameter.SetUint(reg, BinColsToMerge, cols); err != nil {
		return err
	}
	if err := parameter.SetUint(reg, BinRowCount, s.Height); err != nil {
		return err
	}
	if err := parameter.SetUint(reg, BinColumnCount, s.Width); err != nil {
		return err
	}
	if err := parameter.SetBool(reg, BinningEn, rows > 1 || cols > 1); err != nil {
		return err
	}
	return c.setStreamerFrameSize(s)
}

func (c *Camera) setStreamerFrameSize(s frame.FrameSize) error {
	if err := c.strm.SetFrameSize(s); err != nil {
		return fmt.Errorf("streamer frame size %s: %w", s, err)
	}
	return nil
}

// FrameSize is the binned output size: bin_col_count x bin_row_count when
// binning is on, the ROI otherwise.
func (c *Camera) FrameSize() (frame.FrameSize, error) {
	reg, err := c.registry()
	if err != nil {
		return frame.FrameSize{}, err
	}
	en, err := parameter.GetBool(reg, BinningEn)
	if err != nil {
		return frame.FrameSize{}, err
	}
	if en {
		h, err := parameter.GetUint(reg, BinRowCount)
		if err != nil {
			return frame.FrameSize{}, err
		}
		w, err := parameter.GetUint(reg, BinColumnCount)
		if err != nil {
			return frame.FrameSize{}, err
		}
		return frame.FrameSize{Width: w, Height: h}, nil
	}
	roi, err := c.ROI()
	if err != nil {
		return frame.FrameSize{}, err
	}
	return frame.FrameSize{Width: roi.Cols(), Height: roi.Rows()}, nil
}

// SetFrameSize picks the largest whole binning factors that fit s into the
// current ROI (or the full sensor when resetROI is set) and centres a
// window of exactly s times those factors.
func (c *Camera) SetFrameSize(s frame.FrameSize, resetROI bool) error {
	sensor := c.gen.SensorSize()
	if s.IsZero() || s.Width > sensor.Width || s.Height > sensor.Height {
		return fmt.Errorf("%w: %s on %s sensor", ErrFrameSize, s, sensor)
	}

	full := frame.RegionOfInterest{RowEnd: sensor.Height - 1, ColEnd: sensor.Width - 1}
	area := full
	if !resetROI {
		cur, err := c.ROI()
		if err != nil {
			return err
		}
		if cur.Rows() >= s.Height && cur.Cols() >= s.Width {
			area = cur
		}
	}

	rows := min(area.Rows()/s.Height, 8)
	cols := min(area.Cols()/s.Width, 8)
	h, w := s.Height*rows, s.Width*cols
	roi := frame.RegionOfInterest{
		RowStart: area.RowStart + (area.Rows()-h)/2,
		ColStart: area.ColStart + (area.Cols()-w)/2,
	}
	roi.RowEnd = roi.RowStart + h - 1
	roi.ColEnd = roi.ColStart + w - 1

	if err := c.writeROI(roi); err != nil {
		return err
	}
	return c.SetBinning(rows, cols, s)
}

// FrameRate is sys_clk / (pix_cnt_max * quad_cnt_max * sub_frame_cnt_max),
// reduced to lowest terms.
func (c *Camera) FrameRate() (frame.FrameRate, error) {
	clk, pix, quads, subs, err := c.timing()
	if err != nil {
		return frame.FrameRate{}, err
	}
	num := uint64(clk) * 1_000_000
	den := uint64(pix) * uint64(quads) * uint64(subs)
	if den == 0 {
		return frame.FrameRate{}, fmt.Errorf("%w: zero frame period", ErrFrameRate)
	}
	g := gcd(num, den)
	return frame.FrameRate{Numerator: uint32(num / g), Denominator: uint32(den / g)}, nil
}

func (c *Camera) timing() (clk, pix, quads, subs uint32, err error) {
	reg, err := c.registry()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if clk, err = c.gen.SystemClockFrequency(reg); err != nil {
		return
	}
	if pix, err = parameter.GetUint(reg, PixCntMax); err != nil {
		return
	}
	if quads, err = parameter.GetUint(reg, QuadCntMax); err != nil {
		return
	}
	subs, err = parameter.GetUint(reg, SubFrameCntMax)
	return
}

// SetFrameRate programs pix_cnt_max for r. The sensor reports through
// pix_cnt_max_set_failed whether it accepted the period.
func (c *Camera) SetFrameRate(r frame.FrameRate) error {
	if r.FPS() <= 0 {
		return fmt.Errorf("%w: %s", ErrFrameRate, r)
	}
	size, err := c.FrameSize()
	if err != nil {
		return err
	}
	maxRate, err := c.MaximumFrameRate(size)
	if err != nil {
		return err
	}
	if r.FPS() > maxRate.FPS() {
		return fmt.Errorf("%w: %s above maximum %s for %s", ErrFrameRate, r, maxRate, size)
	}

	clk, _, quads, subs, err := c.timing()
	if err != nil {
		return err
	}
	pix := uint64(clk) * 1_000_000 * uint64(r.Denominator) / (uint64(quads) * uint64(subs) * uint64(r.Numerator))
	if pix == 0 || pix > 1<<22-1 {
		return fmt.Errorf("%w: %s needs %d cycles per quad", ErrFrameRate, r, pix)
	}

	reg, err := c.registry()
	if err != nil {
		return err
	}
	if err := parameter.SetUint(reg, PixCntMax, uint32(pix)); err != nil {
		return err
	}
	failed, err := parameter.GetBool(reg, PixCntMaxSetFailed)
	if err != nil {
		return err
	}
	if failed {
		opsf("%s: sensor rejected %s (pix_cnt_max %d)", c.Name(), r, pix)
		return fmt.Errorf("%w: sensor rejected %s", ErrFrameRate, r)
	}
	if rs, ok := c.strm.(streamer.RateSetter); ok {
		if err := rs.SetFrameRate(r); err != nil {
			return err
		}
	}
	return nil
}

// MaximumFrameRate is bounded by the readout time of one quad: every pixel
// of the frame plus fixed blanking.
func (c *Camera) MaximumFrameRate(forSize frame.FrameSize) (frame.FrameRate, error) {
	if forSize.IsZero() {
		return frame.FrameRate{}, fmt.Errorf("%w: %s", ErrFrameSize, forSize)
	}
	clk, _, quads, subs, err := c.timing()
	if err != nil {
		return frame.FrameRate{}, err
	}
	num := uint64(clk) * 1_000_000
	den := (uint64(forSize.Pixels()) + blankingCycles) * uint64(quads) * uint64(subs)
	if den == 0 {
		return frame.FrameRate{}, fmt.Errorf("%w: zero quad or sub-frame count", ErrFrameRate)
	}
	g := gcd(num, den)
	return frame.FrameRate{Numerator: uint32(num / g), Denominator: uint32(den / g)}, nil
}

// virtualParameters are derived from other registers.
func (c *Camera) virtualParameters(reg *parameter.Registry) []parameter.Parameter {
	return []parameter.Parameter{
		parameter.NewVirtual(parameter.Info{
			Name: UnambiguousRange, Unit: "m",
			Description: "Distance covered by one phase cycle at the illumination frequency",
		}, func() (float64, error) {
			f, err := c.IlluminationFrequency()
			return unambiguousRange(f), err
		}, c.setUnambiguousRange),

		parameter.NewVirtual(parameter.Info{
			Name: IntgTime, Unit: "%",
			Description: "Integration time as a percentage of the frame period",
		}, func() (float64, error) {
			d, err := parameter.GetUint(reg, IntgDutyCycle)
			return float64(d) * 100 / 63, err
		}, func(pct float64) error {
			if pct < 0 || pct > 100 {
				return fmt.Errorf("%.1f%%: %w", pct, parameter.ErrOutOfRange)
			}
			if err := parameter.SetUint(reg, IntgDutyCycle, uint32(math.Round(pct*63/100))); err != nil {
				return err
			}
			failed, err := parameter.GetBool(reg, IntgDutyCycleSetFailed)
			if err != nil {
				return err
			}
			if failed {
				return fmt.Errorf("sensor rejected %.1f%% integration: %w", pct, parameter.ErrOutOfRange)
			}
			return nil
		}),

		parameter.NewVirtual(parameter.Info{
			Name: IllumPowerPercentage, Unit: "%",
			Description: "Illumination drive strength as a percentage",
		}, func() (float64, error) {
			p, err := parameter.GetUint(reg, IllumPower)
			return float64(p) * 100 / 255, err
		}, func(pct float64) error {
			if pct < 0 || pct > 100 {
				return fmt.Errorf("%.1f%%: %w", pct, parameter.ErrOutOfRange)
			}
			return parameter.SetUint(reg, IllumPower, uint32(math.Round(pct*255/100)))
		}),
	}
}

// Dealiasing ratio programmed when a range needs both sources.
const (
	dealiasRatioA = 4
	dealiasRatioB = 3
	// minSingleFreq is the lowest modulation frequency one source can
	// produce, in MHz.
	minSingleFreq = 10.0
)

func checkFloat(reg *parameter.Registry, name string, v float64) error {
	p, err := parameter.Lookup[*parameter.FloatParameter](reg, name)
	if err != nil {
		return err
	}
	return p.InRange(v)
}

// setUnambiguousRange picks modulation frequencies covering rangeM metres:
// one source when its frequency is reachable, otherwise two sources whose
// common base is the required frequency.
func (c *Camera) setUnambiguousRange(rangeM float64) error {
	if rangeM <= 0 {
		return fmt.Errorf("%.2f m: %w", rangeM, parameter.ErrOutOfRange)
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	f := SpeedOfLight / (2 * rangeM) / 1e6
	f = math.Floor(f/freqStep) * freqStep

	if f >= minSingleFreq || !reg.Has(DealiasEn) {
		if err := parameter.SetFloat(reg, ModFreq1, f); err != nil {
			return err
		}
		if reg.Has(DealiasEn) {
			if err := parameter.SetBool(reg, DealiasEn, false); err != nil {
				return err
			}
		}
	} else {
		// Check both frequencies before touching the ratios so a rejected
		// range leaves the sensor as it was.
		if err := checkFloat(reg, ModFreq1, f*dealiasRatioA); err != nil {
			return err
		}
		if err := checkFloat(reg, ModFreq2, f*dealiasRatioB); err != nil {
			return err
		}
		if err := parameter.SetUint(reg, MA, dealiasRatioA); err != nil {
			return err
		}
		if err := parameter.SetUint(reg, MB, dealiasRatioB); err != nil {
			return err
		}
		if err := parameter.SetFloat(reg, ModFreq1, f*dealiasRatioA); err != nil {
			return err
		}
		if err := parameter.SetFloat(reg, ModFreq2, f*dealiasRatioB); err != nil {
			return err
		}
		if err := parameter.SetBool(reg, DealiasEn, true); err != nil {
			return err
		}
	}
	if err := parameter.SetBool(reg, ModPLLUpdate, true); err != nil {
		return err
	}
	return c.latch()
}
