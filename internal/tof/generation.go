package tof

import (
	"fmt"
	"strings"

	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
	"github.com/banshee-data/depthcam/internal/regio"
)

// Generation supplies what differs between TI sensor families. The shared
// register protocol lives in Camera.
type Generation interface {
	Name() string
	ProductID() uint16
	SensorSize() frame.FrameSize
	// Parameters returns the registers only this generation has.
	Parameters(bus *regio.Bus) []parameter.Parameter
	SystemClockFrequency(reg *parameter.Registry) (uint32, error)
	HistogramEnabled(reg *parameter.Registry) (bool, error)
	// IlluminationFrequency returns the effective modulation frequency in MHz.
	IlluminationFrequency(reg *parameter.Registry) (float64, error)
	ApplyCalibration(reg *parameter.Registry, cal Calibration) error
	// PointCloud reports whether depth frames can be back-projected.
	PointCloud() bool
	// AmplitudeNormalizingFactor maps raw amplitude codes onto [0, 1].
	AmplitudeNormalizingFactor() float64
	// DepthScalingFactor maps raw phase codes to metres at rangeM.
	DepthScalingFactor(rangeM float64) float64
}

// ParseGeneration maps a configuration name to a Generation.
func ParseGeneration(name string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tintin":
		return TinTin{}, nil
	case "haddock":
		return Haddock{}, nil
	}
	return nil, fmt.Errorf("unknown sensor generation %q", name)
}

var sensorQVGA = frame.FrameSize{Width: 320, Height: 240}

// TinTin is the dual-source generation with dealiasing and histogram output.
type TinTin struct {
	// Reduce combines the two modulation frequencies when dealiasing is
	// on. Nil means ReduceFrequencies.
	Reduce func(f1, f2 float64) float64
}

func (TinTin) Name() string                { return "tintin" }
func (TinTin) ProductID() uint16           { return 0x9105 }
func (TinTin) SensorSize() frame.FrameSize { return sensorQVGA }
func (TinTin) PointCloud() bool            { return true }

// Amplitude and phase are both 12-bit codes.
func (TinTin) AmplitudeNormalizingFactor() float64 { return 1.0 / phaseFullScale }

func (TinTin) DepthScalingFactor(rangeM float64) float64 { return rangeM / phaseFullScale }

func (TinTin) Parameters(bus *regio.Bus) []parameter.Parameter {
	return buildAll(bus, dealiasParams)
}

func (TinTin) SystemClockFrequency(reg *parameter.Registry) (uint32, error) {
	return parameter.GetUint(reg, SysClkFreq)
}

func (TinTin) HistogramEnabled(reg *parameter.Registry) (bool, error) {
	return parameter.GetBool(reg, HistogramEn)
}

// IlluminationFrequency returns mod_freq1, or the common base of both
// modulation frequencies when dealiasing is on.
func (g TinTin) IlluminationFrequency(reg *parameter.Registry) (float64, error) {
	f1, err := parameter.GetFloat(reg, ModFreq1)
	if err != nil {
		return 0, err
	}
	dealias, err := parameter.GetBool(reg, DealiasEn)
	if err != nil {
		return 0, err
	}
	if !dealias {
		return f1, nil
	}
	f2, err := parameter.GetFloat(reg, ModFreq2)
	if err != nil {
		return 0, err
	}
	reduce := g.Reduce
	if reduce == nil {
		reduce = ReduceFrequencies
	}
	base := reduce(f1, f2)
	if base <= 0 {
		return 0, fmt.Errorf("%w: no common base for %.4g and %.4g MHz", ErrFrequency, f1, f2)
	}
	return base, nil
}

func (TinTin) ApplyCalibration(reg *parameter.Registry, cal Calibration) error {
	return applyCalibration(reg, cal, true)
}

// Haddock is the single-source generation. It has no dealiasing, no
// histogram and a fixed 48 MHz system clock.
type Haddock struct{}

func (Haddock) Name() string                { return "haddock" }
func (Haddock) ProductID() uint16           { return 0x9102 }
func (Haddock) SensorSize() frame.FrameSize { return sensorQVGA }
func (Haddock) PointCloud() bool            { return false }

// Haddock reports 10-bit amplitude alongside 12-bit phase.
func (Haddock) AmplitudeNormalizingFactor() float64 { return 1.0 / haddockAmplitudeFullScale }

func (Haddock) DepthScalingFactor(rangeM float64) float64 { return rangeM / phaseFullScale }

const haddockAmplitudeFullScale = 1024

func (Haddock) Parameters(*regio.Bus) []parameter.Parameter { return nil }

func (Haddock) SystemClockFrequency(*parameter.Registry) (uint32, error) { return 48, nil }

func (Haddock) HistogramEnabled(*parameter.Registry) (bool, error) { return false, nil }

func (Haddock) IlluminationFrequency(reg *parameter.Registry) (float64, error) {
	return parameter.GetFloat(reg, ModFreq1)
}

func (Haddock) ApplyCalibration(reg *parameter.Registry, cal Calibration) error {
	return applyCalibration(reg, cal, false)
}

// Calibration holds the per-unit correction coefficients.
type Calibration struct {
	PhaseCorr1        int32   `json:"phase_corr_1" yaml:"phase_corr_1"`
	PhaseCorr2        int32   `json:"phase_corr_2" yaml:"phase_corr_2"`
	TIllumCalib       uint32  `json:"tillum_calib" yaml:"tillum_calib"`
	TSensorCalib      uint32  `json:"tsensor_calib" yaml:"tsensor_calib"`
	CoeffIllum1       float64 `json:"coeff_illum_1" yaml:"coeff_illum_1"`
	CoeffIllum2       float64 `json:"coeff_illum_2" yaml:"coeff_illum_2"`
	CoeffSensor1      float64 `json:"coeff_sensor_1" yaml:"coeff_sensor_1"`
	CoeffSensor2      float64 `json:"coeff_sensor_2" yaml:"coeff_sensor_2"`
	HighPrecision     bool    `json:"high_precision" yaml:"high_precision"`
	DisableOffsetCorr bool    `json:"disable_offset_corr" yaml:"disable_offset_corr"`
	DisableTempCorr   bool    `json:"disable_temp_corr" yaml:"disable_temp_corr"`
}

func applyCalibration(reg *parameter.Registry, cal Calibration, dual bool) error {
	prec := uint32(0)
	if cal.HighPrecision {
		prec = 1
	}
	steps := []func() error{
		func() error { return parameter.SetUint(reg, CalibPrec, prec) },
		func() error { return parameter.SetInt(reg, PhaseCorr1, cal.PhaseCorr1) },
		func() error { return parameter.SetUint(reg, TIllumCalib, cal.TIllumCalib) },
		func() error { return parameter.SetUint(reg, TSensorCalib, cal.TSensorCalib) },
		func() error { return parameter.SetFloat(reg, CoeffIllum1, cal.CoeffIllum1) },
		func() error { return parameter.SetFloat(reg, CoeffSensor1, cal.CoeffSensor1) },
		func() error { return parameter.SetBool(reg, DisableOffsetCorr, cal.DisableOffsetCorr) },
		func() error { return parameter.SetBool(reg, DisableTempCorr, cal.DisableTempCorr) },
	}
	if dual {
		steps = append(steps,
			func() error { return parameter.SetInt(reg, PhaseCorr2, cal.PhaseCorr2) },
			func() error { return parameter.SetFloat(reg, CoeffIllum2, cal.CoeffIllum2) },
			func() error { return parameter.SetFloat(reg, CoeffSensor2, cal.CoeffSensor2) },
		)
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("apply calibration: %w", err)
		}
	}
	return nil
}
