package camera

import (
	"errors"

	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
)

// ErrUnsupported is returned by a device hook the hardware cannot provide.
// Requesting point-cloud delivery from a device without point-cloud support
// makes every iteration fail with it.
var ErrUnsupported = errors.New("operation not supported by device")

// ToFFrameType is the sensor output format reported by the device.
type ToFFrameType int

const (
	ToFFrameQuad ToFFrameType = iota
	ToFFramePhaseAmplitude
	ToFFrameDepth
)

func (t ToFFrameType) String() string {
	switch t {
	case ToFFrameQuad:
		return "quad"
	case ToFFramePhaseAmplitude:
		return "phase_amplitude"
	case ToFFrameDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// Converter turns one stage of a frame into the next. Hooks run on the
// capture goroutine and must return in bounded time: a hook that hangs
// makes Wait hang.
type Converter interface {
	CaptureRawUnprocessedFrame(out *frame.RawFrame) error
	ProcessRawFrame(in, out *frame.RawFrame) error
	ConvertToDepthFrame(in *frame.RawFrame, out *frame.DepthFrame) error
	ConvertToPointCloudFrame(in *frame.DepthFrame, out *frame.PointCloudFrame) error
}

// Configurator exposes frame geometry, timing and output metadata.
type Configurator interface {
	FrameSize() (frame.FrameSize, error)
	SetFrameSize(s frame.FrameSize, resetROI bool) error
	FrameRate() (frame.FrameRate, error)
	SetFrameRate(r frame.FrameRate) error
	MaximumFrameRate(forSize frame.FrameSize) (frame.FrameRate, error)

	Binning() (rows, cols uint32, err error)
	SetBinning(rows, cols uint32, s frame.FrameSize) error

	// IlluminationFrequency returns the effective modulation frequency in
	// MHz: the single frequency, or the common base of both when
	// dealiasing is active.
	IlluminationFrequency() (float64, error)
	// SystemClockFrequency returns the sensor clock in MHz.
	SystemClockFrequency() (uint32, error)
	HistogramEnabled() (bool, error)
	// AmplitudeNormalizingFactor maps raw amplitude codes onto [0, 1].
	AmplitudeNormalizingFactor() (float64, error)
	// DepthScalingFactor returns metres per raw phase code at the current
	// unambiguous range.
	DepthScalingFactor() (float64, error)

	BytesPerPixel() (uint32, error)
	SetBytesPerPixel(bpp uint32) error
	Is16BitModeEnabled() (bool, error)
	OpDataArrangeMode() (int, error)
	ToFFrameType() (ToFFrameType, error)

	ROI() (frame.RegionOfInterest, error)
	SetROI(roi frame.RegionOfInterest) error
}

// Device is one camera generation as seen by the capture orchestrator.
type Device interface {
	Converter
	Configurator

	// Init registers the device parameters, verifies the vendor and applies
	// calibration. No capture happens before it succeeds.
	Init(reg *parameter.Registry) error
	// Start and Stop bracket hardware streaming. Stop runs on the capture
	// goroutine after the loop exits.
	Start() error
	Stop() error
	// Reset issues the software reset sequence.
	Reset() error
	Name() string
}

// NoPointCloud can be embedded by devices without point-cloud support.
type NoPointCloud struct{}

func (NoPointCloud) ConvertToPointCloudFrame(*frame.DepthFrame, *frame.PointCloudFrame) error {
	return ErrUnsupported
}
