package camera

import (
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
	"github.com/banshee-data/depthcam/internal/regio"
)

var errInjected = errors.New("injected failure")

// fakeDevice numbers every exposure and fails the stages selected by its
// predicates. All fields are guarded by mu.
type fakeDevice struct {
	mu sync.Mutex

	size frame.FrameSize
	seq  uint64

	failCapture func(id uint64) bool
	failProcess func(id uint64) bool
	failDepth   func(id uint64) bool
	pointCloud  bool

	initErr  error
	startErr error
	stopErr  error
	extra    []parameter.Parameter

	captured       []uint64
	starts, stops  int
	resets         int
	frameRate      frame.FrameRate
	rows, cols     uint32
	roi            frame.RegionOfInterest
	captureLatency time.Duration
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		size:      frame.FrameSize{Width: 4, Height: 2},
		frameRate: frame.FrameRate{Numerator: 30, Denominator: 1},
		rows:      1,
		cols:      1,
	}
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Init(reg *parameter.Registry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initErr != nil {
		return d.initErr
	}
	bus := regio.NewBus(regio.NewMemoryProgrammer(regio.DeviceID{VendorID: 0x0451}, map[uint32]uint32{0x10: 30}))
	params := []parameter.Parameter{
		parameter.NewUint(bus, parameter.Info{Name: "intg_duty_cycle", Register: regio.Register{Address: 0x10, MSB: 5, LSB: 0}}, 0, 63),
		parameter.NewBool(bus, parameter.Info{Name: "histogram_en", Register: regio.Register{Address: 0x14, MSB: 0, LSB: 0}}, false),
	}
	return reg.AddAll(append(params, d.extra...)...)
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.starts++
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return d.stopErr
}

func (d *fakeDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	return nil
}

func (d *fakeDevice) CaptureRawUnprocessedFrame(out *frame.RawFrame) error {
	d.mu.Lock()
	latency := d.captureLatency
	d.seq++
	id := d.seq
	fail := d.failCapture != nil && d.failCapture(id)
	if !fail {
		d.captured = append(d.captured, id)
	}
	size := d.size
	d.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if fail {
		return errInjected
	}
	out.Reset(size, 4)
	out.FrameID = id
	out.Time = time.Unix(int64(id), 0)
	return nil
}

func (d *fakeDevice) ProcessRawFrame(in, out *frame.RawFrame) error {
	d.mu.Lock()
	fail := d.failProcess != nil && d.failProcess(in.FrameID)
	d.mu.Unlock()
	if fail {
		return errInjected
	}
	out.ResetPlanes(in.Size)
	out.FrameID = in.FrameID
	out.Time = in.Time
	return nil
}

func (d *fakeDevice) ConvertToDepthFrame(in *frame.RawFrame, out *frame.DepthFrame) error {
	d.mu.Lock()
	fail := d.failDepth != nil && d.failDepth(in.FrameID)
	d.mu.Unlock()
	if fail {
		return errInjected
	}
	out.Reset(in.Size)
	out.FrameID = in.FrameID
	out.Time = in.Time
	return nil
}

func (d *fakeDevice) ConvertToPointCloudFrame(in *frame.DepthFrame, out *frame.PointCloudFrame) error {
	d.mu.Lock()
	ok := d.pointCloud
	d.mu.Unlock()
	if !ok {
		return NoPointCloud{}.ConvertToPointCloudFrame(in, out)
	}
	out.Reset(in.Size.Pixels())
	out.FrameID = in.FrameID
	out.Time = in.Time
	out.Points = append(out.Points, frame.Point{Intensity: 1})
	return nil
}

func (d *fakeDevice) capturedIDs() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.captured...)
}

func (d *fakeDevice) counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

func (d *fakeDevice) FrameSize() (frame.FrameSize, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size, nil
}

func (d *fakeDevice) SetFrameSize(s frame.FrameSize, resetROI bool) error {
	if s.IsZero() {
		return errInjected
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.size = s
	if resetROI {
		d.roi = frame.RegionOfInterest{RowEnd: s.Height - 1, ColEnd: s.Width - 1}
	}
	return nil
}

func (d *fakeDevice) FrameRate() (frame.FrameRate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameRate, nil
}

func (d *fakeDevice) SetFrameRate(r frame.FrameRate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameRate = r
	return nil
}

func (d *fakeDevice) MaximumFrameRate(frame.FrameSize) (frame.FrameRate, error) {
	return frame.FrameRate{Numerator: 60, Denominator: 1}, nil
}

func (d *fakeDevice) Binning() (uint32, uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows, d.cols, nil
}

func (d *fakeDevice) SetBinning(rows, cols uint32, _ frame.FrameSize) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows, d.cols = rows, cols
	return nil
}

func (d *fakeDevice) IlluminationFrequency() (float64, error)      { return 24, nil }
func (d *fakeDevice) SystemClockFrequency() (uint32, error)        { return 60, nil }
func (d *fakeDevice) HistogramEnabled() (bool, error)              { return false, nil }
func (d *fakeDevice) AmplitudeNormalizingFactor() (float64, error) { return 1.0 / 4096, nil }
func (d *fakeDevice) DepthScalingFactor() (float64, error)         { return 6.25 / 4096, nil }
func (d *fakeDevice) BytesPerPixel() (uint32, error)               { return 4, nil }
func (d *fakeDevice) SetBytesPerPixel(uint32) error                { return nil }
func (d *fakeDevice) Is16BitModeEnabled() (bool, error)            { return false, nil }
func (d *fakeDevice) OpDataArrangeMode() (int, error)              { return 0, nil }
func (d *fakeDevice) ToFFrameType() (ToFFrameType, error)          { return ToFFramePhaseAmplitude, nil }

func (d *fakeDevice) ROI() (frame.RegionOfInterest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roi, nil
}

func (d *fakeDevice) SetROI(roi frame.RegionOfInterest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roi = roi
	return nil
}

var _ Device = (*fakeDevice)(nil)
