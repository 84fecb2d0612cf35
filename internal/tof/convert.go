package tof

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/streamer"
)

// phaseFullScale is the phase code of one full cycle.
const phaseFullScale = 4096

// Lens is the optical model used for back-projection.
type Lens struct {
	// HorizontalFOV and VerticalFOV are full angles in degrees.
	HorizontalFOV float64 `json:"horizontal_fov" yaml:"horizontal_fov"`
	VerticalFOV   float64 `json:"vertical_fov" yaml:"vertical_fov"`
}

// DefaultLens matches the stock 90x70 degree module optics.
var DefaultLens = Lens{HorizontalFOV: 90, VerticalFOV: 70}

type pinhole struct {
	fx, fy, cx, cy float64
}

func (l Lens) pinhole(s frame.FrameSize) pinhole {
	w, h := float64(s.Width), float64(s.Height)
	return pinhole{
		fx: w / 2 / math.Tan(l.HorizontalFOV*math.Pi/360),
		fy: h / 2 / math.Tan(l.VerticalFOV*math.Pi/360),
		cx: (w - 1) / 2,
		cy: (h - 1) / 2,
	}
}

// ProcessRawFrame decodes the sensor payload of in into the ToF planes of
// out using the layout latched at Start.
func (c *Camera) ProcessRawFrame(in, out *frame.RawFrame) error {
	cfg := c.conversion()
	if err := cfg.layout.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	out.ResetPlanes(in.Size)
	out.FrameID = in.FrameID
	out.Time = in.Time
	out.Data = append(out.Data[:0], in.Data...)
	if err := streamer.Decode(cfg.layout, in.Data, out.Phase, out.Amplitude, out.Ambient, out.Flags); err != nil {
		return fmt.Errorf("%w: frame %d: %w", ErrInvalidFrame, in.FrameID, err)
	}
	return nil
}

// ConvertToDepthFrame maps phase to distance within the unambiguous range.
// Pixels with amplitude under the confidence threshold, or flagged
// saturated, get depth 0.
func (c *Camera) ConvertToDepthFrame(in *frame.RawFrame, out *frame.DepthFrame) error {
	if !in.Processed {
		return fmt.Errorf("%w: frame %d is not processed", ErrInvalidFrame, in.FrameID)
	}
	n := in.Size.Pixels()
	if len(in.Phase) < n || len(in.Amplitude) < n {
		return fmt.Errorf("%w: frame %d has %d of %d pixels", ErrInvalidFrame, in.FrameID, len(in.Phase), n)
	}
	cfg := c.conversion()
	if cfg.rangeM <= 0 {
		return fmt.Errorf("%w: unambiguous range %.3f m", ErrFrequency, cfg.rangeM)
	}

	out.Reset(in.Size)
	out.FrameID = in.FrameID
	out.Time = in.Time
	for i := range n {
		a := in.Amplitude[i]
		out.Amplitude[i] = float32(float64(a) * cfg.ampFactor)
		if a < cfg.threshold || (len(in.Flags) > i && in.Flags[i]&1 != 0) {
			out.Depth[i] = 0
			continue
		}
		out.Depth[i] = float32(float64(in.Phase[i]) * cfg.depthScale)
	}
	return nil
}

// ConvertToPointCloudFrame back-projects each valid depth sample through a
// pinhole model. Depth is the radial distance along the pixel ray.
func (c *Camera) ConvertToPointCloudFrame(in *frame.DepthFrame, out *frame.PointCloudFrame) error {
	cfg := c.conversion()
	if !cfg.pointCloud {
		return camera.ErrUnsupported
	}
	n := in.Size.Pixels()
	if len(in.Depth) < n || len(in.Amplitude) < n {
		return fmt.Errorf("%w: depth frame %d has %d of %d pixels", ErrInvalidFrame, in.FrameID, len(in.Depth), n)
	}
	lens := c.opts.Lens.pinhole(in.Size)

	out.Reset(n)
	out.FrameID = in.FrameID
	out.Time = in.Time
	w := int(in.Size.Width)
	for i := range n {
		d := float64(in.Depth[i])
		if d <= 0 {
			continue
		}
		ray := r3.Vec{
			X: (float64(i%w) - lens.cx) / lens.fx,
			Y: (float64(i/w) - lens.cy) / lens.fy,
			Z: 1,
		}
		out.Points = append(out.Points, frame.Point{
			Pos:       r3.Scale(d, r3.Unit(ray)),
			Intensity: in.Amplitude[i],
		})
	}
	return nil
}
