package frame

import (
	"fmt"
	"time"
)

// Kind identifies the pipeline stage a frame belongs to.
type Kind int

const (
	KindRaw Kind = iota
	KindProcessedRaw
	KindDepth
	KindPointCloud
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindProcessedRaw:
		return "raw_processed"
	case KindDepth:
		return "depth"
	case KindPointCloud:
		return "pointcloud"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one unit of captured data at some pipeline stage.
type Frame interface {
	Kind() Kind
	ID() uint64
	Timestamp() time.Time
}

// FrameSize is the output geometry of a frame in pixels.
type FrameSize struct {
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`
}

// Pixels returns Width*Height.
func (s FrameSize) Pixels() int { return int(s.Width) * int(s.Height) }

// IsZero reports whether either dimension is zero.
func (s FrameSize) IsZero() bool { return s.Width == 0 || s.Height == 0 }

func (s FrameSize) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// FrameRate is a rational frame rate in frames per second.
type FrameRate struct {
	Numerator   uint32 `json:"numerator" yaml:"numerator"`
	Denominator uint32 `json:"denominator" yaml:"denominator"`
}

// FPS returns the frame rate as a float. A zero denominator yields 0.
func (r FrameRate) FPS() float64 {
	if r.Denominator == 0 {
		return 0
	}
	return float64(r.Numerator) / float64(r.Denominator)
}

// Interval returns the time between two frames, or 0 when the rate is invalid.
func (r FrameRate) Interval() time.Duration {
	fps := r.FPS()
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

func (r FrameRate) String() string {
	if r.Denominator == 1 {
		return fmt.Sprintf("%d fps", r.Numerator)
	}
	return fmt.Sprintf("%d/%d fps", r.Numerator, r.Denominator)
}

// RegionOfInterest is the inclusive sensor sub-rectangle being read out.
type RegionOfInterest struct {
	RowStart uint32 `json:"row_start"`
	RowEnd   uint32 `json:"row_end"`
	ColStart uint32 `json:"col_start"`
	ColEnd   uint32 `json:"col_end"`
}

// Rows returns the number of sensor rows covered.
func (r RegionOfInterest) Rows() uint32 {
	if r.RowEnd < r.RowStart {
		return 0
	}
	return r.RowEnd - r.RowStart + 1
}

// Cols returns the number of sensor columns covered.
func (r RegionOfInterest) Cols() uint32 {
	if r.ColEnd < r.ColStart {
		return 0
	}
	return r.ColEnd - r.ColStart + 1
}
