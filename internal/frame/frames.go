package frame

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// RawFrame holds one sensor exposure. Before processing only Data is
// populated; after processing the decoded ToF planes are filled and
// Processed is set.
type RawFrame struct {
	FrameID uint64
	Time    time.Time
	Size    FrameSize
	Data    []byte

	Processed bool
	Phase     []uint16
	Amplitude []uint16
	Ambient   []uint8
	Flags     []uint8
}

func (f *RawFrame) Kind() Kind {
	if f.Processed {
		return KindProcessedRaw
	}
	return KindRaw
}

func (f *RawFrame) ID() uint64           { return f.FrameID }
func (f *RawFrame) Timestamp() time.Time { return f.Time }

// Reset prepares the frame to receive size.Pixels()*bytesPerPixel bytes of
// payload. Backing arrays are reused when large enough.
func (f *RawFrame) Reset(size FrameSize, bytesPerPixel int) {
	f.FrameID = 0
	f.Time = time.Time{}
	f.Size = size
	f.Data = resize(f.Data, size.Pixels()*bytesPerPixel)
	f.Processed = false
	f.Phase = f.Phase[:0]
	f.Amplitude = f.Amplitude[:0]
	f.Ambient = f.Ambient[:0]
	f.Flags = f.Flags[:0]
}

// ResetPlanes sizes the decoded ToF planes for size and marks the frame
// processed.
func (f *RawFrame) ResetPlanes(size FrameSize) {
	n := size.Pixels()
	f.Size = size
	f.Processed = true
	f.Phase = resize(f.Phase, n)
	f.Amplitude = resize(f.Amplitude, n)
	f.Ambient = resize(f.Ambient, n)
	f.Flags = resize(f.Flags, n)
}

// DepthFrame holds per-pixel distances in metres and the matching
// normalised amplitudes.
type DepthFrame struct {
	FrameID   uint64
	Time      time.Time
	Size      FrameSize
	Depth     []float32
	Amplitude []float32
}

func (f *DepthFrame) Kind() Kind           { return KindDepth }
func (f *DepthFrame) ID() uint64           { return f.FrameID }
func (f *DepthFrame) Timestamp() time.Time { return f.Time }

// Reset sizes the depth and amplitude planes for size.
func (f *DepthFrame) Reset(size FrameSize) {
	n := size.Pixels()
	f.Size = size
	f.Depth = resize(f.Depth, n)
	f.Amplitude = resize(f.Amplitude, n)
}

// Point is one 3D sample in the camera frame (metres).
type Point struct {
	Pos       r3.Vec
	Intensity float32
}

// PointCloudFrame holds the 3D points derived from a depth frame.
type PointCloudFrame struct {
	FrameID uint64
	Time    time.Time
	Points  []Point
}

func (f *PointCloudFrame) Kind() Kind           { return KindPointCloud }
func (f *PointCloudFrame) ID() uint64           { return f.FrameID }
func (f *PointCloudFrame) Timestamp() time.Time { return f.Time }

// Reset empties the point list, keeping capacity for at least n points.
func (f *PointCloudFrame) Reset(n int) {
	if cap(f.Points) < n {
		f.Points = make([]Point, 0, n)
		return
	}
	f.Points = f.Points[:0]
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
