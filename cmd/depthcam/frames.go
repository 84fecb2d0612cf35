package main

import (
	"log"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/frame"
)

// depthSummary describes the valid (non-zero) pixels of one depth frame.
type depthSummary struct {
	Valid     int
	Min, Max  float64
	Mean, Std float64
}

// frameCounter is the capture callback: it counts deliveries and logs a
// depth summary every logEvery frames.
type frameCounter struct {
	logEvery uint64

	mu      sync.Mutex
	counts  map[frame.Kind]uint64
	points  uint64
	scratch []float64
	last    depthSummary
}

func newFrameCounter(logEvery uint64) *frameCounter {
	return &frameCounter{logEvery: logEvery, counts: make(map[frame.Kind]uint64)}
}

func (fc *frameCounter) callback(_ *camera.Camera, f frame.Frame, _ camera.CallbackType) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.counts[f.Kind()]++
	n := fc.counts[f.Kind()]
	switch x := f.(type) {
	case *frame.DepthFrame:
		fc.last = fc.summarise(x.Depth)
		if fc.logEvery > 0 && n%fc.logEvery == 0 {
			log.Printf("depth frame %d: %d valid px, min %.3fm mean %.3fm max %.3fm (sd %.3f)",
				x.FrameID, fc.last.Valid, fc.last.Min, fc.last.Mean, fc.last.Max, fc.last.Std)
		}
	case *frame.PointCloudFrame:
		fc.points += uint64(len(x.Points))
		if fc.logEvery > 0 && n%fc.logEvery == 0 {
			log.Printf("point cloud frame %d: %d points", x.FrameID, len(x.Points))
		}
	case *frame.RawFrame:
		if fc.logEvery > 0 && n%fc.logEvery == 0 {
			log.Printf("%s frame %d: %s", x.Kind(), x.FrameID, x.Size)
		}
	}
}

// summarise reuses the scratch slice so steady-state frames do not allocate.
func (fc *frameCounter) summarise(depth []float32) depthSummary {
	fc.scratch = fc.scratch[:0]
	for _, d := range depth {
		if d > 0 {
			fc.scratch = append(fc.scratch, float64(d))
		}
	}
	if len(fc.scratch) == 0 {
		return depthSummary{}
	}
	mean, std := stat.MeanStdDev(fc.scratch, nil)
	return depthSummary{
		Valid: len(fc.scratch),
		Min:   floats.Min(fc.scratch),
		Max:   floats.Max(fc.scratch),
		Mean:  mean,
		Std:   std,
	}
}

// Snapshot returns the per-kind delivery counts and the last depth summary.
func (fc *frameCounter) Snapshot() (map[frame.Kind]uint64, uint64, depthSummary) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	counts := make(map[frame.Kind]uint64, len(fc.counts))
	for k, v := range fc.counts {
		counts[k] = v
	}
	return counts, fc.points, fc.last
}
