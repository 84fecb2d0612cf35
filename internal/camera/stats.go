package camera

import (
	"github.com/banshee-data/depthcam/internal/bufferpool"
)

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	CameraID string `json:"camera_id"`
	Device   string `json:"device"`
	State    string `json:"state"`
	Callback string `json:"callback,omitempty"`

	Iterations         uint64 `json:"iterations"`
	Captured           uint64 `json:"captured"`
	Delivered          uint64 `json:"delivered"`
	CaptureFailures    uint64 `json:"capture_failures"`
	ProcessFailures    uint64 `json:"process_failures"`
	DepthFailures      uint64 `json:"depth_failures"`
	PointCloudFailures uint64 `json:"point_cloud_failures"`
	PoolExhausted      uint64 `json:"pool_exhausted"`

	Pools []bufferpool.Stats `json:"pools"`
}

// Dropped returns the number of iterations that delivered nothing because a
// stage failed.
func (s Stats) Dropped() uint64 {
	return s.CaptureFailures + s.ProcessFailures + s.DepthFailures + s.PointCloudFailures + s.PoolExhausted
}

// BuffersInUse sums the checked-out buffers across all pools.
func (s Stats) BuffersInUse() int {
	n := 0
	for _, p := range s.Pools {
		n += p.InUse
	}
	return n
}

func (c *Camera) Stats() Stats {
	c.mu.Lock()
	state := c.state
	cb := c.callback
	c.mu.Unlock()

	s := Stats{
		CameraID:           c.id,
		Device:             c.dev.Name(),
		State:              state.String(),
		Iterations:         c.n.iterations.Load(),
		Captured:           c.n.captured.Load(),
		Delivered:          c.n.delivered.Load(),
		CaptureFailures:    c.n.captureFailures.Load(),
		ProcessFailures:    c.n.processFailures.Load(),
		DepthFailures:      c.n.depthFailures.Load(),
		PointCloudFailures: c.n.pointCloudFailures.Load(),
		PoolExhausted:      c.n.poolExhausted.Load(),
		Pools:              []bufferpool.Stats{c.rawPool.Stats(), c.depthPool.Stats(), c.cloudPool.Stats()},
	}
	if cb.fn != nil {
		s.Callback = cb.typ.String()
	}
	return s
}
