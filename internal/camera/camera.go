// Package camera runs the capture pipeline of a depth camera.
//
// A Camera owns one capture goroutine that pulls raw exposures from its
// Device and carries each one through processed-raw, depth and point-cloud
// conversion, stopping at the stage the registered callback asks for.
// Intermediate frames come from fixed-capacity buffer pools; every buffer
// checked out during an iteration is released exactly once before the next
// iteration starts, whichever stage fails.
//
// Lifecycle:
//
//	cam, err := camera.New(dev)
//	cam.RegisterCallback(camera.CallbackDepth, fn)
//	cam.Start()
//	...
//	cam.Stop()  // non-blocking
//	cam.Wait()  // joins the capture goroutine
//	cam.Close() // releases pools and parameters; fails while running
package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/depthcam/internal/bufferpool"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
	"github.com/banshee-data/depthcam/internal/timeutil"
)

var (
	// ErrConfiguration marks errors the caller can fix: no callback, bad
	// callback type, failed device initialisation.
	ErrConfiguration  = errors.New("camera configuration error")
	ErrNoCallback     = fmt.Errorf("%w: no callback registered", ErrConfiguration)
	ErrAlreadyRunning = errors.New("camera already running")
	// ErrRunning is returned by Close when the capture goroutine has not
	// been stopped and joined.
	ErrRunning = errors.New("camera is running; Stop and Wait before Close")
	ErrClosed  = errors.New("camera closed")
)

// State is the lifecycle state of the capture goroutine.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const defaultPoolSize = 2

// Option configures a Camera.
type Option func(*Camera)

// WithPoolSizes sets the capacity of the raw, depth and point-cloud pools.
// Values below 1 keep the default.
func WithPoolSizes(raw, depth, pointCloud int) Option {
	return func(c *Camera) {
		if raw > 0 {
			c.poolSizes[0] = raw
		}
		if depth > 0 {
			c.poolSizes[1] = depth
		}
		if pointCloud > 0 {
			c.poolSizes[2] = pointCloud
		}
	}
}

// WithClock replaces the clock used for statistics reporting.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Camera) { c.clock = clock }
}

// WithStatsSink makes the capture goroutine report statistics to fn at most
// once per interval, and once more when it exits.
func WithStatsSink(interval time.Duration, fn func(Stats)) Option {
	return func(c *Camera) {
		c.statsEvery = interval
		c.statsSink = fn
	}
}

type counters struct {
	iterations         atomic.Uint64
	captured           atomic.Uint64
	delivered          atomic.Uint64
	captureFailures    atomic.Uint64
	processFailures    atomic.Uint64
	depthFailures      atomic.Uint64
	pointCloudFailures atomic.Uint64
	poolExhausted      atomic.Uint64
}

// Camera is the capture orchestrator for one device.
type Camera struct {
	id     string
	dev    Device
	params *parameter.Registry
	clock  timeutil.Clock

	poolSizes  [3]int
	rawPool    *bufferpool.Pool[frame.RawFrame]
	depthPool  *bufferpool.Pool[frame.DepthFrame]
	cloudPool  *bufferpool.Pool[frame.PointCloudFrame]
	statsEvery time.Duration
	statsSink  func(Stats)

	// scratch receives the exposure in the processing branches. It is
	// only touched by the capture goroutine.
	scratch frame.RawFrame

	mu       sync.Mutex
	callback callbackSlot
	state    State
	done     chan struct{}
	stopErr  error
	// closed is set by the first Close; released once every pool is clear.
	closed   bool
	released bool

	run atomic.Bool
	n   counters
}

// New initialises dev and builds the frame pools. Initialisation failures,
// including a vendor mismatch or a duplicate parameter name, are returned
// wrapped in ErrConfiguration and no Camera is created.
func New(dev Device, opts ...Option) (*Camera, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrConfiguration)
	}
	c := &Camera{
		id:        uuid.NewString(),
		dev:       dev,
		params:    parameter.NewRegistry(),
		clock:     timeutil.RealClock{},
		poolSizes: [3]int{defaultPoolSize, defaultPoolSize, defaultPoolSize},
	}
	for _, o := range opts {
		o(c)
	}

	if err := dev.Init(c.params); err != nil {
		c.params.Clear()
		return nil, fmt.Errorf("%w: init %s: %w", ErrConfiguration, dev.Name(), err)
	}

	var err error
	if c.rawPool, err = bufferpool.New("raw", c.poolSizes[0], func() *frame.RawFrame { return new(frame.RawFrame) }); err != nil {
		return nil, err
	}
	if c.depthPool, err = bufferpool.New("depth", c.poolSizes[1], func() *frame.DepthFrame { return new(frame.DepthFrame) }); err != nil {
		return nil, err
	}
	if c.cloudPool, err = bufferpool.New("pointcloud", c.poolSizes[2], func() *frame.PointCloudFrame { return new(frame.PointCloudFrame) }); err != nil {
		return nil, err
	}

	diagf("camera %s: %s initialised with %d parameters", c.id, dev.Name(), c.params.Len())
	return c, nil
}

// ID returns the instance identifier assigned at construction.
func (c *Camera) ID() string { return c.id }

// Device returns the underlying device.
func (c *Camera) Device() Device { return c.dev }

// RegisterCallback replaces the callback slot. While running, the new
// callback takes effect from the next iteration.
func (c *Camera) RegisterCallback(t CallbackType, fn Callback) error {
	if !t.valid() {
		return fmt.Errorf("%w: callback type %d", ErrConfiguration, int(t))
	}
	if fn == nil {
		return fmt.Errorf("%w: nil callback", ErrConfiguration)
	}
	c.mu.Lock()
	c.callback = callbackSlot{typ: t, fn: fn}
	c.mu.Unlock()
	diagf("camera %s: callback registered for %s frames", c.id, t)
	return nil
}

// ClearCallback empties the callback slot. A running capture goroutine
// keeps consuming exposures but delivers nothing.
func (c *Camera) ClearCallback() {
	c.mu.Lock()
	c.callback = callbackSlot{}
	c.mu.Unlock()
}

func (c *Camera) callbackSnapshot() callbackSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback
}

// Start launches the capture goroutine and returns once it is looping.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.state != Stopped:
		return fmt.Errorf("%w (%s)", ErrAlreadyRunning, c.state)
	case c.callback.fn == nil:
		opsf("camera %s: register a callback before starting capture", c.id)
		return ErrNoCallback
	}

	c.state = Starting
	if err := c.dev.Start(); err != nil {
		c.state = Stopped
		return fmt.Errorf("start %s: %w", c.dev.Name(), err)
	}

	c.run.Store(true)
	c.done = make(chan struct{})
	c.stopErr = nil
	ready := make(chan struct{})
	go c.captureLoop(ready, c.done)
	<-ready
	c.state = Running
	diagf("camera %s: capture started (%s)", c.id, c.callback.typ)
	return nil
}

// Stop asks the capture goroutine to exit after the current iteration. It
// does not block.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Store(false)
	if c.state == Running || c.state == Starting {
		c.state = Stopping
	}
}

// Wait blocks until the capture goroutine has exited and returns the error
// from the device's hardware stop, if any. It returns immediately when
// capture was never started.
func (c *Camera) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}

// IsRunning reports whether the capture goroutine is looping.
func (c *Camera) IsRunning() bool {
	return c.State() == Running
}

func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the frame pools and the parameter registry. Closing a
// camera that has not been stopped and joined is a caller error and
// returns ErrRunning without touching anything. While buffers are still
// checked out Close returns ErrInFlight and may be called again once they
// are released.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped {
		return ErrRunning
	}
	if c.released {
		return nil
	}
	c.closed = true

	if err := errors.Join(c.rawPool.Clear(), c.depthPool.Clear(), c.cloudPool.Clear()); err != nil {
		opsf("camera %s: close with buffers in flight: %v", c.id, err)
		return err
	}
	c.params.Clear()
	c.released = true
	return nil
}

func (c *Camera) captureLoop(ready chan<- struct{}, done chan<- struct{}) {
	close(ready)

	lastReport := c.clock.Now()
	for c.run.Load() {
		c.iterate()
		if c.statsSink != nil && c.clock.Since(lastReport) >= c.statsEvery {
			c.statsSink(c.Stats())
			lastReport = c.clock.Now()
		}
	}

	err := c.dev.Stop()
	if err != nil {
		opsf("camera %s: hardware stop failed: %v", c.id, err)
	}
	if c.statsSink != nil {
		c.statsSink(c.Stats())
	}

	c.mu.Lock()
	c.state = Stopped
	c.stopErr = err
	c.mu.Unlock()
	diagf("camera %s: capture stopped after %d iterations", c.id, c.n.iterations.Load())
	close(done)
}

// iterate runs one pass of the pipeline. Every handle obtained here is
// released before it returns.
func (c *Camera) iterate() {
	c.n.iterations.Add(1)
	cb := c.callbackSnapshot()

	if cb.fn == nil || cb.typ == CallbackRawUnprocessed {
		rh, ok := acquire(c, c.rawPool)
		if !ok {
			return
		}
		defer release(c, c.rawPool, rh)
		if err := c.dev.CaptureRawUnprocessedFrame(rh.Value()); err != nil {
			c.n.captureFailures.Add(1)
			tracef("camera %s: capture: %v", c.id, err)
			return
		}
		c.n.captured.Add(1)
		c.deliver(cb, rh.Value())
		return
	}

	if err := c.dev.CaptureRawUnprocessedFrame(&c.scratch); err != nil {
		c.n.captureFailures.Add(1)
		tracef("camera %s: capture: %v", c.id, err)
		return
	}
	c.n.captured.Add(1)

	rh, ok := acquire(c, c.rawPool)
	if !ok {
		return
	}
	if err := c.dev.ProcessRawFrame(&c.scratch, rh.Value()); err != nil {
		c.n.processFailures.Add(1)
		tracef("camera %s: process frame %d: %v", c.id, c.scratch.FrameID, err)
		release(c, c.rawPool, rh)
		return
	}
	if cb.typ == CallbackRawProcessed {
		c.deliver(cb, rh.Value())
		release(c, c.rawPool, rh)
		return
	}

	dh, ok := acquire(c, c.depthPool)
	if !ok {
		release(c, c.rawPool, rh)
		return
	}
	if err := c.dev.ConvertToDepthFrame(rh.Value(), dh.Value()); err != nil {
		c.n.depthFailures.Add(1)
		tracef("camera %s: depth frame %d: %v", c.id, c.scratch.FrameID, err)
		release(c, c.rawPool, rh)
		release(c, c.depthPool, dh)
		return
	}
	release(c, c.rawPool, rh)
	if cb.typ == CallbackDepth {
		c.deliver(cb, dh.Value())
		release(c, c.depthPool, dh)
		return
	}

	ph, ok := acquire(c, c.cloudPool)
	if !ok {
		release(c, c.depthPool, dh)
		return
	}
	if err := c.dev.ConvertToPointCloudFrame(dh.Value(), ph.Value()); err != nil {
		c.n.pointCloudFailures.Add(1)
		tracef("camera %s: point cloud frame %d: %v", c.id, c.scratch.FrameID, err)
		release(c, c.depthPool, dh)
		release(c, c.cloudPool, ph)
		return
	}
	release(c, c.depthPool, dh)
	c.deliver(cb, ph.Value())
	release(c, c.cloudPool, ph)
}

func (c *Camera) deliver(cb callbackSlot, f frame.Frame) {
	if cb.fn == nil {
		return
	}
	cb.fn(c, f, cb.typ)
	c.n.delivered.Add(1)
}

func acquire[T any](c *Camera, p *bufferpool.Pool[T]) (bufferpool.Handle[T], bool) {
	h, err := p.Get()
	if err != nil {
		c.n.poolExhausted.Add(1)
		opsf("camera %s: %v", c.id, err)
		return h, false
	}
	return h, true
}

func release[T any](c *Camera, p *bufferpool.Pool[T], h bufferpool.Handle[T]) {
	if err := p.Release(h); err != nil {
		opsf("camera %s: release: %v", c.id, err)
	}
}
