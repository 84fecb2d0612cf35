// Package streamer is the raw capture boundary: it fills a raw frame with
// one exposure worth of sensor bytes. The hardware transport behind a real
// streamer is outside the capture core; Synthetic stands in for it.
package streamer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/timeutil"
)

var (
	ErrNotStarted    = errors.New("streamer not started")
	ErrCaptureFailed = errors.New("capture failed")
	ErrLayout        = errors.New("unsupported pixel layout")
	ErrShortPayload  = errors.New("payload too short")
)

// Streamer supplies raw exposures. Capture blocks for one exposure.
type Streamer interface {
	Start() error
	Stop() error
	Capture(out *frame.RawFrame) error
	SetFrameSize(s frame.FrameSize) error
	SetLayout(l Layout) error
}

// RateSetter is implemented by streamers whose pacing follows the
// configured frame rate.
type RateSetter interface {
	SetFrameRate(r frame.FrameRate) error
}

// SyntheticOptions configures a Synthetic streamer.
type SyntheticOptions struct {
	Size   frame.FrameSize
	Layout Layout
	Rate   frame.FrameRate
	Clock  timeutil.Clock
	// FailEvery makes every n-th exposure fail. Zero disables injection.
	FailEvery uint64
}

// Synthetic produces a deterministic scene (a tilted plane drifting one
// phase step per frame) at the configured frame rate.
type Synthetic struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	size      frame.FrameSize
	layout    Layout
	interval  time.Duration
	failEvery uint64
	running   bool
	seq       uint64
	next      time.Time
	pixels    []Pixel

	captured, failed uint64
}

func NewSynthetic(opts SyntheticOptions) (*Synthetic, error) {
	if opts.Size.IsZero() {
		opts.Size = frame.FrameSize{Width: 320, Height: 240}
	}
	if opts.Layout == (Layout{}) {
		opts.Layout = DefaultLayout
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Synthetic{
		clock:     opts.Clock,
		size:      opts.Size,
		layout:    opts.Layout,
		interval:  opts.Rate.Interval(),
		failEvery: opts.FailEvery,
	}, nil
}

func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.next = time.Time{}
	return nil
}

func (s *Synthetic) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *Synthetic) SetFrameSize(size frame.FrameSize) error {
	if size.IsZero() {
		return fmt.Errorf("frame size %s: %w", size, ErrLayout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	return nil
}

func (s *Synthetic) SetLayout(l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = l
	return nil
}

func (s *Synthetic) SetFrameRate(r frame.FrameRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = r.Interval()
	return nil
}

// Counts returns the number of exposures delivered and failed.
func (s *Synthetic) Counts() (captured, failed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured, s.failed
}

func (s *Synthetic) Capture(out *frame.RawFrame) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	now := s.clock.Now()
	if s.next.IsZero() {
		s.next = now
	}
	wait := s.next.Sub(now)
	s.next = s.next.Add(s.interval)
	s.mu.Unlock()

	s.clock.Sleep(wait)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.failEvery > 0 && s.seq%s.failEvery == 0 {
		s.failed++
		return fmt.Errorf("exposure %d: %w", s.seq, ErrCaptureFailed)
	}

	n := s.size.Pixels()
	if cap(s.pixels) < n {
		s.pixels = make([]Pixel, n)
	}
	s.pixels = s.pixels[:n]
	s.render(s.pixels)

	out.Reset(s.size, int(s.layout.BytesPerPixel))
	out.FrameID = s.seq
	out.Time = s.clock.Now()
	if err := Encode(s.layout, s.pixels, out.Data); err != nil {
		s.failed++
		return err
	}
	s.captured++
	return nil
}

func (s *Synthetic) render(px []Pixel) {
	w := int(s.size.Width)
	drift := uint16(s.seq)
	for i := range px {
		x, y := i%w, i/w
		px[i] = Pixel{
			Phase:     (uint16(512+4*x+2*y) + drift) & 0xFFF,
			Amplitude: uint16(200 + (x+y)%1800),
			Ambient:   uint8(y & 0xF),
		}
		// A dark column on the left edge to exercise confidence masking.
		if x == 0 {
			px[i].Amplitude = 3
			px[i].Flags = 1
		}
	}
}
