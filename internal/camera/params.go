package camera

import (
	"fmt"
	"slices"

	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
)

// Parameters returns the registry populated by the device at Init.
func (c *Camera) Parameters() *parameter.Registry { return c.params }

// Parameter looks up one parameter. Absence is not an error.
func (c *Camera) Parameter(name string) (parameter.Parameter, bool) {
	return c.params.Get(name)
}

// GetParameter refreshes the named parameter from the device and returns
// its value.
func (c *Camera) GetParameter(name string) (any, error) {
	p, ok := c.params.Get(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, parameter.ErrNotFound)
	}
	if p.IOType() != parameter.IOWrite {
		if err := p.Refresh(); err != nil {
			return nil, err
		}
	}
	return p.Value(), nil
}

// SetParameter converts v to the parameter's type and writes it.
func (c *Camera) SetParameter(name string, v any) error {
	p, ok := c.params.Get(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, parameter.ErrNotFound)
	}
	if err := p.SetAny(v); err != nil {
		return err
	}
	diagf("camera %s: %s = %v", c.id, name, v)
	return nil
}

// SetParameters applies values in sorted name order and stops at the first
// failure.
func (c *Camera) SetParameters(values map[string]any) error {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		if err := c.SetParameter(n, values[n]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Camera) GetBool(name string) (bool, error)       { return parameter.GetBool(c.params, name) }
func (c *Camera) SetBool(name string, v bool) error       { return parameter.SetBool(c.params, name, v) }
func (c *Camera) GetUint(name string) (uint32, error)     { return parameter.GetUint(c.params, name) }
func (c *Camera) SetUint(name string, v uint32) error     { return parameter.SetUint(c.params, name, v) }
func (c *Camera) GetInt(name string) (int32, error)       { return parameter.GetInt(c.params, name) }
func (c *Camera) SetInt(name string, v int32) error       { return parameter.SetInt(c.params, name, v) }
func (c *Camera) GetFloat(name string) (float64, error)   { return parameter.GetFloat(c.params, name) }
func (c *Camera) SetFloat(name string, v float64) error   { return parameter.SetFloat(c.params, name, v) }
func (c *Camera) FrameSize() (frame.FrameSize, error)     { return c.dev.FrameSize() }
func (c *Camera) FrameRate() (frame.FrameRate, error)     { return c.dev.FrameRate() }
func (c *Camera) ROI() (frame.RegionOfInterest, error)    { return c.dev.ROI() }
func (c *Camera) IlluminationFrequency() (float64, error) { return c.dev.IlluminationFrequency() }

func (c *Camera) AmplitudeNormalizingFactor() (float64, error) {
	return c.dev.AmplitudeNormalizingFactor()
}

func (c *Camera) DepthScalingFactor() (float64, error) { return c.dev.DepthScalingFactor() }

func (c *Camera) MaximumFrameRate(forSize frame.FrameSize) (frame.FrameRate, error) {
	return c.dev.MaximumFrameRate(forSize)
}

func (c *Camera) Binning() (rows, cols uint32, err error) { return c.dev.Binning() }

func (c *Camera) SetFrameSize(s frame.FrameSize, resetROI bool) error {
	if err := c.dev.SetFrameSize(s, resetROI); err != nil {
		return err
	}
	diagf("camera %s: frame size %s", c.id, s)
	return nil
}

func (c *Camera) SetFrameRate(r frame.FrameRate) error {
	if err := c.dev.SetFrameRate(r); err != nil {
		return err
	}
	diagf("camera %s: frame rate %s", c.id, r)
	return nil
}

func (c *Camera) SetBinning(rows, cols uint32, s frame.FrameSize) error {
	if err := c.dev.SetBinning(rows, cols, s); err != nil {
		return err
	}
	diagf("camera %s: binning %dx%d for %s", c.id, rows, cols, s)
	return nil
}

func (c *Camera) SetROI(roi frame.RegionOfInterest) error {
	if err := c.dev.SetROI(roi); err != nil {
		return err
	}
	diagf("camera %s: roi rows %d-%d cols %d-%d", c.id, roi.RowStart, roi.RowEnd, roi.ColStart, roi.ColEnd)
	return nil
}

// Reset issues the device's software reset sequence.
func (c *Camera) Reset() error {
	if err := c.dev.Reset(); err != nil {
		return err
	}
	diagf("camera %s: software reset", c.id)
	return nil
}
