package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawFrame_ResetReusesBacking(t *testing.T) {
	f := &RawFrame{}
	f.Reset(FrameSize{Width: 4, Height: 2}, 4)
	assert.Len(t, f.Data, 32)
	assert.Equal(t, KindRaw, f.Kind())

	backing := &f.Data[0]
	f.Reset(FrameSize{Width: 2, Height: 2}, 4)
	assert.Len(t, f.Data, 16)
	assert.Same(t, backing, &f.Data[0], "smaller reset must not reallocate")

	f.ResetPlanes(FrameSize{Width: 2, Height: 2})
	assert.Equal(t, KindProcessedRaw, f.Kind())
	assert.Len(t, f.Phase, 4)
	assert.Len(t, f.Flags, 4)

	f.Reset(FrameSize{Width: 2, Height: 2}, 4)
	assert.False(t, f.Processed)
	assert.Empty(t, f.Phase)
}

func TestDepthAndPointCloudReset(t *testing.T) {
	d := &DepthFrame{}
	d.Reset(FrameSize{Width: 3, Height: 3})
	assert.Len(t, d.Depth, 9)
	assert.Len(t, d.Amplitude, 9)
	assert.Equal(t, KindDepth, d.Kind())

	p := &PointCloudFrame{}
	p.Reset(9)
	assert.Empty(t, p.Points)
	assert.GreaterOrEqual(t, cap(p.Points), 9)
	assert.Equal(t, KindPointCloud, p.Kind())
}

func TestFrameRate(t *testing.T) {
	r := FrameRate{Numerator: 30, Denominator: 1}
	assert.InDelta(t, 30.0, r.FPS(), 1e-9)
	assert.Equal(t, time.Second/30, r.Interval())
	assert.Equal(t, "30 fps", r.String())

	assert.Zero(t, FrameRate{Numerator: 30}.FPS())
	assert.Zero(t, FrameRate{Numerator: 30}.Interval())
	assert.Equal(t, "25/2 fps", FrameRate{Numerator: 25, Denominator: 2}.String())
}

func TestFrameSizeAndROI(t *testing.T) {
	s := FrameSize{Width: 320, Height: 240}
	assert.Equal(t, 76800, s.Pixels())
	assert.Equal(t, "320x240", s.String())
	assert.True(t, FrameSize{Width: 320}.IsZero())

	roi := RegionOfInterest{RowStart: 0, RowEnd: 239, ColStart: 0, ColEnd: 319}
	assert.Equal(t, uint32(240), roi.Rows())
	assert.Equal(t, uint32(320), roi.Cols())
	assert.Zero(t, RegionOfInterest{RowStart: 5, RowEnd: 1}.Rows())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "depth", KindDepth.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
