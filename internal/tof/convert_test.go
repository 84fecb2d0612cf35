package tof

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/parameter"
	"github.com/banshee-data/depthcam/internal/regio"
	"github.com/banshee-data/depthcam/internal/streamer"
	"github.com/banshee-data/depthcam/internal/testutil"
)

func encodedFrame(t *testing.T, l streamer.Layout, size frame.FrameSize, px []streamer.Pixel) *frame.RawFrame {
	t.Helper()
	raw := &frame.RawFrame{}
	raw.Reset(size, int(l.BytesPerPixel))
	raw.FrameID = 7
	require.NoError(t, streamer.Encode(l, px, raw.Data))
	return raw
}

func TestProcessRawFrame(t *testing.T) {
	f := newFixture(t, TinTin{}, Options{})
	size := frame.FrameSize{Width: 2, Height: 1}
	px := []streamer.Pixel{
		{Phase: 2048, Amplitude: 900, Ambient: 3, Flags: 0},
		{Phase: 4095, Amplitude: 5, Ambient: 15, Flags: 1},
	}

	var out frame.RawFrame
	require.NoError(t, f.dev.ProcessRawFrame(encodedFrame(t, streamer.DefaultLayout, size, px), &out))
	assert.True(t, out.Processed)
	assert.Equal(t, frame.KindProcessedRaw, out.Kind())
	assert.Equal(t, uint64(7), out.FrameID)
	assert.Equal(t, []uint16{2048, 4095}, out.Phase)
	assert.Equal(t, []uint16{900, 5}, out.Amplitude)
	assert.Equal(t, []uint8{3, 15}, out.Ambient)
	assert.Equal(t, []uint8{0, 1}, out.Flags)

	t.Run("planes", func(t *testing.T) {
		require.NoError(t, parameter.SetUint(f.reg, OpDataArrangeMode, streamer.ArrangePlanes))
		require.NoError(t, f.dev.latch())
		l := streamer.Layout{BytesPerPixel: 4, ArrangeMode: streamer.ArrangePlanes}
		var out frame.RawFrame
		require.NoError(t, f.dev.ProcessRawFrame(encodedFrame(t, l, size, px), &out))
		assert.Equal(t, []uint16{2048, 4095}, out.Phase)
		assert.Equal(t, []uint16{900, 5}, out.Amplitude)
	})

	t.Run("unsupported arrangement", func(t *testing.T) {
		require.NoError(t, parameter.SetUint(f.reg, OpDataArrangeMode, 1))
		require.NoError(t, f.dev.latch())
		var out frame.RawFrame
		err := f.dev.ProcessRawFrame(encodedFrame(t, streamer.DefaultLayout, size, px), &out)
		require.ErrorIs(t, err, ErrInvalidFrame)
		require.ErrorIs(t, err, streamer.ErrLayout)
	})
}

func TestProcessRawFrame_ReusedFrameCarriesPayload(t *testing.T) {
	f := newFixture(t, TinTin{}, Options{})
	size := frame.FrameSize{Width: 2, Height: 1}
	in := encodedFrame(t, streamer.DefaultLayout, size, []streamer.Pixel{
		{Phase: 1, Amplitude: 900},
		{Phase: 2, Amplitude: 900},
	})

	out := &frame.RawFrame{FrameID: 99, Data: []byte{0xde, 0xad, 0xbe, 0xef}}
	require.NoError(t, f.dev.ProcessRawFrame(in, out))
	assert.Equal(t, uint64(7), out.FrameID)
	assert.Equal(t, in.Data, out.Data, "processed frame keeps the payload it was decoded from")

	in.Data[0] ^= 0xff
	assert.NotEqual(t, in.Data, out.Data, "payload is copied, not aliased")
}

func TestProcessRawFrame_ShortPayload(t *testing.T) {
	f := newFixture(t, TinTin{}, Options{})
	raw := &frame.RawFrame{Size: frame.FrameSize{Width: 4, Height: 4}, Data: make([]byte, 10)}
	var out frame.RawFrame
	err := f.dev.ProcessRawFrame(raw, &out)
	require.ErrorIs(t, err, ErrInvalidFrame)
	require.ErrorIs(t, err, streamer.ErrShortPayload)
}

func TestConvertToDepthFrame(t *testing.T) {
	f := newFixture(t, TinTin{}, Options{})
	rangeM, err := parameter.GetFloat(f.reg, UnambiguousRange)
	require.NoError(t, err)

	in := &frame.RawFrame{}
	in.ResetPlanes(frame.FrameSize{Width: 3, Height: 1})
	in.FrameID = 9
	copy(in.Phase, []uint16{2048, 1024, 3000})
	copy(in.Amplitude, []uint16{1000, 4, 1000})
	copy(in.Flags, []uint8{0, 0, 1})

	var out frame.DepthFrame
	require.NoError(t, f.dev.ConvertToDepthFrame(in, &out))
	assert.Equal(t, uint64(9), out.FrameID)
	require.Len(t, out.Depth, 3)
	assert.InDelta(t, rangeM/2, out.Depth[0], 1e-4)
	assert.Zero(t, out.Depth[1], "amplitude below the confidence threshold")
	assert.Zero(t, out.Depth[2], "flagged pixel")
	assert.InDelta(t, 1000.0/4096, out.Amplitude[0], 1e-6)

	unprocessed := &frame.RawFrame{Size: in.Size}
	require.ErrorIs(t, f.dev.ConvertToDepthFrame(unprocessed, &out), ErrInvalidFrame)
}

func TestConvertToDepthFrame_GenerationFactors(t *testing.T) {
	in := &frame.RawFrame{}
	in.ResetPlanes(frame.FrameSize{Width: 1, Height: 1})
	in.Phase[0] = 2048
	in.Amplitude[0] = 512

	tintin := newFixture(t, TinTin{}, Options{})
	haddock := newFixture(t, Haddock{}, Options{})

	var a, b frame.DepthFrame
	require.NoError(t, tintin.dev.ConvertToDepthFrame(in, &a))
	require.NoError(t, haddock.dev.ConvertToDepthFrame(in, &b))
	assert.InDelta(t, 512.0/4096, a.Amplitude[0], 1e-6)
	assert.InDelta(t, 512.0/1024, b.Amplitude[0], 1e-6)

	scale, err := haddock.dev.DepthScalingFactor()
	require.NoError(t, err)
	assert.InDelta(t, 2048*scale, b.Depth[0], 1e-4)
}

func TestConvertToPointCloudFrame(t *testing.T) {
	f := newFixture(t, TinTin{}, Options{})
	in := &frame.DepthFrame{}
	in.Reset(frame.FrameSize{Width: 3, Height: 1})
	copy(in.Depth, []float32{0, 2, 1})
	copy(in.Amplitude, []float32{0.1, 0.5, 0.25})

	var out frame.PointCloudFrame
	require.NoError(t, f.dev.ConvertToPointCloudFrame(in, &out))
	require.Len(t, out.Points, 2, "zero depth is not a point")

	centre := out.Points[0]
	assert.InDelta(t, 0, centre.Pos.X, 1e-9)
	assert.InDelta(t, 0, centre.Pos.Y, 1e-9)
	assert.InDelta(t, 2, centre.Pos.Z, 1e-9)
	assert.Equal(t, float32(0.5), centre.Intensity)

	edge := out.Points[1]
	assert.InDelta(t, 1, r3.Norm(edge.Pos), 1e-9, "depth is radial")
	assert.Greater(t, edge.Pos.X, 0.0)

	h := newFixture(t, Haddock{}, Options{})
	require.ErrorIs(t, h.dev.ConvertToPointCloudFrame(in, &out), camera.ErrUnsupported)
}

type delivery struct {
	kind   frame.Kind
	typ    camera.CallbackType
	pixels int
	dark   float32
	lit    float32
	points int
}

func TestCamera_EndToEnd(t *testing.T) {
	const want = 3
	size := frame.FrameSize{Width: 320, Height: 240}
	for _, typ := range []camera.CallbackType{camera.CallbackRawProcessed, camera.CallbackDepth, camera.CallbackPointCloud} {
		t.Run(typ.String(), func(t *testing.T) {
			strm, err := streamer.NewSynthetic(streamer.SyntheticOptions{
				Rate: frame.FrameRate{Numerator: 1000, Denominator: 1},
			})
			require.NoError(t, err)
			dev := New(TinTin{}, regio.NewBus(NewSimulatedProgrammer(TinTin{})), strm, Options{})
			cam, err := camera.New(dev)
			require.NoError(t, err)

			var mu sync.Mutex
			var got []delivery
			require.NoError(t, cam.RegisterCallback(typ, func(_ *camera.Camera, fr frame.Frame, ct camera.CallbackType) {
				d := delivery{kind: fr.Kind(), typ: ct}
				switch x := fr.(type) {
				case *frame.RawFrame:
					d.pixels = len(x.Phase)
				case *frame.DepthFrame:
					d.pixels = len(x.Depth)
					d.dark, d.lit = x.Depth[0], x.Depth[1]
				case *frame.PointCloudFrame:
					d.points = len(x.Points)
				}
				mu.Lock()
				defer mu.Unlock()
				if len(got) < want {
					got = append(got, d)
				}
			}))

			require.NoError(t, cam.Start())
			testutil.WaitFor(t, 10*time.Second, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(got) >= want
			}, "frames delivered")
			cam.Stop()
			require.NoError(t, cam.Wait())

			mu.Lock()
			defer mu.Unlock()
			for _, d := range got {
				assert.Equal(t, typ, d.typ)
				switch typ {
				case camera.CallbackRawProcessed:
					assert.Equal(t, frame.KindProcessedRaw, d.kind)
					assert.Equal(t, size.Pixels(), d.pixels)
				case camera.CallbackDepth:
					assert.Equal(t, frame.KindDepth, d.kind)
					assert.Equal(t, size.Pixels(), d.pixels)
					assert.Zero(t, d.dark, "dark column is masked")
					assert.Greater(t, d.lit, float32(0))
				case camera.CallbackPointCloud:
					assert.Equal(t, frame.KindPointCloud, d.kind)
					assert.Equal(t, size.Pixels()-int(size.Height), d.points, "one point per lit pixel")
				}
			}

			s := cam.Stats()
			assert.Zero(t, s.BuffersInUse())
			assert.Zero(t, s.Dropped())
			tg, err := cam.GetBool(TGEn)
			require.NoError(t, err)
			assert.False(t, tg, "hardware stopped on exit")
			require.NoError(t, cam.Close())
		})
	}
}
